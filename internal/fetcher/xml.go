package fetcher

import (
	"context"
	"encoding/xml"
	"io"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
)

// NewXMLDecoder returns a decoder that understands any charset declared in
// the XML prolog (windows-1252 and ISO-8859-1 filings are common).
func NewXMLDecoder(r io.Reader) *xml.Decoder {
	decoder := xml.NewDecoder(r)
	decoder.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		enc, err := htmlindex.Get(charset)
		if err != nil {
			return nil, eris.Wrapf(err, "xml: unsupported charset %q", charset)
		}
		return enc.NewDecoder().Reader(input), nil
	}
	return decoder
}

// WalkXML calls fn for every start element in r. fn may consume the element
// with d.DecodeElement; otherwise the walk descends into it.
func WalkXML(ctx context.Context, r io.Reader, fn func(d *xml.Decoder, se xml.StartElement) error) error {
	decoder := NewXMLDecoder(r)
	for {
		if err := ctx.Err(); err != nil {
			return eris.Wrap(err, "xml: context cancelled")
		}

		tok, err := decoder.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return eris.Wrap(err, "xml: read token")
		}

		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if err := fn(decoder, se); err != nil {
			return err
		}
	}
}
