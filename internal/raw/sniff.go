package raw

import (
	"bytes"
	"mime"
	"strings"

	"github.com/sells-group/holdings-cli/internal/model"
)

// Sniff infers a document type from magic bytes, falling back to the
// Content-Type header.
func Sniff(body []byte, contentType string) model.DocumentType {
	head := bytes.TrimLeft(firstN(body, 1024), "\xef\xbb\xbf \t\r\n")
	lower := bytes.ToLower(head)

	switch {
	case bytes.HasPrefix(head, []byte("%PDF")):
		return model.DocPDF
	case bytes.HasPrefix(head, []byte("PK\x03\x04")):
		return model.DocXLSX
	case bytes.HasPrefix(lower, []byte("<!doctype html")), bytes.HasPrefix(lower, []byte("<html")),
		bytes.HasPrefix(lower, []byte("<table")):
		return model.DocHTML
	case bytes.Contains(lower, []byte("<edgarsubmission")):
		return model.DocNPORTXML
	case bytes.HasPrefix(lower, []byte("<?xml")):
		if bytes.Contains(lower, []byte("<html")) {
			return model.DocHTML
		}
		return model.DocNPORTXML
	}

	media, _, _ := mime.ParseMediaType(contentType)
	switch media {
	case "application/pdf":
		return model.DocPDF
	case "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "application/vnd.ms-excel":
		return model.DocXLSX
	case "text/html", "application/xhtml+xml":
		return model.DocHTML
	case "text/csv":
		return model.DocCSV
	}

	firstLine, _, _ := strings.Cut(string(head), "\n")
	if strings.Count(firstLine, ",") >= 2 || strings.Count(firstLine, ";") >= 2 || strings.Count(firstLine, "\t") >= 2 {
		return model.DocCSV
	}
	return model.DocText
}

// compatible reports whether a body sniffed as got satisfies a descriptor
// that declared want.
func compatible(want, got model.DocumentType) bool {
	switch want {
	case model.DocReport, "":
		return true
	case model.DocCSV:
		return got == model.DocCSV || got == model.DocText
	case model.DocText:
		return got == model.DocText || got == model.DocCSV
	default:
		return want == got
	}
}

func firstN(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}
