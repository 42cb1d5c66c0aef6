package fetcher

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
)

// DecodeJSONObject decodes a single JSON value from a reader.
func DecodeJSONObject[T any](r io.Reader) (*T, error) {
	var obj T
	if err := json.NewDecoder(r).Decode(&obj); err != nil {
		return nil, eris.Wrap(err, "json: decode object")
	}
	return &obj, nil
}

// DecodeJSON decodes a response body, skipping a UTF-8 byte order mark.
func DecodeJSON[T any](body []byte) (*T, error) {
	return DecodeJSONObject[T](bytes.NewReader(bytes.TrimPrefix(body, []byte("\xef\xbb\xbf"))))
}
