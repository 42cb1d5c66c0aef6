package fetcher

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testSubmissions struct {
	CIK  string `json:"cik"`
	Name string `json:"name"`
}

func TestDecodeJSONObject(t *testing.T) {
	got, err := DecodeJSONObject[testSubmissions](strings.NewReader(`{"cik":"884394","name":"SPDR S&P 500 ETF TRUST"}`))
	require.NoError(t, err)
	assert.Equal(t, "884394", got.CIK)
}

func TestDecodeJSON_BOM(t *testing.T) {
	got, err := DecodeJSON[[]testSubmissions]([]byte("\xef\xbb\xbf[{\"cik\":\"1\"}]"))
	require.NoError(t, err)
	require.Len(t, *got, 1)
	assert.Equal(t, "1", (*got)[0].CIK)
}

func TestDecodeJSON_Invalid(t *testing.T) {
	_, err := DecodeJSON[testSubmissions]([]byte("{not json"))
	assert.Error(t, err)
}
