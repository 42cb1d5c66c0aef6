package registry

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/holdings-cli/internal/model"
)

const sampleRegistry = `
funds:
  spdr-sp500:
    name: SPDR S&P 500 ETF Trust
    issuer: State Street
    jurisdiction: US
    tickers: [spy]
    cik: "884394"
  ishares-core-world:
    name: iShares Core MSCI World UCITS ETF
    jurisdiction: IE
    source: luxse_oam
    tickers: [IWDA, SWDA]
    share_class_isin: IE00B4L5Y983
    currency: usd
  bnp-sp500:
    name: BNP Paribas Easy S&P 500
    jurisdiction: FR
    tickers: [ESE]
    share_class_isin: FR0011550185
    freshness_days: 90
  vanguard-mm:
    name: Vanguard Federal Money Market Fund
    jurisdiction: US
    source: static
    tickers: [VMFXX]
    exclude_from_lookthrough: true
    static_holdings:
      - name: US Treasury Bill
        weight_pct: 100
`

func TestParse(t *testing.T) {
	reg, err := Parse([]byte(sampleRegistry))
	require.NoError(t, err)
	assert.Equal(t, 4, reg.Len())

	ids := make([]string, 0, reg.Len())
	for _, f := range reg.Funds() {
		ids = append(ids, f.ID)
	}
	assert.Equal(t, []string{"bnp-sp500", "ishares-core-world", "spdr-sp500", "vanguard-mm"}, ids)

	spy, ok := reg.Get("spdr-sp500")
	require.True(t, ok)
	assert.Equal(t, model.SourceSECNPORT, spy.Source)
	assert.Equal(t, []string{"SPY"}, spy.Tickers)
	assert.Equal(t, 30*24*time.Hour, spy.Freshness)
	assert.Equal(t, "0000884394", spy.PaddedCIK())
	assert.Equal(t, "USD", spy.Currency)

	world, ok := reg.Get("ishares-core-world")
	require.True(t, ok)
	assert.Equal(t, 210*24*time.Hour, world.Freshness)
	assert.Equal(t, "USD", world.Currency)

	bnp, ok := reg.Get("bnp-sp500")
	require.True(t, ok)
	assert.Equal(t, model.SourceAMFBDIF, bnp.Source)
	assert.Equal(t, 90*24*time.Hour, bnp.Freshness)
	assert.Equal(t, "EUR", bnp.Currency)
}

func TestLookup(t *testing.T) {
	reg, err := Parse([]byte(sampleRegistry))
	require.NoError(t, err)

	e, ok := reg.ByTicker("swda")
	require.True(t, ok)
	assert.Equal(t, "ishares-core-world", e.ID)

	e, ok = reg.ByISIN("fr0011550185")
	require.True(t, ok)
	assert.Equal(t, "bnp-sp500", e.ID)

	for _, key := range []string{"spdr-sp500", "SPY", "IE00B4L5Y983"} {
		_, ok := reg.Lookup(key)
		assert.True(t, ok, key)
	}
	_, ok = reg.Lookup("QQQ")
	assert.False(t, ok)
}

func TestParse_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "unknown source",
			yaml: "funds:\n  a:\n    jurisdiction: US\n    source: edgar\n    cik: \"1\"\n",
			want: `unknown source "edgar"`,
		},
		{
			name: "missing cik",
			yaml: "funds:\n  a:\n    jurisdiction: US\n",
			want: "sec_nport requires a numeric cik",
		},
		{
			name: "long cik",
			yaml: "funds:\n  a:\n    jurisdiction: US\n    cik: \"12345678901\"\n",
			want: "sec_nport requires a numeric cik",
		},
		{
			name: "missing isin",
			yaml: "funds:\n  a:\n    jurisdiction: LU\n",
			want: "luxse_oam requires share_class_isin",
		},
		{
			name: "bad isin check digit",
			yaml: "funds:\n  a:\n    jurisdiction: LU\n    share_class_isin: LU0908500754\n",
			want: "malformed share_class_isin",
		},
		{
			name: "non-positive freshness",
			yaml: "funds:\n  a:\n    jurisdiction: US\n    cik: \"1\"\n    freshness_days: 0\n",
			want: "freshness must be positive",
		},
		{
			name: "duplicate ticker",
			yaml: "funds:\n  a:\n    jurisdiction: US\n    cik: \"1\"\n    tickers: [X]\n  b:\n    jurisdiction: US\n    cik: \"2\"\n    tickers: [x]\n",
			want: "ticker X already mapped to a",
		},
		{
			name: "unknown jurisdiction",
			yaml: "funds:\n  a:\n    jurisdiction: JP\n    source: static\n    static_holdings: [{name: A, weight_pct: 100}]\n",
			want: `unknown jurisdiction "JP"`,
		},
		{
			name: "static without holdings",
			yaml: "funds:\n  a:\n    jurisdiction: US\n    source: static\n",
			want: "static source requires static_holdings",
		},
		{
			name: "bad currency",
			yaml: "funds:\n  a:\n    jurisdiction: US\n    cik: \"1\"\n    currency: dollars\n",
			want: "malformed currency DOLLARS",
		},
		{
			name: "empty registry",
			yaml: "funds: {}\n",
			want: "no funds defined",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParse_MalformedYAML(t *testing.T) {
	_, err := Parse([]byte("funds: [unterminated"))
	assert.Error(t, err)
}

func TestNew_EmptyID(t *testing.T) {
	_, err := New([]model.FundEntry{{Jurisdiction: model.JurisdictionUS, Source: model.SourceSECNPORT, CIK: "1", Freshness: time.Hour}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty id")
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fund_registry.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleRegistry), 0o644))

	reg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 4, reg.Len())

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadFile_SampleRegistry(t *testing.T) {
	reg, err := LoadFile("../../fund_registry.yaml")
	require.NoError(t, err)
	assert.Equal(t, 7, reg.Len())

	f, ok := reg.Lookup("SWDA")
	require.True(t, ok)
	assert.Equal(t, "ishares-core-msci-world", f.ID)
	assert.Equal(t, model.SourceLuxSEOAM, f.Source)

	f, ok = reg.Lookup("SHV")
	require.True(t, ok)
	assert.True(t, f.ExcludeFromLookthrough)
}
