package alphavantage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestETFProfile_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/query", r.URL.Path)
		assert.Equal(t, "ETF_PROFILE", r.URL.Query().Get("function"))
		assert.Equal(t, "SPY", r.URL.Query().Get("symbol"))
		assert.Equal(t, "k1", r.URL.Query().Get("apikey"))
		w.Write([]byte(`{
			"net_assets": "500000000000",
			"holdings": [
				{"symbol": "AAPL", "description": "APPLE INC", "weight": "0.0703"},
				{"symbol": "n/a", "description": "CASH", "weight": "n/a"}
			],
			"sectors": [{"sector": "INFORMATION TECHNOLOGY", "weight": "0.318"}]
		}`))
	}))
	defer srv.Close()

	p, err := NewClient(WithBaseURL(srv.URL)).ETFProfile(context.Background(), "k1", "SPY")
	require.NoError(t, err)
	require.Len(t, p.Holdings, 2)
	assert.Equal(t, "APPLE INC", p.Holdings[0].DisplayName())
	assert.InDelta(t, 0.0703, p.Holdings[0].Weight.Value, 1e-9)
	assert.False(t, p.Holdings[1].Weight.Valid)
	require.Len(t, p.Sectors, 1)
	assert.InDelta(t, 0.318, p.Sectors[0].Weight.Value, 1e-9)
}

func TestETFProfile_QuotaSignals(t *testing.T) {
	t.Parallel()

	for name, body := range map[string]string{
		"note":        `{"Note":"Thank you for using Alpha Vantage! Our standard API call frequency is 5 calls per minute."}`,
		"information": `{"Information":"We have detected your API key and our standard API rate limit is 25 requests per day."}`,
	} {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(body))
			}))
			defer srv.Close()

			_, err := NewClient(WithBaseURL(srv.URL)).ETFProfile(context.Background(), "k", "SPY")
			assert.ErrorIs(t, err, ErrRateLimited)
		})
	}
}

func TestETFProfile_ErrorMessage(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Error Message":"Invalid API call."}`))
	}))
	defer srv.Close()

	_, err := NewClient(WithBaseURL(srv.URL)).ETFProfile(context.Background(), "k", "NOPE")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRateLimited)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Invalid API call.", apiErr.Message)
}

func TestETFProfile_HTTPError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(WithBaseURL(srv.URL)).ETFProfile(context.Background(), "k", "SPY")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
}

func TestHolding_DisplayName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "MSFT", Holding{Symbol: "MSFT"}.DisplayName())
	assert.Equal(t, "Microsoft", Holding{Symbol: "MSFT", Name: "Microsoft"}.DisplayName())
}
