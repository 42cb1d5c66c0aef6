package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/holdings-cli/internal/ingest"
	"github.com/sells-group/holdings-cli/internal/metrics"
	"github.com/sells-group/holdings-cli/internal/model"
	"github.com/sells-group/holdings-cli/internal/monitoring"
	"github.com/sells-group/holdings-cli/internal/store"
)

type fakeFunds []model.FundEntry

func (f fakeFunds) Funds() []model.FundEntry { return f }

func (f fakeFunds) Get(id string) (model.FundEntry, bool) {
	for _, e := range f {
		if e.ID == id {
			return e, true
		}
	}
	return model.FundEntry{}, false
}

type fakeIngester struct {
	got   ingest.Request
	state model.State
}

func (f *fakeIngester) Ingest(_ context.Context, req ingest.Request) *model.IngestOutcome {
	f.got = req
	return &model.IngestOutcome{FundID: req.FundID, State: f.state, Version: 1}
}

type fakeResolver struct {
	results map[string]*model.HoldingsResult
	err     error
}

func (f *fakeResolver) Resolve(_ context.Context, ticker string) (*model.HoldingsResult, error) {
	if r, ok := f.results[ticker]; ok {
		return r, nil
	}
	if f.err != nil {
		return nil, f.err
	}
	return nil, &model.ResolutionExhausted{Ticker: ticker, Attempts: []model.SourceAttempt{{Source: "fmp", Reason: "no data"}}}
}

type fakeRuns struct {
	got  store.RunFilter
	runs []model.Run
}

func (f *fakeRuns) ListRuns(_ context.Context, filter store.RunFilter) ([]model.Run, error) {
	f.got = filter
	return f.runs, nil
}

func testServer() (*server, *fakeIngester, *fakeRuns) {
	ing := &fakeIngester{state: model.StatePromote}
	runs := &fakeRuns{runs: []model.Run{{ID: "run-1", FundID: "vanguard-500", Status: model.RunStatusComplete}}}
	s := &server{
		Funds: fakeFunds{
			{ID: "vanguard-500", Name: "Vanguard 500 Index Fund", Jurisdiction: model.JurisdictionUS, Source: model.SourceSECNPORT},
		},
		Ingester: ing,
		Resolver: &fakeResolver{results: map[string]*model.HoldingsResult{
			"VOO": {Ticker: "VOO", Status: model.ResolutionResolved, Source: "gold", Holdings: []model.Holding{{Name: "Apple Inc", WeightPct: 100}}},
		}},
		Runs: runs,
	}
	return s, ing, runs
}

func do(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestBuildRouter_Health(t *testing.T) {
	h := buildRouter(&server{}, []string{"*"})

	rr := do(t, h, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestBuildRouter_Funds(t *testing.T) {
	s, _, _ := testServer()
	rr := do(t, buildRouter(s, nil), http.MethodGet, "/v1/funds")

	require.Equal(t, http.StatusOK, rr.Code)
	var funds []model.FundEntry
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &funds))
	require.Len(t, funds, 1)
	assert.Equal(t, "vanguard-500", funds[0].ID)
}

func TestBuildRouter_Resolve(t *testing.T) {
	s, _, _ := testServer()
	h := buildRouter(s, nil)

	rr := do(t, h, http.MethodGet, "/v1/resolve/VOO")
	require.Equal(t, http.StatusOK, rr.Code)
	var res model.HoldingsResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.Equal(t, "gold", res.Source)
	assert.Len(t, res.Holdings, 1)

	rr = do(t, h, http.MethodGet, "/v1/resolve/NOPE")
	require.Equal(t, http.StatusNotFound, rr.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "NOPE", body["ticker"])
	assert.Len(t, body["attempts"], 1)
}

func TestBuildRouter_ResolveInternalError(t *testing.T) {
	s, _, _ := testServer()
	s.Resolver = &fakeResolver{err: errors.New("redis down")}

	rr := do(t, buildRouter(s, nil), http.MethodGet, "/v1/resolve/SPY")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "redis down")
}

func TestBuildRouter_Ingest(t *testing.T) {
	s, ing, _ := testServer()
	h := buildRouter(s, nil)

	rr := do(t, h, http.MethodPost, "/v1/ingest/vanguard-500?force=true&as_of=2024-03-31")
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, "vanguard-500", ing.got.FundID)
	assert.True(t, ing.got.Force)
	assert.Equal(t, time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC), ing.got.AsOf)

	var out model.IngestOutcome
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	assert.Equal(t, model.StatePromote, out.State)
}

func TestBuildRouter_IngestStatusCodes(t *testing.T) {
	tests := []struct {
		state model.State
		want  int
	}{
		{model.StatePromote, http.StatusCreated},
		{model.StateSkipped, http.StatusOK},
		{model.StateReject, http.StatusUnprocessableEntity},
		{model.StateFailed, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			s, ing, _ := testServer()
			ing.state = tt.state
			rr := do(t, buildRouter(s, nil), http.MethodPost, "/v1/ingest/vanguard-500")
			assert.Equal(t, tt.want, rr.Code)
		})
	}
}

func TestBuildRouter_IngestBadRequests(t *testing.T) {
	s, ing, _ := testServer()
	h := buildRouter(s, nil)

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodPost, "/v1/ingest/unknown").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/v1/ingest/vanguard-500?as_of=31-03-2024").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/v1/ingest/vanguard-500?force=maybe").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, h, http.MethodGet, "/v1/ingest/vanguard-500").Code)
	assert.Empty(t, ing.got.FundID)
}

func TestBuildRouter_Runs(t *testing.T) {
	s, _, runs := testServer()
	h := buildRouter(s, nil)

	rr := do(t, h, http.MethodGet, "/v1/runs?fund=vanguard-500&limit=5")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "vanguard-500", runs.got.FundID)
	assert.Equal(t, 5, runs.got.Limit)

	var got []model.Run
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "run-1", got[0].ID)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/v1/runs?limit=-1").Code)
}

func TestBuildRouter_RunsEmptyIsArray(t *testing.T) {
	s, _, runs := testServer()
	runs.runs = nil

	rr := do(t, buildRouter(s, nil), http.MethodGet, "/v1/runs")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, "[]", rr.Body.String())
	assert.Equal(t, 50, runs.got.Limit)
}

type fakeHealth struct{ hours int }

func (f *fakeHealth) Collect(_ context.Context, hours int) (*monitoring.HealthSnapshot, error) {
	f.hours = hours
	return &monitoring.HealthSnapshot{RunsTotal: 3, Promoted: 3, LookbackHours: hours}, nil
}

func TestBuildRouter_Stats(t *testing.T) {
	health := &fakeHealth{}
	h := buildRouter(&server{Health: health}, nil)

	rr := do(t, h, http.MethodGet, "/v1/stats?hours=72")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 72, health.hours)

	var snap monitoring.HealthSnapshot
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &snap))
	assert.Equal(t, 3, snap.Promoted)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/v1/stats?hours=x").Code)
}

func TestBuildRouter_UnconfiguredRoutes(t *testing.T) {
	h := buildRouter(&server{}, nil)

	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodGet, "/v1/funds").Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodGet, "/v1/resolve/SPY").Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodPost, "/v1/ingest/x").Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodGet, "/v1/runs").Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodGet, "/v1/stats").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/metrics").Code)
}

func TestBuildRouter_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.IngestOutcome("sec_nport", "PROMOTE")

	rr := do(t, buildRouter(&server{Gatherer: reg}, nil), http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `holdings_ingest_outcomes_total{source="sec_nport",state="PROMOTE"} 1`)
}

func TestBuildRouter_CORS(t *testing.T) {
	h := buildRouter(&server{}, []string{"https://dashboard.example.com"})

	req := httptest.NewRequest(http.MethodOptions, "/v1/funds", nil)
	req.Header.Set("Origin", "https://dashboard.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, "https://dashboard.example.com", rr.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}
