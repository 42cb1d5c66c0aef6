package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/holdings-cli/internal/model"
	"github.com/sells-group/holdings-cli/internal/resolve"
)

func outcomes(states ...model.State) []*model.IngestOutcome {
	out := make([]*model.IngestOutcome, len(states))
	for i, s := range states {
		out[i] = &model.IngestOutcome{FundID: "f", State: s}
	}
	return out
}

func TestIngestExitCode(t *testing.T) {
	tests := []struct {
		name     string
		outcomes []*model.IngestOutcome
		want     int
	}{
		{"promoted", outcomes(model.StatePromote), exitPromoted},
		{"skipped", outcomes(model.StateSkipped), exitSkippedFresh},
		{"rejected", outcomes(model.StateReject), exitQARejected},
		{"failed", outcomes(model.StateFailed), exitFailure},
		{"all skipped", outcomes(model.StateSkipped, model.StateSkipped), exitSkippedFresh},
		{"mixed promote and skip", outcomes(model.StateSkipped, model.StatePromote), exitPromoted},
		{"reject beats promote", outcomes(model.StatePromote, model.StateReject), exitQARejected},
		{"failure beats reject", outcomes(model.StateReject, model.StateFailed), exitFailure},
		{"nil outcome", []*model.IngestOutcome{nil}, exitFailure},
		{"empty", nil, exitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ingestExitCode(tt.outcomes))
		})
	}
}

func TestResolveExitCode(t *testing.T) {
	resolved := resolve.Outcome{Ticker: "SPY", Result: &model.HoldingsResult{Status: model.ResolutionResolved}}
	cached := resolve.Outcome{Ticker: "QQQ", Result: &model.HoldingsResult{Status: model.ResolutionResolved, FromCache: true}}
	excluded := resolve.Outcome{Ticker: "SHV", Result: &model.HoldingsResult{Status: model.ResolutionNotApplicable}}
	exhausted := resolve.Outcome{Ticker: "ZZZ", Err: &model.ResolutionExhausted{Ticker: "ZZZ"}}
	broken := resolve.Outcome{Ticker: "ERR", Err: errors.New("boom")}

	tests := []struct {
		name     string
		outcomes []resolve.Outcome
		want     int
	}{
		{"resolved", []resolve.Outcome{resolved}, exitPromoted},
		{"cached", []resolve.Outcome{cached}, exitReusedCache},
		{"partly cached", []resolve.Outcome{cached, resolved}, exitPromoted},
		{"not applicable", []resolve.Outcome{resolved, excluded}, exitNotApplicable},
		{"exhausted", []resolve.Outcome{excluded, exhausted}, exitExhausted},
		{"failure wins", []resolve.Outcome{exhausted, broken}, exitFailure},
		{"empty", nil, exitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resolveExitCode(tt.outcomes))
		})
	}
}

func TestExitWith(t *testing.T) {
	assert.NoError(t, exitWith(exitPromoted, "ok"))

	err := exitWith(exitSkippedFresh, "ingest: SKIPPED=1")
	var ee *exitError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, exitSkippedFresh, ee.code)
	assert.Contains(t, err.Error(), "exit 10")
}
