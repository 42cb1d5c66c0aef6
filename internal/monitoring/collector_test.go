package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/holdings-cli/internal/gold"
	"github.com/sells-group/holdings-cli/internal/model"
	"github.com/sells-group/holdings-cli/internal/store"
)

type mockRuns struct {
	runs    []model.Run
	listErr error
}

func (m *mockRuns) ListRuns(_ context.Context, filter store.RunFilter) ([]model.Run, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var filtered []model.Run
	for _, r := range m.runs {
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		filtered = append(filtered, r)
	}
	return filtered, nil
}

type mockFunds []model.FundEntry

func (m mockFunds) Funds() []model.FundEntry { return m }

type mockManifests map[string]*gold.Manifest

func (m mockManifests) Latest(fundID string) (*gold.Manifest, error) {
	if fundID == "broken" {
		return nil, errors.New("permission denied")
	}
	return m[fundID], nil
}

var collectNow = time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)

func finishedRun(state model.State, created time.Time) model.Run {
	status := model.RunStatusComplete
	if state == model.StateFailed {
		status = model.RunStatusFailed
	}
	return model.Run{
		ID:        "run",
		FundID:    "f",
		Status:    status,
		Outcome:   &model.IngestOutcome{State: state},
		CreatedAt: created,
	}
}

func TestCollector_CountsOutcomesInWindow(t *testing.T) {
	recent := collectNow.Add(-2 * time.Hour)
	runs := &mockRuns{runs: []model.Run{
		finishedRun(model.StatePromote, recent),
		finishedRun(model.StatePromote, recent),
		finishedRun(model.StateSkipped, recent),
		finishedRun(model.StateReject, recent),
		finishedRun(model.StateFailed, recent),
		finishedRun(model.StateFailed, collectNow.Add(-48*time.Hour)),
		{ID: "live", Status: model.RunStatusRunning, CreatedAt: recent},
	}}

	c := NewCollector(runs, nil, nil)
	c.now = func() time.Time { return collectNow }

	snap, err := c.Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 6, snap.RunsTotal)
	assert.Equal(t, 2, snap.Promoted)
	assert.Equal(t, 1, snap.Skipped)
	assert.Equal(t, 1, snap.Rejected)
	assert.Equal(t, 1, snap.Failed)
	assert.Equal(t, 1, snap.Running)
	assert.Equal(t, 4, snap.Finished())
	assert.InDelta(t, 0.25, snap.FailRate, 1e-9)
	assert.InDelta(t, 0.25, snap.RejectRate, 1e-9)
	assert.Equal(t, 24, snap.LookbackHours)
	assert.Equal(t, collectNow, snap.CollectedAt)
	assert.Empty(t, snap.StaleFunds)
}

func TestCollector_NoRuns(t *testing.T) {
	c := NewCollector(&mockRuns{}, nil, nil)
	snap, err := c.Collect(context.Background(), 24)
	require.NoError(t, err)
	assert.Zero(t, snap.RunsTotal)
	assert.Zero(t, snap.FailRate)
}

func TestCollector_ListError(t *testing.T) {
	c := NewCollector(&mockRuns{listErr: errors.New("db down")}, nil, nil)
	_, err := c.Collect(context.Background(), 24)
	assert.ErrorContains(t, err, "list runs")
}

func TestCollector_StaleFunds(t *testing.T) {
	month := 30 * 24 * time.Hour
	funds := mockFunds{
		{ID: "fresh", Freshness: month},
		{ID: "old", Freshness: month},
		{ID: "never", Freshness: month},
	}
	manifests := mockManifests{
		"fresh": {FundID: "fresh", AsOf: "2024-06-15"},
		"old":   {FundID: "old", AsOf: "2024-03-31"},
	}

	c := NewCollector(&mockRuns{}, funds, manifests)
	c.now = func() time.Time { return collectNow }

	snap, err := c.Collect(context.Background(), 24)
	require.NoError(t, err)
	assert.Equal(t, []string{"old", "never"}, snap.StaleFunds)
}

func TestCollector_ManifestError(t *testing.T) {
	c := NewCollector(&mockRuns{}, mockFunds{{ID: "broken"}}, mockManifests{})
	_, err := c.Collect(context.Background(), 24)
	assert.ErrorContains(t, err, "broken")
}
