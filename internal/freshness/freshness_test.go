package freshness

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/holdings-cli/internal/gold"
	"github.com/sells-group/holdings-cli/internal/model"
)

type stubLatest struct {
	m   *gold.Manifest
	err error
}

func (s stubLatest) Latest(string) (*gold.Manifest, error) { return s.m, s.err }

var now = time.Date(2024, 8, 15, 12, 0, 0, 0, time.UTC)

func fund() model.FundEntry {
	return model.FundEntry{ID: "spy", Freshness: 30 * 24 * time.Hour}
}

func controller(l LatestReader) *Controller {
	c := New(l)
	c.now = func() time.Time { return now }
	return c
}

func TestDecide(t *testing.T) {
	policy := 30 * 24 * time.Hour
	tests := []struct {
		name string
		asOf time.Time
		want Decision
	}{
		{"fresh", now.AddDate(0, 0, -10), Reuse},
		{"boundary", now.Add(-policy), Refresh},
		{"stale", now.AddDate(0, 0, -45), Refresh},
		{"future as-of", now.AddDate(0, 0, 2), Reuse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(policy, tt.asOf, now).Decision)
		})
	}

	assert.Equal(t, Refresh, Decide(0, now, now).Decision)
}

func TestCheck_Reuse(t *testing.T) {
	c := controller(stubLatest{m: &gold.Manifest{AsOf: "2024-07-31", Version: 2}})

	v, err := c.Check(Request{Fund: fund()})
	require.NoError(t, err)
	assert.Equal(t, Reuse, v.Decision)
	assert.Equal(t, 2, v.Version)
	assert.Equal(t, time.Date(2024, 7, 31, 0, 0, 0, 0, time.UTC), v.AsOf)
}

func TestCheck_ForceAlwaysRefreshes(t *testing.T) {
	c := controller(stubLatest{m: &gold.Manifest{AsOf: "2024-08-14", Version: 1}})

	v, err := c.Check(Request{Fund: fund(), Force: true})
	require.NoError(t, err)
	assert.Equal(t, Refresh, v.Decision)
	assert.Equal(t, "forced", v.Reason)
}

func TestCheck_BackfillRefreshes(t *testing.T) {
	c := controller(stubLatest{m: &gold.Manifest{AsOf: "2024-08-14", Version: 1}})

	v, err := c.Check(Request{Fund: fund(), Target: time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	assert.Equal(t, Refresh, v.Decision)
	assert.Contains(t, v.Reason, "2023-12-31")
}

func TestCheck_NoSnapshot(t *testing.T) {
	v, err := controller(stubLatest{}).Check(Request{Fund: fund()})
	require.NoError(t, err)
	assert.Equal(t, Refresh, v.Decision)
}

func TestCheck_StoreError(t *testing.T) {
	_, err := controller(stubLatest{err: errors.New("disk")}).Check(Request{Fund: fund()})
	assert.Error(t, err)
}

func TestCheck_AgainstGoldStore(t *testing.T) {
	store := gold.New(t.TempDir())
	snap := &model.Snapshot{
		FundID: "spy",
		AsOf:   time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC),
		Report: model.QAReport{Status: model.QAStatusPass},
	}
	_, err := store.Write(snap)
	require.NoError(t, err)

	v, err := controller(store).Check(Request{Fund: fund()})
	require.NoError(t, err)
	assert.Equal(t, Reuse, v.Decision)
	assert.Equal(t, 1, v.Version)
}
