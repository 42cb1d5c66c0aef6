// Package monitoring summarizes ingestion health from the run ledger and the
// gold store, and raises webhook alerts when thresholds are breached.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/holdings-cli/internal/gold"
	"github.com/sells-group/holdings-cli/internal/model"
	"github.com/sells-group/holdings-cli/internal/store"
)

// HealthSnapshot holds a point-in-time view of ingestion health.
type HealthSnapshot struct {
	// Runs finished within the lookback window.
	RunsTotal  int     `json:"runs_total"`
	Promoted   int     `json:"promoted"`
	Skipped    int     `json:"skipped"`
	Rejected   int     `json:"rejected"`
	Failed     int     `json:"failed"`
	Running    int     `json:"running"`
	FailRate   float64 `json:"fail_rate"`
	RejectRate float64 `json:"reject_rate"`

	// Funds whose latest passing snapshot is older than their freshness
	// window, or that have none.
	StaleFunds []string `json:"stale_funds,omitempty"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Finished is the number of runs that reached a terminal state other than SKIPPED.
func (s *HealthSnapshot) Finished() int {
	return s.Promoted + s.Rejected + s.Failed
}

// RunLister is the slice of store.Store the collector reads.
type RunLister interface {
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error)
}

// FundLister enumerates registry funds.
type FundLister interface {
	Funds() []model.FundEntry
}

// ManifestReader returns the latest passing snapshot manifest, nil when none.
type ManifestReader interface {
	Latest(fundID string) (*gold.Manifest, error)
}

// Collector gathers health from the ledger and the gold store.
type Collector struct {
	runs  RunLister
	funds FundLister
	gold  ManifestReader
	now   func() time.Time
}

// NewCollector creates a collector. funds and gs may be nil to skip the
// staleness scan.
func NewCollector(runs RunLister, funds FundLister, gs ManifestReader) *Collector {
	return &Collector{runs: runs, funds: funds, gold: gs, now: time.Now}
}

// Collect gathers a snapshot over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*HealthSnapshot, error) {
	now := c.now().UTC()
	snap := &HealthSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	runs, err := c.runs.ListRuns(ctx, store.RunFilter{Limit: 10000})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	for _, r := range runs {
		if r.CreatedAt.Before(cutoff) {
			continue
		}
		snap.RunsTotal++
		if r.Status == model.RunStatusRunning || r.Outcome == nil {
			snap.Running++
			continue
		}
		switch r.Outcome.State {
		case model.StatePromote:
			snap.Promoted++
		case model.StateSkipped:
			snap.Skipped++
		case model.StateReject:
			snap.Rejected++
		case model.StateFailed:
			snap.Failed++
		}
	}
	if finished := snap.Finished(); finished > 0 {
		snap.FailRate = float64(snap.Failed) / float64(finished)
		snap.RejectRate = float64(snap.Rejected) / float64(finished)
	}

	if c.funds != nil && c.gold != nil {
		stale, err := c.staleFunds(now)
		if err != nil {
			return nil, err
		}
		snap.StaleFunds = stale
	}

	return snap, nil
}

func (c *Collector) staleFunds(now time.Time) ([]string, error) {
	var stale []string
	for _, f := range c.funds.Funds() {
		m, err := c.gold.Latest(f.ID)
		if err != nil {
			return nil, eris.Wrapf(err, "monitoring: latest snapshot for %s", f.ID)
		}
		if m == nil {
			stale = append(stale, f.ID)
			continue
		}
		asOf, err := time.Parse(time.DateOnly, m.AsOf)
		if err != nil || now.Sub(asOf) > f.Freshness {
			stale = append(stale, f.ID)
		}
	}
	return stale, nil
}
