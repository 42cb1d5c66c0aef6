// Package freshness decides whether a fund's stored snapshot is recent enough
// to skip ingestion.
package freshness

import (
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/holdings-cli/internal/gold"
	"github.com/sells-group/holdings-cli/internal/model"
)

// Decision is the controller's verdict.
type Decision string

const (
	Reuse   Decision = "reuse"
	Refresh Decision = "refresh"
)

// Verdict explains a decision.
type Verdict struct {
	Decision Decision      `json:"decision"`
	Reason   string        `json:"reason"`
	AsOf     time.Time     `json:"as_of,omitempty"`
	Version  int           `json:"version,omitempty"`
	Age      time.Duration `json:"age,omitempty"`
}

// Request is one freshness question. A non-zero Target marks a backfill.
type Request struct {
	Fund   model.FundEntry
	Target time.Time
	Force  bool
}

// LatestReader returns the newest passing snapshot manifest, or nil.
type LatestReader interface {
	Latest(fundID string) (*gold.Manifest, error)
}

// Controller answers freshness questions against the gold store.
type Controller struct {
	store LatestReader
	now   func() time.Time
}

// New returns a controller reading from store.
func New(store LatestReader) *Controller {
	return &Controller{store: store, now: time.Now}
}

// Check returns Reuse when the latest passing snapshot is younger than the
// fund's freshness policy. Age is measured from the snapshot's as-of date.
func (c *Controller) Check(req Request) (Verdict, error) {
	log := zap.L().With(zap.String("component", "freshness"), zap.String("fund_id", req.Fund.ID))

	if req.Force {
		return Verdict{Decision: Refresh, Reason: "forced"}, nil
	}
	if !req.Target.IsZero() {
		return Verdict{Decision: Refresh, Reason: "backfill to " + req.Target.Format("2006-01-02")}, nil
	}

	m, err := c.store.Latest(req.Fund.ID)
	if err != nil {
		return Verdict{}, eris.Wrapf(err, "freshness: latest snapshot for %s", req.Fund.ID)
	}
	if m == nil {
		return Verdict{Decision: Refresh, Reason: "no passing snapshot"}, nil
	}

	asOf, err := time.Parse("2006-01-02", m.AsOf)
	if err != nil {
		return Verdict{}, eris.Wrapf(err, "freshness: manifest as_of %q", m.AsOf)
	}
	v := Decide(req.Fund.Freshness, asOf, c.now())
	v.Version = m.Version

	log.Debug("freshness decided",
		zap.String("decision", string(v.Decision)),
		zap.String("as_of", m.AsOf),
		zap.Duration("age", v.Age),
		zap.Duration("policy", req.Fund.Freshness),
	)
	return v, nil
}

// Decide applies a max-age policy to a snapshot effective at asOf.
func Decide(policy time.Duration, asOf, now time.Time) Verdict {
	age := now.Sub(asOf)
	if age < 0 {
		age = 0
	}
	v := Verdict{AsOf: asOf, Age: age}
	if policy > 0 && age < policy {
		v.Decision = Reuse
		v.Reason = "fresh snapshot reused"
		return v
	}
	v.Decision = Refresh
	v.Reason = "snapshot older than freshness policy"
	return v
}
