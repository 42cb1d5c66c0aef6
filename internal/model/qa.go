package model

import "time"

// QAStatus is the overall verdict of the quality gate.
type QAStatus string

const (
	QAStatusPass QAStatus = "pass"
	QAStatusFail QAStatus = "fail"
)

// QACheck is one evaluated invariant.
type QACheck struct {
	Name      string  `json:"name"`
	Passed    bool    `json:"passed"`
	Blocking  bool    `json:"blocking"`
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold,omitempty"`
	Message   string  `json:"message,omitempty"`
}

// TopHolding is an entry of the top-N concentration list.
type TopHolding struct {
	Name       string  `json:"name"`
	Identifier string  `json:"identifier,omitempty"`
	WeightPct  float64 `json:"weight_pct"`
}

// QAReport is the structured result of one snapshot attempt.
type QAReport struct {
	FundID                string       `json:"fund_id"`
	AsOf                  time.Time    `json:"as_of"`
	Source                SourceKind   `json:"source"`
	Version               int          `json:"version,omitempty"`
	GeneratedAt           time.Time    `json:"generated_at"`
	PositionCount         int          `json:"position_count"`
	WeightSum             float64      `json:"weight_sum"`
	UnresolvedCount       int          `json:"unresolved_count"`
	UnresolvedPct         float64      `json:"unresolved_pct"`
	UnparseableValueCount int          `json:"unparseable_value_count"`
	UnparseableValuePct   float64      `json:"unparseable_value_pct"`
	UnweightedCount       int          `json:"unweighted_count"`
	Top10                 []TopHolding `json:"top10"`
	Top10Concentration    float64      `json:"top10_concentration"`
	Deficiencies          Deficiencies `json:"deficiencies"`
	Checks                []QACheck    `json:"checks"`
	Status                QAStatus     `json:"status"`
}

// Check returns the named check, if present.
func (r QAReport) Check(name string) (QACheck, bool) {
	for _, c := range r.Checks {
		if c.Name == name {
			return c, true
		}
	}
	return QACheck{}, false
}

// FailedChecks returns the names of failing blocking checks.
func (r QAReport) FailedChecks() []string {
	var out []string
	for _, c := range r.Checks {
		if c.Blocking && !c.Passed {
			out = append(out, c.Name)
		}
	}
	return out
}
