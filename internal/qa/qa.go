// Package qa is the quality gate: it evaluates enriched rows against
// per-source thresholds and produces the report that decides promotion.
package qa

import (
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/holdings-cli/internal/config"
	"github.com/sells-group/holdings-cli/internal/model"
)

// Check names.
const (
	CheckWeightSum          = "weight_sum"
	CheckIdentifierCoverage = "identifier_coverage"
	CheckValueCoverage      = "value_coverage"
	CheckMinRows            = "min_rows"
	CheckTop10              = "top10_concentration"
)

// Thresholds are the limits applied to one source.
type Thresholds struct {
	WeightMin        float64
	WeightMax        float64
	MinIDCoverage    float64
	MinValueCoverage float64
	MinRows          int
}

var baseThresholds = Thresholds{
	WeightMin:        99.5,
	WeightMax:        100.5,
	MinIDCoverage:    95,
	MinValueCoverage: 90,
	MinRows:          1,
}

// DefaultThresholds returns the built-in limits for a source: 98% identifier
// coverage for N-PORT, 95% for report-derived sources, none for registry
// holdings.
func DefaultThresholds(source model.SourceKind) Thresholds {
	t := baseThresholds
	switch source {
	case model.SourceSECNPORT:
		t.MinIDCoverage = 98
	case model.SourceStatic:
		t.MinIDCoverage = 0
		t.MinValueCoverage = 0
	}
	return t
}

// Input is what the gate evaluates.
type Input struct {
	FundID       string
	Source       model.SourceKind
	AsOf         time.Time
	Rows         []model.GoldRow
	Deficiencies model.Deficiencies
}

// Gate evaluates snapshots. Configured thresholds override the defaults
// field by field; zero values keep the default.
type Gate struct {
	overrides map[string]config.QAThresholdConfig
	now       func() time.Time
}

// New creates a Gate from the qa config section.
func New(cfg config.QAConfig) *Gate {
	return &Gate{overrides: cfg.Thresholds, now: time.Now}
}

// Thresholds returns the effective limits for a source.
func (g *Gate) Thresholds(source model.SourceKind) Thresholds {
	t := DefaultThresholds(source)
	o, ok := g.overrides[string(source)]
	if !ok {
		return t
	}
	if o.WeightMin != 0 {
		t.WeightMin = o.WeightMin
	}
	if o.WeightMax != 0 {
		t.WeightMax = o.WeightMax
	}
	if o.MinIDCoverage != 0 {
		t.MinIDCoverage = o.MinIDCoverage
	}
	if o.MinValueCoverage != 0 {
		t.MinValueCoverage = o.MinValueCoverage
	}
	if o.MinRows != 0 {
		t.MinRows = o.MinRows
	}
	return t
}

// Evaluate runs every check. It never fails: a violated invariant is a
// failed check in the returned report.
func (g *Gate) Evaluate(in Input) model.QAReport {
	th := g.Thresholds(in.Source)
	n := len(in.Rows)

	r := model.QAReport{
		FundID:        in.FundID,
		AsOf:          in.AsOf,
		Source:        in.Source,
		GeneratedAt:   g.now().UTC(),
		PositionCount: n,
		Deficiencies:  in.Deficiencies,
	}

	var gaps []bool
	if !model.WeightsReported(in.Rows) {
		gaps = model.UnweightedRows(in.Rows)
	}

	var (
		sum          float64
		idUnresolved int
	)
	for i, row := range in.Rows {
		sum += row.WeightPct
		noValue := !row.MarketValue.Valid && !row.ReportedWeight.Valid
		unweighted := gaps != nil && gaps[i]
		if !row.IDResolved {
			idUnresolved++
		}
		if noValue {
			r.UnparseableValueCount++
		}
		if unweighted {
			r.UnweightedCount++
		}
		if !row.IDResolved || noValue || unweighted {
			r.UnresolvedCount++
		}
	}
	valueGaps := r.UnparseableValueCount + r.UnweightedCount
	r.WeightSum = round(sum)
	r.UnresolvedPct = pct(r.UnresolvedCount, n)
	r.UnparseableValuePct = pct(r.UnparseableValueCount, n)
	r.Top10, r.Top10Concentration = top10(in.Rows)

	idCoverage := 100 - pct(idUnresolved, n)
	valueCoverage := 100 - pct(valueGaps, n)
	if n == 0 {
		idCoverage, valueCoverage = 0, 0
	}

	r.Checks = []model.QACheck{
		{
			Name:      CheckWeightSum,
			Blocking:  true,
			Passed:    r.WeightSum >= th.WeightMin && r.WeightSum <= th.WeightMax,
			Value:     r.WeightSum,
			Threshold: th.WeightMin,
			Message:   fmt.Sprintf("weight sum %.2f%% (expected %.1f-%.1f%%)", r.WeightSum, th.WeightMin, th.WeightMax),
		},
		{
			Name:      CheckIdentifierCoverage,
			Blocking:  true,
			Passed:    idCoverage >= th.MinIDCoverage,
			Value:     round(idCoverage),
			Threshold: th.MinIDCoverage,
			Message:   fmt.Sprintf("%d/%d identifiers resolved", n-idUnresolved, n),
		},
		{
			Name:      CheckValueCoverage,
			Blocking:  true,
			Passed:    valueCoverage >= th.MinValueCoverage,
			Value:     round(valueCoverage),
			Threshold: th.MinValueCoverage,
			Message:   fmt.Sprintf("%d/%d positions with a usable value or weight (%d unparseable, %d without fx)", n-valueGaps, n, r.UnparseableValueCount, r.UnweightedCount),
		},
		{
			Name:      CheckMinRows,
			Blocking:  true,
			Passed:    n >= th.MinRows,
			Value:     float64(n),
			Threshold: float64(th.MinRows),
			Message:   fmt.Sprintf("%d positions", n),
		},
		{
			Name:     CheckTop10,
			Blocking: false,
			Passed:   true,
			Value:    r.Top10Concentration,
			Message:  fmt.Sprintf("top 10 positions hold %.2f%%", r.Top10Concentration),
		},
	}

	r.Status = model.QAStatusPass
	if len(r.FailedChecks()) > 0 {
		r.Status = model.QAStatusFail
	}

	zap.L().Info("qa evaluated",
		zap.String("component", "qa"),
		zap.String("fund_id", in.FundID),
		zap.String("source", string(in.Source)),
		zap.String("status", string(r.Status)),
		zap.Int("positions", n),
		zap.Float64("weight_sum", r.WeightSum),
		zap.Float64("unresolved_pct", r.UnresolvedPct),
		zap.Int("unweighted", r.UnweightedCount),
		zap.Strings("failed_checks", r.FailedChecks()),
	)
	return r
}

func top10(rows []model.GoldRow) ([]model.TopHolding, float64) {
	idx := make([]int, len(rows))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return rows[idx[a]].WeightPct > rows[idx[b]].WeightPct })

	var (
		out   []model.TopHolding
		total float64
	)
	for _, i := range idx {
		if len(out) == 10 {
			break
		}
		out = append(out, model.TopHolding{Name: rows[i].Name, Identifier: rows[i].PrimaryID, WeightPct: rows[i].WeightPct})
		total += rows[i].WeightPct
	}
	return out, round(total)
}

func pct(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return round(float64(part) / float64(whole) * 100)
}

func round(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
