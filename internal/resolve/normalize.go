package resolve

import (
	"math"
	"sort"

	"github.com/sells-group/holdings-cli/internal/model"
)

// weightScale returns the factor that turns provider weights into percent.
// Providers report either percents, fractions of one, or fractions of a
// percent; the largest weight tells them apart.
func weightScale(weights []float64) float64 {
	var peak float64
	for _, w := range weights {
		peak = math.Max(peak, math.Abs(w))
	}
	switch {
	case peak == 0, peak > 1.5:
		return 1
	case peak < 0.001:
		return 10000
	default:
		return 100
	}
}

func normalizeHoldings(hs []model.Holding) {
	ws := make([]float64, len(hs))
	for i, h := range hs {
		ws[i] = h.WeightPct
	}
	scale := weightScale(ws)
	for i := range hs {
		hs[i].WeightPct *= scale
	}
}

// normalizeExposures scales to percent and merges keys that collapsed onto
// the same vocabulary value.
func normalizeExposures(es []model.Exposure, percent bool) []model.Exposure {
	if len(es) == 0 {
		return nil
	}
	scale := 1.0
	if !percent {
		ws := make([]float64, len(es))
		for i, e := range es {
			ws[i] = e.WeightPct
		}
		scale = weightScale(ws)
	}
	merged := make(map[string]float64, len(es))
	for _, e := range es {
		merged[e.Key] += e.WeightPct * scale
	}
	return sortedExposures(merged)
}

// aggregate sums holding weights per non-empty key.
func aggregate(hs []model.Holding, key func(model.Holding) string) []model.Exposure {
	sums := make(map[string]float64)
	for _, h := range hs {
		if k := key(h); k != "" {
			sums[k] += h.WeightPct
		}
	}
	return sortedExposures(sums)
}

func sortedExposures(sums map[string]float64) []model.Exposure {
	if len(sums) == 0 {
		return nil
	}
	out := make([]model.Exposure, 0, len(sums))
	for k, w := range sums {
		out = append(out, model.Exposure{Key: k, WeightPct: w})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].WeightPct != out[j].WeightPct {
			return out[i].WeightPct > out[j].WeightPct
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// sortHoldings orders by descending weight, then name.
func sortHoldings(hs []model.Holding) {
	sort.SliceStable(hs, func(i, j int) bool {
		if hs[i].WeightPct != hs[j].WeightPct {
			return hs[i].WeightPct > hs[j].WeightPct
		}
		return hs[i].Name < hs[j].Name
	})
}

// trim keeps the n heaviest holdings and rescales them to sum to 100.
func trim(hs []model.Holding, n int) []model.Holding {
	if n <= 0 || len(hs) <= n {
		return hs
	}
	out := append([]model.Holding(nil), hs...)
	sortHoldings(out)
	out = out[:n]

	var sum float64
	for _, h := range out {
		sum += h.WeightPct
	}
	if sum > 0 {
		for i := range out {
			out[i].WeightPct = out[i].WeightPct / sum * 100
		}
	}
	return out
}
