package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/holdings-cli/internal/model"
)

func TestWeightScale(t *testing.T) {
	tests := []struct {
		name    string
		weights []float64
		want    float64
	}{
		{"percent", []float64{7.1, 6.2}, 1},
		{"fraction", []float64{0.071, 0.062}, 100},
		{"fraction of percent", []float64{0.0007, 0.0002}, 10000},
		{"empty", nil, 1},
		{"all zero", []float64{0, 0}, 1},
		{"short position", []float64{-2.0, 1.0}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, weightScale(tt.weights))
		})
	}
}

func TestTrim(t *testing.T) {
	hs := []model.Holding{
		{Name: "C", WeightPct: 10},
		{Name: "A", WeightPct: 30},
		{Name: "B", WeightPct: 20},
	}
	out := trim(hs, 2)
	require.Len(t, out, 2)
	assert.Equal(t, "A", out[0].Name)
	assert.InDelta(t, 60.0, out[0].WeightPct, 1e-9)
	assert.InDelta(t, 40.0, out[1].WeightPct, 1e-9)
	assert.Equal(t, "C", hs[0].Name, "input slice untouched")

	assert.Len(t, trim(hs, 0), 3)
	assert.Len(t, trim(hs, 5), 3)
}

func TestNormalizeExposures_Merges(t *testing.T) {
	got := normalizeExposures([]model.Exposure{
		{Key: "Information Technology", WeightPct: 0.2},
		{Key: "Financials", WeightPct: 0.4},
		{Key: "Information Technology", WeightPct: 0.1},
	}, false)
	require.Len(t, got, 2)
	assert.Equal(t, "Financials", got[0].Key)
	assert.InDelta(t, 40.0, got[0].WeightPct, 1e-9)
	assert.InDelta(t, 30.0, got[1].WeightPct, 1e-9)
	assert.Nil(t, normalizeExposures(nil, true))
}
