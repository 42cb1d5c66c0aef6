package enrich

import (
	"github.com/shopspring/decimal"

	"github.com/sells-group/holdings-cli/internal/model"
)

var hundred = decimal.NewFromInt(100)

// assignWeights sets WeightPct on every row. Reported weights are used when
// every row carries one; otherwise weights are derived from market values.
// Negative positions are flagged short and weighted zero either way.
//
// Derived weights need every valued row on a common basis. When a
// multi-currency fund has a row without a reporting-currency value, no
// weights are derived and false is returned; the quality gate rejects the
// snapshot instead of promoting one that silently drops the position.
func assignWeights(rows []model.GoldRow) bool {
	if model.WeightsReported(rows) {
		for i := range rows {
			w := rows[i].ReportedWeight.Decimal
			if w.IsNegative() {
				rows[i].Short, rows[i].WeightPct = true, 0
				continue
			}
			rows[i].WeightPct = w.InexactFloat64()
		}
		return true
	}

	if model.UnweightedRows(rows) != nil {
		for i := range rows {
			rows[i].WeightPct = 0
			if rows[i].MarketValue.Valid && rows[i].MarketValue.Decimal.IsNegative() {
				rows[i].Short = true
			}
		}
		return false
	}

	values := weightBasis(rows)
	total := decimal.Zero
	for _, v := range values {
		if v.Valid && v.Decimal.IsPositive() {
			total = total.Add(v.Decimal)
		}
	}
	for i, v := range values {
		switch {
		case !v.Valid || total.IsZero():
			rows[i].WeightPct = 0
		case v.Decimal.IsNegative():
			rows[i].Short, rows[i].WeightPct = true, 0
		default:
			rows[i].WeightPct = v.Decimal.Div(total).Mul(hundred).Round(6).InexactFloat64()
		}
	}
	return true
}

// weightBasis picks the values weights are derived from: converted values
// when every valued row converted, local values when a conversion is
// missing but all rows share one currency.
func weightBasis(rows []model.GoldRow) []decimal.NullDecimal {
	local := false
	for _, r := range rows {
		if r.MarketValue.Valid && !r.ReportingValue.Valid {
			local = true
			break
		}
	}

	out := make([]decimal.NullDecimal, len(rows))
	for i, r := range rows {
		if local {
			out[i] = r.MarketValue
		} else {
			out[i] = r.ReportingValue
		}
	}
	return out
}
