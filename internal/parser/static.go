package parser

import (
	"context"
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/sells-group/holdings-cli/internal/ident"
	"github.com/sells-group/holdings-cli/internal/model"
)

// StaticParser reads the registry-embedded holdings payload.
type StaticParser struct{}

// Parse implements Parser.
func (p *StaticParser) Parse(_ context.Context, in Input) (*Result, error) {
	var holdings []model.StaticHolding
	if err := json.Unmarshal(in.Body, &holdings); err != nil {
		return nil, parseError(in, "malformed static holdings", err)
	}

	rows := make([]model.SilverRow, 0, len(holdings))
	for _, h := range holdings {
		rows = append(rows, model.SilverRow{
			Name:           h.Name,
			ISIN:           ident.Clean(h.ISIN),
			Ticker:         h.Ticker,
			ReportedWeight: decimal.NewNullDecimal(decimal.NewFromFloat(h.WeightPct)),
			CountryRaw:     h.Country,
			SectorRaw:      h.Sector,
			ClassRaw:       h.AssetClass,
		})
	}
	return &Result{Rows: rows, ParserVersion: VersionStatic}, nil
}
