// Package enrich turns silver rows into gold rows: identifiers are
// canonicalised, weights derived, classifications mapped to a controlled
// vocabulary, and market values converted to the reporting currency. A
// row's deficiency is counted, never fatal.
package enrich

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/holdings-cli/internal/ident"
	"github.com/sells-group/holdings-cli/internal/model"
)

// Version is stamped on every gold row as enrichment_version.
const Version = "2"

// Options configures an Enricher. A nil References table or FX converter
// disables that step.
type Options struct {
	References        *ReferenceTable
	FX                FXConverter
	ReportingCurrency string
}

// Enricher is stateless across calls and safe for concurrent use.
type Enricher struct {
	refs      *ReferenceTable
	fx        FXConverter
	reporting string
}

// New creates an Enricher.
func New(opts Options) *Enricher {
	reporting := strings.ToUpper(opts.ReportingCurrency)
	if reporting == "" {
		reporting = "USD"
	}
	return &Enricher{refs: opts.References, fx: opts.FX, reporting: reporting}
}

// Input is one parsed document ready for enrichment.
type Input struct {
	Fund          model.FundEntry
	Document      model.RawDocument
	AsOf          time.Time
	ParserVersion string
	Rows          []model.SilverRow
}

// Enrich produces one gold row per silver row, in order, and counts the
// deficiencies found along the way.
func (e *Enricher) Enrich(ctx context.Context, in Input) ([]model.GoldRow, model.Deficiencies) {
	log := zap.L().With(
		zap.String("component", "enrich"),
		zap.String("fund_id", in.Fund.ID),
		zap.String("hash", in.Document.Hash),
	)

	var def model.Deficiencies
	rows := make([]model.GoldRow, 0, len(in.Rows))
	for _, silver := range in.Rows {
		g := model.GoldRow{
			SilverRow:         silver,
			SourceURI:         in.Document.URI,
			ParserVersion:     in.ParserVersion,
			EnrichmentVersion: Version,
			ReportingCurrency: e.reporting,
		}
		if g.Currency == "" {
			g.Currency = in.Fund.Currency
		}

		g.Country = Country(silver.CountryRaw, silver.ISIN)
		g.PrimaryID, g.IDResolved = e.resolveID(silver, g.Country)
		if g.IDResolved {
			g.ISIN = g.PrimaryID
		}
		if g.Country == CountryUnknown && g.IDResolved {
			if c := ident.Country(g.PrimaryID); c != "" {
				g.Country = c
			}
		}
		g.AssetClass = AssetClass(silver.ClassRaw, silver.Section, silver.Derivative)
		g.Sector = Sector(silver.SectorRaw)

		if silver.MarketValue.Valid {
			e.convert(ctx, &g, in.AsOf, log)
		}
		rows = append(rows, g)
	}

	if !assignWeights(rows) {
		log.Warn("weights not derived: positions lack a reporting currency value",
			zap.String("reporting_currency", e.reporting))
	}

	for _, g := range rows {
		if !g.IDResolved {
			def.UnresolvedIDs++
		}
		if !g.MarketValue.Valid && !g.ReportedWeight.Valid {
			def.UnparseableValues++
		}
		if g.MarketValue.Valid && !g.ReportingValue.Valid {
			def.MissingFX++
		}
		if g.Short {
			def.ShortPositions++
		}
		if g.AssetClass == ClassOther {
			def.Unclassified++
		}
	}

	log.Debug("enrichment complete",
		zap.Int("rows", len(rows)),
		zap.Int("unresolved_ids", def.UnresolvedIDs),
		zap.Int("unparseable_values", def.UnparseableValues),
		zap.Int("missing_fx", def.MissingFX),
		zap.Int("short_positions", def.ShortPositions),
		zap.Int("unclassified", def.Unclassified),
	)
	return rows, def
}

func (e *Enricher) convert(ctx context.Context, g *model.GoldRow, asOf time.Time, log *zap.Logger) {
	if e.fx == nil {
		if g.Currency == e.reporting {
			g.ReportingValue = g.MarketValue
		}
		return
	}
	rate, err := e.fx.Rate(ctx, g.Currency, e.reporting, asOf)
	if err != nil {
		log.Debug("no fx rate", zap.String("currency", g.Currency), zap.Error(err))
		return
	}
	g.ReportingValue.Decimal = g.MarketValue.Decimal.Mul(rate.Value)
	g.ReportingValue.Valid = true
	g.FXRate.Decimal, g.FXRate.Valid = rate.Value, true
	g.FXAsOf = rate.AsOf
}
