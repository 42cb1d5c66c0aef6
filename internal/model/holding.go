package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Section is the part of a multi-section report a position was listed under.
type Section string

const (
	SectionNone       Section = ""
	SectionEquity     Section = "equity"
	SectionBond       Section = "bond"
	SectionDerivative Section = "derivative"
	SectionCash       Section = "cash"
	SectionFund       Section = "fund"
)

// SilverRow is one parsed, unvalidated position. Numeric fields that could not
// be parsed stay null instead of dropping the row.
type SilverRow struct {
	Name           string              `json:"name"`
	ISIN           string              `json:"isin,omitempty"`
	CUSIP          string              `json:"cusip,omitempty"`
	Ticker         string              `json:"ticker,omitempty"`
	Quantity       decimal.NullDecimal `json:"quantity"`
	MarketValue    decimal.NullDecimal `json:"market_value"`
	ReportedWeight decimal.NullDecimal `json:"reported_weight"`
	RawValue       string              `json:"raw_value,omitempty"`
	Currency       string              `json:"currency,omitempty"`
	CountryRaw     string              `json:"country_raw,omitempty"`
	SectorRaw      string              `json:"sector_raw,omitempty"`
	ClassRaw       string              `json:"class_raw,omitempty"`
	Section        Section             `json:"section,omitempty"`
	Derivative     bool                `json:"derivative,omitempty"`
	DocumentHash   string              `json:"document_hash"`
}

// GoldRow is an enriched position ready for persistence in a snapshot.
type GoldRow struct {
	SilverRow

	PrimaryID         string              `json:"primary_id,omitempty"`
	IDResolved        bool                `json:"id_resolved"`
	WeightPct         float64             `json:"weight_pct"`
	Short             bool                `json:"short,omitempty"`
	Country           string              `json:"country"`
	Sector            string              `json:"sector"`
	AssetClass        string              `json:"asset_class"`
	ReportingValue    decimal.NullDecimal `json:"reporting_value"`
	ReportingCurrency string              `json:"reporting_currency"`
	FXRate            decimal.NullDecimal `json:"fx_rate"`
	FXAsOf            time.Time           `json:"fx_as_of"`
	SourceURI         string              `json:"source_uri,omitempty"`
	ParserVersion     string              `json:"parser_version,omitempty"`
	EnrichmentVersion string              `json:"enrichment_version,omitempty"`
}

// WeightsReported reports whether every row carries a published weight.
func WeightsReported(rows []GoldRow) bool {
	if len(rows) == 0 {
		return false
	}
	for _, r := range rows {
		if !r.ReportedWeight.Valid {
			return false
		}
	}
	return true
}

// UnweightedRows marks valued rows that cannot enter a derived weight: rows
// without a reporting-currency value when the valued rows span more than one
// currency. It returns nil when no row is affected.
func UnweightedRows(rows []GoldRow) []bool {
	currencies := make(map[string]struct{})
	missing := false
	for _, r := range rows {
		if !r.MarketValue.Valid {
			continue
		}
		currencies[r.Currency] = struct{}{}
		if !r.ReportingValue.Valid {
			missing = true
		}
	}
	if !missing || len(currencies) < 2 {
		return nil
	}
	out := make([]bool, len(rows))
	for i, r := range rows {
		out[i] = r.MarketValue.Valid && !r.ReportingValue.Valid
	}
	return out
}

// Deficiencies counts non-fatal enrichment gaps surfaced to the quality gate.
type Deficiencies struct {
	UnresolvedIDs     int `json:"unresolved_ids"`
	UnparseableValues int `json:"unparseable_values"`
	MissingFX         int `json:"missing_fx"`
	ShortPositions    int `json:"short_positions"`
	Unclassified      int `json:"unclassified"`
}

// Lineage ties a snapshot back to the raw document it was built from.
type Lineage struct {
	DocumentHash      string    `json:"document_hash"`
	SourceURI         string    `json:"source_uri"`
	FetchedAt         time.Time `json:"fetched_at"`
	ParserVersion     string    `json:"parser_version"`
	EnrichmentVersion string    `json:"enrichment_version"`
}

// Snapshot is the immutable gold record for one (fund, as-of, version).
type Snapshot struct {
	FundID    string     `json:"fund_id"`
	AsOf      time.Time  `json:"as_of"`
	Version   int        `json:"version"`
	Source    SourceKind `json:"source"`
	Rows      []GoldRow  `json:"-"`
	Report    QAReport   `json:"qa_report"`
	Lineage   Lineage    `json:"lineage"`
	CreatedAt time.Time  `json:"created_at"`
}

// Passed reports whether the snapshot is eligible to be served as latest.
func (s *Snapshot) Passed() bool {
	return s != nil && s.Report.Status == QAStatusPass
}
