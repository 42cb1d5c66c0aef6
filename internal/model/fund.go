// Package model defines the shared domain types for holdings ingestion and resolution.
package model

import (
	"strings"
	"time"
)

// Jurisdiction is the domicile of a fund and the regulatory regime its filings come from.
type Jurisdiction string

const (
	JurisdictionUS Jurisdiction = "US"
	JurisdictionLU Jurisdiction = "LU"
	JurisdictionDE Jurisdiction = "DE"
	JurisdictionFR Jurisdiction = "FR"
	JurisdictionIE Jurisdiction = "IE"
)

// IsEU reports whether the jurisdiction publishes UCITS periodic reports.
func (j Jurisdiction) IsEU() bool {
	switch j {
	case JurisdictionLU, JurisdictionDE, JurisdictionFR, JurisdictionIE:
		return true
	default:
		return false
	}
}

// BaseCurrency is the currency funds domiciled in j usually report in.
func (j Jurisdiction) BaseCurrency() string {
	if j == JurisdictionUS {
		return "USD"
	}
	return "EUR"
}

// SourceKind tags the discovery/parsing variant used for a fund.
type SourceKind string

const (
	SourceSECNPORT       SourceKind = "sec_nport"
	SourceLuxSEOAM       SourceKind = "luxse_oam"
	SourceBundesanzeiger SourceKind = "bundesanzeiger"
	SourceAMFBDIF        SourceKind = "amf_bdif"
	SourceStatic         SourceKind = "static"
)

// AllSources lists every known source tag.
var AllSources = []SourceKind{SourceSECNPORT, SourceLuxSEOAM, SourceBundesanzeiger, SourceAMFBDIF, SourceStatic}

// Valid reports whether s is a known source tag.
func (s SourceKind) Valid() bool {
	for _, k := range AllSources {
		if k == s {
			return true
		}
	}
	return false
}

// DefaultSource returns the discovery variant used when a registry entry names
// only its jurisdiction.
func DefaultSource(j Jurisdiction) SourceKind {
	switch j {
	case JurisdictionUS:
		return SourceSECNPORT
	case JurisdictionLU, JurisdictionIE:
		return SourceLuxSEOAM
	case JurisdictionDE:
		return SourceBundesanzeiger
	case JurisdictionFR:
		return SourceAMFBDIF
	default:
		return ""
	}
}

// StaticHolding is a registry-embedded position used when no filing source exists.
type StaticHolding struct {
	Name       string  `yaml:"name" json:"name"`
	ISIN       string  `yaml:"isin" json:"isin,omitempty"`
	Ticker     string  `yaml:"ticker" json:"ticker,omitempty"`
	WeightPct  float64 `yaml:"weight_pct" json:"weight_pct"`
	Country    string  `yaml:"country" json:"country,omitempty"`
	Sector     string  `yaml:"sector" json:"sector,omitempty"`
	AssetClass string  `yaml:"asset_class" json:"asset_class,omitempty"`
}

// FundEntry is one immutable fund registry record.
type FundEntry struct {
	ID                     string          `json:"id"`
	Name                   string          `json:"name,omitempty"`
	Issuer                 string          `json:"issuer,omitempty"`
	Jurisdiction           Jurisdiction    `json:"jurisdiction"`
	Source                 SourceKind      `json:"source"`
	Tickers                []string        `json:"tickers,omitempty"`
	CIK                    string          `json:"cik,omitempty"`
	SeriesID               string          `json:"series_id,omitempty"`
	ClassID                string          `json:"class_id,omitempty"`
	ShareClassISIN         string          `json:"share_class_isin,omitempty"`
	Currency               string          `json:"currency,omitempty"`
	Freshness              time.Duration   `json:"freshness"`
	ExcludeFromLookthrough bool            `json:"exclude_from_lookthrough,omitempty"`
	StaticHoldings         []StaticHolding `json:"static_holdings,omitempty"`
}

// PaddedCIK returns the CIK left-padded to the 10 digits EDGAR expects.
func (f FundEntry) PaddedCIK() string {
	cik := strings.TrimSpace(f.CIK)
	if len(cik) >= 10 {
		return cik
	}
	return strings.Repeat("0", 10-len(cik)) + cik
}

// PrimaryTicker returns the first listed ticker, or the fund id when none is set.
func (f FundEntry) PrimaryTicker() string {
	if len(f.Tickers) > 0 {
		return f.Tickers[0]
	}
	return f.ID
}
