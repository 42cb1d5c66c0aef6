package model

import "time"

// ResolutionStatus distinguishes resolved holdings from funds excluded from look-through.
type ResolutionStatus string

const (
	ResolutionResolved      ResolutionStatus = "resolved"
	ResolutionNotApplicable ResolutionStatus = "not_applicable"
)

// Holding is one constituent position as returned to a holdings consumer.
type Holding struct {
	Symbol      string  `json:"symbol,omitempty"`
	Name        string  `json:"name"`
	ISIN        string  `json:"isin,omitempty"`
	WeightPct   float64 `json:"weight_pct"`
	Shares      float64 `json:"shares,omitempty"`
	MarketValue float64 `json:"market_value,omitempty"`
	Country     string  `json:"country,omitempty"`
	Sector      string  `json:"sector,omitempty"`
	AssetClass  string  `json:"asset_class,omitempty"`
}

// Exposure is an aggregated weight for one country, sector or asset class.
type Exposure struct {
	Key       string  `json:"key"`
	WeightPct float64 `json:"weight_pct"`
}

// HoldingsResult is the answer of the resolution chain for one ticker.
type HoldingsResult struct {
	Ticker       string           `json:"ticker"`
	FundID       string           `json:"fund_id,omitempty"`
	Name         string           `json:"name,omitempty"`
	Status       ResolutionStatus `json:"status"`
	Source       string           `json:"source,omitempty"`
	AsOf         time.Time        `json:"as_of,omitempty"`
	Holdings     []Holding        `json:"holdings,omitempty"`
	Countries    []Exposure       `json:"countries,omitempty"`
	Sectors      []Exposure       `json:"sectors,omitempty"`
	AssetClasses []Exposure       `json:"asset_classes,omitempty"`
	FromCache    bool             `json:"from_cache,omitempty"`
	ResolvedAt   time.Time        `json:"resolved_at"`
}
