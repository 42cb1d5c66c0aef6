package enrich

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/sells-group/holdings-cli/internal/config"
	"github.com/sells-group/holdings-cli/internal/reportdate"
)

// ErrNoRate is returned when a converter has no rate for a currency pair.
var ErrNoRate = eris.New("fx: no rate")

// Rate is a conversion factor: units of the target currency per unit of the
// source currency, stamped with the time it was valid for.
type Rate struct {
	Value  decimal.Decimal
	AsOf   time.Time
	Source string
}

// FXConverter supplies conversion rates. asOf is the snapshot's effective
// date; implementations decide whether to honour it or return their latest
// rate, and report which in Rate.AsOf.
type FXConverter interface {
	Rate(ctx context.Context, from, to string, asOf time.Time) (Rate, error)
}

// StaticRates serves a fixed rate table loaded from configuration.
type StaticRates struct {
	reporting string
	asOf      time.Time
	rates     map[string]decimal.Decimal
}

// NewStaticRates builds a StaticRates from the fx config section.
func NewStaticRates(cfg config.FXConfig) (*StaticRates, error) {
	s := &StaticRates{
		reporting: strings.ToUpper(cfg.ReportingCurrency),
		rates:     make(map[string]decimal.Decimal, len(cfg.Rates)),
	}
	if s.reporting == "" {
		s.reporting = "USD"
	}
	if cfg.RatesAsOf != "" {
		t, ok := reportdate.ParseISO(cfg.RatesAsOf)
		if !ok {
			return nil, eris.Errorf("fx: invalid rates_as_of %q", cfg.RatesAsOf)
		}
		s.asOf = t
	}
	for ccy, v := range cfg.Rates {
		if v <= 0 {
			return nil, eris.Errorf("fx: rate for %s must be positive", ccy)
		}
		s.rates[strings.ToUpper(ccy)] = decimal.NewFromFloat(v)
	}
	return s, nil
}

// ReportingCurrency returns the currency all rates convert into.
func (s *StaticRates) ReportingCurrency() string { return s.reporting }

// Rate implements FXConverter. Identity conversions are stamped with asOf;
// table rates carry the configured rates_as_of.
func (s *StaticRates) Rate(_ context.Context, from, to string, asOf time.Time) (Rate, error) {
	from, to = strings.ToUpper(from), strings.ToUpper(to)
	if from == to {
		return Rate{Value: decimal.NewFromInt(1), AsOf: asOf, Source: "identity"}, nil
	}
	if to != s.reporting {
		return Rate{}, eris.Wrapf(ErrNoRate, "%s/%s", from, to)
	}
	v, ok := s.rates[from]
	if !ok {
		return Rate{}, eris.Wrapf(ErrNoRate, "%s/%s", from, to)
	}
	stamp := s.asOf
	if stamp.IsZero() {
		stamp = asOf
	}
	return Rate{Value: v, AsOf: stamp, Source: "static"}, nil
}
