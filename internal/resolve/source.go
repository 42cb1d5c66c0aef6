package resolve

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/holdings-cli/internal/credential"
	"github.com/sells-group/holdings-cli/internal/enrich"
	"github.com/sells-group/holdings-cli/internal/model"
	"github.com/sells-group/holdings-cli/pkg/alphavantage"
	"github.com/sells-group/holdings-cli/pkg/fmp"
)

// Source names.
const (
	SourceGold         = "gold"
	SourceFMP          = "fmp"
	SourceAlphaVantage = "alphavantage"
	SourceStatic       = "static"
)

// ErrNoData means a source answered but had nothing usable for the ticker.
var ErrNoData = errors.New("resolve: no data")

// Query is one lookup handed to a source. Fund is nil for tickers missing
// from the registry.
type Query struct {
	Ticker string
	Fund   *model.FundEntry
}

// Answer is a raw source response before weight normalisation.
type Answer struct {
	Name      string
	FundID    string
	AsOf      time.Time
	Holdings  []model.Holding
	Countries []model.Exposure
	Sectors   []model.Exposure
	// Percent is set when weights are already percentages of the fund.
	Percent bool
}

// Source is one link of the resolution chain.
type Source interface {
	Name() string
	// Remote sources are cached, time-limited and guarded by a breaker.
	Remote() bool
	Fetch(ctx context.Context, q Query) (*Answer, error)
}

// SnapshotReader reads the latest passing gold snapshot of a fund.
type SnapshotReader interface {
	ReadLatest(fundID string) (*model.Snapshot, error)
}

// GoldSource answers from locally promoted snapshots.
type GoldSource struct {
	store SnapshotReader
}

// NewGoldSource wraps a gold store.
func NewGoldSource(store SnapshotReader) *GoldSource { return &GoldSource{store: store} }

func (s *GoldSource) Name() string { return SourceGold }
func (s *GoldSource) Remote() bool { return false }

func (s *GoldSource) Fetch(_ context.Context, q Query) (*Answer, error) {
	if q.Fund == nil {
		return nil, fmt.Errorf("%w: not in registry", ErrNoData)
	}
	snap, err := s.store.ReadLatest(q.Fund.ID)
	if err != nil {
		return nil, err
	}
	if snap == nil || len(snap.Rows) == 0 {
		return nil, fmt.Errorf("%w: no passing snapshot", ErrNoData)
	}

	ans := &Answer{Name: q.Fund.Name, FundID: q.Fund.ID, AsOf: snap.AsOf, Percent: true}
	for _, r := range snap.Rows {
		h := model.Holding{
			Symbol:     r.Ticker,
			Name:       r.Name,
			ISIN:       r.ISIN,
			WeightPct:  r.WeightPct,
			Country:    r.Country,
			Sector:     r.Sector,
			AssetClass: r.AssetClass,
		}
		if r.IDResolved {
			h.ISIN = r.PrimaryID
		}
		if r.Quantity.Valid {
			h.Shares = r.Quantity.Decimal.InexactFloat64()
		}
		switch {
		case r.ReportingValue.Valid:
			h.MarketValue = r.ReportingValue.Decimal.InexactFloat64()
		case r.MarketValue.Valid:
			h.MarketValue = r.MarketValue.Decimal.InexactFloat64()
		}
		ans.Holdings = append(ans.Holdings, h)
	}
	return ans, nil
}

// StaticSource answers from holdings embedded in the registry.
type StaticSource struct{}

func (StaticSource) Name() string { return SourceStatic }
func (StaticSource) Remote() bool { return false }

func (StaticSource) Fetch(_ context.Context, q Query) (*Answer, error) {
	if q.Fund == nil || len(q.Fund.StaticHoldings) == 0 {
		return nil, fmt.Errorf("%w: no static holdings", ErrNoData)
	}
	ans := &Answer{Name: q.Fund.Name, FundID: q.Fund.ID, Percent: true}
	for _, sh := range q.Fund.StaticHoldings {
		ans.Holdings = append(ans.Holdings, model.Holding{
			Symbol:     sh.Ticker,
			Name:       sh.Name,
			ISIN:       sh.ISIN,
			WeightPct:  sh.WeightPct,
			Country:    sh.Country,
			Sector:     sh.Sector,
			AssetClass: sh.AssetClass,
		})
	}
	return ans, nil
}

// FMPSource answers from Financial Modeling Prep.
type FMPSource struct {
	client fmp.Client
	pool   *credential.Pool
}

// NewFMPSource pairs a client with its credential pool.
func NewFMPSource(client fmp.Client, pool *credential.Pool) *FMPSource {
	return &FMPSource{client: client, pool: pool}
}

func (s *FMPSource) Name() string { return SourceFMP }
func (s *FMPSource) Remote() bool { return true }

func (s *FMPSource) Fetch(ctx context.Context, q Query) (*Answer, error) {
	rows, err := credential.Call(ctx, s.pool, func(ctx context.Context, key string) ([]fmp.Holding, error) {
		return quota[[]fmp.Holding](s.Name(), fmp.ErrRateLimited)(s.client.Holdings(ctx, key, q.Ticker))
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: empty holdings", ErrNoData)
	}

	ans := &Answer{}
	for _, r := range rows {
		h := model.Holding{
			Symbol:      strings.TrimSpace(r.Asset),
			Name:        strings.TrimSpace(r.Name),
			ISIN:        strings.TrimSpace(r.ISIN),
			Shares:      r.SharesNumber.Value,
			MarketValue: r.MarketValue.Value,
		}
		if h.Name == "" {
			h.Name = h.Symbol
		}
		if pct, ok := r.Pct(); ok {
			h.WeightPct = pct
		}
		ans.Holdings = append(ans.Holdings, h)
	}

	log := zap.L().With(zap.String("component", "resolve"), zap.String("source", s.Name()), zap.String("ticker", q.Ticker))
	countries, err := credential.Call(ctx, s.pool, func(ctx context.Context, key string) ([]fmp.Weighting, error) {
		return quota[[]fmp.Weighting](s.Name(), fmp.ErrRateLimited)(s.client.CountryWeightings(ctx, key, q.Ticker))
	})
	if err != nil {
		log.Debug("country weightings unavailable", zap.Error(err))
	}
	for _, w := range countries {
		if w.WeightPercentage.Valid && w.Key() != "" {
			ans.Countries = append(ans.Countries, model.Exposure{Key: enrich.Country(w.Key(), ""), WeightPct: w.WeightPercentage.Value})
		}
	}

	sectors, err := credential.Call(ctx, s.pool, func(ctx context.Context, key string) ([]fmp.Weighting, error) {
		return quota[[]fmp.Weighting](s.Name(), fmp.ErrRateLimited)(s.client.SectorWeightings(ctx, key, q.Ticker))
	})
	if err != nil {
		log.Debug("sector weightings unavailable", zap.Error(err))
	}
	for _, w := range sectors {
		if w.WeightPercentage.Valid && w.Key() != "" {
			ans.Sectors = append(ans.Sectors, model.Exposure{Key: enrich.Sector(w.Key()), WeightPct: w.WeightPercentage.Value})
		}
	}
	return ans, nil
}

// AlphaVantageSource answers from the Alpha Vantage ETF profile.
type AlphaVantageSource struct {
	client alphavantage.Client
	pool   *credential.Pool
}

// NewAlphaVantageSource pairs a client with its credential pool.
func NewAlphaVantageSource(client alphavantage.Client, pool *credential.Pool) *AlphaVantageSource {
	return &AlphaVantageSource{client: client, pool: pool}
}

func (s *AlphaVantageSource) Name() string { return SourceAlphaVantage }
func (s *AlphaVantageSource) Remote() bool { return true }

func (s *AlphaVantageSource) Fetch(ctx context.Context, q Query) (*Answer, error) {
	p, err := credential.Call(ctx, s.pool, func(ctx context.Context, key string) (*alphavantage.Profile, error) {
		return quota[*alphavantage.Profile](s.Name(), alphavantage.ErrRateLimited)(s.client.ETFProfile(ctx, key, q.Ticker))
	})
	if err != nil {
		return nil, err
	}
	if p == nil || len(p.Holdings) == 0 {
		return nil, fmt.Errorf("%w: empty profile", ErrNoData)
	}

	ans := &Answer{}
	for _, r := range p.Holdings {
		if !r.Weight.Valid {
			continue
		}
		ans.Holdings = append(ans.Holdings, model.Holding{
			Symbol:    strings.TrimSpace(r.Symbol),
			Name:      r.DisplayName(),
			WeightPct: r.Weight.Value,
			Shares:    r.Shares.Value,
		})
	}
	if len(ans.Holdings) == 0 {
		return nil, fmt.Errorf("%w: no weighted holdings", ErrNoData)
	}
	for _, sec := range p.Sectors {
		if sec.Weight.Valid {
			ans.Sectors = append(ans.Sectors, model.Exposure{Key: enrich.Sector(sec.Sector), WeightPct: sec.Weight.Value})
		}
	}
	return ans, nil
}

// quota translates a client rate-limit sentinel into a credential quota error.
func quota[T any](service string, sentinel error) func(T, error) (T, error) {
	return func(v T, err error) (T, error) {
		if err != nil && errors.Is(err, sentinel) {
			return v, &credential.QuotaError{Service: service, Message: err.Error()}
		}
		return v, err
	}
}
