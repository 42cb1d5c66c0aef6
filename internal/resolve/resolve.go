// Package resolve answers holdings queries by walking an ordered chain of
// sources: locally promoted snapshots first, then remote services.
package resolve

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/holdings-cli/internal/metrics"
	"github.com/sells-group/holdings-cli/internal/model"
	"github.com/sells-group/holdings-cli/internal/resilience"
)

// requestFields is the field set every query asks for; it is part of the
// cache signature.
var requestFields = []string{"holdings", "countries", "sectors", "asset_classes"}

// FundLookup finds a registry entry by ticker, ISIN or fund id.
type FundLookup interface {
	Lookup(key string) (model.FundEntry, bool)
}

// Options configures a Chain.
type Options struct {
	Sources         []Source
	Registry        FundLookup
	Cache           Cache
	CacheTTL        time.Duration
	TimeBucket      time.Duration
	Timeout         time.Duration
	ExcludeKeywords []string
	MaxPositions    int
	Concurrency     int
	Breakers        *resilience.Breakers
	Metrics         *metrics.Metrics
}

// Chain is the ordered resolution chain.
type Chain struct {
	opts Options
	now  func() time.Time
	log  *zap.Logger
}

// New creates a Chain. Missing options fall back to an in-memory cache, a
// 20s per-call timeout and a 24h time bucket.
func New(opts Options) *Chain {
	if opts.Cache == nil {
		opts.Cache = NewMemoryCache()
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 24 * time.Hour
	}
	if opts.TimeBucket <= 0 {
		opts.TimeBucket = 24 * time.Hour
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.Breakers == nil {
		opts.Breakers = resilience.NewBreakers(resilience.DefaultCircuitBreakerConfig())
	}
	return &Chain{
		opts: opts,
		now:  time.Now,
		log:  zap.L().With(zap.String("component", "resolve")),
	}
}

// Sources returns the source names in chain order.
func (c *Chain) Sources() []string {
	names := make([]string, len(c.opts.Sources))
	for i, s := range c.opts.Sources {
		names[i] = s.Name()
	}
	return names
}

// Resolve returns holdings for ticker from the first source that has them.
// Excluded funds resolve as not applicable without consulting any source.
// When every source fails the error is a *model.ResolutionExhausted.
func (c *Chain) Resolve(ctx context.Context, ticker string) (*model.HoldingsResult, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	log := c.log.With(zap.String("ticker", ticker))

	q := Query{Ticker: ticker}
	if c.opts.Registry != nil {
		if f, ok := c.opts.Registry.Lookup(ticker); ok {
			q.Fund = &f
		}
	}

	if q.Fund != nil && (q.Fund.ExcludeFromLookthrough || Excluded(q.Fund.Name, c.opts.ExcludeKeywords)) {
		log.Info("fund excluded from look-through", zap.String("fund_id", q.Fund.ID))
		return c.notApplicable(q, q.Fund.Name), nil
	}

	var attempts []model.SourceAttempt
	for _, src := range c.opts.Sources {
		res, err := c.try(ctx, src, q)
		if err == nil {
			if res.Status == model.ResolutionNotApplicable {
				return res, nil
			}
			out := *res
			out.Holdings = trim(res.Holdings, c.opts.MaxPositions)
			c.opts.Metrics.Resolved(src.Name())
			log.Info("holdings resolved",
				zap.String("source", src.Name()),
				zap.Int("holdings", len(out.Holdings)),
				zap.Bool("from_cache", out.FromCache),
			)
			return &out, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Debug("source did not resolve", zap.String("source", src.Name()), zap.Error(err))
		attempts = append(attempts, model.SourceAttempt{Source: src.Name(), Reason: reason(err)})
	}

	c.opts.Metrics.Resolved("exhausted")
	log.Warn("resolution exhausted", zap.Int("sources", len(attempts)))
	return nil, &model.ResolutionExhausted{Ticker: ticker, Attempts: attempts}
}

// try consults one source, going through the cache, the per-call timeout
// and the source breaker for remote sources. Not-applicable verdicts drawn
// from a remote name are cached like holdings.
func (c *Chain) try(ctx context.Context, src Source, q Query) (*model.HoldingsResult, error) {
	if !src.Remote() {
		ans, err := src.Fetch(ctx, q)
		if err != nil {
			return nil, err
		}
		return c.build(q, src.Name(), ans), nil
	}

	key := Key(q.Ticker, src.Name(), requestFields, Bucket(c.now(), c.opts.TimeBucket))
	cached, err := c.opts.Cache.Get(ctx, key)
	if err != nil {
		c.log.Warn("resolution cache read failed", zap.String("cache", c.opts.Cache.Name()), zap.Error(err))
	}
	if cached != nil {
		c.opts.Metrics.CacheHit(c.opts.Cache.Name())
		cached.FromCache = true
		return cached, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()
	ans, err := resilience.ExecuteVal(callCtx, c.opts.Breakers.Get(src.Name()), func(ctx context.Context) (*Answer, error) {
		return src.Fetch(ctx, q)
	})
	if err != nil {
		return nil, err
	}

	name := ans.Name
	if name == "" && q.Fund != nil {
		name = q.Fund.Name
	}
	var res *model.HoldingsResult
	if Excluded(ans.Name, c.opts.ExcludeKeywords) {
		res = c.notApplicable(q, name)
		res.Source = src.Name()
	} else {
		res = c.build(q, src.Name(), ans)
	}
	if err := c.opts.Cache.Set(ctx, key, res, c.opts.CacheTTL); err != nil {
		c.log.Warn("resolution cache write failed", zap.String("cache", c.opts.Cache.Name()), zap.Error(err))
	}
	return res, nil
}

// build normalises an answer into a result and fills exposures the source
// did not provide from the holdings.
func (c *Chain) build(q Query, source string, ans *Answer) *model.HoldingsResult {
	holdings := append([]model.Holding(nil), ans.Holdings...)
	if !ans.Percent {
		normalizeHoldings(holdings)
	}
	sortHoldings(holdings)

	res := &model.HoldingsResult{
		Ticker:       q.Ticker,
		FundID:       ans.FundID,
		Name:         ans.Name,
		Status:       model.ResolutionResolved,
		Source:       source,
		AsOf:         ans.AsOf,
		Holdings:     holdings,
		Countries:    normalizeExposures(ans.Countries, ans.Percent),
		Sectors:      normalizeExposures(ans.Sectors, ans.Percent),
		AssetClasses: aggregate(holdings, func(h model.Holding) string { return h.AssetClass }),
		ResolvedAt:   c.now().UTC(),
	}
	if q.Fund != nil {
		if res.FundID == "" {
			res.FundID = q.Fund.ID
		}
		if res.Name == "" {
			res.Name = q.Fund.Name
		}
	}
	if len(res.Countries) == 0 {
		res.Countries = aggregate(holdings, func(h model.Holding) string { return h.Country })
	}
	if len(res.Sectors) == 0 {
		res.Sectors = aggregate(holdings, func(h model.Holding) string { return h.Sector })
	}
	return res
}

func (c *Chain) notApplicable(q Query, name string) *model.HoldingsResult {
	res := &model.HoldingsResult{
		Ticker:     q.Ticker,
		Name:       name,
		Status:     model.ResolutionNotApplicable,
		ResolvedAt: c.now().UTC(),
	}
	if q.Fund != nil {
		res.FundID = q.Fund.ID
	}
	return res
}

// Outcome is the result of one ticker in a batch.
type Outcome struct {
	Ticker string
	Result *model.HoldingsResult
	Err    error
}

// ResolveMany resolves tickers concurrently. Outcomes keep the input order
// and a failed ticker never aborts the batch.
func (c *Chain) ResolveMany(ctx context.Context, tickers []string) []Outcome {
	out := make([]Outcome, len(tickers))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Concurrency)
	for i, t := range tickers {
		g.Go(func() error {
			res, err := c.Resolve(gctx, t)
			out[i] = Outcome{Ticker: strings.ToUpper(strings.TrimSpace(t)), Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Excluded reports whether name contains one of the exclusion keywords.
func Excluded(name string, keywords []string) bool {
	lower := strings.ToLower(name)
	if lower == "" {
		return false
	}
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" && strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

func reason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, resilience.ErrCircuitOpen):
		return "circuit open"
	case errors.Is(err, ErrNoData):
		return strings.TrimPrefix(err.Error(), "resolve: ")
	}
	return err.Error()
}
