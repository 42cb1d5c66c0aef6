package resolve

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/holdings-cli/internal/config"
	"github.com/sells-group/holdings-cli/internal/credential"
	"github.com/sells-group/holdings-cli/internal/metrics"
	"github.com/sells-group/holdings-cli/internal/store"
	"github.com/sells-group/holdings-cli/pkg/alphavantage"
	"github.com/sells-group/holdings-cli/pkg/fmp"
)

// Deps are the collaborators a configured chain needs.
type Deps struct {
	Registry FundLookup
	Gold     SnapshotReader
	Store    store.Store
	Metrics  *metrics.Metrics
}

// FromConfig assembles the chain in the configured source order. A remote
// service without credentials is left out of the chain. The returned closer
// releases the cache backend.
func FromConfig(ctx context.Context, cfg *config.Config, deps Deps) (*Chain, func() error, error) {
	log := zap.L().With(zap.String("component", "resolve"))
	cooldown := time.Duration(cfg.Resolve.CredentialCooldownSecs) * time.Second

	var sources []Source
	for _, name := range cfg.Resolve.Sources {
		switch name {
		case SourceGold:
			if deps.Gold == nil {
				return nil, nil, eris.New("resolve: gold source configured without a gold store")
			}
			sources = append(sources, NewGoldSource(deps.Gold))
		case SourceStatic:
			sources = append(sources, StaticSource{})
		case SourceFMP:
			if len(cfg.FMP.Keys) == 0 {
				log.Info("no credentials; source removed from chain", zap.String("source", name))
				continue
			}
			pool := newPool(name, cfg.FMP.Keys, cooldown, deps.Metrics)
			sources = append(sources, NewFMPSource(fmp.NewClient(fmp.WithBaseURL(cfg.FMP.BaseURL)), pool))
		case SourceAlphaVantage:
			if len(cfg.AlphaVantage.Keys) == 0 {
				log.Info("no credentials; source removed from chain", zap.String("source", name))
				continue
			}
			pool := newPool(name, cfg.AlphaVantage.Keys, cooldown, deps.Metrics)
			sources = append(sources, NewAlphaVantageSource(alphavantage.NewClient(alphavantage.WithBaseURL(cfg.AlphaVantage.BaseURL)), pool))
		default:
			return nil, nil, eris.Errorf("resolve: unknown source %q", name)
		}
	}

	closer := func() error { return nil }
	var cache Cache
	switch cfg.Resolve.CacheBackend {
	case "", "memory":
		cache = NewMemoryCache()
	case "store":
		if deps.Store == nil {
			return nil, nil, eris.New("resolve: store cache configured without a store")
		}
		cache = NewStoreCache(deps.Store)
	case "redis":
		client, err := NewRedisClient(ctx, cfg.Redis.URL, cfg.Redis.PoolSize)
		if err != nil {
			return nil, nil, err
		}
		cache = NewRedisCache(client)
		closer = client.Close
	default:
		return nil, nil, eris.Errorf("resolve: unknown cache backend %q", cfg.Resolve.CacheBackend)
	}

	chain := New(Options{
		Sources:         sources,
		Registry:        deps.Registry,
		Cache:           cache,
		CacheTTL:        time.Duration(cfg.Resolve.CacheTTLHours) * time.Hour,
		TimeBucket:      time.Duration(cfg.Resolve.TimeBucketHours) * time.Hour,
		Timeout:         time.Duration(cfg.Resolve.TimeoutSecs) * time.Second,
		ExcludeKeywords: cfg.Resolve.ExcludeKeywords,
		MaxPositions:    cfg.Resolve.MaxPositions,
		Concurrency:     cfg.Resolve.Concurrency,
		Metrics:         deps.Metrics,
	})
	log.Info("resolution chain ready", zap.Strings("sources", chain.Sources()), zap.String("cache", cache.Name()))
	return chain, closer, nil
}

func newPool(service string, keys []string, cooldown time.Duration, m *metrics.Metrics) *credential.Pool {
	pool := credential.NewPool(service, keys, cooldown)
	pool.OnRotate = m.CredentialRotated
	return pool
}
