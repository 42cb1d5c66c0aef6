package main

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/holdings-cli/internal/gold"
	"github.com/sells-group/holdings-cli/internal/ingest"
	"github.com/sells-group/holdings-cli/internal/metrics"
	"github.com/sells-group/holdings-cli/internal/registry"
	"github.com/sells-group/holdings-cli/internal/resolve"
	"github.com/sells-group/holdings-cli/internal/store"
)

// appEnv holds every initialized dependency a command needs.
type appEnv struct {
	Store        store.Store
	Registry     *registry.Registry
	Prometheus   *prometheus.Registry
	Metrics      *metrics.Metrics
	Orchestrator *ingest.Orchestrator
	Gold         *gold.Store
	Chain        *resolve.Chain

	closeChain func() error
}

// Close releases the cache backend and the store.
func (e *appEnv) Close() {
	if e.closeChain != nil {
		if err := e.closeChain(); err != nil {
			zap.L().Warn("close resolution cache", zap.Error(err))
		}
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initStore opens the configured ledger backend with migrations applied.
func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, eris.Wrap(err, "init store")
	}
	return st, nil
}

// initEnv wires the store, registry, metrics, ingestion orchestrator and
// resolution chain from cfg.
func initEnv(ctx context.Context) (*appEnv, error) {
	reg, err := registry.LoadFile(cfg.Registry.Path)
	if err != nil {
		return nil, eris.Wrap(err, "load registry")
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	env := &appEnv{Store: st, Registry: reg}

	env.Prometheus = prometheus.NewRegistry()
	env.Prometheus.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	env.Metrics = metrics.New(env.Prometheus)

	env.Orchestrator, env.Gold, err = ingest.FromConfig(ctx, cfg, reg, st, env.Metrics)
	if err != nil {
		env.Close()
		return nil, eris.Wrap(err, "init ingest")
	}

	env.Chain, env.closeChain, err = resolve.FromConfig(ctx, cfg, resolve.Deps{
		Registry: reg,
		Gold:     env.Gold,
		Store:    st,
		Metrics:  env.Metrics,
	})
	if err != nil {
		env.Close()
		return nil, eris.Wrap(err, "init resolve")
	}

	zap.L().Info("environment ready",
		zap.Int("funds", reg.Len()),
		zap.String("store", cfg.Store.Driver),
		zap.String("data_dir", cfg.Data.Dir),
	)
	return env, nil
}
