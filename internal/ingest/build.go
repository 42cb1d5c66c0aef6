package ingest

import (
	"context"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/holdings-cli/internal/config"
	"github.com/sells-group/holdings-cli/internal/discovery"
	"github.com/sells-group/holdings-cli/internal/enrich"
	"github.com/sells-group/holdings-cli/internal/fetcher"
	"github.com/sells-group/holdings-cli/internal/freshness"
	"github.com/sells-group/holdings-cli/internal/gold"
	"github.com/sells-group/holdings-cli/internal/metrics"
	"github.com/sells-group/holdings-cli/internal/model"
	"github.com/sells-group/holdings-cli/internal/ocr"
	"github.com/sells-group/holdings-cli/internal/parser"
	"github.com/sells-group/holdings-cli/internal/qa"
	"github.com/sells-group/holdings-cli/internal/raw"
	"github.com/sells-group/holdings-cli/internal/resilience"
)

// FromConfig wires the production stages: HTTP fetcher with per-source
// politeness, discovery adapters, the raw arena under <data>/raw, parsers,
// enrichment, the quality gate and the gold store under <data>.
func FromConfig(ctx context.Context, cfg *config.Config, reg FundLookup, ledger Ledger, m *metrics.Metrics) (*Orchestrator, *gold.Store, error) {
	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent: cfg.Fetch.UserAgent,
		Timeout:   time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
		Retry:     resilience.FromRetryConfig(cfg.Fetch.MaxAttempts, cfg.Fetch.InitialBackoffMs),
		Limiters:  fetcher.NewLimiters(cfg.Fetch.MinInterval),
	})

	var refs *enrich.ReferenceTable
	if cfg.Data.ReferenceCSV != "" {
		t, err := enrich.LoadReferenceFile(ctx, cfg.Data.ReferenceCSV)
		if err != nil {
			return nil, nil, eris.Wrap(err, "ingest: load reference table")
		}
		refs = t
	}
	fx, err := enrich.NewStaticRates(cfg.FX)
	if err != nil {
		return nil, nil, eris.Wrap(err, "ingest: fx rates")
	}

	arena := raw.NewArena(filepath.Join(cfg.Data.Dir, "raw"))
	gs := gold.New(cfg.Data.Dir)

	o := New(Deps{
		Registry:   reg,
		Freshness:  freshness.New(gs),
		Discovery:  discovery.New(f, cfg.Discovery),
		Downloader: raw.NewDownloader(f, arena),
		Documents:  arena,
		Parser:     parser.New(ocr.NewExtractor(cfg.OCR)),
		Enricher:   enrich.New(enrich.Options{References: refs, FX: fx, ReportingCurrency: cfg.FX.ReportingCurrency}),
		Gate:       qa.New(cfg.QA),
		Gold:       gs,
		Ledger:     ledger,
		Metrics:    m,
	})
	return o, gs, nil
}

// IngestAll runs requests with at most concurrency funds in flight. Outcomes
// keep the request order.
func (o *Orchestrator) IngestAll(ctx context.Context, reqs []Request, concurrency int) []*model.IngestOutcome {
	if concurrency <= 0 {
		concurrency = 1
	}
	out := make([]*model.IngestOutcome, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, req := range reqs {
		g.Go(func() error {
			out[i] = o.Ingest(gctx, req)
			return nil
		})
	}
	_ = g.Wait()

	counts := make(map[model.State]int)
	for _, oc := range out {
		counts[oc.State]++
	}
	zap.L().Info("ingest: batch complete",
		zap.String("component", "ingest"),
		zap.Int("funds", len(reqs)),
		zap.Int("promoted", counts[model.StatePromote]),
		zap.Int("rejected", counts[model.StateReject]),
		zap.Int("skipped", counts[model.StateSkipped]),
		zap.Int("failed", counts[model.StateFailed]),
	)
	return out
}
