// Package ingest runs the per-fund ingestion state machine from freshness
// check to promotion.
package ingest

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/holdings-cli/internal/enrich"
	"github.com/sells-group/holdings-cli/internal/freshness"
	"github.com/sells-group/holdings-cli/internal/metrics"
	"github.com/sells-group/holdings-cli/internal/model"
	"github.com/sells-group/holdings-cli/internal/parser"
	"github.com/sells-group/holdings-cli/internal/qa"
)

// Collaborator interfaces. The concrete types live in discovery, raw,
// parser, enrich, qa, gold and freshness.
type (
	Discoverer interface {
		Discover(ctx context.Context, fund model.FundEntry, target time.Time) ([]model.DocumentDescriptor, error)
	}
	Downloader interface {
		Download(ctx context.Context, desc model.DocumentDescriptor) (model.RawDocument, error)
	}
	DocumentReader interface {
		Read(doc model.RawDocument) ([]byte, error)
	}
	Parser interface {
		Parse(ctx context.Context, in parser.Input) (*parser.Result, error)
	}
	Enricher interface {
		Enrich(ctx context.Context, in enrich.Input) ([]model.GoldRow, model.Deficiencies)
	}
	Gate interface {
		Evaluate(in qa.Input) model.QAReport
	}
	SnapshotWriter interface {
		Write(snap *model.Snapshot) (int, error)
		WriteSilver(fundID string, asOf time.Time, hash string, rows []model.SilverRow) (string, error)
	}
	FreshnessChecker interface {
		Check(req freshness.Request) (freshness.Verdict, error)
	}
	FundLookup interface {
		Get(id string) (model.FundEntry, bool)
	}
	// Ledger records runs and phases. The store package satisfies it.
	Ledger interface {
		CreateRun(ctx context.Context, fundID string, force bool) (*model.Run, error)
		CompleteRun(ctx context.Context, runID string, outcome *model.IngestOutcome) error
		CreatePhase(ctx context.Context, runID string, name string) (*model.RunPhase, error)
		CompletePhase(ctx context.Context, phaseID string, result *model.PhaseResult) error
	}
)

// Deps are the stage implementations the orchestrator drives. Ledger and
// Metrics are optional.
type Deps struct {
	Registry   FundLookup
	Freshness  FreshnessChecker
	Discovery  Discoverer
	Downloader Downloader
	Documents  DocumentReader
	Parser     Parser
	Enricher   Enricher
	Gate       Gate
	Gold       SnapshotWriter
	Ledger     Ledger
	Metrics    *metrics.Metrics
}

// Request is one ingest invocation. A zero AsOf asks for the latest filing.
type Request struct {
	FundID string
	AsOf   time.Time
	Force  bool
}

// Orchestrator runs the state machine. Stages within one fund run strictly in
// sequence; distinct funds may run concurrently on the same Orchestrator.
type Orchestrator struct {
	deps Deps
	now  func() time.Time
}

// New creates an Orchestrator.
func New(deps Deps) *Orchestrator {
	return &Orchestrator{deps: deps, now: time.Now}
}

// run carries the mutable state of one orchestration.
type run struct {
	o        *Orchestrator
	ctx      context.Context
	ledgered bool
	out      *model.IngestOutcome
	fund     model.FundEntry
	log      *zap.Logger
}

// Ingest drives one fund to a terminal state. Stage failures are reported
// in the outcome; Ingest itself never fails.
func (o *Orchestrator) Ingest(ctx context.Context, req Request) *model.IngestOutcome {
	r := &run{
		o:   o,
		ctx: ctx,
		out: &model.IngestOutcome{FundID: req.FundID, StartedAt: o.now().UTC()},
		log: zap.L().With(zap.String("component", "ingest"), zap.String("fund_id", req.FundID)),
	}
	r.open(req)
	r.log.Info("ingest: starting", zap.Bool("force", req.Force), zap.Time("target", req.AsOf))

	state, reason := r.execute(req)
	return r.finish(state, reason)
}

func (r *run) execute(req Request) (model.State, string) {
	fund, ok := r.o.deps.Registry.Get(req.FundID)
	if !ok {
		return model.StateFailed, model.ReasonUnknownFund
	}
	r.fund = fund

	var verdict freshness.Verdict
	r.track(model.StateCheckFreshness, func() (*model.PhaseResult, error) {
		v, err := r.o.deps.Freshness.Check(freshness.Request{Fund: fund, Target: req.AsOf, Force: req.Force})
		if err != nil {
			r.log.Warn("ingest: freshness check failed; refreshing", zap.Error(err))
			v = freshness.Verdict{Decision: freshness.Refresh, Reason: "freshness check failed"}
		}
		verdict = v
		return &model.PhaseResult{Metadata: map[string]any{
			"decision": string(v.Decision),
			"reason":   v.Reason,
		}}, nil
	})
	if verdict.Decision == freshness.Reuse {
		r.out.AsOf = verdict.AsOf
		r.out.Version = verdict.Version
		return model.StateSkipped, model.ReasonFresh
	}

	// Once discovery begins the run proceeds to a terminal state even if
	// the caller goes away.
	r.ctx = context.WithoutCancel(r.ctx)

	var cands []model.DocumentDescriptor
	if err := r.track(model.StateDiscover, func() (*model.PhaseResult, error) {
		c, err := r.o.deps.Discovery.Discover(r.ctx, fund, req.AsOf)
		cands = c
		return &model.PhaseResult{Metadata: map[string]any{"candidates": len(c)}}, err
	}); err != nil {
		return model.StateFailed, model.ReasonDiscoveryFailed
	}
	if len(cands) == 0 {
		return model.StateFailed, model.ReasonNoCandidates
	}

	parsed, doc, desc := r.firstUsable(cands)
	if parsed == nil {
		return model.StateFailed, model.ReasonAllCandidates
	}
	r.out.DocumentHash = doc.Hash

	asOf := parsed.AsOf
	if asOf.IsZero() {
		asOf = desc.PublishedDate
	}
	if asOf.IsZero() {
		asOf = doc.FetchedAt
	}
	asOf = time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, time.UTC)
	r.out.AsOf = asOf

	var rows []model.GoldRow
	var def model.Deficiencies
	r.track(model.StateEnrich, func() (*model.PhaseResult, error) {
		rows, def = r.o.deps.Enricher.Enrich(r.ctx, enrich.Input{
			Fund:          fund,
			Document:      doc,
			AsOf:          asOf,
			ParserVersion: parsed.ParserVersion,
			Rows:          parsed.Rows,
		})
		return &model.PhaseResult{Metadata: map[string]any{
			"rows":               len(rows),
			"unresolved_ids":     def.UnresolvedIDs,
			"unparseable_values": def.UnparseableValues,
			"missing_fx":         def.MissingFX,
		}}, nil
	})

	var report model.QAReport
	r.track(model.StateValidate, func() (*model.PhaseResult, error) {
		report = r.o.deps.Gate.Evaluate(qa.Input{
			FundID:       fund.ID,
			Source:       fund.Source,
			AsOf:         asOf,
			Rows:         rows,
			Deficiencies: def,
		})
		return &model.PhaseResult{Metadata: map[string]any{
			"status":        string(report.Status),
			"weight_sum":    report.WeightSum,
			"failed_checks": report.FailedChecks(),
		}}, nil
	})
	r.out.Report = &report

	terminal := model.StatePromote
	if report.Status != model.QAStatusPass {
		terminal = model.StateReject
	}

	snap := &model.Snapshot{
		FundID: fund.ID,
		AsOf:   asOf,
		Source: fund.Source,
		Rows:   rows,
		Report: report,
		Lineage: model.Lineage{
			DocumentHash:      doc.Hash,
			SourceURI:         doc.URI,
			FetchedAt:         doc.FetchedAt,
			ParserVersion:     parsed.ParserVersion,
			EnrichmentVersion: enrich.Version,
		},
	}
	if err := r.track(terminal, func() (*model.PhaseResult, error) {
		v, err := r.o.deps.Gold.Write(snap)
		r.out.Version = v
		return &model.PhaseResult{Metadata: map[string]any{"version": v}}, err
	}); err != nil {
		return model.StateFailed, model.ReasonGoldWrite
	}
	r.out.Report = &snap.Report

	if terminal == model.StateReject {
		return terminal, model.ReasonQAFailed + ": " + strings.Join(report.FailedChecks(), ", ")
	}
	return terminal, ""
}

// firstUsable downloads and parses candidates in order until one yields
// rows. Download and parse failures move on to the next candidate.
func (r *run) firstUsable(cands []model.DocumentDescriptor) (*parser.Result, model.RawDocument, model.DocumentDescriptor) {
	for _, desc := range cands {
		attempt := model.CandidateAttempt{URI: desc.URI, Published: desc.PublishedDate}

		var doc model.RawDocument
		var body []byte
		err := r.track(model.StateDownload, func() (*model.PhaseResult, error) {
			d, err := r.o.deps.Downloader.Download(r.ctx, desc)
			if err != nil {
				return &model.PhaseResult{Metadata: map[string]any{"uri": desc.URI}}, err
			}
			doc = d
			body, err = r.o.deps.Documents.Read(d)
			return &model.PhaseResult{Metadata: map[string]any{
				"uri":  desc.URI,
				"hash": d.Hash,
				"size": d.Size,
			}}, err
		})
		if err != nil {
			r.o.deps.Metrics.DownloadFailed(string(desc.Source))
			attempt.FailedAt, attempt.Error = model.StateDownload, err.Error()
			r.out.Attempts = append(r.out.Attempts, attempt)
			continue
		}
		attempt.DocumentHash = doc.Hash

		var res *parser.Result
		err = r.track(model.StateParse, func() (*model.PhaseResult, error) {
			p, err := r.o.deps.Parser.Parse(r.ctx, parser.Input{Document: doc, Body: body, Fund: r.fund})
			if err != nil {
				return &model.PhaseResult{Metadata: map[string]any{"hash": doc.Hash}}, err
			}
			res = p
			meta := map[string]any{"hash": doc.Hash, "rows": len(p.Rows), "parser_version": p.ParserVersion}

			silverDate := p.AsOf
			if silverDate.IsZero() {
				silverDate = desc.PublishedDate
			}
			if path, werr := r.o.deps.Gold.WriteSilver(r.fund.ID, silverDate, doc.Hash, p.Rows); werr != nil {
				r.log.Warn("ingest: silver write failed", zap.String("hash", doc.Hash), zap.Error(werr))
			} else {
				meta["silver"] = path
			}
			return &model.PhaseResult{Metadata: meta}, nil
		})
		if err != nil {
			attempt.FailedAt, attempt.Error = model.StateParse, err.Error()
			r.out.Attempts = append(r.out.Attempts, attempt)
			continue
		}
		r.out.Attempts = append(r.out.Attempts, attempt)
		return res, doc, desc
	}
	return nil, model.RawDocument{}, model.DocumentDescriptor{}
}

// track records a visited state as a ledger phase and a stage metric.
func (r *run) track(state model.State, fn func() (*model.PhaseResult, error)) error {
	r.out.Visited = append(r.out.Visited, state)
	name := string(state)

	var phase *model.RunPhase
	if r.ledgered {
		p, err := r.o.deps.Ledger.CreatePhase(context.WithoutCancel(r.ctx), r.out.RunID, name)
		if err != nil {
			r.log.Warn("ingest: failed to create phase", zap.String("phase", name), zap.Error(err))
		}
		phase = p
	}

	start := time.Now()
	result, fnErr := fn()
	elapsed := time.Since(start)

	if result == nil {
		result = &model.PhaseResult{}
	}
	result.Name = name
	result.Duration = elapsed.Milliseconds()
	if fnErr != nil {
		result.Status = model.PhaseStatusFailed
		result.Error = fnErr.Error()
		r.log.Warn("ingest: phase failed", zap.String("phase", name), zap.Int64("duration_ms", result.Duration), zap.Error(fnErr))
	} else {
		result.Status = model.PhaseStatusComplete
		r.log.Debug("ingest: phase complete", zap.String("phase", name), zap.Int64("duration_ms", result.Duration))
	}
	r.o.deps.Metrics.ObserveStage(name, elapsed)

	if phase != nil {
		if err := r.o.deps.Ledger.CompletePhase(context.WithoutCancel(r.ctx), phase.ID, result); err != nil {
			r.log.Warn("ingest: failed to complete phase", zap.String("phase", name), zap.Error(err))
		}
	}
	return fnErr
}

// open registers the run in the ledger. Without a ledger the run still
// gets an id for log correlation.
func (r *run) open(req Request) {
	if r.o.deps.Ledger != nil {
		rec, err := r.o.deps.Ledger.CreateRun(context.WithoutCancel(r.ctx), req.FundID, req.Force)
		if err != nil {
			r.log.Warn("ingest: failed to create run", zap.Error(err))
		} else {
			r.out.RunID = rec.ID
			r.ledgered = true
		}
	}
	if r.out.RunID == "" {
		r.out.RunID = uuid.NewString()
	}
	r.log = r.log.With(zap.String("run_id", r.out.RunID))
}

func (r *run) finish(state model.State, reason string) *model.IngestOutcome {
	r.out.State = state
	r.out.Reason = reason
	r.out.FinishedAt = r.o.now().UTC()
	if state == model.StateSkipped || state == model.StateFailed {
		r.out.Visited = append(r.out.Visited, state)
	}

	source := string(r.fund.Source)
	if source == "" {
		source = "unknown"
	}
	r.o.deps.Metrics.IngestOutcome(source, string(state))

	if r.ledgered {
		if err := r.o.deps.Ledger.CompleteRun(context.WithoutCancel(r.ctx), r.out.RunID, r.out); err != nil {
			r.log.Warn("ingest: failed to complete run", zap.Error(err))
		}
	}

	fields := []zap.Field{
		zap.String("state", string(state)),
		zap.Duration("elapsed", r.out.FinishedAt.Sub(r.out.StartedAt)),
	}
	if reason != "" {
		fields = append(fields, zap.String("reason", reason))
	}
	if r.out.Version > 0 {
		fields = append(fields, zap.Time("as_of", r.out.AsOf), zap.Int("version", r.out.Version))
	}
	if state == model.StateFailed {
		r.log.Warn("ingest: finished", fields...)
	} else {
		r.log.Info("ingest: finished", fields...)
	}
	return r.out
}
