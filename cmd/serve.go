package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/holdings-cli/internal/ingest"
	"github.com/sells-group/holdings-cli/internal/model"
	"github.com/sells-group/holdings-cli/internal/monitoring"
	"github.com/sells-group/holdings-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for ingestion and resolution",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		collector := monitoring.NewCollector(env.Store, env.Registry, env.Gold)
		checker := monitoring.NewChecker(collector, monitoring.NewAlerter(cfg.Monitoring), cfg.Monitoring)
		go checker.Run(ctx)

		handler := buildRouter(&server{
			Funds:    env.Registry,
			Ingester: env.Orchestrator,
			Resolver: env.Chain,
			Runs:     env.Store,
			Health:   collector,
			Gatherer: env.Prometheus,
		}, cfg.Server.CORSOrigins)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// Handler dependencies.
type (
	fundLister interface {
		Funds() []model.FundEntry
		Get(id string) (model.FundEntry, bool)
	}
	ingester interface {
		Ingest(ctx context.Context, req ingest.Request) *model.IngestOutcome
	}
	resolver interface {
		Resolve(ctx context.Context, ticker string) (*model.HoldingsResult, error)
	}
	runLister interface {
		ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error)
	}
	healthCollector interface {
		Collect(ctx context.Context, lookbackHours int) (*monitoring.HealthSnapshot, error)
	}
)

// server groups the collaborators behind the HTTP API. Nil fields disable
// the routes that need them.
type server struct {
	Funds    fundLister
	Ingester ingester
	Resolver resolver
	Runs     runLister
	Health   healthCollector
	Gatherer prometheus.Gatherer
}

// buildRouter mounts the API routes behind CORS and panic recovery.
func buildRouter(s *server, origins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/funds", s.handleFunds)
		r.Get("/resolve/{ticker}", s.handleResolve)
		r.Post("/ingest/{fundID}", s.handleIngest)
		r.Get("/runs", s.handleRuns)
		r.Get("/stats", s.handleStats)
	})
	return r
}

func (s *server) handleFunds(w http.ResponseWriter, _ *http.Request) {
	if s.Funds == nil {
		writeError(w, http.StatusServiceUnavailable, "registry not loaded")
		return
	}
	writeJSON(w, http.StatusOK, s.Funds.Funds())
}

func (s *server) handleResolve(w http.ResponseWriter, r *http.Request) {
	if s.Resolver == nil {
		writeError(w, http.StatusServiceUnavailable, "resolution chain not configured")
		return
	}
	ticker := chi.URLParam(r, "ticker")

	res, err := s.Resolver.Resolve(r.Context(), ticker)
	if err != nil {
		var re *model.ResolutionExhausted
		if errors.As(err, &re) {
			writeJSON(w, http.StatusNotFound, map[string]any{
				"error":    re.Error(),
				"ticker":   re.Ticker,
				"attempts": re.Attempts,
			})
			return
		}
		zap.L().Error("resolve request failed", zap.String("ticker", ticker), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "resolution failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if s.Ingester == nil || s.Funds == nil {
		writeError(w, http.StatusServiceUnavailable, "ingestion not configured")
		return
	}
	fundID := chi.URLParam(r, "fundID")
	if _, ok := s.Funds.Get(fundID); !ok {
		writeError(w, http.StatusNotFound, "unknown fund "+fundID)
		return
	}

	asOf, err := parseAsOf(r.URL.Query().Get("as_of"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	force := false
	if v := r.URL.Query().Get("force"); v != "" {
		force, err = strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "force must be a boolean")
			return
		}
	}

	out := s.Ingester.Ingest(r.Context(), ingest.Request{FundID: fundID, AsOf: asOf, Force: force})
	status := http.StatusOK
	switch out.State {
	case model.StatePromote:
		status = http.StatusCreated
	case model.StateReject:
		status = http.StatusUnprocessableEntity
	case model.StateFailed:
		status = http.StatusBadGateway
	}
	writeJSON(w, status, out)
}

func (s *server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.Runs == nil {
		writeError(w, http.StatusServiceUnavailable, "run ledger not configured")
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	runs, err := s.Runs.ListRuns(r.Context(), store.RunFilter{
		FundID: r.URL.Query().Get("fund"),
		Status: model.RunStatus(r.URL.Query().Get("status")),
		Limit:  limit,
	})
	if err != nil {
		zap.L().Error("list runs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list runs failed")
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.Health == nil {
		writeError(w, http.StatusServiceUnavailable, "health collector not configured")
		return
	}
	hours := 24
	if v := r.URL.Query().Get("hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "hours must be a positive integer")
			return
		}
		hours = n
	}

	snap, err := s.Health.Collect(r.Context(), hours)
	if err != nil {
		zap.L().Error("collect health failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "collect health failed")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
