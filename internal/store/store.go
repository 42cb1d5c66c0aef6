// Package store persists the ingestion run ledger, the registry mirror and the
// persistent resolution cache on SQLite or Postgres.
package store

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/holdings-cli/internal/config"
	"github.com/sells-group/holdings-cli/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	FundID string          `json:"fund_id,omitempty"`
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// CacheEntry is one persisted resolution result.
type CacheEntry struct {
	Key       string    `json:"key"`
	Ticker    string    `json:"ticker"`
	Source    string    `json:"source"`
	Payload   []byte    `json:"payload"`
	CachedAt  time.Time `json:"cached_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Store defines the persistence interface for ingestion runs and the
// resolution cache.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, fundID string, force bool) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	CompleteRun(ctx context.Context, runID string, outcome *model.IngestOutcome) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Phases
	CreatePhase(ctx context.Context, runID string, name string) (*model.RunPhase, error)
	CompletePhase(ctx context.Context, phaseID string, result *model.PhaseResult) error
	ListPhases(ctx context.Context, runID string) ([]model.RunPhase, error)

	// Registry mirror
	SyncFunds(ctx context.Context, funds []model.FundEntry) (int64, error)

	// Resolution cache
	GetCachedResolution(ctx context.Context, key string) (*CacheEntry, error)
	SetCachedResolution(ctx context.Context, entry CacheEntry, ttl time.Duration) error
	DeleteExpiredResolutions(ctx context.Context) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open connects to the configured backend and applies migrations.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	var (
		s   Store
		err error
	)
	switch cfg.Driver {
	case "postgres":
		s, err = NewPostgres(ctx, cfg.DatabaseURL, &PoolConfig{MaxConns: cfg.MaxConns, MinConns: cfg.MinConns})
	case "sqlite", "":
		s, err = NewSQLite(cfg.DSN)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// runStatusFor maps a terminal orchestrator state onto the ledger status.
func runStatusFor(outcome *model.IngestOutcome) model.RunStatus {
	if outcome != nil && outcome.State == model.StateFailed {
		return model.RunStatusFailed
	}
	return model.RunStatusComplete
}

// fundRecord is the row shape of the funds mirror table.
type fundRecord struct {
	ID           string
	Name         string
	Jurisdiction string
	Source       string
	Tickers      string
	Freshness    int64
	Entry        []byte
}

func newFundRecord(f model.FundEntry) (fundRecord, error) {
	entry, err := json.Marshal(f)
	if err != nil {
		return fundRecord{}, eris.Wrapf(err, "store: marshal fund %s", f.ID)
	}
	return fundRecord{
		ID:           f.ID,
		Name:         f.Name,
		Jurisdiction: string(f.Jurisdiction),
		Source:       string(f.Source),
		Tickers:      strings.Join(f.Tickers, ","),
		Freshness:    int64(f.Freshness / time.Second),
		Entry:        entry,
	}, nil
}
