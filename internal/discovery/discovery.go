// Package discovery enumerates candidate holdings documents for a fund. Each
// source tag has one Adapter; Set dispatches on the registry entry's tag.
package discovery

import (
	"context"
	"errors"
	"net/http"
	"path"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/holdings-cli/internal/config"
	"github.com/sells-group/holdings-cli/internal/fetcher"
	"github.com/sells-group/holdings-cli/internal/model"
	"github.com/sells-group/holdings-cli/internal/resilience"
)

// Adapter lists candidate documents for one source without fetching their
// bodies. A fund with no published reports yields an empty slice; an
// unreachable source or an unknown fund yields a *model.DiscoveryError.
type Adapter interface {
	Source() model.SourceKind
	Discover(ctx context.Context, fund model.FundEntry, target time.Time) ([]model.DocumentDescriptor, error)
}

// Set dispatches discovery to the adapter registered for a fund's source tag.
type Set struct {
	adapters map[model.SourceKind]Adapter
}

// NewSet registers adapters by their source tag. A later adapter replaces an
// earlier one with the same tag.
func NewSet(adapters ...Adapter) *Set {
	s := &Set{adapters: make(map[model.SourceKind]Adapter, len(adapters))}
	for _, a := range adapters {
		s.adapters[a.Source()] = a
	}
	return s
}

// New builds the full adapter set against the configured portals.
func New(f fetcher.Fetcher, cfg config.DiscoveryConfig) *Set {
	return NewSet(
		NewSECNPORT(f, cfg.SECDataURL, cfg.SECArchiveURL),
		NewLuxSE(f, cfg.LuxSEURL),
		NewBundesanzeiger(f, cfg.BundesanzeigerURL),
		NewAMF(f, cfg.AMFURL, cfg.AMFDataset),
		NewStatic(),
	)
}

// Discover returns the fund's candidates ordered for the target date (zero
// for "latest").
func (s *Set) Discover(ctx context.Context, fund model.FundEntry, target time.Time) ([]model.DocumentDescriptor, error) {
	a, ok := s.adapters[fund.Source]
	if !ok {
		return nil, &model.DiscoveryError{Source: fund.Source, FundID: fund.ID, Reason: "no adapter for source"}
	}

	log := zap.L().With(zap.String("component", "discovery"), zap.String("fund_id", fund.ID), zap.String("source", string(fund.Source)))

	cands, err := a.Discover(ctx, fund, target)
	if err != nil {
		var de *model.DiscoveryError
		if !errors.As(err, &de) {
			err = &model.DiscoveryError{Source: fund.Source, FundID: fund.ID, Reason: "source unreachable", Err: err}
		}
		log.Warn("discovery failed", zap.Error(err))
		return nil, err
	}

	for i := range cands {
		cands[i].FundID = fund.ID
		cands[i].Source = fund.Source
		cands[i].Jurisdiction = fund.Jurisdiction
	}
	Order(cands, target)

	log.Info("discovered candidates", zap.Int("count", len(cands)))
	return cands, nil
}

// Order sorts candidates newest first, or by distance to target when one is
// given (ties newest first).
func Order(cands []model.DocumentDescriptor, target time.Time) {
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i].PublishedDate, cands[j].PublishedDate
		if !target.IsZero() {
			da, db := absDuration(a.Sub(target)), absDuration(b.Sub(target))
			if da != db {
				return da < db
			}
		}
		return a.After(b)
	})
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// fetchError converts a fetch failure into a DiscoveryError. A 404 means
// the source does not know the fund.
func fetchError(source model.SourceKind, fund model.FundEntry, err error) error {
	reason := "source unreachable"
	if resilience.StatusCode(err) == http.StatusNotFound {
		reason = "fund not recognised by source"
	}
	return &model.DiscoveryError{Source: source, FundID: fund.ID, Reason: reason, Err: err}
}

// documentTypeFromURL guesses the document type from a URL's extension;
// unknown extensions are sniffed after download.
func documentTypeFromURL(u string) model.DocumentType {
	switch ext := lowerExt(u); ext {
	case ".pdf":
		return model.DocPDF
	case ".xlsx", ".xls":
		return model.DocXLSX
	case ".csv":
		return model.DocCSV
	case ".htm", ".html":
		return model.DocHTML
	case ".xml":
		return model.DocNPORTXML
	default:
		return model.DocReport
	}
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func lowerExt(u string) string {
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	return strings.ToLower(path.Ext(u))
}
