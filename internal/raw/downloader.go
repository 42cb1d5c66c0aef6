package raw

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/holdings-cli/internal/fetcher"
	"github.com/sells-group/holdings-cli/internal/model"
	"github.com/sells-group/holdings-cli/internal/resilience"
)

// Downloader fetches discovery candidates into an Arena. Politeness and
// retries are the fetcher's job; the downloader validates, hashes, persists,
// and records failures.
type Downloader struct {
	fetcher fetcher.Fetcher
	arena   *Arena
	now     func() time.Time
}

// NewDownloader creates a Downloader writing into arena.
func NewDownloader(f fetcher.Fetcher, arena *Arena) *Downloader {
	return &Downloader{fetcher: f, arena: arena, now: time.Now}
}

// Arena returns the store the downloader writes to.
func (d *Downloader) Arena() *Arena { return d.arena }

// Download returns the RawDocument for desc. A URI already in the arena is
// returned without a network request. Failures are returned as
// *model.DownloadError and recorded in the arena's failure index.
func (d *Downloader) Download(ctx context.Context, desc model.DocumentDescriptor) (model.RawDocument, error) {
	log := zap.L().With(
		zap.String("component", "raw.downloader"),
		zap.String("fund_id", desc.FundID),
		zap.String("url", desc.URI),
	)

	if doc, ok, err := d.arena.LookupURI(desc.URI); err != nil {
		return model.RawDocument{}, eris.Wrap(err, "raw: url index lookup")
	} else if ok && desc.Inline == nil {
		log.Debug("document already stored", zap.String("hash", doc.Hash))
		doc.URI, doc.FundID = desc.URI, desc.FundID
		if !desc.PublishedDate.IsZero() {
			doc.DocumentDate = desc.PublishedDate
		}
		return doc, nil
	}

	var (
		body        []byte
		contentType string
		fetchedAt   = d.now().UTC()
		docType     = desc.DocumentType
	)

	if desc.Inline != nil {
		body = desc.Inline
		contentType = "application/json"
	} else {
		resp, err := d.fetcher.Get(ctx, string(desc.Source), desc.URI)
		if err != nil {
			return model.RawDocument{}, d.fail(desc, err)
		}
		body = resp.Body
		contentType = resp.ContentType
		fetchedAt = resp.FetchedAt

		if len(body) == 0 {
			return model.RawDocument{}, d.fail(desc, &fetcher.AttemptError{
				URL: desc.URI, Attempts: resp.Attempts,
				Err: resilience.NewPermanentError(eris.New("empty response body"), resp.StatusCode),
			})
		}
		sniffed := Sniff(body, contentType)
		if !compatible(desc.DocumentType, sniffed) {
			return model.RawDocument{}, d.fail(desc, &fetcher.AttemptError{
				URL: desc.URI, Attempts: resp.Attempts,
				Err: resilience.NewPermanentError(
					eris.Errorf("unexpected content type %q (sniffed %s, expected %s)", resp.MediaType(), sniffed, desc.DocumentType),
					resp.StatusCode),
			})
		}
		if desc.DocumentType == model.DocReport || desc.DocumentType == "" {
			docType = sniffed
		}
	}

	doc, created, err := d.arena.Put(model.RawDocument{
		URI:          desc.URI,
		FundID:       desc.FundID,
		Jurisdiction: desc.Jurisdiction,
		Source:       desc.Source,
		FetchedAt:    fetchedAt,
		DocumentDate: desc.PublishedDate,
		DocumentType: docType,
		ContentType:  contentType,
		Accession:    desc.Accession,
	}, body)
	if err != nil {
		return model.RawDocument{}, eris.Wrap(err, "raw: persist document")
	}

	log.Info("document stored",
		zap.String("hash", doc.Hash),
		zap.Int64("size", doc.Size),
		zap.String("document_type", string(doc.DocumentType)),
		zap.Bool("new", created),
	)
	return doc, nil
}

func (d *Downloader) fail(desc model.DocumentDescriptor, err error) error {
	attempts := 1
	var ae *fetcher.AttemptError
	if errors.As(err, &ae) && ae.Attempts > 0 {
		attempts = ae.Attempts
	}
	derr := &model.DownloadError{
		URI:        desc.URI,
		StatusCode: resilience.StatusCode(err),
		Attempts:   attempts,
		Permanent:  resilience.IsPermanent(err),
		Err:        err,
	}

	if rerr := d.arena.RecordFailure(model.FetchFailure{
		URI:        desc.URI,
		FundID:     desc.FundID,
		Source:     desc.Source,
		Attempts:   derr.Attempts,
		StatusCode: derr.StatusCode,
		Error:      err.Error(),
		FailedAt:   d.now().UTC(),
	}); rerr != nil {
		zap.L().Warn("raw: could not record fetch failure", zap.String("url", desc.URI), zap.Error(rerr))
	}

	zap.L().Warn("download failed",
		zap.String("component", "raw.downloader"),
		zap.String("fund_id", desc.FundID),
		zap.String("url", desc.URI),
		zap.Int("attempts", derr.Attempts),
		zap.Int("status", derr.StatusCode),
		zap.Bool("permanent", derr.Permanent),
	)
	return derr
}
