package discovery

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/holdings-cli/internal/fetcher"
	"github.com/sells-group/holdings-cli/internal/model"
	"github.com/sells-group/holdings-cli/internal/reportdate"
)

var germanPeriodicKeywords = []string{"jahresbericht", "halbjahresbericht", "annual", "half-yearly"}

type fondsReports struct {
	Reports []struct {
		Title           string `json:"title"`
		DownloadURL     string `json:"downloadUrl"`
		Date            string `json:"date"`
		PublicationDate string `json:"publicationDate"`
	} `json:"reports"`
}

// Bundesanzeiger lists German fund reports published in the Bundesanzeiger
// Fondsdaten section.
type Bundesanzeiger struct {
	f       fetcher.Fetcher
	baseURL string
}

// NewBundesanzeiger creates the Bundesanzeiger adapter.
func NewBundesanzeiger(f fetcher.Fetcher, baseURL string) *Bundesanzeiger {
	return &Bundesanzeiger{f: f, baseURL: strings.TrimRight(baseURL, "/")}
}

// Source implements Adapter.
func (b *Bundesanzeiger) Source() model.SourceKind { return model.SourceBundesanzeiger }

// Discover implements Adapter.
func (b *Bundesanzeiger) Discover(ctx context.Context, fund model.FundEntry, target time.Time) ([]model.DocumentDescriptor, error) {
	u := b.baseURL + "/pub/de/fondsdaten/reports?" + url.Values{"isin": {fund.ShareClassISIN}}.Encode()
	resp, err := b.f.Get(ctx, string(model.SourceBundesanzeiger), u)
	if err != nil {
		return nil, fetchError(model.SourceBundesanzeiger, fund, err)
	}

	meta, err := fetcher.DecodeJSON[fondsReports](resp.Body)
	if err != nil {
		return nil, &model.DiscoveryError{
			Source: model.SourceBundesanzeiger, FundID: fund.ID,
			Reason: "malformed report list", Err: eris.Wrap(err, "bundesanzeiger: decode reports"),
		}
	}

	var out []model.DocumentDescriptor
	for _, rep := range meta.Reports {
		title := strings.TrimSpace(rep.Title)
		if rep.DownloadURL == "" || !containsAny(strings.ToLower(title), germanPeriodicKeywords) {
			continue
		}

		published, ok := reportdate.Extract(title, target)
		if !ok {
			for _, s := range []string{rep.Date, rep.PublicationDate} {
				if published, ok = reportdate.ParseISO(s); ok {
					break
				}
				if published, ok = reportdate.Extract(s, time.Time{}); ok {
					break
				}
			}
		}
		if !ok {
			continue
		}

		out = append(out, model.DocumentDescriptor{
			URI:           rep.DownloadURL,
			PublishedDate: published,
			DocumentType:  documentTypeFromURL(rep.DownloadURL),
			ReportType:    ReportType(title),
			Title:         title,
		})
	}
	return out, nil
}
