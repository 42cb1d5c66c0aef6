package discovery

import (
	"context"
	"path"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/holdings-cli/internal/fetcher"
	"github.com/sells-group/holdings-cli/internal/model"
	"github.com/sells-group/holdings-cli/internal/reportdate"
)

var nportForms = map[string]bool{"NPORT-P": true, "NPORT-EX": true}

type submissions struct {
	Name    string `json:"name"`
	Filings struct {
		Recent struct {
			Form            []string `json:"form"`
			AccessionNumber []string `json:"accessionNumber"`
			FilingDate      []string `json:"filingDate"`
			ReportDate      []string `json:"reportDate"`
			PrimaryDocument []string `json:"primaryDocument"`
		} `json:"recent"`
	} `json:"filings"`
}

// SECNPORT lists N-PORT filings from the EDGAR submissions index.
type SECNPORT struct {
	f          fetcher.Fetcher
	dataURL    string
	archiveURL string
}

// NewSECNPORT creates the EDGAR adapter.
func NewSECNPORT(f fetcher.Fetcher, dataURL, archiveURL string) *SECNPORT {
	return &SECNPORT{
		f:          f,
		dataURL:    strings.TrimRight(dataURL, "/"),
		archiveURL: strings.TrimRight(archiveURL, "/"),
	}
}

// Source implements Adapter.
func (s *SECNPORT) Source() model.SourceKind { return model.SourceSECNPORT }

// Discover implements Adapter. With a target date only filings made on or
// after it are kept, since a period's N-PORT is filed after the period ends.
// Candidates are dated by report period, falling back to the filing date.
func (s *SECNPORT) Discover(ctx context.Context, fund model.FundEntry, target time.Time) ([]model.DocumentDescriptor, error) {
	url := s.dataURL + "/submissions/CIK" + fund.PaddedCIK() + ".json"
	resp, err := s.f.Get(ctx, string(model.SourceSECNPORT), url)
	if err != nil {
		return nil, fetchError(model.SourceSECNPORT, fund, err)
	}

	subs, err := fetcher.DecodeJSON[submissions](resp.Body)
	if err != nil {
		return nil, &model.DiscoveryError{
			Source: model.SourceSECNPORT, FundID: fund.ID,
			Reason: "malformed submissions index", Err: eris.Wrap(err, "sec_nport: decode submissions"),
		}
	}

	recent := subs.Filings.Recent
	cik := strings.TrimLeft(fund.PaddedCIK(), "0")

	var out []model.DocumentDescriptor
	for i, form := range recent.Form {
		if !nportForms[form] {
			continue
		}
		accession := at(recent.AccessionNumber, i)
		filed, ok := reportdate.ParseISO(at(recent.FilingDate, i))
		primary := at(recent.PrimaryDocument, i)
		if accession == "" || !ok || primary == "" {
			continue
		}
		if !target.IsZero() && filed.Before(target) {
			continue
		}

		published := filed
		if rd, ok := reportdate.ParseISO(at(recent.ReportDate, i)); ok {
			published = rd
		}

		// primaryDocument usually points at the XSL rendering
		// (xslFormNPORT-P_X01/primary_doc.xml); the raw XML sits beside it.
		doc := path.Base(primary)
		out = append(out, model.DocumentDescriptor{
			URI:           s.archiveURL + "/Archives/edgar/data/" + cik + "/" + strings.ReplaceAll(accession, "-", "") + "/" + doc,
			PublishedDate: published,
			DocumentType:  model.DocNPORTXML,
			ReportType:    form,
			Title:         strings.TrimSpace(subs.Name + " " + form + " " + at(recent.ReportDate, i)),
			Accession:     accession,
		})
	}
	return out, nil
}

func at(s []string, i int) string {
	if i < len(s) {
		return strings.TrimSpace(s[i])
	}
	return ""
}
