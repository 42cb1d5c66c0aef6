package discovery

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/holdings-cli/internal/fetcher"
	"github.com/sells-group/holdings-cli/internal/model"
	"github.com/sells-group/holdings-cli/internal/reportdate"
)

type amfSearch struct {
	Records []struct {
		RecordID string    `json:"recordid"`
		Fields   amfFields `json:"fields"`
	} `json:"records"`
}

type amfFields struct {
	ISIN         string `json:"identificationsociete_iso_cd_isi"`
	URL          string `json:"url_de_recuperation"`
	Title        string `json:"informationdeposee_inf_tit_inf"`
	ShareName    string `json:"code_isin_nom_sc"`
	DateAMF      string `json:"uin_dat_amf"`
	DateMarket   string `json:"uin_dat_mar"`
	DateEmission string `json:"informationdeposee_inf_dat_emt"`
}

// AMF searches the French AMF BDIF open-data records for a share class.
type AMF struct {
	f       fetcher.Fetcher
	baseURL string
	dataset string
}

// NewAMF creates the AMF BDIF adapter.
func NewAMF(f fetcher.Fetcher, baseURL, dataset string) *AMF {
	return &AMF{f: f, baseURL: strings.TrimRight(baseURL, "/"), dataset: dataset}
}

// Source implements Adapter.
func (a *AMF) Source() model.SourceKind { return model.SourceAMFBDIF }

// queries returns the search strategies tried in order until one yields records.
func (a *AMF) queries(isin string) []string {
	q := []string{
		isin,
		"identificationsociete_iso_cd_isi:" + isin,
		`code_isin_nom_sc:"*` + isin + `*"`,
	}
	if len(isin) >= 9 {
		q = append(q, isin[:9])
	}
	return q
}

// Discover implements Adapter.
func (a *AMF) Discover(ctx context.Context, fund model.FundEntry, target time.Time) ([]model.DocumentDescriptor, error) {
	log := zap.L().With(zap.String("component", "discovery.amf"), zap.String("fund_id", fund.ID))

	var (
		lastErr  error
		answered bool
	)
	for _, q := range a.queries(fund.ShareClassISIN) {
		u := a.baseURL + "/api/records/1.0/search/?" + url.Values{
			"dataset": {a.dataset},
			"q":       {q},
			"rows":    {"100"},
		}.Encode()

		resp, err := a.f.Get(ctx, string(model.SourceAMFBDIF), u)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fetchError(model.SourceAMFBDIF, fund, err)
			}
			log.Debug("amf query failed", zap.String("query", q), zap.Error(err))
			lastErr = err
			continue
		}
		answered = true

		res, err := fetcher.DecodeJSON[amfSearch](resp.Body)
		if err != nil {
			lastErr = eris.Wrap(err, "amf_bdif: decode search")
			continue
		}
		if len(res.Records) == 0 {
			continue
		}

		var out []model.DocumentDescriptor
		for _, rec := range res.Records {
			f := rec.Fields
			if !strings.EqualFold(strings.TrimSpace(f.ISIN), fund.ShareClassISIN) || f.URL == "" {
				continue
			}
			published, ok := amfDate(f)
			if !ok {
				continue
			}
			title := f.Title
			if title == "" {
				title = f.ShareName
			}
			out = append(out, model.DocumentDescriptor{
				URI:           f.URL,
				PublishedDate: published,
				DocumentType:  documentTypeFromURL(f.URL),
				ReportType:    ReportType(title),
				Title:         title,
				Accession:     rec.RecordID,
			})
		}
		log.Debug("amf query matched", zap.String("query", q), zap.Int("records", len(res.Records)), zap.Int("kept", len(out)))
		return out, nil
	}

	if !answered && lastErr != nil {
		return nil, fetchError(model.SourceAMFBDIF, fund, lastErr)
	}
	return nil, nil
}

func amfDate(f amfFields) (time.Time, bool) {
	for _, s := range []string{f.DateAMF, f.DateMarket, f.DateEmission} {
		if t, ok := reportdate.ParseISO(s); ok {
			return t, true
		}
	}
	return time.Time{}, false
}
