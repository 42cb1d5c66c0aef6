package parser

import (
	"bytes"
	"context"
	"encoding/xml"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/holdings-cli/internal/fetcher"
	"github.com/sells-group/holdings-cli/internal/ident"
	"github.com/sells-group/holdings-cli/internal/model"
	"github.com/sells-group/holdings-cli/internal/reportdate"
)

type nportValueAttr struct {
	Value string `xml:"value,attr"`
}

type nportGenInfo struct {
	SeriesID     string `xml:"seriesId"`
	RepPdDate    string `xml:"repPdDate"`
	RepPdEnd     string `xml:"repPdEnd"`
	ReportPeriod string `xml:"reportingPeriodEndDate"`
}

type nportHolding struct {
	Name        string `xml:"name"`
	Title       string `xml:"title"`
	CUSIP       string `xml:"cusip"`
	Identifiers struct {
		ISIN   *nportValueAttr `xml:"isin"`
		Ticker *nportValueAttr `xml:"ticker"`
	} `xml:"identifiers"`
	Balance             string `xml:"balance"`
	Units               string `xml:"units"`
	CurCd               string `xml:"curCd"`
	CurrencyConditional struct {
		CurCd string `xml:"curCd,attr"`
	} `xml:"currencyConditional"`
	ValUSD           string `xml:"valUSD"`
	PctVal           string `xml:"pctVal"`
	PayoffProfile    string `xml:"payoffProfile"`
	AssetCat         string `xml:"assetCat"`
	AssetConditional struct {
		Desc string `xml:"desc,attr"`
	} `xml:"assetConditional"`
	IssuerCat      string `xml:"issuerCat"`
	InvCountry     string `xml:"invCountry"`
	DerivativeInfo *struct {
		Raw string `xml:",innerxml"`
	} `xml:"derivativeInfo"`
}

// NPORTParser reads SEC Form N-PORT XML. Elements are matched by local name
// so namespace prefixes used by different filer agents do not matter.
type NPORTParser struct{}

// Parse implements Parser.
func (p *NPORTParser) Parse(ctx context.Context, in Input) (*Result, error) {
	res := &Result{ParserVersion: VersionNPORT}
	var gen nportGenInfo

	err := fetcher.WalkXML(ctx, bytes.NewReader(in.Body), func(d *xml.Decoder, se xml.StartElement) error {
		switch se.Name.Local {
		case "genInfo":
			if err := d.DecodeElement(&gen, &se); err != nil {
				return eris.Wrap(err, "nport: decode genInfo")
			}
		case "invstOrSec":
			var h nportHolding
			if err := d.DecodeElement(&h, &se); err != nil {
				return eris.Wrap(err, "nport: decode invstOrSec")
			}
			if row, ok := h.silver(); ok {
				res.Rows = append(res.Rows, row)
			}
		}
		return nil
	})
	if err != nil {
		return nil, parseError(in, "malformed N-PORT XML", err)
	}

	res.SeriesID = strings.TrimSpace(gen.SeriesID)
	if hint := in.Fund.SeriesID; hint != "" && res.SeriesID != "" && !strings.EqualFold(hint, res.SeriesID) {
		return nil, parseError(in, "series mismatch", eris.Errorf("filing is for series %s, registry expects %s", res.SeriesID, hint))
	}

	for _, s := range []string{gen.RepPdDate, gen.ReportPeriod, gen.RepPdEnd} {
		if t, ok := reportdate.ParseISO(s); ok {
			res.AsOf = t
			break
		}
	}
	return res, nil
}

func (h *nportHolding) silver() (model.SilverRow, bool) {
	name := strings.TrimSpace(h.Name)
	if name == "" || strings.EqualFold(name, "N/A") {
		name = strings.TrimSpace(h.Title)
	}
	if name == "" {
		return model.SilverRow{}, false
	}

	row := model.SilverRow{
		Name:     name,
		CUSIP:    ident.Clean(h.CUSIP),
		Quantity: ParseNumber(h.Balance),
		RawValue: strings.TrimSpace(h.ValUSD),
		// valUSD is always reported in US dollars whatever the local currency.
		Currency:       "USD",
		ReportedWeight: ParseNumber(h.PctVal),
		CountryRaw:     strings.TrimSpace(h.InvCountry),
		ClassRaw:       strings.TrimSpace(h.AssetCat),
	}
	row.MarketValue = ParseNumber(h.ValUSD)
	if row.CUSIP == "000000000" || strings.EqualFold(row.CUSIP, "N/A") {
		row.CUSIP = ""
	}
	if h.Identifiers.ISIN != nil {
		row.ISIN = ident.Clean(h.Identifiers.ISIN.Value)
	}
	if h.Identifiers.Ticker != nil {
		row.Ticker = strings.ToUpper(strings.TrimSpace(h.Identifiers.Ticker.Value))
	}
	if row.ClassRaw == "" {
		row.ClassRaw = strings.TrimSpace(h.AssetConditional.Desc)
	}

	cat := strings.ToUpper(row.ClassRaw)
	row.Derivative = h.DerivativeInfo != nil || (strings.HasPrefix(cat, "D") && cat != "DBT")
	if row.Derivative {
		row.Section = model.SectionDerivative
	}

	if strings.EqualFold(h.PayoffProfile, "Short") && row.MarketValue.Valid && row.MarketValue.Decimal.IsPositive() {
		row.MarketValue.Decimal = row.MarketValue.Decimal.Neg()
	}
	return row, true
}
