package gold

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/sells-group/holdings-cli/internal/model"
)

var silverHeader = []string{
	"name", "isin", "cusip", "ticker", "quantity", "market_value", "reported_weight", "raw_value",
	"currency", "country_raw", "sector_raw", "class_raw", "section", "derivative", "document_hash",
}

var goldHeader = append(append([]string{}, silverHeader...),
	"primary_id", "id_resolved", "weight_pct", "short", "country", "sector", "asset_class",
	"reporting_value", "reporting_currency", "fx_rate", "fx_as_of", "source_uri", "parser_version", "enrichment_version",
)

func silverRecord(r model.SilverRow) []string {
	return []string{
		r.Name, r.ISIN, r.CUSIP, r.Ticker,
		nullString(r.Quantity), nullString(r.MarketValue), nullString(r.ReportedWeight), r.RawValue,
		r.Currency, r.CountryRaw, r.SectorRaw, r.ClassRaw, string(r.Section),
		strconv.FormatBool(r.Derivative), r.DocumentHash,
	}
}

func goldRecord(r model.GoldRow) []string {
	fxAsOf := ""
	if !r.FXAsOf.IsZero() {
		fxAsOf = r.FXAsOf.UTC().Format(time.RFC3339)
	}
	return append(silverRecord(r.SilverRow),
		r.PrimaryID, strconv.FormatBool(r.IDResolved),
		strconv.FormatFloat(r.WeightPct, 'f', -1, 64), strconv.FormatBool(r.Short),
		r.Country, r.Sector, r.AssetClass,
		nullString(r.ReportingValue), r.ReportingCurrency, nullString(r.FXRate), fxAsOf,
		r.SourceURI, r.ParserVersion, r.EnrichmentVersion,
	)
}

func writeCSV(w io.Writer, header []string, records [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return eris.Wrap(err, "gold: write header")
	}
	if err := cw.WriteAll(records); err != nil {
		return eris.Wrap(err, "gold: write rows")
	}
	return nil
}

// readGoldCSV decodes holdings.csv. Columns are located by header name so
// files written by older versions with fewer columns still load.
func readGoldCSV(r io.Reader) ([]model.GoldRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "gold: read holdings csv")
	}
	if len(records) == 0 {
		return nil, eris.New("gold: holdings csv has no header")
	}

	idx := make(map[string]int, len(records[0]))
	for i, h := range records[0] {
		idx[h] = i
	}
	rows := make([]model.GoldRow, 0, len(records)-1)
	for n, rec := range records[1:] {
		get := func(col string) string {
			if i, ok := idx[col]; ok && i < len(rec) {
				return rec[i]
			}
			return ""
		}
		row, err := decodeGold(get)
		if err != nil {
			return nil, eris.Wrapf(err, "gold: row %d", n+1)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func decodeGold(get func(string) string) (model.GoldRow, error) {
	var (
		r   model.GoldRow
		err error
	)
	r.Name, r.ISIN, r.CUSIP, r.Ticker = get("name"), get("isin"), get("cusip"), get("ticker")
	r.RawValue, r.Currency = get("raw_value"), get("currency")
	r.CountryRaw, r.SectorRaw, r.ClassRaw = get("country_raw"), get("sector_raw"), get("class_raw")
	r.Section = model.Section(get("section"))
	r.DocumentHash = get("document_hash")
	r.PrimaryID = get("primary_id")
	r.Country, r.Sector, r.AssetClass = get("country"), get("sector"), get("asset_class")
	r.ReportingCurrency = get("reporting_currency")
	r.SourceURI, r.ParserVersion, r.EnrichmentVersion = get("source_uri"), get("parser_version"), get("enrichment_version")
	r.Derivative = get("derivative") == "true"
	r.IDResolved = get("id_resolved") == "true"
	r.Short = get("short") == "true"

	for col, dst := range map[string]*decimal.NullDecimal{
		"quantity": &r.Quantity, "market_value": &r.MarketValue, "reported_weight": &r.ReportedWeight,
		"reporting_value": &r.ReportingValue, "fx_rate": &r.FXRate,
	} {
		if *dst, err = parseNull(get(col)); err != nil {
			return r, eris.Wrapf(err, "column %s", col)
		}
	}
	if w := get("weight_pct"); w != "" {
		if r.WeightPct, err = strconv.ParseFloat(w, 64); err != nil {
			return r, eris.Wrap(err, "column weight_pct")
		}
	}
	if ts := get("fx_as_of"); ts != "" {
		if r.FXAsOf, err = time.Parse(time.RFC3339, ts); err != nil {
			return r, eris.Wrap(err, "column fx_as_of")
		}
	}
	return r, nil
}

func nullString(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.String()
}

func parseNull(s string) (decimal.NullDecimal, error) {
	if s == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}
