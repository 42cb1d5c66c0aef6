package parser

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
	"golang.org/x/net/html"

	"github.com/sells-group/holdings-cli/internal/model"
)

const nportSample = `<?xml version="1.0" encoding="UTF-8"?>
<edgarSubmission xmlns="http://www.sec.gov/edgar/nport" xmlns:com="http://www.sec.gov/edgar/common">
  <headerData><submissionType>NPORT-P</submissionType></headerData>
  <formData>
    <genInfo>
      <regName>SPDR S&amp;P 500 ETF TRUST</regName>
      <seriesId>S000004310</seriesId>
      <repPdEnd>2024-09-30</repPdEnd>
      <repPdDate>2024-06-30</repPdDate>
    </genInfo>
    <invstOrSecs>
      <invstOrSec>
        <name>Apple Inc</name>
        <title>Apple Inc</title>
        <cusip>037833100</cusip>
        <identifiers><isin value="US0378331005"/></identifiers>
        <balance>1000.00</balance>
        <units>NS</units>
        <curCd>USD</curCd>
        <valUSD>190000.00</valUSD>
        <pctVal>6.5</pctVal>
        <payoffProfile>Long</payoffProfile>
        <assetCat>EC</assetCat>
        <issuerCat>CORP</issuerCat>
        <invCountry>US</invCountry>
      </invstOrSec>
      <invstOrSec>
        <name>XYZ Corp</name>
        <cusip>000000000</cusip>
        <identifiers><ticker value="xyz"/></identifiers>
        <balance>10</balance>
        <valUSD>500</valUSD>
        <pctVal>-0.01</pctVal>
        <payoffProfile>Short</payoffProfile>
        <assetCat>EC</assetCat>
      </invstOrSec>
      <invstOrSec>
        <name>S&amp;P 500 E-MINI SEP24</name>
        <cusip>N/A</cusip>
        <valUSD>-120.50</valUSD>
        <pctVal>0.00</pctVal>
        <assetCat>DE</assetCat>
        <derivativeInfo><futrDeriv derivCat="FUT"/></derivativeInfo>
      </invstOrSec>
      <invstOrSec>
        <name>N/A</name>
        <title>United States Treasury Bill</title>
        <valUSD>1000</valUSD>
        <assetCat>DBT</assetCat>
      </invstOrSec>
    </invstOrSecs>
  </formData>
</edgarSubmission>`

func input(typ model.DocumentType, body string) Input {
	return Input{
		Document: model.RawDocument{Hash: "abc123", DocumentType: typ},
		Body:     []byte(body),
		Fund:     model.FundEntry{ID: "test-fund"},
	}
}

func requireParseError(t *testing.T, err error, reason string) {
	t.Helper()
	var pe *model.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, reason, pe.Reason)
}

func TestNPORTParser(t *testing.T) {
	res, err := (&NPORTParser{}).Parse(context.Background(), input(model.DocNPORTXML, nportSample))
	require.NoError(t, err)

	assert.Equal(t, VersionNPORT, res.ParserVersion)
	assert.Equal(t, "S000004310", res.SeriesID)
	assert.Equal(t, time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC), res.AsOf)
	require.Len(t, res.Rows, 4)

	apple := res.Rows[0]
	assert.Equal(t, "Apple Inc", apple.Name)
	assert.Equal(t, "US0378331005", apple.ISIN)
	assert.Equal(t, "037833100", apple.CUSIP)
	assert.Equal(t, "USD", apple.Currency)
	assert.Equal(t, "190000", apple.MarketValue.Decimal.String())
	assert.Equal(t, "6.5", apple.ReportedWeight.Decimal.String())
	assert.Equal(t, "1000", apple.Quantity.Decimal.String())
	assert.Equal(t, "US", apple.CountryRaw)
	assert.Equal(t, "EC", apple.ClassRaw)
	assert.False(t, apple.Derivative)

	short := res.Rows[1]
	assert.Empty(t, short.CUSIP)
	assert.Equal(t, "XYZ", short.Ticker)
	assert.Equal(t, "-500", short.MarketValue.Decimal.String())

	fut := res.Rows[2]
	assert.True(t, fut.Derivative)
	assert.Equal(t, model.SectionDerivative, fut.Section)
	assert.Empty(t, fut.CUSIP)

	bill := res.Rows[3]
	assert.Equal(t, "United States Treasury Bill", bill.Name)
	assert.False(t, bill.Derivative)
}

func TestNPORTParser_SeriesMismatch(t *testing.T) {
	in := input(model.DocNPORTXML, nportSample)
	in.Fund.SeriesID = "S000099999"
	_, err := (&NPORTParser{}).Parse(context.Background(), in)
	requireParseError(t, err, "series mismatch")

	in.Fund.SeriesID = "s000004310"
	_, err = (&NPORTParser{}).Parse(context.Background(), in)
	assert.NoError(t, err)
}

func TestNPORTParser_Malformed(t *testing.T) {
	_, err := (&NPORTParser{}).Parse(context.Background(),
		input(model.DocNPORTXML, `<edgarSubmission><formData><genInfo><seriesId>S1</genInfo>`))
	requireParseError(t, err, "malformed N-PORT XML")
}

func TestHTMLParser_Table(t *testing.T) {
	body := `<html><head><title>Holdings</title><style>td { color: red }</style></head><body>
<p>Portfolio holdings as of 28 June 2024</p>
<table>
  <tr><th>Name</th><th>ISIN</th><th>Market Value</th><th>Weight (%)</th></tr>
  <tr><td>Apple Inc</td><td>US0378331005</td><td>190,000.00</td><td>60.00</td></tr>
  <tr><td>Microsoft Corp</td><td>US5949181045</td><td>100,000.00</td><td>40.00</td></tr>
</table>
</body></html>`

	res, err := (&HTMLParser{}).Parse(context.Background(), input(model.DocHTML, body))
	require.NoError(t, err)
	assert.Equal(t, VersionTabular, res.ParserVersion)
	assert.Equal(t, time.Date(2024, 6, 28, 0, 0, 0, 0, time.UTC), res.AsOf)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, "Microsoft Corp", res.Rows[1].Name)
	assert.Equal(t, "40", res.Rows[1].ReportedWeight.Decimal.String())
}

func TestHTMLParser_TextFallback(t *testing.T) {
	body := `<html><body><div>Apple Inc US0378331005 190,000.00 60.0</div></body></html>`

	res, err := (&HTMLParser{}).Parse(context.Background(), input(model.DocHTML, body))
	require.NoError(t, err)
	assert.Equal(t, VersionText, res.ParserVersion)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "Apple Inc", res.Rows[0].Name)
	assert.Equal(t, "190000", res.Rows[0].MarketValue.Decimal.String())
	assert.True(t, res.AsOf.IsZero())
}

func TestHTMLTables_Nested(t *testing.T) {
	doc, err := html.Parse(strings.NewReader(
		`<table><tr><td>outer</td><td><table><tr><td>inner</td></tr></table></td></tr><tr><td>outer2</td></tr></table>`))
	require.NoError(t, err)

	tables := HTMLTables(doc)
	require.Len(t, tables, 2)
	assert.Equal(t, [][]string{{"outer", "inner"}, {"outer2"}}, tables[0])
	assert.Equal(t, [][]string{{"inner"}}, tables[1])
}

func TestCSVParser_Semicolon(t *testing.T) {
	body := "Name;ISIN;Devise;Valeur de marché;Poids\n" +
		"Apple Inc;US0378331005;USD;190 000,50;60,5\n" +
		"LVMH;FR0000121014;EUR;90 000,00;39,5\n"

	res, err := (&CSVParser{}).Parse(context.Background(), input(model.DocCSV, body))
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, "190000.5", res.Rows[0].MarketValue.Decimal.String())
	assert.Equal(t, "EUR", res.Rows[1].Currency)
	assert.Equal(t, "39.5", res.Rows[1].ReportedWeight.Decimal.String())
}

func TestCSVParser_NoHeader(t *testing.T) {
	_, err := (&CSVParser{}).Parse(context.Background(), input(model.DocCSV, "a,b\n1,2\n"))
	requireParseError(t, err, "no holdings header found")
}

func workbook(t *testing.T, sheets map[string][][]string, order ...string) []byte {
	t.Helper()
	f := xlsx.NewFile()
	for _, name := range order {
		sheet, err := f.AddSheet(name)
		require.NoError(t, err)
		for _, cells := range sheets[name] {
			row := sheet.AddRow()
			for _, v := range cells {
				row.AddCell().SetString(v)
			}
		}
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return buf.Bytes()
}

func TestXLSXParser(t *testing.T) {
	data := workbook(t, map[string][][]string{
		"Notes": {{"Past performance is not a guide"}},
		"Holdings": {
			{"Fund holdings as of 30.06.2024"},
			{"Name", "ISIN", "Shares", "Market Value", "Weight"},
			{"Apple Inc", "US0378331005", "1000", "190000", "60"},
			{"Microsoft Corp", "US5949181045", "500", "126666.67", "40"},
		},
	}, "Notes", "Holdings")

	in := input(model.DocXLSX, "")
	in.Body = data
	res, err := (&XLSXParser{}).Parse(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC), res.AsOf)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, "126666.67", res.Rows[1].MarketValue.Decimal.String())
}

func TestXLSXParser_Errors(t *testing.T) {
	_, err := (&XLSXParser{}).Parse(context.Background(), input(model.DocXLSX, "not a workbook"))
	requireParseError(t, err, "unreadable workbook")

	in := input(model.DocXLSX, "")
	in.Body = workbook(t, map[string][][]string{"Notes": {{"nothing here"}}}, "Notes")
	_, err = (&XLSXParser{}).Parse(context.Background(), in)
	requireParseError(t, err, "no holdings table found")
}

type fakeExtractor struct {
	text string
	err  error
}

func (f *fakeExtractor) ExtractText(_ context.Context, _ []byte) (string, error) {
	return f.text, f.err
}

func TestPDFParser_ColumnLayout(t *testing.T) {
	text := `Annual report as at 31 December 2023

Statement of investments
Description        ISIN             Quantity      Market value     % of net assets
Equities
Apple Inc          US0378331005     1,000         190,000.00       6.50
Bonds
OAT 2030           FR0011550185     100           99,500.00        0.34
Total net assets                                  29,000,000.00    100.00`

	p := NewPDFParser(&fakeExtractor{text: text})
	res, err := p.Parse(context.Background(), input(model.DocPDF, "%PDF-1.7"))
	require.NoError(t, err)

	assert.Equal(t, VersionTabular, res.ParserVersion)
	assert.Equal(t, time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC), res.AsOf)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, model.SectionEquity, res.Rows[0].Section)
	assert.Equal(t, model.SectionBond, res.Rows[1].Section)
	assert.Equal(t, "99500", res.Rows[1].MarketValue.Decimal.String())
}

func TestPDFParser_ExtractorError(t *testing.T) {
	p := NewPDFParser(&fakeExtractor{err: errors.New("pdftotext: exit status 1")})
	_, err := p.Parse(context.Background(), input(model.DocPDF, "%PDF-1.7"))
	requireParseError(t, err, "pdf text extraction failed")
}

func TestTextParser(t *testing.T) {
	res, err := (&TextParser{}).Parse(context.Background(),
		input(model.DocText, "Apple Inc US0378331005 190000 60\nMicrosoft US5949181045 100000 40\n"))
	require.NoError(t, err)
	assert.Equal(t, VersionText, res.ParserVersion)
	assert.Len(t, res.Rows, 2)

	_, err = (&TextParser{}).Parse(context.Background(), input(model.DocText, "nothing to see here"))
	requireParseError(t, err, "no holdings table or ISIN lines found")
}

func TestStaticParser(t *testing.T) {
	body := `[{"name":"Apple Inc","isin":"us0378331005","weight_pct":60.5,"country":"US"},{"name":"Cash","weight_pct":39.5,"asset_class":"cash"}]`

	res, err := (&StaticParser{}).Parse(context.Background(), input(model.DocStatic, body))
	require.NoError(t, err)
	assert.Equal(t, VersionStatic, res.ParserVersion)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, "US0378331005", res.Rows[0].ISIN)
	assert.Equal(t, "60.5", res.Rows[0].ReportedWeight.Decimal.String())
	assert.Equal(t, "cash", res.Rows[1].ClassRaw)

	_, err = (&StaticParser{}).Parse(context.Background(), input(model.DocStatic, "{"))
	requireParseError(t, err, "malformed static holdings")
}

type emptyParser struct{}

func (emptyParser) Parse(context.Context, Input) (*Result, error) {
	return &Result{ParserVersion: "empty/1"}, nil
}

func TestSet_Parse(t *testing.T) {
	s := New(&fakeExtractor{})

	res, err := s.Parse(context.Background(), input(model.DocStatic, `[{"name":"Apple Inc","weight_pct":100}]`))
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "abc123", res.Rows[0].DocumentHash)

	_, err = s.Parse(context.Background(), input(model.DocumentType("zip"), ""))
	requireParseError(t, err, "no parser for document type")

	s.Register(model.DocCSV, emptyParser{})
	_, err = s.Parse(context.Background(), input(model.DocCSV, "Name,ISIN,Weight\n"))
	requireParseError(t, err, "no holdings found")
}
