package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/holdings-cli/internal/model"
)

func TestFold(t *testing.T) {
	assert.Equal(t, "quantite", fold(" Quantité "))
	assert.Equal(t, "wahrung", fold("Währung"))
	assert.Equal(t, "% de l'actif net", fold("%  de l'Actif   Net"))
}

func TestParseTable_FrenchMultiSection(t *testing.T) {
	table := [][]string{
		{"Inventaire du portefeuille au 30 juin 2024"},
		{},
		{"Désignation", "Code ISIN", "Quantité", "Devise", "Valeur d'évaluation", "% Actif Net"},
		{"Actions"},
		{"APPLE INC", "US0378331005", "1 000", "USD", "190 000,00", "6,50"},
		{"MICROSOFT CORP", "US5949181045", "500", "USD", "210 000,00", "7,20"},
		{"Sous-total actions", "", "", "", "400 000,00", "13,70"},
		{"Obligations"},
		{"OAT 2030", "FR0011550185", "100", "EUR", "n/a", "1,00"},
		{"Instruments dérivés"},
		{"FUT S&P500 SEP24", "", "2", "USD", "(1 500,00)", "-0,05"},
		{"Total actif net", "", "", "", "2 900 000,00", "100,00"},
	}

	rows, ok := ParseTable(table)
	require.True(t, ok)
	require.Len(t, rows, 4)

	apple := rows[0]
	assert.Equal(t, "APPLE INC", apple.Name)
	assert.Equal(t, "US0378331005", apple.ISIN)
	assert.Equal(t, "USD", apple.Currency)
	assert.Equal(t, "1000", apple.Quantity.Decimal.String())
	assert.Equal(t, "190000", apple.MarketValue.Decimal.String())
	assert.Equal(t, "6.5", apple.ReportedWeight.Decimal.String())
	assert.Equal(t, model.SectionEquity, apple.Section)

	oat := rows[2]
	assert.Equal(t, model.SectionBond, oat.Section)
	assert.False(t, oat.MarketValue.Valid, "unparseable value stays null")
	assert.Equal(t, "n/a", oat.RawValue)

	fut := rows[3]
	assert.Equal(t, model.SectionDerivative, fut.Section)
	assert.True(t, fut.Derivative)
	assert.Equal(t, "-1500", fut.MarketValue.Decimal.String())
}

func TestParseTable_GermanHeader(t *testing.T) {
	table := [][]string{
		{"Wertpapierbezeichnung", "ISIN", "Stück", "Währung", "Kurswert in EUR", "Anteil am Fondsvermögen in %"},
		{"SAP SE", "DE0007164600", "1.000", "EUR", "180.000,00", "4,10"},
		{"Summe Wertpapiervermögen", "", "", "", "4.390.000,00", "100,00"},
	}
	rows, ok := ParseTable(table)
	require.True(t, ok)
	require.Len(t, rows, 1)
	assert.Equal(t, "SAP SE", rows[0].Name)
	assert.Equal(t, "180000", rows[0].MarketValue.Decimal.String())
	assert.Equal(t, "4.1", rows[0].ReportedWeight.Decimal.String())
}

func TestParseTable_NoHeader(t *testing.T) {
	_, ok := ParseTable([][]string{{"a", "b"}, {"1", "2"}})
	assert.False(t, ok)
}

func TestParseTable_RepeatedHeaderAndISINScan(t *testing.T) {
	table := [][]string{
		{"Security", "Shares", "Market Value", "Weight"},
		{"Apple Inc (US0378331005)", "1,000", "190,000.00", "60.0"},
		{"Security", "Shares", "Market Value", "Weight"},
		{"TotalEnergies SE", "10", "600.00", "40.0"},
	}
	rows, ok := ParseTable(table)
	require.True(t, ok)
	require.Len(t, rows, 2)
	assert.Equal(t, "US0378331005", rows[0].ISIN)
	assert.Equal(t, "TotalEnergies SE", rows[1].Name)
}

func TestParseLongTable_HeaderAfterNarrative(t *testing.T) {
	var table [][]string
	for i := 0; i < 15; i++ {
		table = append(table, []string{"Narrative paragraph", "with columns"})
	}
	table = append(table,
		[]string{"Description", "Quantity", "Market Value", "% of Net Assets"},
		[]string{"Apple Inc", "1,000", "190,000.00", "6.5"},
	)

	_, ok := ParseTable(table)
	assert.False(t, ok)

	rows, ok := ParseLongTable(table)
	require.True(t, ok)
	require.Len(t, rows, 1)
	assert.Equal(t, "Apple Inc", rows[0].Name)
}

func TestParseText(t *testing.T) {
	text := `Statement of Investments
Equities
APPLE INC  US0378331005  1,000  190,000.00  6.50
MICROSOFT CORP  US5949181045  USD  210,000.00  7.20
ISHARES CORE MSCI WORLD
IE00B4L5Y983  5,000.00
Bonds
Not an ISIN US0000000000 100`

	rows := ParseText(text)
	require.Len(t, rows, 3)

	assert.Equal(t, "APPLE INC", rows[0].Name)
	assert.Equal(t, "1000", rows[0].Quantity.Decimal.String())
	assert.Equal(t, "190000", rows[0].MarketValue.Decimal.String())
	assert.Equal(t, "6.5", rows[0].ReportedWeight.Decimal.String())
	assert.Equal(t, model.SectionEquity, rows[0].Section)

	assert.Equal(t, "USD", rows[1].Currency)
	assert.False(t, rows[1].Quantity.Valid)
	assert.Equal(t, "210000", rows[1].MarketValue.Decimal.String())
	assert.Equal(t, "7.2", rows[1].ReportedWeight.Decimal.String())

	assert.Equal(t, "ISHARES CORE MSCI WORLD", rows[2].Name)
	assert.Equal(t, "IE00B4L5Y983", rows[2].ISIN)
	assert.Equal(t, "5000", rows[2].MarketValue.Decimal.String())
}

func TestSplitColumns(t *testing.T) {
	got := SplitColumns("  Apple Inc    US0378331005   1 000,00\n\n\tTotal\t5")
	assert.Equal(t, [][]string{{"Apple Inc", "US0378331005", "1 000,00"}, {"Total", "5"}}, got)
}
