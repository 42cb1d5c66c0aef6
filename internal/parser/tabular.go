package parser

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/holdings-cli/internal/ident"
	"github.com/sells-group/holdings-cli/internal/model"
)

type column int

const (
	colName column = iota
	colISIN
	colCUSIP
	colTicker
	colQuantity
	colValue
	colWeight
	colCurrency
	colCountry
	colSector
	colClass
	numColumns
)

// headerKeywords are matched against accent-folded, lower-cased header cells.
// The longest matching keyword decides a cell's column.
var headerKeywords = [numColumns][]string{
	colName:     {"name", "designation", "bezeichnung", "security", "description", "instrument", "libelle", "wertpapier", "issuer", "emetteur"},
	colISIN:     {"isin"},
	colCUSIP:    {"cusip"},
	colTicker:   {"ticker", "symbol"},
	colQuantity: {"quantity", "quantite", "nominal", "shares", "anzahl", "units", "stuck", "bestand", "face value"},
	colValue:    {"market value", "valeur", "kurswert", "value", "evaluation", "fair value", "marktwert", "montant", "amount"},
	colWeight:   {"weight", "% net assets", "% of net assets", "% actif net", "% de l'actif net", "anteil", "poids", "%", "in %"},
	colCurrency: {"currency", "devise", "wahrung", "ccy"},
	colCountry:  {"country", "pays", "land"},
	colSector:   {"sector", "secteur", "branche", "industry"},
	colClass:    {"asset class", "category", "categorie", "class", "type"},
}

var sectionKeywords = []struct {
	section  model.Section
	keywords []string
}{
	{model.SectionDerivative, []string{"derivative", "futures", "swap", "forward", "options", "derives", "derivate"}},
	{model.SectionCash, []string{"cash", "liquidites", "bankguthaben", "deposits"}},
	{model.SectionBond, []string{"bond", "obligations", "renten", "anleihen", "fixed income"}},
	{model.SectionFund, []string{"investment funds", "fonds", "investmentanteile", "ucits", "collective investment"}},
	{model.SectionEquity, []string{"equit", "shares", "actions", "aktien"}},
}

var totalKeywords = []string{"total", "sous-total", "subtotal", "sub-total", "summe", "gesamt", "net assets", "actif net"}

const (
	headerScanRows = 10
	minHeaderHits  = 3
)

// fold lower-cases s, strips accents, and collapses whitespace.
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.Join(strings.Fields(strings.ToLower(out)), " ")
}

// classifyHeader returns the column a header cell names and how long the
// matching keyword was.
func classifyHeader(cell string) (column, int) {
	best, bestLen := numColumns, 0
	for col := column(0); col < numColumns; col++ {
		for _, kw := range headerKeywords[col] {
			if len(kw) > bestLen && strings.Contains(cell, kw) {
				best, bestLen = col, len(kw)
			}
		}
	}
	return best, bestLen
}

// headerMapping maps each column to its cell index, or -1. hits counts the
// distinct columns found.
func headerMapping(row []string) (mapping [numColumns]int, hits int) {
	for i := range mapping {
		mapping[i] = -1
	}
	for i, cell := range row {
		f := fold(cell)
		if f == "" {
			continue
		}
		col, n := classifyHeader(f)
		if n == 0 || mapping[col] >= 0 {
			continue
		}
		mapping[col] = i
		hits++
	}
	return mapping, hits
}

// findHeader returns the index of the best header row among the first
// limit rows of a table, or -1 when none has enough keyword hits. With
// first set, the earliest qualifying row wins.
func findHeader(table [][]string, limit int, first bool) (int, [numColumns]int) {
	bestIdx, bestHits := -1, 0
	var bestMap [numColumns]int
	for i := 0; i < len(table) && i < limit; i++ {
		m, hits := headerMapping(table[i])
		if hits >= minHeaderHits && hits > bestHits && m[colName] >= 0 {
			bestIdx, bestHits, bestMap = i, hits, m
			if first {
				break
			}
		}
	}
	return bestIdx, bestMap
}

// ParseTable extracts holdings from one table whose header sits in its
// first rows. ok is false when no header row was recognised.
func ParseTable(table [][]string) (rows []model.SilverRow, ok bool) {
	return parseTable(table, headerScanRows, false)
}

// ParseLongTable is ParseTable for whole reports, where the holdings header
// may follow pages of narrative.
func ParseLongTable(table [][]string) ([]model.SilverRow, bool) {
	return parseTable(table, len(table), true)
}

func parseTable(table [][]string, limit int, first bool) (rows []model.SilverRow, ok bool) {
	headerIdx, mapping := findHeader(table, limit, first)
	if headerIdx < 0 {
		return nil, false
	}

	section := model.SectionNone
	for _, raw := range table[headerIdx+1:] {
		cells := nonEmpty(raw)
		if len(cells) == 0 {
			continue
		}
		if len(cells) == 1 {
			// A lone label: a section heading or a sub-heading such as
			// "Transferable securities". Neither is a position.
			if s, found := sectionOf(fold(cells[0])); found {
				section = s
			}
			continue
		}
		if isTotal(fold(cells[0])) && !hasISIN(raw) {
			continue
		}
		if _, hits := headerMapping(raw); hits >= minHeaderHits {
			// Header repeated after a page break.
			continue
		}

		row, ok := buildRow(raw, mapping)
		if !ok {
			continue
		}
		row.Section = section
		row.Derivative = section == model.SectionDerivative
		rows = append(rows, row)
	}
	return rows, true
}

// ParseTables runs ParseTable over several tables and concatenates the
// rows. ok reports whether any table had a header.
func ParseTables(tables [][][]string) ([]model.SilverRow, bool) {
	var all []model.SilverRow
	found := false
	for _, t := range tables {
		rows, ok := ParseTable(t)
		if ok {
			found = true
			all = append(all, rows...)
		}
	}
	return all, found
}

func buildRow(raw []string, m [numColumns]int) (model.SilverRow, bool) {
	get := func(c column) string {
		if m[c] < 0 || m[c] >= len(raw) {
			return ""
		}
		return strings.TrimSpace(raw[m[c]])
	}

	name := strings.Join(strings.Fields(get(colName)), " ")
	if name == "" {
		return model.SilverRow{}, false
	}
	if get(colQuantity) == "" && get(colValue) == "" && get(colWeight) == "" && !hasISIN(raw) {
		// Prose or a heading split into columns, not a position.
		return model.SilverRow{}, false
	}

	row := model.SilverRow{
		Name:        name,
		ISIN:        ident.Clean(get(colISIN)),
		CUSIP:       ident.Clean(get(colCUSIP)),
		Ticker:      strings.ToUpper(get(colTicker)),
		RawValue:    get(colValue),
		Currency:    strings.ToUpper(get(colCurrency)),
		CountryRaw:  get(colCountry),
		SectorRaw:   get(colSector),
		ClassRaw:    get(colClass),
		Quantity:    ParseNumber(get(colQuantity)),
		MarketValue: ParseNumber(get(colValue)),
	}
	if w := get(colWeight); w != "" {
		row.ReportedWeight = ParseNumber(w)
	}
	if row.ISIN == "" {
		for _, cell := range raw {
			if isin := ident.ISINInText.FindString(strings.ToUpper(cell)); isin != "" && ident.ValidISIN(isin) {
				row.ISIN = isin
				break
			}
		}
	}
	return row, true
}

func sectionOf(label string) (model.Section, bool) {
	if len(label) > 80 {
		return model.SectionNone, false
	}
	for _, s := range sectionKeywords {
		for _, kw := range s.keywords {
			if strings.Contains(label, kw) {
				return s.section, true
			}
		}
	}
	return model.SectionNone, false
}

func isTotal(label string) bool {
	for _, kw := range totalKeywords {
		if label == kw || strings.HasPrefix(label, kw+" ") || strings.HasPrefix(label, kw+":") {
			return true
		}
	}
	return false
}

func hasISIN(row []string) bool {
	for _, cell := range row {
		if ident.ISINInText.MatchString(strings.ToUpper(cell)) {
			return true
		}
	}
	return false
}

func nonEmpty(row []string) []string {
	var out []string
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			out = append(out, strings.TrimSpace(c))
		}
	}
	return out
}
