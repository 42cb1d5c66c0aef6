package parser

import (
	"context"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/sells-group/holdings-cli/internal/ident"
	"github.com/sells-group/holdings-cli/internal/model"
	"github.com/sells-group/holdings-cli/internal/reportdate"
)

var (
	columnGap    = regexp.MustCompile(`\s{2,}|\t`)
	currencyCode = regexp.MustCompile(`^[A-Z]{3}$`)
)

// TextParser reads plain-text reports: whitespace-aligned tables first,
// then ISIN-anchored lines.
type TextParser struct{}

// Parse implements Parser.
func (p *TextParser) Parse(_ context.Context, in Input) (*Result, error) {
	return parseReportText(in, string(in.Body))
}

func parseReportText(in Input, text string) (*Result, error) {
	res := &Result{ParserVersion: VersionTabular}
	res.AsOf, _ = reportdate.ExtractExact(head(text, 4000))

	if rows, ok := ParseLongTable(SplitColumns(text)); ok && len(rows) > 0 {
		res.Rows = rows
		return res, nil
	}
	res.Rows = ParseText(text)
	res.ParserVersion = VersionText
	if len(res.Rows) == 0 {
		return nil, parseError(in, "no holdings table or ISIN lines found", nil)
	}
	return res, nil
}

// SplitColumns turns layout-preserving text into a table by splitting each
// line on runs of two or more spaces.
func SplitColumns(text string) [][]string {
	var table [][]string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		table = append(table, columnGap.Split(line, -1))
	}
	return table
}

// ParseText extracts positions from lines that carry an ISIN. The name is
// the text before the ISIN (or the previous line); the numbers after it are
// read as quantity, market value, and weight when three are present, value
// and weight for two, and value alone for one.
func ParseText(text string) []model.SilverRow {
	var (
		rows    []model.SilverRow
		section = model.SectionNone
		prev    string
	)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		loc := isinIndex(line)
		if loc == nil {
			if len(line) < 60 {
				if s, ok := sectionOf(fold(line)); ok {
					section = s
				}
			}
			prev = line
			continue
		}

		isin := line[loc[0]:loc[1]]
		name := strings.Join(strings.Fields(line[:loc[0]]), " ")
		if name == "" {
			name = strings.Join(strings.Fields(prev), " ")
		}
		if name == "" {
			name = isin
		}

		row := model.SilverRow{Name: name, ISIN: isin, Section: section, Derivative: section == model.SectionDerivative}
		var nums []decimal.NullDecimal
		var raws []string
		for _, tok := range numberTokens(line[loc[1]:]) {
			if currencyCode.MatchString(tok) && row.Currency == "" {
				row.Currency = tok
				continue
			}
			if n := ParseNumber(tok); n.Valid {
				nums = append(nums, n)
				raws = append(raws, tok)
			}
		}
		switch {
		case len(nums) >= 3:
			row.Quantity, row.MarketValue, row.ReportedWeight = nums[0], nums[1], nums[2]
			row.RawValue = raws[1]
		case len(nums) == 2:
			row.MarketValue, row.ReportedWeight = nums[0], nums[1]
			row.RawValue = raws[0]
		case len(nums) == 1:
			row.MarketValue = nums[0]
			row.RawValue = raws[0]
		}
		rows = append(rows, row)
		prev = ""
	}
	return rows
}

func isinIndex(line string) []int {
	for _, loc := range ident.ISINInText.FindAllStringIndex(line, -1) {
		if ident.ValidISIN(line[loc[0]:loc[1]]) {
			return loc
		}
	}
	return nil
}

// numberTokens splits the tail of a line into cells: on column gaps when
// the line has them, otherwise on single spaces.
func numberTokens(s string) []string {
	s = strings.TrimSpace(s)
	if columnGap.MatchString(s) {
		parts := columnGap.Split(s, -1)
		out := parts[:0]
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return strings.Fields(s)
}
