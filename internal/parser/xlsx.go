package parser

import (
	"context"
	"strings"
	"time"

	"github.com/sells-group/holdings-cli/internal/fetcher"
	"github.com/sells-group/holdings-cli/internal/reportdate"
)

// XLSXParser reads issuer holdings workbooks, one table per sheet.
type XLSXParser struct{}

// Parse implements Parser.
func (p *XLSXParser) Parse(_ context.Context, in Input) (*Result, error) {
	tables, err := fetcher.ReadXLSXSheets(in.Body)
	if err != nil {
		return nil, parseError(in, "unreadable workbook", err)
	}

	rows, ok := ParseTables(tables)
	if !ok {
		return nil, parseError(in, "no holdings table found", nil)
	}
	return &Result{Rows: rows, AsOf: tablesDate(tables), ParserVersion: VersionTabular}, nil
}

// tablesDate looks for an as-of date in the preamble rows of each table.
func tablesDate(tables [][][]string) (asOf time.Time) {
	for _, t := range tables {
		for i := 0; i < len(t) && i < headerScanRows; i++ {
			if d, ok := reportdate.ExtractExact(strings.Join(t[i], " ")); ok {
				return d
			}
		}
	}
	return asOf
}
