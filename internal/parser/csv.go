package parser

import (
	"bytes"
	"context"

	"github.com/sells-group/holdings-cli/internal/fetcher"
)

// CSVParser reads delimited holdings exports; the delimiter is sniffed.
type CSVParser struct{}

// Parse implements Parser.
func (p *CSVParser) Parse(ctx context.Context, in Input) (*Result, error) {
	table, err := fetcher.ReadCSV(ctx, bytes.NewReader(in.Body), fetcher.CSVOptions{
		Sniff:      true,
		LazyQuotes: true,
		TrimSpace:  true,
	})
	if err != nil {
		return nil, parseError(in, "unreadable CSV", err)
	}

	rows, ok := ParseTable(table)
	if !ok {
		return nil, parseError(in, "no holdings header found", nil)
	}
	return &Result{Rows: rows, AsOf: tablesDate([][][]string{table}), ParserVersion: VersionTabular}, nil
}
