package enrich

import (
	"context"
	"os"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/holdings-cli/internal/fetcher"
	"github.com/sells-group/holdings-cli/internal/ident"
	"github.com/sells-group/holdings-cli/internal/model"
)

// ReferenceTable maps secondary identifiers (CUSIP, ticker) to ISINs. It is
// read once and never mutated, so it is safe for concurrent use.
type ReferenceTable struct {
	byCUSIP  map[string]string
	byTicker map[string]string
}

// Len returns the number of mapped identifiers.
func (r *ReferenceTable) Len() int {
	if r == nil {
		return 0
	}
	return len(r.byCUSIP) + len(r.byTicker)
}

// ISIN looks up a CUSIP or ticker.
func (r *ReferenceTable) ISIN(cusip, ticker string) (string, bool) {
	if r == nil {
		return "", false
	}
	if isin, ok := r.byCUSIP[cusip]; ok && cusip != "" {
		return isin, true
	}
	if isin, ok := r.byTicker[ticker]; ok && ticker != "" {
		return isin, true
	}
	return "", false
}

// LoadReferenceFile reads a reference CSV with a header naming at least an
// isin column and one of cusip or ticker. Rows whose ISIN fails validation
// are skipped.
func LoadReferenceFile(ctx context.Context, path string) (*ReferenceTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "enrich: open reference %s", path)
	}
	defer f.Close() //nolint:errcheck

	headerCh := make(chan []string, 1)
	rowCh, errCh := fetcher.StreamCSV(ctx, f, fetcher.CSVOptions{
		Sniff:     true,
		HasHeader: true,
		HeaderCh:  headerCh,
		TrimSpace: true,
	})

	ref := &ReferenceTable{byCUSIP: map[string]string{}, byTicker: map[string]string{}}
	cols := map[string]int{"isin": -1, "cusip": -1, "ticker": -1}
	headerSeen := false
	for row := range rowCh {
		if !headerSeen {
			header := <-headerCh
			for i, h := range header {
				if _, ok := cols[strings.ToLower(h)]; ok {
					cols[strings.ToLower(h)] = i
				}
			}
			headerSeen = true
		}
		if cols["isin"] < 0 {
			continue
		}
		isin := ident.Clean(cell(row, cols["isin"]))
		if !ident.ValidISIN(isin) {
			continue
		}
		if c := ident.Clean(cell(row, cols["cusip"])); c != "" {
			ref.byCUSIP[c] = isin
		}
		if t := strings.ToUpper(cell(row, cols["ticker"])); t != "" {
			ref.byTicker[t] = isin
		}
	}
	if err := <-errCh; err != nil {
		return nil, eris.Wrapf(err, "enrich: read reference %s", path)
	}
	if cols["isin"] < 0 && headerSeen {
		return nil, eris.Errorf("enrich: reference %s has no isin column", path)
	}
	return ref, nil
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

// resolveID canonicalises the row's primary identifier. A valid ISIN wins;
// otherwise the reference table, then a CUSIP-derived ISIN are tried. When
// nothing resolves the best available secondary identifier is kept as the
// primary id and resolved is false.
func (e *Enricher) resolveID(row model.SilverRow, country string) (id string, resolved bool) {
	isin := ident.Clean(row.ISIN)
	if ident.ValidISIN(isin) {
		return isin, true
	}

	cusip := ident.Clean(row.CUSIP)
	ticker := strings.ToUpper(strings.TrimSpace(row.Ticker))
	if ref, ok := e.refs.ISIN(cusip, ticker); ok {
		return ref, true
	}
	if ident.ValidCUSIP(cusip) {
		prefix := "US"
		if country == "CA" {
			prefix = "CA"
		}
		if derived := ident.ISINFromCUSIP(cusip, prefix); derived != "" {
			return derived, true
		}
	}

	switch {
	case cusip != "":
		return cusip, false
	case ticker != "":
		return ticker, false
	default:
		return isin, false
	}
}
