package discovery

import (
	"bytes"
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/sells-group/holdings-cli/internal/fetcher"
	"github.com/sells-group/holdings-cli/internal/model"
	"github.com/sells-group/holdings-cli/internal/reportdate"
)

var periodicKeywords = []string{"financial report", "annual", "half-yearly", "semi-annual", "semiannual"}

// LuxSE searches the Luxembourg Stock Exchange OAM for periodic reports.
type LuxSE struct {
	f       fetcher.Fetcher
	baseURL string
}

// NewLuxSE creates the LuxSE OAM adapter.
func NewLuxSE(f fetcher.Fetcher, baseURL string) *LuxSE {
	return &LuxSE{f: f, baseURL: strings.TrimRight(baseURL, "/")}
}

// Source implements Adapter.
func (l *LuxSE) Source() model.SourceKind { return model.SourceLuxSEOAM }

// Discover implements Adapter.
func (l *LuxSE) Discover(ctx context.Context, fund model.FundEntry, target time.Time) ([]model.DocumentDescriptor, error) {
	form := url.Values{
		"countryOfIssuer": {""},
		"issuerName":      {""},
		"isinCode":        {fund.ShareClassISIN},
		"referenceYear":   {""},
		"informationType": {"Periodic information"},
	}
	if !target.IsZero() {
		form.Set("referenceYear", strconv.Itoa(target.Year()))
	}

	resp, err := l.f.PostForm(ctx, string(model.SourceLuxSEOAM), l.baseURL+"/oam-search", form)
	if err != nil {
		return nil, fetchError(model.SourceLuxSEOAM, fund, err)
	}

	rows, err := ParseHTMLRows(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "luxse_oam: parse search results")
	}

	base, _ := url.Parse(l.baseURL + "/")
	var out []model.DocumentDescriptor
	for _, row := range rows {
		title := row.Title()
		if title == "" || row.Href == "" || !containsAny(strings.ToLower(title), periodicKeywords) {
			continue
		}

		published, ok := reportdate.Extract(title, target)
		for i := 0; !ok && i < len(row.Cells); i++ {
			published, ok = reportdate.Extract(row.Cells[i], time.Time{})
		}
		if !ok {
			continue
		}

		link := row.Href
		if ref, err := url.Parse(row.Href); err == nil && base != nil {
			link = base.ResolveReference(ref).String()
		}

		out = append(out, model.DocumentDescriptor{
			URI:           link,
			PublishedDate: published,
			DocumentType:  documentTypeFromURL(link),
			ReportType:    ReportType(title),
			Title:         title,
		})
	}
	return out, nil
}

// ReportType classifies a periodic report title as annual or half-yearly.
func ReportType(title string) string {
	t := strings.ToLower(title)
	if containsAny(t, []string{"half", "semi", "halbjahres", "semestriel"}) {
		return "half-yearly"
	}
	return "annual"
}

// HTMLRow is one <tr> of a results table.
type HTMLRow struct {
	Cells     []string
	TitleCell string
	LinkText  string
	Href      string
}

// Title returns the row's report title: an explicit title cell, else the
// first cell, else the link text.
func (r HTMLRow) Title() string {
	switch {
	case r.TitleCell != "":
		return r.TitleCell
	case len(r.Cells) > 0 && r.Cells[0] != "":
		return r.Cells[0]
	default:
		return r.LinkText
	}
}

// ParseHTMLRows extracts every table row with its cell texts and first link.
func ParseHTMLRows(body []byte) ([]HTMLRow, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "html: parse")
	}

	var rows []HTMLRow
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Tr {
			rows = append(rows, readRow(n))
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return rows, nil
}

func readRow(tr *html.Node) HTMLRow {
	var row HTMLRow
	for c := tr.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || (c.DataAtom != atom.Td && c.DataAtom != atom.Th) {
			continue
		}
		text := NodeText(c)
		row.Cells = append(row.Cells, text)
		if row.TitleCell == "" && hasClass(c, "title") {
			row.TitleCell = text
		}
		if row.Href == "" {
			if a := findLink(c); a != nil {
				row.Href = attr(a, "href")
				row.LinkText = NodeText(a)
			}
		}
	}
	return row
}

// NodeText returns the whitespace-collapsed text content of n.
func NodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			b.WriteByte(' ')
		case html.ElementNode:
			if n.DataAtom == atom.Script || n.DataAtom == atom.Style {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}

func findLink(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == atom.A && attr(n, "href") != "" {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if a := findLink(c); a != nil {
			return a
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
