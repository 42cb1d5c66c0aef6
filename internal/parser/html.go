package parser

import (
	"bytes"
	"context"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/sells-group/holdings-cli/internal/reportdate"
)

// HTMLParser reads holdings tables from issuer web pages and HTML reports.
type HTMLParser struct{}

// Parse implements Parser.
func (p *HTMLParser) Parse(_ context.Context, in Input) (*Result, error) {
	doc, err := html.Parse(bytes.NewReader(in.Body))
	if err != nil {
		return nil, parseError(in, "malformed HTML", err)
	}

	tables := HTMLTables(doc)
	res := &Result{ParserVersion: VersionTabular}
	rows, ok := ParseTables(tables)
	text := nodeText(doc)
	if !ok || len(rows) == 0 {
		rows = ParseText(text)
		res.ParserVersion = VersionText
	}
	res.Rows = rows
	res.AsOf, _ = reportdate.ExtractExact(head(text, 4000))
	return res, nil
}

// HTMLTables returns the cell texts of every table in doc. Rows of a nested
// table belong to the nested table only.
func HTMLTables(doc *html.Node) [][][]string {
	var tables [][][]string
	var walk func(n *html.Node, current int)
	walk = func(n *html.Node, current int) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Table:
				tables = append(tables, nil)
				current = len(tables) - 1
			case atom.Tr:
				if current >= 0 {
					var cells []string
					for c := n.FirstChild; c != nil; c = c.NextSibling {
						if c.Type == html.ElementNode && (c.DataAtom == atom.Td || c.DataAtom == atom.Th) {
							cells = append(cells, nodeText(c))
						}
					}
					tables[current] = append(tables[current], cells)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, current)
		}
	}
	walk(doc, -1)
	return tables
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script, atom.Style:
				return
			case atom.Tr, atom.P, atom.Br, atom.Div, atom.Li:
				defer b.WriteByte('\n')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)

	lines := strings.Split(b.String(), "\n")
	out := lines[:0]
	for _, l := range lines {
		if l = strings.Join(strings.Fields(l), " "); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}

func head(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
