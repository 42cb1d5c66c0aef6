// Package parser turns raw holdings documents into silver rows. One Parser
// exists per document type; Set dispatches on the type recorded by the
// downloader.
package parser

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/holdings-cli/internal/model"
	"github.com/sells-group/holdings-cli/internal/ocr"
)

// Parser version tags recorded on every gold row.
const (
	VersionNPORT   = "nport/2"
	VersionTabular = "tabular/2"
	VersionText    = "text/1"
	VersionStatic  = "static/1"
)

// Input is one stored document plus the registry entry it belongs to.
type Input struct {
	Document model.RawDocument
	Body     []byte
	Fund     model.FundEntry
}

// Result is the parse output. AsOf is zero when the document does not state
// its effective date.
type Result struct {
	Rows          []model.SilverRow
	AsOf          time.Time
	SeriesID      string
	ParserVersion string
}

// Parser extracts silver rows from one document shape. A document without a
// recognisable holdings structure yields a *model.ParseError.
type Parser interface {
	Parse(ctx context.Context, in Input) (*Result, error)
}

// Set maps document types to parsers.
type Set struct {
	parsers map[model.DocumentType]Parser
}

// New builds the parser set. PDFs go through ex for their text layer.
func New(ex ocr.Extractor) *Set {
	text := &TextParser{}
	return &Set{parsers: map[model.DocumentType]Parser{
		model.DocNPORTXML: &NPORTParser{},
		model.DocHTML:     &HTMLParser{},
		model.DocXLSX:     &XLSXParser{},
		model.DocCSV:      &CSVParser{},
		model.DocPDF:      NewPDFParser(ex),
		model.DocText:     text,
		model.DocReport:   text,
		model.DocStatic:   &StaticParser{},
	}}
}

// Register replaces the parser for a document type.
func (s *Set) Register(t model.DocumentType, p Parser) {
	s.parsers[t] = p
}

// Parse dispatches in to the parser for its document type and stamps the
// document hash on every row.
func (s *Set) Parse(ctx context.Context, in Input) (*Result, error) {
	p, ok := s.parsers[in.Document.DocumentType]
	if !ok {
		return nil, parseError(in, "no parser for document type", nil)
	}

	res, err := p.Parse(ctx, in)
	if err != nil {
		return nil, err
	}
	if len(res.Rows) == 0 {
		return nil, parseError(in, "no holdings found", nil)
	}
	for i := range res.Rows {
		res.Rows[i].DocumentHash = in.Document.Hash
	}

	zap.L().Debug("document parsed",
		zap.String("component", "parser"),
		zap.String("fund_id", in.Fund.ID),
		zap.String("hash", in.Document.Hash),
		zap.String("document_type", string(in.Document.DocumentType)),
		zap.String("parser_version", res.ParserVersion),
		zap.Int("rows", len(res.Rows)),
	)
	return res, nil
}

func parseError(in Input, reason string, err error) error {
	return &model.ParseError{
		DocumentHash: in.Document.Hash,
		DocumentType: in.Document.DocumentType,
		Reason:       reason,
		Err:          err,
	}
}
