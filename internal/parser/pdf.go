package parser

import (
	"context"

	"github.com/sells-group/holdings-cli/internal/ocr"
)

// PDFParser extracts the text layer of a PDF report and parses it as text.
type PDFParser struct {
	extractor ocr.Extractor
}

// NewPDFParser creates a PDFParser backed by ex.
func NewPDFParser(ex ocr.Extractor) *PDFParser {
	return &PDFParser{extractor: ex}
}

// Parse implements Parser.
func (p *PDFParser) Parse(ctx context.Context, in Input) (*Result, error) {
	text, err := p.extractor.ExtractText(ctx, in.Body)
	if err != nil {
		return nil, parseError(in, "pdf text extraction failed", err)
	}
	return parseReportText(in, text)
}
