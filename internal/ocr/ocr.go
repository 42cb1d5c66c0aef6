// Package ocr extracts text from PDF holdings reports.
package ocr

import (
	"context"

	"github.com/sells-group/holdings-cli/internal/config"
)

// Extractor extracts the text layer of a PDF document.
type Extractor interface {
	ExtractText(ctx context.Context, pdf []byte) (string, error)
}

// NewExtractor creates the configured Extractor.
func NewExtractor(cfg config.OCRConfig) Extractor {
	return NewPdfToText(cfg.PdfToTextPath)
}
