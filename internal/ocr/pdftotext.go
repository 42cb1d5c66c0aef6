package ocr

import (
	"bytes"
	"context"
	"os"
	"os/exec"

	"github.com/rotisserie/eris"
)

// PdfToText extracts text with the poppler pdftotext CLI, preserving column
// layout so that holdings tables stay aligned.
type PdfToText struct {
	binPath string
}

// NewPdfToText creates a PdfToText extractor. If binPath is empty, "pdftotext" is used.
func NewPdfToText(binPath string) *PdfToText {
	if binPath == "" {
		binPath = "pdftotext"
	}
	return &PdfToText{binPath: binPath}
}

// ExtractText writes pdf to a temp file and runs pdftotext -layout on it.
func (p *PdfToText) ExtractText(ctx context.Context, pdf []byte) (string, error) {
	if len(pdf) == 0 {
		return "", eris.New("ocr: empty pdf")
	}

	tmp, err := os.CreateTemp("", "holdings-*.pdf")
	if err != nil {
		return "", eris.Wrap(err, "ocr: create temp file")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(pdf); err != nil {
		_ = tmp.Close()
		return "", eris.Wrap(err, "ocr: write temp file")
	}
	if err := tmp.Close(); err != nil {
		return "", eris.Wrap(err, "ocr: close temp file")
	}

	return p.ExtractFile(ctx, tmp.Name())
}

// ExtractFile runs pdftotext -layout on a PDF already on disk.
func (p *PdfToText) ExtractFile(ctx context.Context, pdfPath string) (string, error) {
	cmd := exec.CommandContext(ctx, p.binPath, "-layout", "-enc", "UTF-8", pdfPath, "-")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", eris.Wrapf(err, "ocr: pdftotext failed for %s: %s", pdfPath, stderr.String())
	}
	return stdout.String(), nil
}
