package ocr

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/holdings-cli/internal/config"
)

// fakePdfToText writes a shell script that prints the arguments it received
// and a canned holdings line.
func fakePdfToText(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pdftotext")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func TestNewExtractor(t *testing.T) {
	ext := NewExtractor(config.OCRConfig{})
	require.IsType(t, &PdfToText{}, ext)
	assert.Equal(t, "pdftotext", ext.(*PdfToText).binPath)

	ext = NewExtractor(config.OCRConfig{PdfToTextPath: "/opt/poppler/bin/pdftotext"})
	assert.Equal(t, "/opt/poppler/bin/pdftotext", ext.(*PdfToText).binPath)
}

func TestExtractText(t *testing.T) {
	bin := fakePdfToText(t, `echo "$1 $2 $3"; echo "APPLE INC    US0378331005    1 234,00"`)
	out, err := NewPdfToText(bin).ExtractText(context.Background(), []byte("%PDF-1.7 fake"))
	require.NoError(t, err)
	assert.Contains(t, out, "-layout -enc UTF-8")
	assert.Contains(t, out, "US0378331005")
}

func TestExtractText_Empty(t *testing.T) {
	_, err := NewPdfToText("").ExtractText(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty pdf")
}

func TestExtractText_Failure(t *testing.T) {
	bin := fakePdfToText(t, `echo "Syntax Error: Couldn't read xref table" >&2; exit 1`)
	_, err := NewPdfToText(bin).ExtractText(context.Background(), []byte("%PDF-broken"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "xref table")
}

func TestExtractFile_MissingBinary(t *testing.T) {
	_, err := NewPdfToText(filepath.Join(t.TempDir(), "nope")).ExtractFile(context.Background(), "/tmp/x.pdf")
	assert.Error(t, err)
}
