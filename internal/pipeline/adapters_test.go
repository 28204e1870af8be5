package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoice-extractor/internal/document"
	"invoice-extractor/internal/ocr"
	"invoice-extractor/internal/pdftest"
	"invoice-extractor/internal/raster"
	"invoice-extractor/internal/textlayer"
)

// pngEngine checks that it receives rendered PNG pages and answers with the
// page number parsed from the file name.
type pngEngine struct {
	mu    sync.Mutex
	paths []string
}

func (e *pngEngine) Name() string { return "png" }

func (e *pngEngine) Recognize(ctx context.Context, img ocr.Image, language string) (string, error) {
	data, err := img.Bytes()
	if err != nil {
		return "", err
	}
	if _, err := png.DecodeConfig(bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("not a PNG: %w", err)
	}

	e.mu.Lock()
	e.paths = append(e.paths, img.Path)
	e.mu.Unlock()

	// page-NNN-<uuid>.png
	page, err := strconv.Atoi(strings.TrimPrefix(filepath.Base(img.Path), "page-")[:3])
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("scanned page %d", page), nil
}

func newAdapterPipeline(t *testing.T, engine ocr.Engine) (*Pipeline, string) {
	t.Helper()
	root := t.TempDir()
	p := New(
		Config{WorkDir: root, Language: "eng", OCRConcurrency: 2},
		textlayer.NewPDFExtractor(),
		raster.NewFitzRasterizer(72),
		engine,
	)
	return p, root
}

func TestRun_RealAdapters_TextLayer(t *testing.T) {
	engine := &pngEngine{}
	p, root := newAdapterPipeline(t, engine)

	doc, err := document.New("invoice.pdf", pdftest.Build("Invoice 2024-001", "Tax 19.00 EUR"), "")
	require.NoError(t, err)

	result, err := p.Run(context.Background(), doc)
	require.NoError(t, err)

	assert.Equal(t, ProvenanceTextLayer, result.Provenance)
	assert.Contains(t, result.Text, "Invoice 2024-001")
	assert.Contains(t, result.Text, "Tax 19.00 EUR")
	assert.Empty(t, engine.paths, "OCR must not run when the text layer has text")

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries, "no working directory for text-layer documents")
}

func TestRun_RealAdapters_ScannedPDF(t *testing.T) {
	engine := &pngEngine{}
	p, root := newAdapterPipeline(t, engine)

	doc, err := document.New("scan.pdf", pdftest.Build("", "", ""), "")
	require.NoError(t, err)

	result, err := p.Run(context.Background(), doc)
	require.NoError(t, err)

	assert.Equal(t, ProvenanceOCR, result.Provenance)
	assert.Equal(t, 3, result.PageCount)
	assert.Equal(t, "scanned page 1\nscanned page 2\nscanned page 3", result.Text)
	assert.Empty(t, result.FailedPages)

	require.Len(t, engine.paths, 3)
	for _, path := range engine.paths {
		assert.True(t, strings.HasPrefix(path, root), "page image %s outside the work root", path)
		_, err := os.Stat(path)
		assert.ErrorIs(t, err, os.ErrNotExist, "page image %s still exists", path)
	}

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries, "working directories must be removed")
}
