// Package raster renders PDF pages to PNG files for OCR.
//
// Rendering goes through MuPDF via gen2brain/go-fitz. Every output file gets
// a uuid in its name so that concurrent requests writing into the same
// parent directory never collide.
package raster

import (
	"context"
	"errors"
	"fmt"
	"image/png"
	"os"
	"path/filepath"

	"github.com/gen2brain/go-fitz"
	"github.com/google/uuid"
)

// DefaultDPI is a resolution tesseract handles well for invoice-sized print.
const DefaultDPI = 300

// ErrRasterizationFailed is returned when a page cannot be rendered or written.
var ErrRasterizationFailed = errors.New("PDF rasterization failed")

// Rasterizer turns PDF pages into image files.
type Rasterizer interface {
	// PageCount returns the number of pages in the PDF.
	PageCount(ctx context.Context, data []byte) (int, error)

	// Rasterize renders the zero-based page into exactly one new file under
	// outDir and returns its path. The caller owns deleting the file.
	Rasterize(ctx context.Context, data []byte, page int, outDir string) (string, error)
}

// FitzRasterizer implements Rasterizer with MuPDF.
type FitzRasterizer struct {
	dpi float64
}

// NewFitzRasterizer creates a rasterizer rendering at dpi (DefaultDPI if <= 0).
func NewFitzRasterizer(dpi float64) *FitzRasterizer {
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	return &FitzRasterizer{dpi: dpi}
}

// PageCount opens the document and reports its page count.
func (r *FitzRasterizer) PageCount(ctx context.Context, data []byte) (int, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return 0, fmt.Errorf("%w: open PDF: %v", ErrRasterizationFailed, err)
	}
	defer doc.Close()

	n := doc.NumPage()
	if n <= 0 {
		return 0, fmt.Errorf("%w: PDF has no pages", ErrRasterizationFailed)
	}
	return n, nil
}

// Rasterize renders one page to outDir/page-NNN-<uuid>.png.
func (r *FitzRasterizer) Rasterize(ctx context.Context, data []byte, page int, outDir string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return "", fmt.Errorf("%w: open PDF: %v", ErrRasterizationFailed, err)
	}
	defer doc.Close()

	if page < 0 || page >= doc.NumPage() {
		return "", fmt.Errorf("%w: page %d out of range (document has %d)", ErrRasterizationFailed, page+1, doc.NumPage())
	}

	img, err := doc.ImageDPI(page, r.dpi)
	if err != nil {
		return "", fmt.Errorf("%w: render page %d: %v", ErrRasterizationFailed, page+1, err)
	}

	path := filepath.Join(outDir, PageFileName(page))
	// O_EXCL: never overwrite a file that another invocation owns
	out, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", fmt.Errorf("%w: create page %d image: %v", ErrRasterizationFailed, page+1, err)
	}

	encodeErr := png.Encode(out, img)
	closeErr := out.Close()
	if err := errors.Join(encodeErr, closeErr); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("%w: encode page %d: %v", ErrRasterizationFailed, page+1, err)
	}

	return path, nil
}

// PageFileName returns a collision-free file name for the zero-based page.
func PageFileName(page int) string {
	return fmt.Sprintf("page-%03d-%s.png", page+1, uuid.NewString())
}
