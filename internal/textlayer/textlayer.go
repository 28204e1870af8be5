// Package textlayer reads the embedded, machine-readable text of a PDF.
//
// It uses ledongthuc/pdf (pure Go, no CGO). Scanned PDFs usually have no
// text layer at all; callers are expected to fall back to OCR when
// ErrTextLayerUnavailable is returned or the extracted text is blank.
package textlayer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ErrTextLayerUnavailable is returned when the PDF cannot be read for its
// text layer: malformed structure, encryption, or an unsupported encoding.
var ErrTextLayerUnavailable = errors.New("PDF text layer unavailable")

// Extractor returns the text layer of a PDF.
type Extractor interface {
	ExtractText(ctx context.Context, data []byte) (string, error)
}

// PDFExtractor implements Extractor using ledongthuc/pdf.
type PDFExtractor struct{}

// NewPDFExtractor creates a text-layer extractor.
func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{}
}

// ExtractText returns the concatenated plain text of all pages. Pages that
// fail to decode are skipped; if the document itself cannot be opened the
// error wraps ErrTextLayerUnavailable.
func (e *PDFExtractor) ExtractText(ctx context.Context, data []byte) (text string, err error) {
	// ledongthuc/pdf panics on some malformed inputs instead of returning errors
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("%w: parser panic: %v", ErrTextLayerUnavailable, r)
		}
	}()

	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty document", ErrTextLayerUnavailable)
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTextLayerUnavailable, err)
	}

	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		pageText = strings.TrimSpace(pageText)
		if pageText == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(pageText)
	}

	return strings.TrimSpace(sb.String()), nil
}
