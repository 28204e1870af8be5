// Package ocr recognizes text in raster images.
//
// Three engines are available behind the Engine interface:
//   - tesseract: local Tesseract via gosseract (default, no network access)
//   - vision: Google Cloud Vision document text detection
//   - documentai: a Google Document AI OCR processor
//
// Google engines read credentials from the environment:
//   - GOOGLE_APPLICATION_CREDENTIALS: Path to service account JSON file, OR
//   - GOOGLE_CREDENTIALS: Inline JSON credentials string
//   - otherwise Application Default Credentials are tried
//
// Engines do not retry. A failure is reported per image and wraps
// ErrOCRFailed; callers decide whether one failed image is fatal.
package ocr

import (
	"context"
	"fmt"
	"net/http"
	"os"
)

const (
	// DefaultLanguage is the Tesseract language code used when none is given.
	DefaultLanguage = "eng"

	// MaxImageBytes is the largest image accepted by the remote engines (20MB)
	MaxImageBytes = 20 * 1024 * 1024
)

// Engine recognizes text in a single image.
type Engine interface {
	// Name identifies the engine in logs.
	Name() string

	// Recognize returns the text found in img. language is a Tesseract-style
	// code such as "eng" or "eng+deu"; engines translate it as needed.
	Recognize(ctx context.Context, img Image, language string) (string, error)
}

// Image is an OCR input held either on disk or in memory.
type Image struct {
	// Path is the image file location. Ignored when Data is set.
	Path string

	// Data holds the encoded image bytes (PNG, JPEG, TIFF, ...).
	Data []byte

	// MimeType is optional; it is sniffed from the bytes when empty.
	MimeType string
}

// Bytes returns the encoded image, reading it from Path if needed.
func (i Image) Bytes() ([]byte, error) {
	if len(i.Data) > 0 {
		return i.Data, nil
	}
	if i.Path == "" {
		return nil, ErrEmptyImage
	}
	data, err := os.ReadFile(i.Path)
	if err != nil {
		return nil, fmt.Errorf("read image %s: %w", i.Path, err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	return data, nil
}

// ContentType returns the declared or sniffed MIME type of data.
func (i Image) ContentType(data []byte) string {
	if i.MimeType != "" {
		return i.MimeType
	}
	return http.DetectContentType(data)
}

// String identifies the image in logs and errors.
func (i Image) String() string {
	if i.Path != "" {
		return i.Path
	}
	return fmt.Sprintf("<%d bytes in memory>", len(i.Data))
}
