// Package document models an uploaded invoice: its bytes and the media kind
// that decides how text is pulled out of it.
package document

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
)

// Kind is the declared media kind of a Document.
type Kind string

const (
	KindPDF   Kind = "pdf"
	KindImage Kind = "image"
)

var (
	// ErrEmptyDocument is returned when an upload carries no bytes.
	ErrEmptyDocument = errors.New("document is empty")

	// ErrTooLarge is returned when an upload exceeds the configured size limit.
	ErrTooLarge = errors.New("document exceeds maximum size")

	// ErrUnsupportedType is returned for media that is neither a PDF nor a raster image.
	ErrUnsupportedType = errors.New("unsupported document type")
)

var imageTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/jpg":  true,
	"image/tiff": true,
	"image/bmp":  true,
	"image/webp": true,
	"image/gif":  true,
}

var imageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".tif": true, ".tiff": true,
	".bmp": true, ".webp": true, ".gif": true,
}

// Document is an immutable uploaded file. Bytes and Reader share the
// underlying slice; neither may be used to modify it.
type Document struct {
	name     string
	kind     Kind
	mimeType string
	data     []byte
	sum      string
}

// New builds a Document from raw bytes. declaredType is the client-supplied
// content type (may be empty or generic); the kind is decided from the bytes
// first and falls back to the declared type and file extension.
func New(name string, data []byte, declaredType string) (*Document, error) {
	if len(data) == 0 {
		return nil, ErrEmptyDocument
	}

	kind, mimeType, err := detectKind(name, data, declaredType)
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(data)
	return &Document{
		name:     name,
		kind:     kind,
		mimeType: mimeType,
		data:     data,
		sum:      hex.EncodeToString(sum[:]),
	}, nil
}

// Read consumes r up to maxBytes and builds a Document from it.
func Read(name string, r io.Reader, declaredType string, maxBytes int64) (*Document, error) {
	limited := io.LimitReader(r, maxBytes+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: %s is larger than %d bytes", ErrTooLarge, name, maxBytes)
	}
	return New(name, data, declaredType)
}

func (d *Document) Name() string     { return d.name }
func (d *Document) Kind() Kind       { return d.kind }
func (d *Document) MimeType() string { return d.mimeType }
func (d *Document) Size() int        { return len(d.data) }

// SHA256 is the hex digest of the document bytes, used as a cache key.
func (d *Document) SHA256() string { return d.sum }

// Bytes returns the underlying data. It must be treated as read-only.
func (d *Document) Bytes() []byte { return d.data }

// Reader returns a fresh reader over the document bytes.
func (d *Document) Reader() *bytes.Reader { return bytes.NewReader(d.data) }

// detectKind trusts sniffed magic bytes over the client-declared type, which
// only decides when the bytes are not recognized.
func detectKind(name string, data []byte, declaredType string) (Kind, string, error) {
	if bytes.HasPrefix(data, []byte("%PDF")) {
		return KindPDF, "application/pdf", nil
	}

	sniffed := http.DetectContentType(data)
	if imageTypes[sniffed] {
		return KindImage, sniffed, nil
	}

	// http.DetectContentType has no TIFF signature
	if bytes.HasPrefix(data, []byte("II*\x00")) || bytes.HasPrefix(data, []byte("MM\x00*")) {
		return KindImage, "image/tiff", nil
	}

	declared := declaredType
	if mt, _, err := mime.ParseMediaType(declaredType); err == nil {
		declared = mt
	}
	switch {
	case declared == "application/pdf":
		// Declared PDF without the magic header: let the pipeline try, the
		// text layer and rasterizer will report what is wrong with it.
		return KindPDF, declared, nil
	case imageTypes[declared]:
		return KindImage, declared, nil
	}

	ext := strings.ToLower(filepath.Ext(name))
	if ext == ".pdf" {
		return KindPDF, "application/pdf", nil
	}
	if imageExtensions[ext] {
		return KindImage, mime.TypeByExtension(ext), nil
	}

	return "", "", fmt.Errorf("%w: %s (%s)", ErrUnsupportedType, name, sniffed)
}
