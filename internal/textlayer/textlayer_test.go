package textlayer

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoice-extractor/internal/pdftest"
)

func TestPDFExtractor_ExtractText(t *testing.T) {
	e := NewPDFExtractor()

	text, err := e.ExtractText(context.Background(), pdftest.Build("Invoice 2024-001", "Tax 19.00 EUR"))
	require.NoError(t, err)
	assert.Contains(t, text, "Invoice 2024-001")
	assert.Contains(t, text, "Tax 19.00 EUR")
	assert.Less(t, strings.Index(text, "Invoice"), strings.Index(text, "Tax"))
	assert.Equal(t, strings.TrimSpace(text), text)
}

func TestPDFExtractor_BlankTextLayer(t *testing.T) {
	text, err := NewPDFExtractor().ExtractText(context.Background(), pdftest.Build("", ""))
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestPDFExtractor_Unavailable(t *testing.T) {
	e := NewPDFExtractor()

	for name, data := range map[string][]byte{
		"empty":     nil,
		"not a pdf": []byte("\x89PNG\r\n\x1a\n"),
		"truncated": []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog"),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := e.ExtractText(context.Background(), data)
			assert.ErrorIs(t, err, ErrTextLayerUnavailable)
		})
	}
}
