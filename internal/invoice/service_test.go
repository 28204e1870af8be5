package invoice

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoice-extractor/internal/cache"
	"invoice-extractor/internal/document"
	"invoice-extractor/internal/pipeline"
	"invoice-extractor/pkg/models"
)

type fakeText struct {
	result *pipeline.Result
	err    error
	calls  atomic.Int32
}

func (f *fakeText) Run(ctx context.Context, doc *document.Document) (*pipeline.Result, error) {
	f.calls.Add(1)
	return f.result, f.err
}

type fakeFields struct {
	fields *models.InvoiceFields
	err    error
	calls  atomic.Int32
	text   string
}

func (f *fakeFields) ExtractFields(ctx context.Context, text string) (*models.InvoiceFields, error) {
	f.calls.Add(1)
	f.text = text
	return f.fields, f.err
}

type fakeSheet struct {
	sheet string
	rows  []*models.Extraction
	err   error
}

func (f *fakeSheet) AppendExtractions(ctx context.Context, sheetName string, extractions ...*models.Extraction) error {
	f.sheet = sheetName
	f.rows = append(f.rows, extractions...)
	return f.err
}

func testDoc(t *testing.T) *document.Document {
	t.Helper()
	doc, err := document.New("march.pdf", []byte("%PDF-1.4\ninvoice"), "application/pdf")
	require.NoError(t, err)
	return doc
}

func TestService_Process(t *testing.T) {
	text := &fakeText{result: &pipeline.Result{Text: "ACME\nTax 19.00", Provenance: pipeline.ProvenanceOCR, PageCount: 2, FailedPages: []int{2}, Warnings: []string{"page 2: OCR failed"}}}
	fields := &fakeFields{fields: &models.InvoiceFields{Date: "2024-03-01", Description: "Hosting", TaxAmount: "19.00"}}
	sheet := &fakeSheet{err: errors.New("quota")}
	mem := cache.NewMemoryClient(10)
	defer mem.Close()

	s := NewService(text, fields, ServiceConfig{Cache: mem, Sheet: sheet, SheetName: "2024"})
	s.now = func() time.Time { return time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC) }

	doc := testDoc(t)
	got, err := s.Process(context.Background(), doc)
	require.NoError(t, err)

	assert.Equal(t, "ACME\nTax 19.00", fields.text)
	assert.Equal(t, "19.00", got.Fields.TaxAmount)
	assert.Equal(t, "ocr", got.Provenance)
	assert.Equal(t, []int{2}, got.FailedPages)
	assert.Equal(t, doc.SHA256(), got.DocumentSHA256)
	assert.False(t, got.Cached)

	// sheet failures are logged, not returned
	assert.Equal(t, "2024", sheet.sheet)
	require.Len(t, sheet.rows, 1)

	again, err := s.Process(context.Background(), doc)
	require.NoError(t, err)
	assert.True(t, again.Cached)
	assert.Equal(t, got.Fields, again.Fields)
	assert.EqualValues(t, 1, text.calls.Load())
	assert.EqualValues(t, 1, fields.calls.Load())
}

func TestService_PipelineErrorsPassThrough(t *testing.T) {
	cause := &pipeline.PipelineError{Op: "Run", Err: pipeline.ErrNoExtractableText}
	text := &fakeText{err: cause}
	fields := &fakeFields{}

	_, err := NewService(text, fields, ServiceConfig{}).Process(context.Background(), testDoc(t))
	assert.ErrorIs(t, err, pipeline.ErrNoExtractableText)
	assert.Zero(t, fields.calls.Load())
}

func TestService_FieldErrorsAreWrapped(t *testing.T) {
	text := &fakeText{result: &pipeline.Result{Text: "x", Provenance: pipeline.ProvenanceTextLayer}}
	fields := &fakeFields{err: &AIResponseError{Raw: "nope", Err: errors.New("bad json")}}
	mem := cache.NewMemoryClient(10)
	defer mem.Close()

	_, err := NewService(text, fields, ServiceConfig{Cache: mem}).Process(context.Background(), testDoc(t))
	assert.ErrorIs(t, err, ErrInvalidAIResponse)

	var respErr *AIResponseError
	require.ErrorAs(t, err, &respErr)
	assert.Equal(t, "nope", respErr.Raw)
	assert.Zero(t, mem.Len(), "failures are not cached")
}

func TestService_CorruptCacheEntry(t *testing.T) {
	text := &fakeText{result: &pipeline.Result{Text: "x", Provenance: pipeline.ProvenanceTextLayer}}
	fields := &fakeFields{fields: &models.InvoiceFields{Date: "d"}}
	mem := cache.NewMemoryClient(10)
	defer mem.Close()

	doc := testDoc(t)
	require.NoError(t, mem.Set(context.Background(), cacheKey(doc), []byte("{not json"), time.Hour))

	got, err := NewService(text, fields, ServiceConfig{Cache: mem}).Process(context.Background(), doc)
	require.NoError(t, err)
	assert.False(t, got.Cached)
	assert.EqualValues(t, 1, text.calls.Load())
}
