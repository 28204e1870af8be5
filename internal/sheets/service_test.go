package sheets

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"invoice-extractor/pkg/models"
)

func TestExtractSpreadsheetID(t *testing.T) {
	id, err := extractSpreadsheetID("https://docs.google.com/spreadsheets/d/1AbC-d_9/edit#gid=0")
	require.NoError(t, err)
	assert.Equal(t, "1AbC-d_9", id)

	_, err = extractSpreadsheetID("https://example.com/not-a-sheet")
	assert.Error(t, err)
}

func TestColumnRange(t *testing.T) {
	assert.Equal(t, "H", lastColumn())
	assert.Equal(t, "A:H", columnRange())
	assert.Equal(t, digestColumn, header()[len(header())-1])
	assert.Len(t, models.CSVHeader, 7, "header() must not modify CSVHeader")
}

func TestRecordedDigests(t *testing.T) {
	rows := [][]interface{}{
		toValues(header()),
		{"a.pdf", "", "", "", "ocr", "1", "2024-01-01T00:00:00Z", "aaa"},
		{"short row"},
		{"b.pdf", "", "", "", "ocr", "1", "2024-01-01T00:00:00Z", ""},
	}
	assert.Equal(t, map[string]bool{"aaa": true}, recordedDigests(rows))
}

// fakeSheetsAPI records calls and serves the "Invoices" sheet with rows.
type fakeSheetsAPI struct {
	mu       sync.Mutex
	rows     [][]interface{}
	calls    []string
	appended [][]interface{}
	headers  [][]interface{}
}

func (f *fakeSheetsAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	body, _ := io.ReadAll(r.Body)
	path := r.URL.Path
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodPost && strings.HasSuffix(path, ":append"):
		f.calls = append(f.calls, "append")
		var vr sheets.ValueRange
		_ = json.Unmarshal(body, &vr)
		f.appended = append(f.appended, vr.Values...)
		_, _ = io.WriteString(w, `{"spreadsheetId":"sheet-1","updates":{"updatedRows":1}}`)
	case r.Method == http.MethodPost && strings.HasSuffix(path, ":batchUpdate"):
		f.calls = append(f.calls, "batchUpdate")
		_, _ = io.WriteString(w, `{"spreadsheetId":"sheet-1","replies":[{}]}`)
	case r.Method == http.MethodPut && strings.Contains(path, "/values/"):
		f.calls = append(f.calls, "update")
		var vr sheets.ValueRange
		_ = json.Unmarshal(body, &vr)
		f.headers = vr.Values
		_, _ = io.WriteString(w, `{"spreadsheetId":"sheet-1","updatedRows":1}`)
	case r.Method == http.MethodGet && strings.Contains(path, "/values/"):
		f.calls = append(f.calls, "getValues")
		_ = json.NewEncoder(w).Encode(sheets.ValueRange{Range: "Invoices!A1:H", MajorDimension: "ROWS", Values: f.rows})
	case r.Method == http.MethodGet:
		f.calls = append(f.calls, "get")
		_, _ = io.WriteString(w, `{"spreadsheetId":"sheet-1","sheets":[{"properties":{"title":"Invoices","sheetId":7}}]}`)
	default:
		http.Error(w, `{"error":{"code":404,"message":"not found"}}`, http.StatusNotFound)
	}
}

func newTestService(t *testing.T, api *fakeSheetsAPI) *Service {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	client, err := sheets.NewService(context.Background(),
		option.WithHTTPClient(srv.Client()),
		option.WithEndpoint(srv.URL+"/"),
	)
	require.NoError(t, err)
	return NewServiceWithClient(client, "sheet-1")
}

func testExtraction(name, sha string) *models.Extraction {
	return &models.Extraction{
		Fields:         models.InvoiceFields{Date: "2024-03-01", Description: "Consulting", TaxAmount: "19.00"},
		Provenance:     "ocr",
		PageCount:      2,
		FileName:       name,
		DocumentSHA256: sha,
		ExtractedAt:    time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC),
	}
}

func TestAppendExtractions_NewSheet(t *testing.T) {
	api := &fakeSheetsAPI{}
	s := newTestService(t, api)

	require.NoError(t, s.AppendExtractions(context.Background(), "Invoices", testExtraction("scan.pdf", "abc")))

	assert.Equal(t, []string{"get", "getValues", "update", "batchUpdate", "append"}, api.calls)
	require.Len(t, api.headers, 1)
	assert.Equal(t, "file_name", api.headers[0][0])
	assert.Equal(t, digestColumn, api.headers[0][7])
	require.Len(t, api.appended, 1)
	assert.Equal(t, []interface{}{"scan.pdf", "2024-03-01", "Consulting", "19.00", "ocr", "2", "2024-03-02T10:00:00Z", "abc"}, api.appended[0])
}

func TestAppendExtractions_SkipsRecordedInvoices(t *testing.T) {
	api := &fakeSheetsAPI{rows: [][]interface{}{
		toValues(header()),
		rowValues(testExtraction("old.pdf", "abc")),
	}}
	s := newTestService(t, api)

	err := s.AppendExtractions(context.Background(), "Invoices",
		testExtraction("again.pdf", "abc"),
		testExtraction("new.pdf", "def"),
		testExtraction("new-copy.pdf", "def"),
	)
	require.NoError(t, err)

	assert.Equal(t, []string{"get", "getValues", "append"}, api.calls)
	require.Len(t, api.appended, 1)
	assert.Equal(t, "new.pdf", api.appended[0][0])
}

func TestAppendExtractions_AllRecorded(t *testing.T) {
	api := &fakeSheetsAPI{rows: [][]interface{}{
		toValues(header()),
		rowValues(testExtraction("old.pdf", "abc")),
	}}
	s := newTestService(t, api)

	require.NoError(t, s.AppendExtractions(context.Background(), "Invoices", testExtraction("again.pdf", "abc")))
	assert.Equal(t, []string{"get", "getValues"}, api.calls)
}

func TestAppendExtractions_Empty(t *testing.T) {
	s := &Service{}
	assert.NoError(t, s.AppendExtractions(context.Background(), "Invoices"))
}
