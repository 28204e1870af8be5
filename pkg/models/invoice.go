package models

import (
	"strconv"
	"strings"
	"time"
)

// InvoiceFields are the fields the language model pulls out of invoice text.
// Values are kept as the model wrote them; dates and amounts are not parsed.
type InvoiceFields struct {
	Date        string `json:"date"`
	Description string `json:"description"`
	TaxAmount   string `json:"tax_amount"`
}

// Extraction is the complete outcome for one uploaded document.
type Extraction struct {
	Fields InvoiceFields `json:"fields"`

	// Text provenance
	Text        string   `json:"text,omitempty"`
	Provenance  string   `json:"provenance"` // "text-layer" or "ocr"
	PageCount   int      `json:"page_count,omitempty"`
	FailedPages []int    `json:"failed_pages,omitempty"`
	Warnings    []string `json:"warnings,omitempty"`

	// Document metadata
	FileName       string    `json:"file_name"`
	DocumentSHA256 string    `json:"document_sha256"`
	ExtractedAt    time.Time `json:"extracted_at"`
	Cached         bool      `json:"cached,omitempty"`
}

// CSVHeader is the column order of CSVRecord.
var CSVHeader = []string{"file_name", "date", "description", "tax_amount", "provenance", "page_count", "extracted_at"}

// CSVRecord renders the extraction as one CSV/spreadsheet row.
func (e *Extraction) CSVRecord() []string {
	pages := ""
	if e.PageCount > 0 {
		pages = strconv.Itoa(e.PageCount)
	}
	return []string{
		e.FileName,
		e.Fields.Date,
		strings.TrimSpace(e.Fields.Description),
		e.Fields.TaxAmount,
		e.Provenance,
		pages,
		e.ExtractedAt.UTC().Format(time.RFC3339),
	}
}
