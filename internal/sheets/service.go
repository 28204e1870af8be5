// Package sheets records extraction results as rows of a Google Sheet.
//
// Each row is models.Extraction.CSVRecord followed by the document SHA-256.
// The digest column lets Append skip invoices that were already recorded,
// e.g. when the same file is uploaded again after its cache entry expired.
package sheets

import (
	"context"
	"fmt"
	"os"
	"regexp"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"invoice-extractor/internal/logger"
	"invoice-extractor/pkg/models"
)

// digestColumn is appended to models.CSVHeader in the sheet.
const digestColumn = "document_sha256"

var spreadsheetIDPattern = regexp.MustCompile(`/spreadsheets/d/([a-zA-Z0-9-_]+)`)

// Service appends extractions to one spreadsheet.
type Service struct {
	api           *sheets.Service
	spreadsheetID string
	log           zerolog.Logger
}

// NewSheetsService connects to the spreadsheet at sheetURL. Inline
// GOOGLE_CREDENTIALS take precedence; otherwise Application Default
// Credentials are used, which includes GOOGLE_APPLICATION_CREDENTIALS.
func NewSheetsService(ctx context.Context, sheetURL string) (*Service, error) {
	const op = "NewSheetsService"

	spreadsheetID, err := extractSpreadsheetID(sheetURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var creds *google.Credentials
	if inline := os.Getenv("GOOGLE_CREDENTIALS"); inline != "" {
		creds, err = google.CredentialsFromJSON(ctx, []byte(inline), sheets.SpreadsheetsScope)
	} else {
		creds, err = google.FindDefaultCredentials(ctx, sheets.SpreadsheetsScope)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: no usable Google credentials: %w", op, err)
	}

	api, err := sheets.NewService(ctx, option.WithCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create sheets client: %w", op, err)
	}

	return NewServiceWithClient(api, spreadsheetID), nil
}

// NewServiceWithClient wraps an existing Sheets API client.
func NewServiceWithClient(api *sheets.Service, spreadsheetID string) *Service {
	return &Service{
		api:           api,
		spreadsheetID: spreadsheetID,
		log:           logger.WithComponent("sheets").With().Str("spreadsheet_id", spreadsheetID).Logger(),
	}
}

func extractSpreadsheetID(url string) (string, error) {
	matches := spreadsheetIDPattern.FindStringSubmatch(url)
	if len(matches) < 2 {
		return "", fmt.Errorf("invalid Google Sheets URL %q", url)
	}
	return matches[1], nil
}

// AppendExtractions adds one row per extraction to sheetName, creating the
// sheet and its header row on first use. Extractions whose document digest
// is already in the sheet are skipped.
func (s *Service) AppendExtractions(ctx context.Context, sheetName string, extractions ...*models.Extraction) error {
	const op = "AppendExtractions"

	if len(extractions) == 0 {
		return nil
	}

	sheetID, err := s.ensureSheet(ctx, sheetName)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	rows, err := s.readRows(ctx, sheetName)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if len(rows) == 0 || len(rows[0]) == 0 {
		if err := s.writeHeader(ctx, sheetName, sheetID); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	recorded := recordedDigests(rows)
	values := make([][]interface{}, 0, len(extractions))
	for _, e := range extractions {
		if e.DocumentSHA256 != "" && recorded[e.DocumentSHA256] {
			s.log.Debug().Str("document", e.FileName).Msg("Invoice already recorded, skipping row")
			continue
		}
		if e.DocumentSHA256 != "" {
			recorded[e.DocumentSHA256] = true
		}
		values = append(values, rowValues(e))
	}
	if len(values) == 0 {
		return nil
	}

	_, err = s.api.Spreadsheets.Values.Append(s.spreadsheetID, sheetName+"!"+columnRange(), &sheets.ValueRange{Values: values}).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("%s: append rows: %w", op, err)
	}

	s.log.Info().
		Str("sheet", sheetName).
		Int("rows", len(values)).
		Int("skipped", len(extractions)-len(values)).
		Msg("Recorded extractions in Google Sheet")
	return nil
}

// ensureSheet returns the id of sheetName, adding the sheet if missing.
func (s *Service) ensureSheet(ctx context.Context, sheetName string) (int64, error) {
	spreadsheet, err := s.api.Spreadsheets.Get(s.spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("get spreadsheet: %w", err)
	}
	for _, sheet := range spreadsheet.Sheets {
		if sheet.Properties != nil && sheet.Properties.Title == sheetName {
			return sheet.Properties.SheetId, nil
		}
	}

	s.log.Info().Str("sheet", sheetName).Msg("Creating sheet")
	resp, err := s.api.Spreadsheets.BatchUpdate(s.spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{
			{AddSheet: &sheets.AddSheetRequest{Properties: &sheets.SheetProperties{Title: sheetName}}},
		},
	}).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("add sheet %s: %w", sheetName, err)
	}
	if len(resp.Replies) > 0 && resp.Replies[0].AddSheet != nil && resp.Replies[0].AddSheet.Properties != nil {
		return resp.Replies[0].AddSheet.Properties.SheetId, nil
	}
	return 0, nil
}

func (s *Service) readRows(ctx context.Context, sheetName string) ([][]interface{}, error) {
	resp, err := s.api.Spreadsheets.Values.Get(s.spreadsheetID, sheetName+"!"+columnRange()).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	return resp.Values, nil
}

// writeHeader writes the header row, then bolds and freezes it. Formatting
// failures are only logged.
func (s *Service) writeHeader(ctx context.Context, sheetName string, sheetID int64) error {
	headerRange := fmt.Sprintf("%s!A1:%s1", sheetName, lastColumn())
	_, err := s.api.Spreadsheets.Values.Update(s.spreadsheetID, headerRange, &sheets.ValueRange{
		Values: [][]interface{}{toValues(header())},
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	columns := int64(len(header()))
	_, err = s.api.Spreadsheets.BatchUpdate(s.spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{
			{
				RepeatCell: &sheets.RepeatCellRequest{
					Range: &sheets.GridRange{SheetId: sheetID, StartRowIndex: 0, EndRowIndex: 1, EndColumnIndex: columns},
					Cell: &sheets.CellData{
						UserEnteredFormat: &sheets.CellFormat{TextFormat: &sheets.TextFormat{Bold: true}},
					},
					Fields: "userEnteredFormat.textFormat.bold",
				},
			},
			{
				UpdateSheetProperties: &sheets.UpdateSheetPropertiesRequest{
					Properties: &sheets.SheetProperties{
						SheetId:        sheetID,
						GridProperties: &sheets.GridProperties{FrozenRowCount: 1},
					},
					Fields: "gridProperties.frozenRowCount",
				},
			},
		},
	}).Context(ctx).Do()
	if err != nil {
		s.log.Warn().Err(err).Str("sheet", sheetName).Msg("Failed to format header row")
	}
	return nil
}

func header() []string {
	return append(append([]string{}, models.CSVHeader...), digestColumn)
}

func rowValues(e *models.Extraction) []interface{} {
	return toValues(append(e.CSVRecord(), e.DocumentSHA256))
}

// recordedDigests collects the digest column of every data row.
func recordedDigests(rows [][]interface{}) map[string]bool {
	digestIdx := len(models.CSVHeader)
	seen := make(map[string]bool)
	for i, row := range rows {
		if i == 0 || len(row) <= digestIdx {
			continue
		}
		if digest, ok := row[digestIdx].(string); ok && digest != "" {
			seen[digest] = true
		}
	}
	return seen
}

func toValues(record []string) []interface{} {
	out := make([]interface{}, len(record))
	for i, v := range record {
		out[i] = v
	}
	return out
}

func lastColumn() string {
	return string(rune('A' + len(header()) - 1))
}

func columnRange() string {
	return "A:" + lastColumn()
}
