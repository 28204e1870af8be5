package cmd

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"invoice-extractor/internal/logger"
	"invoice-extractor/pkg/models"
)

var extractCmd = &cobra.Command{
	Use:   "extract [invoice-file]",
	Short: "Extract invoice date, description and tax amount from a file",
	Long: `Run the full extraction on one invoice: read the PDF text layer or OCR the
pages, then ask the language model for the invoice fields.

Accepted inputs are PDF files and images (PNG, JPEG, TIFF, WebP).

Required environment variables:
  OPENAI_API_KEY - API key for the OpenAI-compatible endpoint

Optional:
  OPENAI_BASE_URL, OPENAI_MODEL - alternative endpoint and model
  OCR_ENGINE                    - tesseract (default), vision or documentai
  GOOGLE_SHEET_URL              - also append the result to this sheet`,
	Example: `  # Print the fields as a table
  invoice-extractor extract invoice.pdf

  # Write JSON including the extracted text
  invoice-extractor extract invoice.pdf --json --text -o invoice.json

  # Write a CSV row with header
  invoice-extractor extract scan.png --csv -o invoice_data.csv`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
	extractCmd.Flags().Bool("json", false, "Output as JSON")
	extractCmd.Flags().Bool("csv", false, "Output as CSV")
	extractCmd.Flags().Bool("text", false, "Include the extracted text in JSON output")
	extractCmd.Flags().Int("timeout", 300, "Processing timeout in seconds")
}

func runExtract(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("extract")

	outputPath, _ := cmd.Flags().GetString("output")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	csvOutput, _ := cmd.Flags().GetBool("csv")
	includeText, _ := cmd.Flags().GetBool("text")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")

	if jsonOutput && csvOutput {
		return fmt.Errorf("--json and --csv are mutually exclusive")
	}

	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}

	doc, err := openDocument(args[0], cfg.MaxUploadBytes, log)
	if err != nil {
		return err
	}

	ctx, cancel := createContextWithTimeout(time.Duration(timeoutSecs)*time.Second, log)
	defer cancel()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("Failed to release resources")
		}
	}()

	svc, err := a.invoiceService(ctx, log)
	if err != nil {
		return err
	}

	extraction, err := svc.Process(ctx, doc)
	if err != nil {
		return handleExtractionError(err, log)
	}

	for _, w := range extraction.Warnings {
		log.Warn().Str("file", doc.Name()).Msg(w)
	}

	var data []byte
	switch {
	case jsonOutput:
		data, err = formatExtractionJSON(extraction, includeText)
	case csvOutput:
		data, err = formatExtractionCSV(extraction)
	default:
		data = formatExtractionText(extraction)
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to format output")
		return fmt.Errorf("failed to format output: %w", err)
	}

	return writeOutput(data, outputPath, log)
}

func formatExtractionJSON(e *models.Extraction, includeText bool) ([]byte, error) {
	out := *e
	if !includeText {
		out.Text = ""
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func formatExtractionCSV(e *models.Extraction) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(models.CSVHeader); err != nil {
		return nil, err
	}
	if err := w.Write(e.CSVRecord()); err != nil {
		return nil, err
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func formatExtractionText(e *models.Extraction) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "=== Invoice %s ===\n", e.FileName)
	fmt.Fprintf(&b, "Date:        %s\n", e.Fields.Date)
	fmt.Fprintf(&b, "Description: %s\n", e.Fields.Description)
	fmt.Fprintf(&b, "Tax amount:  %s\n", e.Fields.TaxAmount)
	fmt.Fprintf(&b, "Source:      %s (%d pages)\n", e.Provenance, e.PageCount)
	if len(e.FailedPages) > 0 {
		fmt.Fprintf(&b, "Failed pages: %v\n", e.FailedPages)
	}
	if e.Cached {
		b.WriteString("(cached result)\n")
	}
	return b.Bytes()
}
