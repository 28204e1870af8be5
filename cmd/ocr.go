package cmd

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"invoice-extractor/internal/document"
	"invoice-extractor/internal/logger"
	"invoice-extractor/internal/pipeline"
)

var ocrCmd = &cobra.Command{
	Use:   "ocr [invoice-file]",
	Short: "Extract the raw text of a PDF or image",
	Long: `Run only the text extraction pipeline on a file and print the text.

PDFs are read through their embedded text layer when it contains text.
Scanned PDFs and images are rasterized and recognized with the OCR engine
selected by OCR_ENGINE:
  tesseract  - local Tesseract (default, OCR_LANGUAGE e.g. "eng+deu")
  vision     - Google Cloud Vision document text detection
  documentai - Google Document AI OCR processor

Google engines need GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS.
No language model is called.`,
	Example: `  # Extract text from invoice.pdf to stdout
  invoice-extractor ocr invoice.pdf

  # Save extracted text to file
  invoice-extractor ocr invoice.pdf -o extracted.txt

  # Include metadata and output as JSON
  invoice-extractor ocr scan.pdf --metadata --json -o result.json

  # Process with custom timeout
  invoice-extractor ocr large-document.pdf --timeout 600`,
	Args: cobra.ExactArgs(1),
	RunE: runOCR,
}

// OCROutput represents the JSON output structure when --json flag is used
type OCROutput struct {
	Text               string    `json:"text"`
	Provenance         string    `json:"provenance"`
	PageCount          int       `json:"page_count,omitempty"`
	FailedPages        []int     `json:"failed_pages,omitempty"`
	Warnings           []string  `json:"warnings,omitempty"`
	ProcessedAt        time.Time `json:"processed_at"`
	ProcessingDuration string    `json:"processing_duration,omitempty"`
	FileName           string    `json:"file_name"`
	FileSize           int       `json:"file_size"`
}

func init() {
	rootCmd.AddCommand(ocrCmd)

	ocrCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
	ocrCmd.Flags().BoolP("metadata", "m", false, "Include metadata in output")
	ocrCmd.Flags().Bool("json", false, "Output as JSON")
	ocrCmd.Flags().Int("timeout", 300, "Processing timeout in seconds")
}

func runOCR(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("ocr")

	outputPath, _ := cmd.Flags().GetString("output")
	includeMetadata, _ := cmd.Flags().GetBool("metadata")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")

	log.Debug().
		Str("file", args[0]).
		Str("output", outputPath).
		Bool("metadata", includeMetadata).
		Bool("json", jsonOutput).
		Int("timeout", timeoutSecs).
		Msg("Starting text extraction")

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

	result, err := a.pipeline.Run(ctx, doc)
	if err != nil {
		return handleExtractionError(err, log)
	}

	log.Info().
		Str("provenance", string(result.Provenance)).
		Int("page_count", result.PageCount).
		Ints("failed_pages", result.FailedPages).
		Dur("duration", result.Duration).
		Int("text_length", len(result.Text)).
		Msg("Text extraction completed successfully")

	data, err := formatOCRResult(result, doc, jsonOutput, includeMetadata)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal JSON output")
		return fmt.Errorf("failed to create JSON output: %w", err)
	}

	return writeOutput(data, outputPath, log)
}

// formatOCRResult renders result as JSON or as plain text with an optional
// metadata header.
func formatOCRResult(result *pipeline.Result, doc *document.Document, jsonOutput, includeMetadata bool) ([]byte, error) {
	if jsonOutput {
		data, err := json.MarshalIndent(OCROutput{
			Text:               result.Text,
			Provenance:         string(result.Provenance),
			PageCount:          result.PageCount,
			FailedPages:        result.FailedPages,
			Warnings:           result.Warnings,
			ProcessedAt:        time.Now().UTC(),
			ProcessingDuration: result.Duration.String(),
			FileName:           doc.Name(),
			FileSize:           doc.Size(),
		}, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	}

	var output strings.Builder
	if includeMetadata {
		writeOCRMetadata(&output, result, doc)
	}
	output.WriteString(result.Text)
	output.WriteString("\n")
	return []byte(output.String()), nil
}

func writeOCRMetadata(b *strings.Builder, result *pipeline.Result, doc *document.Document) {
	fmt.Fprintf(b, "=== Text extraction results for %s ===\n", doc.Name())
	fmt.Fprintf(b, "File size: %d bytes\n", doc.Size())
	fmt.Fprintf(b, "Source: %s\n", result.Provenance)
	if result.PageCount > 0 {
		fmt.Fprintf(b, "Pages processed: %d\n", result.PageCount)
	}
	if len(result.FailedPages) > 0 {
		fmt.Fprintf(b, "Failed pages: %v\n", result.FailedPages)
	}
	fmt.Fprintf(b, "Processing time: %v\n", result.Duration)
	b.WriteString("\n=== Extracted Text ===\n\n")
}
