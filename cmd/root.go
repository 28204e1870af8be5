package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"invoice-extractor/internal/logger"
)

var version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:   "invoice-extractor",
	Short: "Extract date, description and tax amount from invoices",
	Long: `invoice-extractor turns invoice PDFs and scans into structured data.

Text is read from the PDF text layer when one exists. Otherwise every page
is rasterized and recognized with OCR (tesseract, Google Cloud Vision or
Document AI). The text is then sent to an OpenAI-compatible model which
returns the invoice date, a short description and the tax amount.

Run "serve" to expose the pipeline over HTTP, or "extract" and "ocr" to
process a single file from the command line.`,
	Version: version,
	Run: func(cmd *cobra.Command, args []string) {
		log := logger.WithComponent("root")
		log.Debug().
			Str("version", version).
			Msg("invoice-extractor executed without subcommand")

		_ = cmd.Help()
	},
}

func Execute() {
	log := logger.WithComponent("cmd")

	if err := rootCmd.Execute(); err != nil {
		log.Error().
			Err(err).
			Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().BoolP("version", "v", false, "Print version information")
}
