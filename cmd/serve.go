package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"invoice-extractor/internal/logger"
	"invoice-extractor/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the invoice extraction API over HTTP",
	Long: `Start an HTTP server exposing the extraction pipeline.

Endpoints:
  GET  /          service information
  GET  /health    liveness check
  POST /extract   multipart upload (field "invoice" or "file"); returns the
                  invoice date, description and tax amount as JSON, or as
                  CSV with ?format=csv. Add ?text=true to include the
                  extracted text and its provenance.

Settings come from the environment (HTTP_ADDR, REQUEST_TIMEOUT,
MAX_UPLOAD_BYTES, OCR_ENGINE, OPENAI_API_KEY, CACHE_BACKEND, ...).`,
	Example: `  # Listen on the configured address
  invoice-extractor serve

  # Override the listen address
  invoice-extractor serve --addr :9090`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "Listen address (default: HTTP_ADDR)")
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("serve")

	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.HTTPAddr = addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	srv := server.New(svc, cfg.ServerOptions(version))
	return srv.ListenAndServe(ctx)
}
