package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"invoice-extractor/internal/cache"
	"invoice-extractor/internal/config"
	"invoice-extractor/internal/document"
	"invoice-extractor/internal/invoice"
	"invoice-extractor/internal/ocr"
	"invoice-extractor/internal/pipeline"
	"invoice-extractor/internal/raster"
	"invoice-extractor/internal/sheets"
	"invoice-extractor/internal/textlayer"
)

// app holds the long-lived collaborators shared by the commands.
type app struct {
	config   *config.Config
	engine   ocr.Engine
	pipeline *pipeline.Pipeline
	cache    cache.Client
}

// newApp builds the text extraction pipeline from cfg.
func newApp(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*app, error) {
	engine, err := ocr.NewEngine(ctx, cfg.OCREngineConfig())
	if err != nil {
		log.Error().
			Err(err).
			Str("engine", cfg.OCREngine).
			Msg("Failed to create OCR engine")
		return nil, handleEngineError(err, cfg.OCREngine)
	}

	log.Debug().
		Str("engine", engine.Name()).
		Float64("dpi", cfg.RasterDPI).
		Int("concurrency", cfg.OCRConcurrency).
		Msg("Text extraction pipeline configured")

	return &app{
		config: cfg,
		engine: engine,
		pipeline: pipeline.New(
			cfg.PipelineConfig(),
			textlayer.NewPDFExtractor(),
			raster.NewFitzRasterizer(cfg.RasterDPI),
			engine,
		),
		cache: cache.NopClient{},
	}, nil
}

// invoiceService adds the field extraction stage, the result cache and the
// optional Google Sheet on top of the pipeline.
func (a *app) invoiceService(ctx context.Context, log zerolog.Logger) (*invoice.Service, error) {
	fields, err := invoice.NewCompletionService(a.config.CompletionConfig())
	if err != nil {
		if errors.Is(err, invoice.ErrMissingAPIKey) {
			return nil, fmt.Errorf("OpenAI API key not configured. Set OPENAI_API_KEY in the environment or .env file")
		}
		return nil, fmt.Errorf("failed to create completion service: %w", err)
	}

	client, err := cache.New(a.config.CacheConfig())
	if err != nil {
		// A broken cache must not block extraction
		log.Warn().
			Err(err).
			Str("backend", a.config.CacheBackend).
			Msg("Result cache unavailable, continuing without it")
		client = cache.NopClient{}
	}
	a.cache = client

	svcConfig := invoice.ServiceConfig{
		Cache:    client,
		CacheTTL: a.config.CacheTTL,
	}

	if a.config.GoogleSheetURL != "" {
		sheet, err := sheets.NewSheetsService(ctx, a.config.GoogleSheetURL)
		if err != nil {
			log.Warn().
				Err(err).
				Msg("Google Sheet unavailable, extractions will not be recorded")
		} else {
			svcConfig.Sheet = sheet
			svcConfig.SheetName = a.config.GoogleSheetWorksheet
		}
	}

	return invoice.NewService(a.pipeline, fields, svcConfig), nil
}

// Close releases the OCR engine and cache connections.
func (a *app) Close() error {
	return errors.Join(ocr.Close(a.engine), a.cache.Close())
}

// loadConfig reads the configuration, reporting problems in CLI terms.
func loadConfig(log zerolog.Logger) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("Invalid configuration")
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// openDocument validates path and loads it as a Document.
func openDocument(path string, maxBytes int64, log zerolog.Logger) (*document.Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Error().
				Str("file", path).
				Msg("Invoice file not found")
			return nil, fmt.Errorf("file not found: %s", path)
		}
		if os.IsPermission(err) {
			log.Error().
				Str("file", path).
				Msg("Permission denied accessing invoice file")
			return nil, fmt.Errorf("permission denied accessing file: %s", path)
		}
		return nil, fmt.Errorf("error accessing file: %w", err)
	}

	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("path is not a regular file: %s", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("Failed to close invoice file")
		}
	}()

	doc, err := document.Read(path, f, "", maxBytes)
	if err != nil {
		switch {
		case errors.Is(err, document.ErrEmptyDocument):
			return nil, fmt.Errorf("file is empty: %s", path)
		case errors.Is(err, document.ErrTooLarge):
			return nil, fmt.Errorf("file too large (%d bytes). Maximum size is %d bytes", info.Size(), maxBytes)
		case errors.Is(err, document.ErrUnsupportedType):
			return nil, fmt.Errorf("unsupported file type: %s. Use a PDF, PNG, JPEG, TIFF or WebP file", path)
		default:
			return nil, fmt.Errorf("failed to read file: %w", err)
		}
	}

	log.Info().
		Str("file", path).
		Str("kind", string(doc.Kind())).
		Int("size", doc.Size()).
		Msg("Processing invoice")

	return doc, nil
}

// createContextWithTimeout creates a context with timeout and signal handling
func createContextWithTimeout(timeout time.Duration, log zerolog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			log.Info().
				Str("signal", sig.String()).
				Msg("Received interrupt signal, canceling extraction")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// handleEngineError explains OCR engine construction failures.
func handleEngineError(err error, engine string) error {
	switch {
	case errors.Is(err, ocr.ErrUnknownEngine):
		return fmt.Errorf("unknown OCR engine %q. Use one of: tesseract, vision, documentai", engine)
	case errors.Is(err, ocr.ErrMissingCredentials):
		return fmt.Errorf("Google Cloud credentials not configured. Please set one of:\n\n" +
			"1. Export GOOGLE_APPLICATION_CREDENTIALS with path to service account JSON:\n" +
			"   export GOOGLE_APPLICATION_CREDENTIALS=/path/to/service-account-key.json\n\n" +
			"2. Export GOOGLE_CREDENTIALS with inline JSON\n\n" +
			"3. Or switch to the local engine with OCR_ENGINE=tesseract")
	case errors.Is(err, ocr.ErrInvalidConfiguration):
		return fmt.Errorf("OCR engine %q is not fully configured: %w", engine, err)
	default:
		return fmt.Errorf("failed to create OCR engine: %w", err)
	}
}

// handleExtractionError provides user-friendly error messages for pipeline
// and field extraction failures
func handleExtractionError(err error, log zerolog.Logger) error {
	log.Error().Err(err).Msg("Invoice extraction failed")

	errStr := err.Error()

	var aiErr *invoice.AIResponseError

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("extraction timed out. Try increasing --timeout or lowering RASTER_DPI")
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("extraction was canceled")
	case errors.Is(err, pipeline.ErrNoExtractableText):
		return fmt.Errorf("no text could be extracted from the document. Please upload a clearer scan: %w", err)
	case errors.Is(err, pipeline.ErrRasterizationFailed):
		return fmt.Errorf("the PDF could not be rendered for OCR. Please check the file integrity: %w", err)
	case errors.As(err, &aiErr):
		return fmt.Errorf("the AI response was not valid JSON. Raw response:\n%s", aiErr.Raw)
	case errors.Is(err, invoice.ErrCompletionFailed):
		return fmt.Errorf("the language model request failed. Check OPENAI_API_KEY, OPENAI_BASE_URL and your quota: %w", err)
	case strings.Contains(errStr, "Unauthenticated") ||
		strings.Contains(errStr, "invalid_grant") ||
		strings.Contains(errStr, "transport: per-RPC creds failed"):
		return fmt.Errorf("Google Cloud authentication failed. Please check GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS.\n\n"+
			"Original error: %v", err)
	case strings.Contains(errStr, "PERMISSION_DENIED"):
		return fmt.Errorf("permission denied. Please ensure your Google Cloud service account may call the configured OCR API")
	case strings.Contains(errStr, "RESOURCE_EXHAUSTED") ||
		strings.Contains(errStr, "QUOTA_EXCEEDED"):
		return fmt.Errorf("Google Cloud OCR quota exceeded. Check your project quotas in the Google Cloud Console")
	default:
		return fmt.Errorf("extraction failed: %w", err)
	}
}

// writeOutput writes data to path, or to stdout when path is empty.
func writeOutput(data []byte, path string, log zerolog.Logger) error {
	if path != "" {
		if err := os.WriteFile(path, data, 0o644); err != nil {
			log.Error().
				Err(err).
				Str("output_file", path).
				Msg("Failed to write output file")
			return fmt.Errorf("failed to write output file: %w", err)
		}

		log.Info().
			Str("output_file", path).
			Int("bytes", len(data)).
			Msg("Results written to file")
		return nil
	}

	if _, err := os.Stdout.Write(data); err != nil {
		log.Error().Err(err).Msg("Failed to write to stdout")
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
