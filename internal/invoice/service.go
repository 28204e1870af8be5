// Package invoice turns an uploaded invoice into structured fields.
//
// Text comes from the extraction pipeline (PDF text layer or OCR); the fields
// come from an OpenAI-compatible chat completion with a fixed prompt.
//
// Environment Variables (read by the config package):
//   - OPENAI_API_KEY: required
//   - OPENAI_BASE_URL: optional OpenAI-compatible endpoint
//   - OPENAI_MODEL: default gpt-4
//   - COMPLETION_MAX_RETRIES: default 3
package invoice

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"invoice-extractor/internal/cache"
	"invoice-extractor/internal/document"
	"invoice-extractor/internal/logger"
	"invoice-extractor/internal/pipeline"
	"invoice-extractor/pkg/models"
)

// TextExtractor produces the plain text of a document.
type TextExtractor interface {
	Run(ctx context.Context, doc *document.Document) (*pipeline.Result, error)
}

// RowAppender records finished extractions, e.g. in a Google Sheet.
type RowAppender interface {
	AppendExtractions(ctx context.Context, sheetName string, extractions ...*models.Extraction) error
}

// ServiceConfig holds the optional collaborators of a Service.
type ServiceConfig struct {
	Cache    cache.Client  // nil disables caching
	CacheTTL time.Duration // default 24h

	Sheet     RowAppender // nil disables sheet export
	SheetName string
}

// Service runs text extraction and field extraction for one document.
type Service struct {
	text   TextExtractor
	fields FieldExtractor
	config ServiceConfig
	now    func() time.Time
	log    zerolog.Logger
}

// NewService creates an invoice service.
func NewService(text TextExtractor, fields FieldExtractor, config ServiceConfig) *Service {
	if config.Cache == nil {
		config.Cache = cache.NopClient{}
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = 24 * time.Hour
	}
	if config.SheetName == "" {
		config.SheetName = "Invoices"
	}
	return &Service{
		text:   text,
		fields: fields,
		config: config,
		now:    time.Now,
		log:    logger.WithComponent("invoice"),
	}
}

// Process extracts the fields of doc. Pipeline errors are returned unchanged
// so callers can classify them with errors.Is.
func (s *Service) Process(ctx context.Context, doc *document.Document) (*models.Extraction, error) {
	const op = "Process"

	log := logger.WithDocument(s.log, doc.Name(), doc.SHA256())

	if cached, ok := s.lookup(ctx, doc, log); ok {
		return cached, nil
	}

	result, err := s.text.Run(ctx, doc)
	if err != nil {
		return nil, err
	}

	fields, err := s.fields.ExtractFields(ctx, result.Text)
	if err != nil {
		return nil, WrapInvoiceProcessingError(op, err, "field extraction failed")
	}

	extraction := &models.Extraction{
		Fields:         *fields,
		Text:           result.Text,
		Provenance:     string(result.Provenance),
		PageCount:      result.PageCount,
		FailedPages:    result.FailedPages,
		Warnings:       result.Warnings,
		FileName:       doc.Name(),
		DocumentSHA256: doc.SHA256(),
		ExtractedAt:    s.now().UTC(),
	}

	s.store(ctx, extraction, log)

	if s.config.Sheet != nil {
		if err := s.config.Sheet.AppendExtractions(ctx, s.config.SheetName, extraction); err != nil {
			log.Warn().Err(err).Msg("Failed to append extraction to sheet")
		}
	}

	log.Info().
		Str("provenance", extraction.Provenance).
		Str("date", extraction.Fields.Date).
		Str("tax_amount", extraction.Fields.TaxAmount).
		Msg("Invoice processed")

	return extraction, nil
}

func cacheKey(doc *document.Document) string {
	return "extraction:" + doc.SHA256()
}

func (s *Service) lookup(ctx context.Context, doc *document.Document, log zerolog.Logger) (*models.Extraction, bool) {
	data, err := s.config.Cache.Get(ctx, cacheKey(doc))
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			log.Warn().Err(err).Msg("Cache lookup failed")
		}
		return nil, false
	}

	var extraction models.Extraction
	if err := json.Unmarshal(data, &extraction); err != nil {
		log.Warn().Err(err).Msg("Discarding undecodable cache entry")
		_ = s.config.Cache.Delete(ctx, cacheKey(doc))
		return nil, false
	}

	extraction.FileName = doc.Name()
	extraction.Cached = true
	log.Debug().Msg("Cache hit")
	return &extraction, true
}

func (s *Service) store(ctx context.Context, extraction *models.Extraction, log zerolog.Logger) {
	data, err := json.Marshal(extraction)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to encode extraction for cache")
		return
	}
	if err := s.config.Cache.Set(ctx, "extraction:"+extraction.DocumentSHA256, data, s.config.CacheTTL); err != nil {
		log.Warn().Err(err).Msg("Failed to cache extraction")
	}
}
