// Package pipeline turns an uploaded invoice into plain text.
//
// A Pipeline runs its tiers in order until one produces text. The default
// composition reads the PDF text layer first and falls back to page-wise OCR.
// Every temporary file an invocation creates is removed before Run returns,
// on success, failure, and cancellation alike.
package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"invoice-extractor/internal/document"
	"invoice-extractor/internal/logger"
	"invoice-extractor/internal/ocr"
	"invoice-extractor/internal/raster"
	"invoice-extractor/internal/textlayer"
)

// Config holds the tunables of the default tier composition.
type Config struct {
	// WorkDir is the parent of per-invocation working directories.
	WorkDir string

	// Language is the OCR language hint (Tesseract codes, e.g. "eng+deu").
	Language string

	// OCRConcurrency bounds concurrent OCR calls within one invocation.
	OCRConcurrency int
}

// Result is the text of a document and where it came from.
type Result struct {
	Text        string        `json:"text"`
	Provenance  Provenance    `json:"provenance"`
	PageCount   int           `json:"page_count,omitempty"`
	FailedPages []int         `json:"failed_pages,omitempty"`
	Warnings    []string      `json:"warnings,omitempty"`
	Duration    time.Duration `json:"-"`
}

// Pipeline extracts text through an ordered list of tiers.
type Pipeline struct {
	tiers []Tier
	log   zerolog.Logger
}

// New creates the default pipeline: text layer, then OCR.
func New(cfg Config, extractor textlayer.Extractor, rasterizer raster.Rasterizer, engine ocr.Engine) *Pipeline {
	log := logger.WithComponent("pipeline")
	return NewWithTiers(
		NewTextLayerTier(extractor, log),
		NewOCRTier(rasterizer, engine, cfg.WorkDir, cfg.Language, cfg.OCRConcurrency, log),
	)
}

// NewWithTiers creates a pipeline from explicit tiers.
func NewWithTiers(tiers ...Tier) *Pipeline {
	return &Pipeline{
		tiers: tiers,
		log:   logger.WithComponent("pipeline"),
	}
}

// Run extracts the text of doc. Errors classify as ErrRasterizationFailed,
// ErrNoExtractableText or a context error.
func (p *Pipeline) Run(ctx context.Context, doc *document.Document) (*Result, error) {
	start := time.Now()
	log := logger.WithDocument(p.log, doc.Name(), doc.SHA256()).With().
		Str("kind", string(doc.Kind())).
		Logger()

	var failures []PageFailure
	var warnings []string
	pageCount := 0

	for _, tier := range p.tiers {
		attempt, ok, err := tier.TryExtract(log.WithContext(ctx), doc)
		if err != nil {
			log.Error().Err(err).Str("tier", string(tier.Provenance())).Msg("Extraction failed")
			return nil, err
		}

		failures = append(failures, attempt.Failures...)
		warnings = append(warnings, attempt.Warnings...)
		if attempt.PageCount > 0 {
			pageCount = attempt.PageCount
		}

		text := strings.TrimSpace(attempt.Text)
		if !ok || text == "" {
			continue
		}

		result := &Result{
			Text:       text,
			Provenance: tier.Provenance(),
			PageCount:  pageCount,
			Warnings:   warnings,
			Duration:   time.Since(start),
		}
		for _, f := range failures {
			result.FailedPages = append(result.FailedPages, f.Page)
		}

		log.Info().
			Str("provenance", string(result.Provenance)).
			Int("chars", len(result.Text)).
			Int("pages", result.PageCount).
			Ints("failed_pages", result.FailedPages).
			Dur("duration", result.Duration).
			Msg("Text extracted")
		return result, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	log.Warn().Int("failed_pages", len(failures)).Msg("No extractable text")
	return nil, noTextError(failures)
}
