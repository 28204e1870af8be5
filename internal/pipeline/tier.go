package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"invoice-extractor/internal/document"
	"invoice-extractor/internal/ocr"
	"invoice-extractor/internal/raster"
	"invoice-extractor/internal/textlayer"
)

// Provenance tells where the text of a Result came from.
type Provenance string

const (
	ProvenanceTextLayer Provenance = "text-layer"
	ProvenanceOCR       Provenance = "ocr"
)

// Attempt is what a tier produced for a document.
type Attempt struct {
	Text      string
	PageCount int
	Failures  []PageFailure
	Warnings  []string
}

// Tier is one extraction strategy. TryExtract reports ok=false when the tier
// does not apply or found no text, letting the next tier run. A non-nil
// error is fatal for the whole invocation.
type Tier interface {
	Provenance() Provenance
	TryExtract(ctx context.Context, doc *document.Document) (attempt Attempt, ok bool, err error)
}

// TextLayerTier reads the embedded text of PDFs.
type TextLayerTier struct {
	extractor textlayer.Extractor
	log       zerolog.Logger
}

// NewTextLayerTier creates the text-layer tier.
func NewTextLayerTier(extractor textlayer.Extractor, log zerolog.Logger) *TextLayerTier {
	return &TextLayerTier{extractor: extractor, log: log}
}

func (t *TextLayerTier) Provenance() Provenance { return ProvenanceTextLayer }

// TryExtract never fails: an unreadable text layer only means OCR is next.
func (t *TextLayerTier) TryExtract(ctx context.Context, doc *document.Document) (Attempt, bool, error) {
	if doc.Kind() != document.KindPDF {
		return Attempt{}, false, nil
	}

	text, err := t.extractor.ExtractText(ctx, doc.Bytes())
	if err != nil {
		t.log.Info().Err(err).Msg("Text layer unavailable, falling back to OCR")
		return Attempt{}, false, nil
	}

	text = strings.TrimSpace(text)
	if text == "" {
		t.log.Debug().Msg("Text layer is empty, falling back to OCR")
		return Attempt{}, false, nil
	}
	return Attempt{Text: text}, true, nil
}

// OCRTier rasterizes PDF pages and recognizes them concurrently. Image
// documents go to the engine as a single page.
type OCRTier struct {
	rasterizer  raster.Rasterizer
	engine      ocr.Engine
	workRoot    string
	language    string
	concurrency int
	log         zerolog.Logger
}

// NewOCRTier creates the OCR tier. Working directories are created under
// workRoot (os.TempDir when empty).
func NewOCRTier(rasterizer raster.Rasterizer, engine ocr.Engine, workRoot, language string, concurrency int, log zerolog.Logger) *OCRTier {
	if concurrency < 1 {
		concurrency = 1
	}
	if language == "" {
		language = ocr.DefaultLanguage
	}
	return &OCRTier{
		rasterizer:  rasterizer,
		engine:      engine,
		workRoot:    workRoot,
		language:    language,
		concurrency: concurrency,
		log:         log,
	}
}

func (t *OCRTier) Provenance() Provenance { return ProvenanceOCR }

func (t *OCRTier) TryExtract(ctx context.Context, doc *document.Document) (Attempt, bool, error) {
	if doc.Kind() == document.KindImage {
		return t.recognizeImage(ctx, doc)
	}
	return t.recognizePDF(ctx, doc)
}

func (t *OCRTier) recognizeImage(ctx context.Context, doc *document.Document) (Attempt, bool, error) {
	attempt := Attempt{PageCount: 1}

	text, err := t.engine.Recognize(ctx, ocr.Image{Data: doc.Bytes(), MimeType: doc.MimeType()}, t.language)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return attempt, false, ctxErr
		}
		t.log.Warn().Err(err).Msg("OCR failed")
		attempt.Failures = []PageFailure{{Page: 1, Err: err}}
		return attempt, false, nil
	}

	attempt.Text = strings.TrimSpace(text)
	return attempt, attempt.Text != "", nil
}

func (t *OCRTier) recognizePDF(ctx context.Context, doc *document.Document) (Attempt, bool, error) {
	data := doc.Bytes()

	n, err := t.rasterizer.PageCount(ctx, data)
	if err != nil {
		return Attempt{}, false, rasterizationError("PageCount", 0, err)
	}

	wd, err := newWorkDir(t.workRoot, t.log)
	if err != nil {
		return Attempt{}, false, rasterizationError("CreateWorkDir", 0, err)
	}
	defer wd.Release()

	images := make([]*pageImage, 0, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return Attempt{}, false, err
		}
		path, err := t.rasterizer.Rasterize(ctx, data, i, wd.Path())
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Attempt{}, false, ctxErr
			}
			return Attempt{}, false, rasterizationError("Rasterize", i+1, err)
		}
		images = append(images, &pageImage{page: i + 1, path: path})
	}

	texts, errs := t.recognizePages(ctx, images)
	if err := ctx.Err(); err != nil {
		return Attempt{}, false, err
	}

	attempt := Attempt{PageCount: n}
	parts := make([]string, 0, n)
	for i := range images {
		page := i + 1
		if errs[i] != nil {
			attempt.Failures = append(attempt.Failures, PageFailure{Page: page, Err: errs[i]})
			attempt.Warnings = append(attempt.Warnings, fmt.Sprintf("page %d: OCR failed: %v", page, errs[i]))
			continue
		}
		text := strings.TrimSpace(texts[i])
		if text == "" {
			t.log.Debug().Int("page", page).Msg("No text recognized on page")
			continue
		}
		parts = append(parts, text)
	}

	attempt.Text = strings.TrimSpace(strings.Join(parts, "\n"))
	if len(attempt.Failures) > 0 && attempt.Text != "" {
		t.log.Warn().
			Int("failed_pages", len(attempt.Failures)).
			Int("pages", n).
			Msg("OCR failed on some pages, result is partial")
	}
	return attempt, attempt.Text != "", nil
}

// recognizePages runs OCR on every image and waits for all of them. Results
// are stored by page index, so completion order does not matter.
func (t *OCRTier) recognizePages(ctx context.Context, images []*pageImage) ([]string, []error) {
	texts := make([]string, len(images))
	errs := make([]error, len(images))

	var g errgroup.Group
	g.SetLimit(t.concurrency)

	for i, img := range images {
		g.Go(func() error {
			defer img.Release()

			if err := ctx.Err(); err != nil {
				errs[i] = err
				return nil
			}

			text, err := t.engine.Recognize(ctx, ocr.Image{Path: img.path}, t.language)
			if err != nil && !errors.Is(err, ErrOCRFailed) && ctx.Err() == nil {
				err = fmt.Errorf("%w: %w", ErrOCRFailed, err)
			}
			texts[i], errs[i] = text, err

			t.log.Debug().
				Int("page", img.page).
				Int("chars", len(text)).
				Err(err).
				Msg("Page recognized")

			// failures are per page; siblings keep running
			return nil
		})
	}

	_ = g.Wait()
	return texts, errs
}
