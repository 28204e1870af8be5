package pipeline

import (
	"errors"
	"fmt"

	"invoice-extractor/internal/ocr"
	"invoice-extractor/internal/raster"
	"invoice-extractor/internal/textlayer"
)

// Failure classes reported by Run. TextLayerUnavailable never escapes Run;
// it is exported so tiers and tests can refer to it.
var (
	// ErrNoExtractableText is returned when every tier finished without text.
	ErrNoExtractableText = errors.New("no extractable text")

	ErrTextLayerUnavailable = textlayer.ErrTextLayerUnavailable
	ErrRasterizationFailed  = raster.ErrRasterizationFailed
	ErrOCRFailed            = ocr.ErrOCRFailed
)

// PipelineError carries the failing operation and, when known, the page.
type PipelineError struct {
	// Op is the operation that failed (e.g., "Rasterize", "Run").
	Op string

	// Page is the 1-based page number, or 0 when the failure is not page specific.
	Page int

	// Err is the underlying error.
	Err error

	// Details provides additional context about the failure.
	Details string
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	msg := fmt.Sprintf("pipeline: %s failed", e.Op)
	if e.Page > 0 {
		msg += fmt.Sprintf(" on page %d", e.Page)
	}
	if e.Details != "" {
		msg += ": " + e.Details
	}
	return fmt.Sprintf("%s: %v", msg, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// PageFailure records a page whose OCR did not produce text.
type PageFailure struct {
	Page int // 1-based
	Err  error
}

// rasterizationError ensures err classifies as ErrRasterizationFailed.
func rasterizationError(op string, page int, err error) error {
	if !errors.Is(err, ErrRasterizationFailed) {
		err = fmt.Errorf("%w: %w", ErrRasterizationFailed, err)
	}
	return &PipelineError{Op: op, Page: page, Err: err}
}

// noTextError builds the NoExtractableText outcome, keeping page failures
// reachable through errors.Is/As.
func noTextError(failures []PageFailure) error {
	if len(failures) == 0 {
		return &PipelineError{Op: "Run", Err: ErrNoExtractableText, Details: "document contains no readable text"}
	}

	errs := make([]error, 0, len(failures))
	for _, f := range failures {
		errs = append(errs, fmt.Errorf("page %d: %w", f.Page, f.Err))
	}
	return &PipelineError{
		Op:      "Run",
		Err:     fmt.Errorf("%w: %w", ErrNoExtractableText, errors.Join(errs...)),
		Details: fmt.Sprintf("OCR failed on %d page(s)", len(failures)),
	}
}
