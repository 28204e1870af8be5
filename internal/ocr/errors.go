package ocr

import (
	"errors"
	"fmt"
)

// Common OCR errors
var (
	// ErrOCRFailed is returned when an engine cannot recognize an image.
	ErrOCRFailed = errors.New("OCR processing failed")

	// ErrEmptyImage is returned when an Image has neither bytes nor a readable path.
	ErrEmptyImage = errors.New("image is empty")

	// ErrImageTooLarge is returned when an image exceeds MaxImageBytes for a remote engine.
	ErrImageTooLarge = errors.New("image exceeds the maximum size limit (20MB)")

	// ErrMissingCredentials is returned when a Google engine finds no usable credentials.
	ErrMissingCredentials = errors.New("missing Google Cloud credentials: set GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS environment variable")

	// ErrUnknownEngine is returned by NewEngine for an unsupported engine name.
	ErrUnknownEngine = errors.New("unknown OCR engine")

	// ErrInvalidConfiguration is returned when an engine is missing required settings.
	ErrInvalidConfiguration = errors.New("invalid OCR engine configuration")
)

// OCRError records which engine operation failed on which image.
type OCRError struct {
	// Engine is the engine name (e.g., "tesseract", "vision").
	Engine string

	// Op is the operation that failed (e.g., "Recognize", "NewVisionEngine").
	Op string

	// Err is the underlying error.
	Err error

	// Details provides additional context about the failure.
	Details string
}

// Error implements the error interface.
func (e *OCRError) Error() string {
	prefix := "ocr"
	if e.Engine != "" {
		prefix = "ocr/" + e.Engine
	}
	if e.Details != "" {
		return fmt.Sprintf("%s: %s failed: %s: %v", prefix, e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("%s: %s failed: %v", prefix, e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *OCRError) Unwrap() error {
	return e.Err
}

// wrapError wraps err as an *OCRError unless it already is one.
func wrapError(engine, op string, err error, details string) error {
	if err == nil {
		return nil
	}

	var ocrErr *OCRError
	if errors.As(err, &ocrErr) {
		return err
	}

	return &OCRError{Engine: engine, Op: op, Err: err, Details: details}
}

// recognitionError marks err as an OCR failure so that errors.Is(err,
// ErrOCRFailed) holds while the original cause stays inspectable.
func recognitionError(engine string, err error, details string) error {
	if errors.Is(err, ErrOCRFailed) {
		return wrapError(engine, "Recognize", err, details)
	}
	return wrapError(engine, "Recognize", fmt.Errorf("%w: %w", ErrOCRFailed, err), details)
}
