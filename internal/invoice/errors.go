package invoice

import (
	"errors"
	"fmt"
)

// Common field extraction errors
var (
	// ErrMissingAPIKey is returned when no OpenAI API key is configured.
	ErrMissingAPIKey = errors.New("OPENAI_API_KEY is not set")

	// ErrEmptyText is returned when there is no invoice text to send.
	ErrEmptyText = errors.New("invoice text is empty")

	// ErrCompletionFailed is returned when every completion attempt failed.
	ErrCompletionFailed = errors.New("AI completion failed")

	// ErrInvalidAIResponse is returned when the model reply is not the expected JSON object.
	ErrInvalidAIResponse = errors.New("AI response not in JSON format")
)

// InvoiceProcessingError wraps errors with the failing operation.
type InvoiceProcessingError struct {
	// Op is the operation that failed (e.g., "ExtractFields", "Process").
	Op string

	// Err is the underlying error.
	Err error

	// Details provides additional context about the failure.
	Details string
}

// Error implements the error interface.
func (e *InvoiceProcessingError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("invoice: %s failed: %s: %v", e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("invoice: %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *InvoiceProcessingError) Unwrap() error {
	return e.Err
}

// WrapInvoiceProcessingError wraps an error as an InvoiceProcessingError if it isn't already one.
func WrapInvoiceProcessingError(op string, err error, details string) error {
	if err == nil {
		return nil
	}

	var invoiceErr *InvoiceProcessingError
	if errors.As(err, &invoiceErr) {
		return err
	}

	return &InvoiceProcessingError{Op: op, Err: err, Details: details}
}

// AIResponseError keeps the raw model reply that could not be decoded so
// callers can show it, the way the HTTP API returns it under "raw".
type AIResponseError struct {
	Raw string
	Err error
}

// Error implements the error interface.
func (e *AIResponseError) Error() string {
	return fmt.Sprintf("%v: %v", ErrInvalidAIResponse, e.Err)
}

// Unwrap returns the decode error.
func (e *AIResponseError) Unwrap() error {
	return e.Err
}

// Is reports ErrInvalidAIResponse as a match.
func (e *AIResponseError) Is(target error) bool {
	return target == ErrInvalidAIResponse
}
