package errors

import (
	"fmt"
)

// ClearpathError is the structured error type used across the engine.
// It provides rich context for error handling, logging, and the HTTP layer.
type ClearpathError struct {
	// Code is the unique error code (e.g., "ERR_402_DIMENSION_MISMATCH").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Upstream, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool
}

// Error implements the error interface.
func (e *ClearpathError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *ClearpathError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with ClearpathError.
func (e *ClearpathError) Is(target error) bool {
	if t, ok := target.(*ClearpathError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *ClearpathError) WithDetail(key, value string) *ClearpathError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a new ClearpathError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *ClearpathError {
	return &ClearpathError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a ClearpathError from an existing error.
// The error's message becomes the ClearpathError message.
func Wrap(code string, err error) *ClearpathError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ValidationError creates a validation-related error.
// These surface to the caller with a user-visible message and are not retried.
func ValidationError(message string, cause error) *ClearpathError {
	return New(ErrCodeInvalidInput, message, cause)
}

// DimensionError creates a vector dimension mismatch error.
// Fatal at startup; aborts the ingestion on add.
func DimensionError(expected, got int) *ClearpathError {
	return New(ErrCodeDimensionMismatch,
		fmt.Sprintf("vector dimension mismatch: expected %d, got %d", expected, got), nil)
}

// UpstreamError creates an upstream-unreachable error carrying the last cause.
func UpstreamError(message string, cause error) *ClearpathError {
	return New(ErrCodeUpstreamUnavailable, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *ClearpathError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable checks if an error is retryable.
// Returns true if the error is a ClearpathError with the Retryable flag set.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if ce, ok := err.(*ClearpathError); ok {
		return ce.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors should abort the current operation.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if ce, ok := err.(*ClearpathError); ok {
		return ce.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from a ClearpathError.
// Returns empty string if not a ClearpathError.
func GetCode(err error) string {
	if ce, ok := err.(*ClearpathError); ok {
		return ce.Code
	}
	return ""
}

// GetCategory extracts the category from a ClearpathError.
// Returns empty string if not a ClearpathError.
func GetCategory(err error) Category {
	if ce, ok := err.(*ClearpathError); ok {
		return ce.Category
	}
	return ""
}
