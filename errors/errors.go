// Package errors defines the categorised error type shared by every layer
// of the conversion service.
package errors

import (
	"context"
	"errors"
	"fmt"
)

// Category classifies error types for targeted handling and monitoring.
// Category values are part of the HTTP error body and must stay stable.
type Category string

const (
	CategoryValidation        Category = "validation"
	CategoryUnsupportedSource Category = "unsupported_source"
	CategoryUnsupportedTarget Category = "unsupported_target"
	CategoryDecode            Category = "decode"
	CategoryEncode            Category = "encode"
	CategoryNotFound          Category = "not_found"
	CategoryMalformedID       Category = "malformed_id"
	CategoryExhausted         Category = "exhausted"
	CategoryStorage           Category = "storage"
	CategoryConfig            Category = "config"
	CategoryCanceled          Category = "canceled"
	CategoryInternal          Category = "internal"
)

// ProcessingError is the structured error type used throughout the module.
type ProcessingError struct {
	Category  Category
	Op        string // operation name
	Err       error
	Retryable bool
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("[%s] %s: %v", e.Category, e.Op, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// New creates a non-retryable ProcessingError.
func New(category Category, op string, err error) *ProcessingError {
	return &ProcessingError{Category: category, Op: op, Err: err}
}

// Transient creates a retryable storage error. Nothing in the service
// retries on its own; the flag only tells callers that asking again later
// may succeed.
func Transient(op string, err error) *ProcessingError {
	return &ProcessingError{Category: CategoryStorage, Op: op, Err: err, Retryable: true}
}

// Wrap wraps an existing error with context. An error that already carries
// a category keeps it; context cancellation is always reported as
// CategoryCanceled.
func Wrap(category Category, op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return &ProcessingError{Category: pe.Category, Op: op, Err: err, Retryable: pe.Retryable}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		category = CategoryCanceled
	}
	return New(category, op, err)
}

// IsRetryable reports whether err represents a transient failure.
func IsRetryable(err error) bool {
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

// IsCategory reports whether err belongs to the given category.
func IsCategory(err error, cat Category) bool {
	return CategoryOf(err) == cat
}

// CategoryOf returns the category of the outermost ProcessingError in the
// chain, or CategoryInternal when err carries none.
func CategoryOf(err error) Category {
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe.Category
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return CategoryCanceled
	}
	return CategoryInternal
}

// Sentinel errors for common failure modes.
var (
	ErrUnsupportedFormat  = errors.New("unsupported image format")
	ErrInvalidDimensions  = errors.New("invalid dimensions")
	ErrEmptyInput         = errors.New("empty input")
	ErrInputTooLarge      = errors.New("input exceeds maximum upload size")
	ErrTooManyPixels      = errors.New("image exceeds maximum pixel count")
	ErrInvalidQuality     = errors.New("quality must be between 1 and 100")
	ErrNotFound           = errors.New("result not found")
	ErrMalformedID        = errors.New("malformed identifier")
	ErrStoreFull          = errors.New("result store is full")
	ErrWorkerPoolFull     = errors.New("worker pool queue full")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrIDCollision        = errors.New("could not allocate a unique identifier")
	ErrChecksum           = errors.New("stored payload checksum mismatch")
)
