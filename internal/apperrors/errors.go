// Package apperrors classifies the failures that occur inside image
// backends. None of these errors cross the ImageSource boundary; backends
// log them and deliver a result without an image.
package apperrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Category classifies error types for logging and metrics.
type Category string

const (
	CategoryNotFound  Category = "not_found"
	CategoryDecode    Category = "decode"
	CategoryEncode    Category = "encode"
	CategoryNetwork   Category = "network"
	CategoryTransient Category = "transient"
	CategoryStorage   Category = "storage"
	CategoryConfig    Category = "config"
	CategoryCancelled Category = "cancelled"
)

// SourceError is the structured error type used by the backends.
type SourceError struct {
	Category  Category
	Op        string
	Err       error
	Retryable bool
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("[%s] %s: %v", e.Category, e.Op, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// Cause lets errors.Cause walk through a SourceError.
func (e *SourceError) Cause() error { return e.Err }

// New creates a non-retryable SourceError.
func New(category Category, op string, err error) *SourceError {
	return &SourceError{Category: category, Op: op, Err: err}
}

// Transient creates a retryable SourceError.
func Transient(op string, err error) *SourceError {
	return &SourceError{Category: CategoryTransient, Op: op, Err: err, Retryable: true}
}

// Wrap annotates err with a category and operation. It returns nil for a
// nil err.
func Wrap(category Category, op string, err error) error {
	if err == nil {
		return nil
	}
	return New(category, op, errors.WithStack(err))
}

// IsRetryable reports whether err represents a transient failure.
func IsRetryable(err error) bool {
	var se *SourceError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return false
}

// CategoryOf returns the category of the outermost SourceError in err's
// chain, or "" when there is none.
func CategoryOf(err error) Category {
	var se *SourceError
	if errors.As(err, &se) {
		return se.Category
	}
	return ""
}

// IsCategory reports whether err belongs to the given category.
func IsCategory(err error, cat Category) bool {
	return CategoryOf(err) == cat
}

// Sentinel errors for common failure modes.
var (
	ErrNoImage           = errors.New("no image delivered")
	ErrUnsupportedFormat = errors.New("unsupported image format")
	ErrInvalidDimensions = errors.New("invalid dimensions")
	ErrCancelled         = errors.New("request cancelled")
	ErrUnknownAsset      = errors.New("unknown asset")
	ErrBadStatus         = errors.New("unexpected http status")
	ErrNoBackend         = errors.New("backend not configured")
	ErrTooLarge          = errors.New("response body too large")
)
