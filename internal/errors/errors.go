// Package errors provides the error taxonomy shared by the builder packages.
package errors

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors. Callers wrap them with %w and classify with errors.Is.
var (
	ErrValidation        = errors.New("validation failed")
	ErrPlanning          = errors.New("planning failed")
	ErrMalformedPlan     = errors.New("malformed plan")
	ErrArtifact          = errors.New("artifact generation failed")
	ErrPersistence       = errors.New("persistence failed")
	ErrUnauthorized      = errors.New("not authorized")
	ErrUnauthenticated   = errors.New("not authenticated")
	ErrNotFound          = errors.New("resource not found")
	ErrConflict          = errors.New("conflict")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrTimeout           = errors.New("operation timed out")
	ErrRateLimit         = errors.New("rate limit exceeded")
	ErrUnavailable       = errors.New("service unavailable")
)

// Validation returns a validation error with a formatted detail message.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// APIError represents an error from an external API call.
type APIError struct {
	Service    string
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s API error (status %d): %s: %v", e.Service, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("%s API error (status %d): %s", e.Service, e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error { return e.Err }

// NewAPIError creates a new API error.
func NewAPIError(service string, statusCode int, message string) *APIError {
	return &APIError{Service: service, StatusCode: statusCode, Message: message}
}

// IsRetryable returns true if the error is likely transient and worth retrying.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429, 500, 502, 503, 504:
			return true
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrRateLimit) || errors.Is(err, ErrUnavailable)
}

// Kind names the taxonomy bucket of err, used for metrics labels and problem types.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, ErrUnauthorized):
		return "authorization"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict), errors.Is(err, ErrInvalidTransition):
		return "conflict"
	case errors.Is(err, ErrPlanning), errors.Is(err, ErrMalformedPlan):
		return "planning"
	case errors.Is(err, ErrArtifact):
		return "artifact"
	case errors.Is(err, ErrPersistence):
		return "persistence"
	default:
		return "internal"
	}
}

// Re-exports so callers importing this package as perrors need only one import.
var (
	Is  = errors.Is
	As  = errors.As
	New = errors.New
)
