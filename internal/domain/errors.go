package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation signals malformed input from a caller.
	ErrValidation = errors.New("validation failed")
	// ErrQuotaExceeded signals that an admission check rejected the request.
	ErrQuotaExceeded = errors.New("quota exceeded")
	// ErrUpstream signals a reply-generation API failure.
	ErrUpstream = errors.New("upstream error")
	// ErrInvalidLimits signals an unusable quota configuration.
	ErrInvalidLimits = errors.New("invalid quota limits")
)

// ValidationError wraps ErrValidation with the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrValidation.Error(), e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError creates a validation error for a single field.
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}
