package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced by repositories and services. The index
// computation core itself never returns errors: missing data is a
// first-class value (nil / the "-" sentinel), not a failure.
var (
	ErrNotFound       = errors.New("not found")
	ErrPatientDeleted = errors.New("patient is deleted")
)

// ValidationError represents an input validation failure at the edit
// boundary, before data reaches the computation core.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Value   any    `json:"value,omitempty"`
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string, value any) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}
