package entity

import (
	"errors"
	"fmt"
)

// ErrValidation is matched by every ValidationError.
var ErrValidation = errors.New("validation failed")

// ErrStepNotFound is returned by the step helpers for an unknown step id.
var ErrStepNotFound = errors.New("step not found")

// ValidationError reports a required field that is missing or malformed. It
// is raised before any cache mutation.
type ValidationError struct {
	Kind    Kind
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("entity: invalid %s: %s %s", e.Kind, e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func required(kind Kind, field string) error {
	return &ValidationError{Kind: kind, Field: field, Message: "is required"}
}
