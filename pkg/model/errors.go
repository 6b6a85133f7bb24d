package model

import (
	"fmt"
	"strings"
)

// FieldError describes one problem with a field of a loaded document.
type FieldError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// ValidationError collects every FieldError found while validating a document.
type ValidationError struct {
	Message string
	Details []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Details) == 0 {
		return e.Message
	}
	parts := make([]string, len(e.Details))
	for i, d := range e.Details {
		if d.Field == "" {
			parts[i] = d.Message
		} else {
			parts[i] = d.Field + ": " + d.Message
		}
	}
	return e.Message + ": " + strings.Join(parts, "; ")
}

// NewValidationError creates a ValidationError with the given details.
func NewValidationError(msg string, details ...FieldError) *ValidationError {
	return &ValidationError{Message: msg, Details: details}
}

// InvalidTransitionError is returned when a state transition is invalid.
type InvalidTransitionError struct {
	Entity string
	ID     string
	From   string
	To     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid %s state transition: %s → %s (entity %s)", e.Entity, e.From, e.To, e.ID)
}

// NewProcessTransitionError creates an InvalidTransitionError for a process.
func NewProcessTransitionError(id string, from, to ProcessState) *InvalidTransitionError {
	return &InvalidTransitionError{
		Entity: "process",
		ID:     id,
		From:   from.String(),
		To:     to.String(),
	}
}
