// Package validate carries field-level validation failures from the domain
// services to the HTTP boundary, where they become 400 responses with a
// per-field detail list.
package validate

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalid is the sentinel all validation errors unwrap to.
var ErrInvalid = errors.New("validation failed")

// FieldError describes one rejected field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is a collection of field failures for one request.
type Error struct {
	Fields []FieldError
}

// Add appends a field failure.
func (e *Error) Add(field, format string, args ...any) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// Empty reports whether any failures were recorded.
func (e *Error) Empty() bool { return len(e.Fields) == 0 }

// Err returns the error value, or nil when nothing was recorded.
func (e *Error) Err() error {
	if e.Empty() {
		return nil
	}
	return e
}

func (e *Error) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *Error) Unwrap() error { return ErrInvalid }
