package models

import (
	"errors"
	"sort"
	"strings"
)

var (
	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized is returned when the caller lacks the operator role.
	ErrUnauthorized = errors.New("operator role required")
	// ErrNotComing is returned when materialization is requested for an RSVP that is not a yes.
	ErrNotComing = errors.New("rsvp is not marked as coming")
	// ErrDeclined is returned when checking in a person whose disposition is no.
	ErrDeclined = errors.New("guest declined the invitation")
	// ErrTableFull marks a guest that did not fit in the remaining table capacity.
	ErrTableFull = errors.New("table is full")
	// ErrInvalidSeat is returned for tables that reference a missing zone.
	ErrInvalidSeat = errors.New("table zone does not exist")
)

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	if len(v.FieldErrors) == 0 {
		return "validation failed"
	}
	fields := make([]string, 0, len(v.FieldErrors))
	for field := range v.FieldErrors {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return "validation failed: " + strings.Join(fields, ", ")
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// Add records a field level validation error.
func (v *ValidationError) Add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}

// ErrorKind maps sentinel and validation errors to a stable label for logs and responses.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrNotComing):
		return "not_coming"
	case errors.Is(err, ErrDeclined):
		return "declined"
	case errors.Is(err, ErrTableFull):
		return "table_full"
	case errors.Is(err, ErrInvalidSeat):
		return "invalid_seat"
	}

	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return "validation"
	}
	return "unexpected"
}
