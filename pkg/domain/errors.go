package domain

import (
	"errors"
	"fmt"
)

// Sentinel classes recovered at the HTTP boundary.
var (
	ErrValidation       = errors.New("validation failed")
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotFound         = errors.New("not found")
)

// Validation codes attached to ValidationError.
const (
	CodeRequired         = "required"
	CodeInvalidFieldType = "invalid_field_type"
	CodeInvalidOption    = "invalid_option"
	CodeUnknownField     = "unknown_field"
	CodeDuplicate        = "duplicate"
	CodeMismatch         = "mismatch"
	CodeInvalid          = "invalid"
)

// ValidationError reports missing or invalid input.
type ValidationError struct {
	Field   string
	Code    string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e ValidationError) Unwrap() error { return ErrValidation }

// NotFoundError is returned when a referenced record does not exist.
type NotFoundError struct {
	Entity EntityType
	ID     string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e NotFoundError) Unwrap() error { return ErrNotFound }

// PermissionError reports that the acting identity may not perform an operation.
type PermissionError struct {
	Operation string
}

func (e PermissionError) Error() string {
	if e.Operation == "" {
		return ErrPermissionDenied.Error()
	}
	return fmt.Sprintf("%s: %s", e.Operation, ErrPermissionDenied)
}

func (e PermissionError) Unwrap() error { return ErrPermissionDenied }
