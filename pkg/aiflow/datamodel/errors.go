package datamodel

import (
	"errors"
	"fmt"
)

// Sentinel errors for data-model operations.
var (
	// ErrFieldNotFound indicates no scope in the chain declares the field.
	ErrFieldNotFound = errors.New("field not found")

	// ErrReadonly indicates a write to a readonly or request-supplied field.
	ErrReadonly = errors.New("field is readonly")

	// ErrNotFromRequest indicates a request injection targeted a field that
	// is not marked fromRequest.
	ErrNotFromRequest = errors.New("field is not supplied by the request")

	// ErrInvalidScope indicates an empty or malformed scope path.
	ErrInvalidScope = errors.New("invalid scope path")
)

// FieldError wraps a data-model failure with the scope and field involved.
type FieldError struct {
	// Scope is the scope the operation was issued against.
	Scope string
	// Field is the field name.
	Field string
	// Op is the operation that failed ("set", "inject", "register").
	Op string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *FieldError) Error() string {
	return fmt.Sprintf("%s %s.%s: %v", e.Op, e.Scope, e.Field, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *FieldError) Unwrap() error {
	return e.Err
}

// ValidationError reports a value that does not satisfy a field's schema.
type ValidationError struct {
	// Scope is the scope owning the field definition.
	Scope string
	// Field is the field name.
	Field string
	// Value is the rejected value.
	Value any
	// Reason describes the mismatch.
	Reason error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s.%s: %v", e.Scope, e.Field, e.Reason)
}

// Unwrap returns the mismatch reason.
func (e *ValidationError) Unwrap() error {
	return e.Reason
}
