// Package apperrors provides the coded error type shared by the engine, the
// Invoicing API clients and the HTTP transport.
package apperrors

import (
	"errors"
	"fmt"
)

// Code classifies an error for transport mapping.
type Code string

const (
	ErrCodeInvalidInput    Code = "INVALID_INPUT"
	ErrCodeNotFound        Code = "NOT_FOUND"
	ErrCodeConflict        Code = "CONFLICT"
	ErrCodeAlreadyExists   Code = "ALREADY_EXISTS"
	ErrCodeStaleTransition Code = "STALE_TRANSITION"
	ErrCodeExternal        Code = "EXTERNAL"
	ErrCodeInternal        Code = "INTERNAL"
)

// Error is a coded application error.
type Error struct {
	Code    Code
	Message string
	Field   string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a coded error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// InvalidInput reports a per-field validation failure.
func InvalidInput(field, message string) *Error {
	return &Error{Code: ErrCodeInvalidInput, Field: field, Message: message}
}

// NotFound reports a missing resource.
func NotFound(resource, id string) *Error {
	return &Error{Code: ErrCodeNotFound, Message: fmt.Sprintf("%s '%s' not found", resource, id)}
}

// Conflict reports a request that cannot be applied in the current state.
func Conflict(message string) *Error {
	return &Error{Code: ErrCodeConflict, Message: message}
}

// AlreadyExists reports a create that collided with an existing resource.
func AlreadyExists(message string) *Error {
	return &Error{Code: ErrCodeAlreadyExists, Message: message}
}

// StaleTransition reports an API rejection because the invoice already moved on.
func StaleTransition(message string) *Error {
	return &Error{Code: ErrCodeStaleTransition, Message: message}
}

// External wraps a failed call to a collaborator service.
func External(op string, err error) *Error {
	return &Error{Code: ErrCodeExternal, Message: fmt.Sprintf("failed to %s", op), Err: err}
}

// Internal wraps an unexpected failure.
func Internal(message string, err error) *Error {
	return &Error{Code: ErrCodeInternal, Message: message, Err: err}
}

// CodeOf returns the code of the first coded error in the chain, or
// ErrCodeInternal when none is present.
func CodeOf(err error) Code {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	if err == nil {
		return false
	}
	var appErr *Error
	for errors.As(err, &appErr) {
		if appErr.Code == code {
			return true
		}
		if appErr.Err == nil {
			return false
		}
		err = appErr.Err
	}
	return false
}

// FieldError is a single human-readable validation message.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// FieldErrors is an ordered list of validation failures.
type FieldErrors []FieldError

// Add appends a message for field.
func (fe *FieldErrors) Add(field, message string) {
	*fe = append(*fe, FieldError{Field: field, Message: message})
}

// Has reports whether a message for field is present.
func (fe FieldErrors) Has(field string) bool {
	for _, e := range fe {
		if e.Field == field {
			return true
		}
	}
	return false
}

// Fields returns the field names in order.
func (fe FieldErrors) Fields() []string {
	out := make([]string, 0, len(fe))
	for _, e := range fe {
		out = append(out, e.Field)
	}
	return out
}

// Err converts the list into an InvalidInput error, or nil when empty.
func (fe FieldErrors) Err() error {
	if len(fe) == 0 {
		return nil
	}
	first := fe[0]
	e := InvalidInput(first.Field, first.Message)
	if len(fe) > 1 {
		e.Message = fmt.Sprintf("%s (and %d more)", first.Message, len(fe)-1)
	}
	return e
}
