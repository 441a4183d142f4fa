package storage

import (
	"errors"
	"fmt"
)

// Error types
type ErrorType string

const (
	ErrNotFound      ErrorType = "not_found"
	ErrAlreadyExists ErrorType = "already_exists"
	ErrInvalidInput  ErrorType = "invalid_input"
	ErrConflict      ErrorType = "conflict"
)

// Error represents a storage-related error
type Error struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsType reports whether err is a storage error of type t.
func IsType(err error, t ErrorType) bool {
	var serr *Error
	return errors.As(err, &serr) && serr.Type == t
}

// IsNotFound reports whether err says the requested record does not exist.
func IsNotFound(err error) bool {
	return IsType(err, ErrNotFound)
}

// NotFound builds a not found error for a record kind and id.
func NotFound(kind, id string) *Error {
	return &Error{Type: ErrNotFound, Message: fmt.Sprintf("%s %q not found", kind, id)}
}

// InvalidInput wraps a validation failure.
func InvalidInput(message string, err error) *Error {
	return &Error{Type: ErrInvalidInput, Message: message, Err: err}
}
