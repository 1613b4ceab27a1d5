// Package apperr holds the relay's error taxonomy: client faults (validation),
// server faults (storage) and absence (not found).
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound marks a requested resource that does not exist.
var ErrNotFound = errors.New("not found")

// ValidationError is a client fault detected before any store mutation.
type ValidationError struct {
	Fields  []string // missing or invalid field names, if any
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Invalid builds a ValidationError with a formatted message.
func Invalid(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// MissingFields builds a ValidationError listing the required fields that were absent.
func MissingFields(fields ...string) *ValidationError {
	return &ValidationError{
		Fields:  fields,
		Message: "missing required fields: " + strings.Join(fields, ", "),
	}
}

// TooLong reports a field over its stored length limit, counted in characters.
func TooLong(field string, n, max int) *ValidationError {
	return &ValidationError{
		Fields:  []string{field},
		Message: fmt.Sprintf("%s too long: %d characters, max %d", field, n, max),
	}
}

// StorageError wraps an I/O or connection failure. Its cause is for logs only.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Storage wraps err as a StorageError for op; nil stays nil.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsStorage reports whether err is (or wraps) a StorageError.
func IsStorage(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
