package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidStatus indicates an operation not allowed in the document's current status.
	ErrInvalidStatus = errors.New("invalid status transition")
	// ErrLocked occurs when another request holds the document lock.
	ErrLocked = errors.New("document is locked by another request")
)

// ValidationError blocks an operation before any state change.
type ValidationError struct {
	Title   string
	Message string
}

// NewValidationError builds a ValidationError with a formatted message.
func NewValidationError(title, format string, args ...any) *ValidationError {
	return &ValidationError{Title: title, Message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	if e.Title == "" {
		return e.Message
	}
	return e.Title + ": " + e.Message
}

// ConflictError reports an operation that collides with existing document state,
// e.g. re-picking a sales order that is already fully picked.
type ConflictError struct {
	Message string
}

// NewConflictError builds a ConflictError with a formatted message.
func NewConflictError(format string, args ...any) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

func (e *ConflictError) Error() string { return e.Message }

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsConflict reports whether err carries a ConflictError.
func IsConflict(err error) bool {
	var c *ConflictError
	return errors.As(err, &c)
}
