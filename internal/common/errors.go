// Package common defines shared constants and sentinel errors used across
// the objidx server and client. Callers should use errors.Is to match these
// values and errors.As to extract a *ConflictError.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// Validation errors. Always wrapped with the offending field.
	ErrorValidation = errors.New("validation error")

	// Caller contract errors.
	ErrConflictingFilters = errors.New("url and tag filters are mutually exclusive")

	// Ingestion conflicts.
	ErrSizeMismatch          = errors.New("size mismatch")
	ErrIngestConflict        = errors.New("ingestion in progress")
	ErrObjectDeleted         = errors.New("object deleted")
	ErrInconsistentFileFlags = errors.New("inconsistent file flags")
	ErrObjectIncomplete      = errors.New("object not completed")
	ErrBlobMismatch          = errors.New("stored blob does not match object")
	ErrFrozenColumn          = errors.New("frozen column modified")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// ConflictError reports a business-rule violation tied to an existing object.
// It unwraps to one of the conflict sentinels above.
type ConflictError struct {
	Err      error
	ObjectID string
}

func (e *ConflictError) Error() string {
	if e.ObjectID == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: object %s", e.Err.Error(), e.ObjectID)
}

func (e *ConflictError) Unwrap() error {
	return e.Err
}

// NewConflict wraps a conflict sentinel with the id of the object involved.
func NewConflict(err error, objectID string) error {
	return &ConflictError{Err: err, ObjectID: objectID}
}

// Validationf builds an ErrorValidation-wrapped error with a formatted reason.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrorValidation, fmt.Sprintf(format, args...))
}

// IsConflict reports whether err belongs to the conflict class.
func IsConflict(err error) bool {
	for _, target := range []error{
		ErrSizeMismatch, ErrIngestConflict, ErrObjectDeleted,
		ErrInconsistentFileFlags, ErrObjectIncomplete, ErrBlobMismatch,
		ErrFrozenColumn,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// ConflictObjectID returns the object id attached to a conflict, if any.
func ConflictObjectID(err error) string {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return ce.ObjectID
	}
	return ""
}
