// Package errs defines the error kinds shared across the service.
// Handlers map kinds to HTTP statuses; callers use KindOf and Retryable
// to distinguish terminal failures from transient ones.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for callers and for HTTP mapping.
type Kind string

const (
	KindNotFound     Kind = "NOT_FOUND"
	KindConflict     Kind = "CONFLICT"
	KindValidation   Kind = "VALIDATION"
	KindIncomplete   Kind = "INCOMPLETE"
	KindSizeMismatch Kind = "SIZE_MISMATCH"
	KindIntegrity    Kind = "INTEGRITY_FAILURE"
	KindUnavailable  Kind = "UNAVAILABLE"
	KindUnknown      Kind = "UNKNOWN"
)

// Error carries a kind, the stage that produced it, and an optional cause.
type Error struct {
	Kind    Kind
	Stage   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Stage != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %s: %v", e.Kind, e.Stage, e.Message, e.Err)
	case e.Stage != "":
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Stage, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error of the given kind.
func New(kind Kind, stage, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Stage: stage, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and stage to an underlying error.
func Wrap(err error, kind Kind, stage, message string) *Error {
	return &Error{Kind: kind, Stage: stage, Message: message, Err: err}
}

// KindOf extracts the kind from an error chain. Plain errors are KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Retryable reports whether the caller may retry with backoff.
func Retryable(err error) bool {
	return KindOf(err) == KindUnavailable
}

// HTTPStatus maps an error kind to a response status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindValidation, KindIncomplete:
		return http.StatusBadRequest
	case KindSizeMismatch, KindIntegrity:
		return http.StatusUnprocessableEntity
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
