// Package apperr defines the tagged error-kind taxonomy used across the
// job control plane. Errors are plain values carrying a Kind rather than a
// type hierarchy: the scheduler pattern-matches on Kind alone to decide
// retry classification (see internal/scheduler).
package apperr

import (
	"errors"
	"fmt"
)

// Kind tags the class of a failure. Kinds, not Go types, are the unit of
// classification throughout the control plane.
type Kind string

const (
	KindValidation      Kind = "ValidationError"
	KindUnknownPipeline Kind = "UnknownPipeline"
	KindDuplicateID     Kind = "DuplicateId"
	KindNotFound        Kind = "NotFound"
	KindNotCancellable  Kind = "NotCancellable"
	KindRateLimited     Kind = "RateLimited"
	KindRetryable       Kind = "RetryableError"
	KindWorkerError     Kind = "WorkerError"
	KindOutputParse     Kind = "OutputParseError"
	KindCircuitBreak    Kind = "CircuitBreak"
	KindInterrupted     Kind = "Interrupted"
	KindStorage         Kind = "StorageError"
	KindIllegalState    Kind = "IllegalTransition"
)

// Error is the tagged error value carried through the event bus and back
// to the API surface.
type Error struct {
	Kind          Kind
	Message       string
	Cause         error
	CorrelationID string
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an *Error carrying cause as its underlying error.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, defaulting to KindWorkerError for
// errors that were never classified.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindWorkerError
}

// Retryable reports whether the error's kind should be retried by the
// scheduler.3.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindRetryable:
		return true
	case KindValidation, KindUnknownPipeline, KindOutputParse, KindCircuitBreak:
		return false
	default:
		return false
	}
}
