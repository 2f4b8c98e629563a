package llms

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies a model call failure.
type ErrorKind string

const (
	ErrAuth                  ErrorKind = "auth_error"
	ErrRateLimited           ErrorKind = "rate_limited"
	ErrTransient             ErrorKind = "transient"
	ErrInvalidRequest        ErrorKind = "invalid_request"
	ErrContextLengthExceeded ErrorKind = "context_length_exceeded"
	ErrUnknown               ErrorKind = "unknown"
)

// Error is the typed failure returned by model clients. Adapters should map
// provider responses onto a Kind; anything unmapped is ErrUnknown.
type Error struct {
	Kind       ErrorKind
	Message    string
	StatusCode int
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("llm %s (HTTP %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("llm %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the turn loop may retry the call.
func (e *Error) Retryable() bool {
	return e.Kind == ErrRateLimited || e.Kind == ErrTransient
}

// NewError builds a typed model error.
func NewError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// IsRetryable reports whether err is a retryable model error. Errors that are
// not *Error at all are treated as transient, matching how unclassified
// transport failures behave.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var me *Error
	if errors.As(err, &me) {
		return me.Retryable()
	}
	return true
}

// KindOf extracts the error kind, defaulting to ErrUnknown.
func KindOf(err error) ErrorKind {
	var me *Error
	if errors.As(err, &me) {
		return me.Kind
	}
	return ErrUnknown
}
