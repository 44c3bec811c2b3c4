// Package apperr defines the error kinds surfaced by the memory service.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for transport layers.
type Kind string

const (
	InvalidInput         Kind = "invalid_input"
	EmbeddingUnavailable Kind = "embedding_unavailable"
	IndexUnavailable     Kind = "index_unavailable"
	ServiceUnavailable   Kind = "service_unavailable"
)

// Error is a classified failure. Field is set for InvalidInput.
type Error struct {
	Kind    Kind
	Field   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = e.Field + ": " + msg
	}
	if e.Err != nil {
		if msg == "" {
			return e.Err.Error()
		}
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Invalid reports a malformed or missing argument.
func Invalid(field, format string, args ...any) *Error {
	return &Error{Kind: InvalidInput, Field: field, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err under kind with a short message.
func Wrap(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// New creates an error of kind without a cause.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the outermost kind in err's chain, or "" when unclassified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether any error in err's chain has the given kind.
func IsKind(err error, kind Kind) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Err
	}
	return false
}
