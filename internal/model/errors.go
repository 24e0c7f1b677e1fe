package model

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures for fallback decisions and observability.
type ErrorKind string

const (
	KindValidation      ErrorKind = "VALIDATION_ERROR"
	KindUpstreamTimeout ErrorKind = "UPSTREAM_TIMEOUT"
	KindUpstreamFailure ErrorKind = "UPSTREAM_FAILURE"
	KindSynthesis       ErrorKind = "SYNTHESIS_ERROR"
)

// Error is a typed failure carrying the operation that produced it.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WrapError attaches a kind and operation to err. A nil err stays nil.
func WrapError(kind ErrorKind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// NewError builds a typed error from a message.
func NewError(kind ErrorKind, op, message string) error {
	return &Error{Kind: kind, Op: op, Err: errors.New(message)}
}

// KindOf returns the kind of the outermost typed error in the chain, or "".
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

// ValidationError describes a rejected request before any job exists.
type ValidationError struct {
	Message string
	Details map[string]string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError wraps a rejection as a KindValidation error.
func NewValidationError(op, message string, details map[string]string) error {
	return &Error{Kind: KindValidation, Op: op, Err: &ValidationError{Message: message, Details: details}}
}
