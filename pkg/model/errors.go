package model

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrConnection is returned when connection establishment exhausts its
	// retry budget or the transport fails before any successful connect.
	ErrConnection = errors.New("connection failed")
	// ErrValidation is returned synchronously, before any I/O, when a caller
	// supplies a missing or malformed argument.
	ErrValidation = errors.New("validation failed")
	// ErrOperation wraps any failure surfaced by the store during a specific
	// operation. It is never retried at this layer.
	ErrOperation = errors.New("operation failed")
	// ErrNotFound is returned when a single-document read matches nothing.
	ErrNotFound = errors.New("document not found")
)

// OpError carries the context of a failed store operation: which collection,
// which method, and how long the attempt ran before failing.
type OpError struct {
	Collection string
	Method     string
	Duration   time.Duration
	Err        error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s %s failed after %s: %v", e.Collection, e.Method, e.Duration, e.Err)
}

// Unwrap exposes the underlying driver error for errors.Is/As.
func (e *OpError) Unwrap() error {
	return e.Err
}

// Is makes every OpError match ErrOperation.
func (e *OpError) Is(target error) bool {
	return target == ErrOperation
}

// WrapOp wraps a store failure with operation context. Returns nil when err
// is nil so call sites can wrap unconditionally.
func WrapOp(collection, method string, d time.Duration, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Collection: collection, Method: method, Duration: d, Err: err}
}

// Validation builds an ErrValidation with a reason.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}
