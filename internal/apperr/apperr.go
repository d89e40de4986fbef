// Package apperr normalizes store and model-client failures into a small
// error taxonomy. Vendor-specific error shapes must not leak past the
// component that received them.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for transition and retry decisions.
type Kind string

const (
	// KindNotFound means a referenced job/exam/attempt/question does not exist.
	KindNotFound Kind = "not_found"
	// KindEmptyResult means retrieval found no matching content. The request
	// was valid; this is distinct from a fault.
	KindEmptyResult Kind = "empty_result"
	// KindUpstream means a model or store call failed (network, auth,
	// rate-limit, timeout).
	KindUpstream Kind = "upstream"
	// KindValidation means structurally invalid model output.
	KindValidation Kind = "validation"
	// KindConsistency means an internal invariant was violated.
	KindConsistency Kind = "consistency"
)

// Error carries a kind alongside the underlying cause. Raw is the
// offending payload, if any, retained for diagnosis only.
type Error struct {
	Kind Kind
	Msg  string
	Raw  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap creates an error of the given kind around a cause.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// WithRaw attaches the raw offending payload for logging.
func (e *Error) WithRaw(raw string) *Error {
	e.Raw = raw
	return e
}

// KindOf returns the kind of err, or KindUpstream for errors that were
// never classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUpstream
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
