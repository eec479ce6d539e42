// Package errors defines the domain error taxonomy shared by the ledger core
// and its shell. Services translate store sentinels into these codes so callers
// can branch on a stable Code rather than on message text.
package errors

import (
	"errors"
	"fmt"
)

// Code classifies a domain error.
type Code string

const (
	// CodeNotFound means a referenced aggregate is absent from the repository.
	CodeNotFound Code = "not_found"
	// CodeInvalidStateTransition means the aggregate is terminal or in a state
	// from which the requested operation is not legal.
	CodeInvalidStateTransition Code = "invalid_state_transition"
	// CodeInvariantViolation is raised by model constructors and mutators when
	// an input would break an aggregate invariant.
	CodeInvariantViolation Code = "invariant_violation"
	CodeValidation         Code = "validation_error"
	CodeInvalidInput       Code = "invalid_input"
	CodeConflict           Code = "conflict"
	CodeTimeout            Code = "timeout"
	CodeInternal           Code = "internal_error"
)

// Error carries a Code, a human readable message and an optional cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error without a cause.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Newf is New with formatting.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error. Wrapping nil
// returns nil so call sites can wrap unconditionally.
func Wrap(err error, code Code, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// CodeOf returns the outermost domain Code in the chain, or CodeInternal when
// the chain carries none.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// HasCode reports whether the outermost domain error in the chain has code.
func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}
