package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks caller precondition failures. Nothing was written.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates a missing entity or one outside the tenant scope.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates an optimistic lock or unique constraint collision; callers may retry.
	ErrConflict = errors.New("concurrency conflict")
	// ErrConsistency flags a broken ledger invariant. It indicates a bug, not bad input.
	ErrConsistency = errors.New("consistency violation")
)

// Error carries a machine readable code next to its kind so upstream layers can localise it.
type Error struct {
	Kind    error
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Is matches both the kind sentinel and another *Error with the same code.
func (e *Error) Is(target error) bool {
	if target == e.Kind {
		return true
	}
	var other *Error
	if errors.As(target, &other) {
		return other.Code == e.Code && other.Kind == e.Kind
	}
	return false
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// With returns a copy carrying extra detail; errors.Is against the original still matches.
func (e *Error) With(format string, args ...any) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: e.Message + ": " + fmt.Sprintf(format, args...), Cause: e.Cause}
}

// Wrap returns a copy with the supplied cause attached.
func (e *Error) Wrap(cause error) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: e.Message, Cause: cause}
}

// Validation builds a validation error.
func Validation(code, msg string) *Error {
	return &Error{Kind: ErrValidation, Code: code, Message: msg}
}

// NotFound builds a not-found error.
func NotFound(code, msg string) *Error {
	return &Error{Kind: ErrNotFound, Code: code, Message: msg}
}

// Conflict builds a concurrency conflict error.
func Conflict(code, msg string) *Error {
	return &Error{Kind: ErrConflict, Code: code, Message: msg}
}

// Consistency builds a consistency error.
func Consistency(code, msg string) *Error {
	return &Error{Kind: ErrConsistency, Code: code, Message: msg}
}

// CodeOf extracts the code of the first *Error in the chain.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
