package service

import "errors"

// Kind classifies a failure so callers can tell a rejected request apart
// from a system that could not process it.
type Kind string

const (
	KindNotFound            Kind = "not_found"
	KindForbidden           Kind = "forbidden"
	KindUnauthorized        Kind = "unauthorized"
	KindInvalidAmount       Kind = "invalid_amount"
	KindInsufficientBalance Kind = "insufficient_balance"
	KindConflict            Kind = "conflict"
	KindAlreadyExists       Kind = "already_exists"
	KindRateLimited         Kind = "rate_limited"
	KindInvalidRequest      Kind = "invalid_request"
	KindInternal            Kind = "internal"
)

// Error is the structured error returned by every service operation.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotFound)
// holds regardless of the message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

func newError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

var (
	ErrNotFound            = newError(KindNotFound, "not found")
	ErrInvalidAmount       = newError(KindInvalidAmount, "Invalid amount")
	ErrInsufficientBalance = newError(KindInsufficientBalance, "Insufficient balance")
	ErrAlreadyExists       = newError(KindAlreadyExists, "already exists")
)

// KindOf reports the kind of err, or KindInternal for anything that is not
// a service error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
