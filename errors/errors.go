package errors

import "errors"

var (
	// ErrUnauthorized is returned when an operation requires a bound identity
	// and the connection has none, or claims one it does not hold.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrMalformedPayload is returned for a payload missing a required field
	// or carrying a field of the wrong type.
	ErrMalformedPayload = errors.New("malformed payload")
	// ErrAlreadyBound is returned when a connection tries to rebind to a
	// different user. Rebinding to the same user is idempotent.
	ErrAlreadyBound = errors.New("session already bound")
	// ErrNotFound is returned when referencing a room or membership that does
	// not exist. Leave treats it as a no-op to stay idempotent.
	ErrNotFound = errors.New("not found")

	ErrWorkerPanic = errors.New("worker panic")
)

// Wire error codes, reported back to the originating connection only.
const (
	CodeUnauthorized     = "unauthorized"
	CodeMalformedPayload = "malformed_payload"
	CodeAlreadyBound     = "already_bound"
	CodeNotFound         = "not_found"
	CodeInternal         = "internal"
)

// CodeOf maps a relay error to its wire code.
func CodeOf(err error) string {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return CodeUnauthorized
	case errors.Is(err, ErrMalformedPayload):
		return CodeMalformedPayload
	case errors.Is(err, ErrAlreadyBound):
		return CodeAlreadyBound
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	default:
		return CodeInternal
	}
}
