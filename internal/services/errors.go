// Package services defines the business logic for reviews, ratings, books,
// users, and the admin dashboard. This file centralizes the error taxonomy
// returned by service methods so that handlers can map results to HTTP
// statuses consistently.
//
// Every failure a caller is expected to handle carries one of the kind
// sentinels below. Callers branch with errors.Is(err, ErrNotFound) and read
// the user-facing message with Message(err).
package services

import (
	"errors"
	"fmt"
)

// Error kinds.
var (
	// ErrValidation marks missing or malformed input.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks an unknown identifier.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks a uniqueness or ownership conflict (e.g. a second
	// review for the same book and user).
	ErrConflict = errors.New("conflict")

	// ErrUnauthorized marks failed authentication.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden marks an authenticated caller lacking permission.
	ErrForbidden = errors.New("forbidden")

	// ErrStorage marks a backing store failure. Its details are never shown
	// to clients.
	ErrStorage = errors.New("storage failure")
)

// Error is a classified service error.
type Error struct {
	Kind error  // one of the kind sentinels
	Msg  string // safe to show to clients
	Err  error  // optional cause
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Msg != "":
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	case e.Msg != "":
		return e.Msg
	default:
		return e.Kind.Error()
	}
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Message returns the client-safe message carried by err, or "" when err is
// not a classified error.
func Message(err error) string {
	var se *Error
	if errors.As(err, &se) {
		return se.Msg
	}
	return ""
}

func validationErr(msg string) error { return &Error{Kind: ErrValidation, Msg: msg} }
func notFoundErr(msg string) error   { return &Error{Kind: ErrNotFound, Msg: msg} }
func conflictErr(msg string) error   { return &Error{Kind: ErrConflict, Msg: msg} }
func forbiddenErr(msg string) error  { return &Error{Kind: ErrForbidden, Msg: msg} }
func unauthorizedErr(msg string) error {
	return &Error{Kind: ErrUnauthorized, Msg: msg}
}

// storageErr wraps a backend failure. op names the operation for logs.
func storageErr(op string, err error) error {
	return &Error{Kind: ErrStorage, Err: fmt.Errorf("%s: %w", op, err)}
}
