package domain

import (
	"errors"
	"fmt"
)

// Kind is the machine-checkable failure class surfaced to API callers.
type Kind string

const (
	KindValidation   Kind = "VALIDATION"
	KindUnauthorized Kind = "UNAUTHORIZED"
	KindNotFound     Kind = "NOT_FOUND"
	KindNotUsable    Kind = "NOT_USABLE"
	KindForbidden    Kind = "FORBIDDEN"
	KindExpired      Kind = "EXPIRED"
	KindConflict     Kind = "CONFLICT"
	KindTransient    Kind = "TRANSIENT"
	KindInternal     Kind = "INTERNAL"
)

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// E builds a caller-facing error with a stable kind.
func E(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches a kind and message to an underlying cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the failure kind; anything unclassified is INTERNAL.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// MessageOf returns the caller-facing message. INTERNAL causes stay opaque.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) && de.Kind != KindInternal {
		return de.Message
	}
	return "internal server error"
}

// Retryable reports whether the caller may safely resubmit after the error:
// CONFLICT (lost a redemption race, re-validate first) and TRANSIENT
// (store/collaborator timeout). Everything else is terminal for the attempt.
func Retryable(err error) bool {
	k := KindOf(err)
	return k == KindConflict || k == KindTransient
}
