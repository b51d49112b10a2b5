// Package apperr defines the error kinds shared by every domain service.
//
// A kinded error carries the operation that produced it and a message that
// is safe to show to API clients. Transports translate the kind into a
// status code with KindOf; callers match kinds with errors.Is:
//
//	if errors.Is(err, apperr.EmptyCart) { ... }
package apperr

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
)

// Kind classifies a failure.
type Kind uint8

const (
	Unknown Kind = iota
	Validation
	NotFound
	Unauthenticated
	Forbidden
	EmptyCart
	Conflict
	Storage
)

var kindNames = [...]string{
	Unknown:         "unknown",
	Validation:      "validation",
	NotFound:        "not found",
	Unauthenticated: "unauthenticated",
	Forbidden:       "forbidden",
	EmptyCart:       "empty cart",
	Conflict:        "conflict",
	Storage:         "storage",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Error makes a Kind usable as an errors.Is target.
func (k Kind) Error() string { return k.String() }

// Error is a kinded failure.
type Error struct {
	Kind Kind
	// Op names the operation, e.g. "order.PlaceOrder".
	Op string
	// Msg is a client-safe description.
	Msg string
	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Msg != "" {
		b.WriteString(e.Msg)
	} else {
		b.WriteString(e.Kind.String())
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the Kind of e.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// New returns a kinded error without a cause.
func New(kind Kind, op, msg string) error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// Errorf is like New with a formatted message.
func Errorf(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Msg: errors.Errorf(format, args...).Error()}
}

// Wrap attaches kind and op to err. It returns nil if err is nil and keeps
// the kind of err when it already has one.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return &Error{Kind: e.Kind, Op: op, Err: err}
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of err. Errors without a kind, including context
// cancellation and deadlines, are reported as Storage.
func KindOf(err error) Kind {
	if err == nil {
		return Unknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Storage
}

// Message returns the client-safe message of err, or fallback when err has
// none or is a Storage failure.
func Message(err error, fallback string) string {
	if KindOf(err) == Storage {
		return fallback
	}
	for err != nil {
		if e, ok := err.(*Error); ok && e.Msg != "" {
			return e.Msg
		}
		err = errors.Unwrap(err)
	}
	return fallback
}

// Timeout reports whether err was caused by an expired deadline.
func Timeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
