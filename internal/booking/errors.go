package booking

import (
	"errors"
	"fmt"
)

// Kind classifies a booking failure. The set is closed; the HTTP layer maps
// each kind to a status code and exposes the kind as a stable code string.
type Kind string

const (
	KindPastBooking          Kind = "PAST_BOOKING"
	KindInsufficientNotice   Kind = "INSUFFICIENT_NOTICE"
	KindSessionNotFound      Kind = "SESSION_NOT_FOUND"
	KindDateMismatch         Kind = "DATE_MISMATCH"
	KindCapacityExceeded     Kind = "CAPACITY_EXCEEDED"
	KindDuplicateReservation Kind = "DUPLICATE_RESERVATION"
	KindReservationNotFound  Kind = "RESERVATION_NOT_FOUND"
	KindNotOwner             Kind = "NOT_OWNER"
	KindAlreadyCancelled     Kind = "ALREADY_CANCELLED"
	KindInvalidTransition    Kind = "INVALID_TRANSITION"
	KindQuery                Kind = "QUERY"
)

// Error is the single error type returned by the engine.
type Error struct {
	Kind    Kind
	Message string
	// Remaining is set on CAPACITY_EXCEEDED.
	Remaining int
	// Err is the underlying store error for QUERY failures. It is logged,
	// never shown to callers.
	Err error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotOwner)
// works regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrPastBooking          = &Error{Kind: KindPastBooking}
	ErrInsufficientNotice   = &Error{Kind: KindInsufficientNotice}
	ErrSessionNotFound      = &Error{Kind: KindSessionNotFound}
	ErrDateMismatch         = &Error{Kind: KindDateMismatch}
	ErrCapacityExceeded     = &Error{Kind: KindCapacityExceeded}
	ErrDuplicateReservation = &Error{Kind: KindDuplicateReservation}
	ErrReservationNotFound  = &Error{Kind: KindReservationNotFound}
	ErrNotOwner             = &Error{Kind: KindNotOwner}
	ErrAlreadyCancelled     = &Error{Kind: KindAlreadyCancelled}
	ErrInvalidTransition    = &Error{Kind: KindInvalidTransition}
	ErrQuery                = &Error{Kind: KindQuery}
)

// KindOf returns the kind of a booking error, or "" for anything else.
func KindOf(err error) Kind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return ""
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func queryError(op string, err error) *Error {
	return &Error{Kind: KindQuery, Message: op + " failed", Err: err}
}

func capacityExceeded(sessionID int64, remaining int) *Error {
	return &Error{
		Kind:      KindCapacityExceeded,
		Message:   fmt.Sprintf("session %d is full: %d places remaining", sessionID, remaining),
		Remaining: remaining,
	}
}
