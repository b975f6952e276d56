package registration

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the engine matches exactly one of
// these with errors.Is, so callers can decide whether to retry, surface the
// problem to a person or treat it as an expected outcome.
var (
	ErrNotFound              = errors.New("not found")
	ErrInvalidState          = errors.New("invalid state")
	ErrInvalidRequest        = errors.New("invalid request")
	ErrCapacityExceeded      = errors.New("capacity exceeded")
	ErrDuplicateRegistration = errors.New("duplicate registration")
	ErrAmountMismatch        = errors.New("amount mismatch")
	// ErrConcurrencyConflict marks lock contention and serialization
	// failures. Operations failing with it are safe to retry.
	ErrConcurrencyConflict = errors.New("concurrency conflict")
)

// StateError reports an operation attempted from a status that does not
// allow it.
type StateError struct {
	Resource  string
	ID        string
	Status    string
	Operation string
	Reason    string
}

func (e *StateError) Error() string {
	msg := fmt.Sprintf("cannot %s %s %s in status %s", e.Operation, e.Resource, e.ID, e.Status)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *StateError) Unwrap() error { return ErrInvalidState }

// AmountMismatchError reports a reported bank transfer that does not match
// the amount due.
type AmountMismatchError struct {
	PaymentID      string
	ExpectedMinor  int64
	ReportedMinor  int64
	ToleranceMinor int64
}

func (e *AmountMismatchError) Error() string {
	return fmt.Sprintf("payment %s: reported amount %d differs from expected %d (tolerance %d)",
		e.PaymentID, e.ReportedMinor, e.ExpectedMinor, e.ToleranceMinor)
}

func (e *AmountMismatchError) Unwrap() error { return ErrAmountMismatch }

// CapacityError is returned by the admin path when the event is full and the
// caller did not force the registration.
type CapacityError struct {
	EventID   string
	Requested int
	Available int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("event %s: %d spots requested, %d available", e.EventID, e.Requested, e.Available)
}

func (e *CapacityError) Unwrap() error { return ErrCapacityExceeded }

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}
