package coordinator

import (
	"errors"
	"fmt"
)

// Kind classifies a rejected request.
type Kind int

const (
	// KindValidation: the request is malformed. No state changed.
	KindValidation Kind = iota + 1
	// KindConflict: the request is well formed but cannot apply to the
	// current state (duplicate, expired lease, finished test). No state changed.
	KindConflict
	// KindNotFound: the referenced test, engine or lease does not exist.
	KindNotFound
	// KindEngineFailure: a worker reported a fatal engine or adjudication failure.
	KindEngineFailure
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindEngineFailure:
		return "engine_failure"
	}
	return "unknown"
}

// Reason is a stable, machine readable rejection code.
type Reason string

const (
	ReasonInvalidRequest     Reason = "invalid_request"
	ReasonInconsistentCounts Reason = "inconsistent_counts"
	ReasonExceedsLease       Reason = "exceeds_lease"
	ReasonTestMismatch       Reason = "test_mismatch"
	ReasonUnknownTest        Reason = "unknown_test"
	ReasonUnknownEngine      Reason = "unknown_engine"
	ReasonUnknownLease       Reason = "unknown_lease"
	ReasonLeaseExpired       Reason = "lease_expired"
	ReasonTestFinished       Reason = "test_finished"
	ReasonTestNotActive      Reason = "test_not_active"
	ReasonInvalidTransition  Reason = "invalid_transition"
	ReasonBudgetExhausted    Reason = "budget_exhausted"
	ReasonEngineFailure      Reason = "engine_failure"
)

// Error is returned for every rejected request.
type Error struct {
	Kind   Kind
	Reason Reason
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return string(e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

func reject(kind Kind, reason Reason, format string, args ...any) *Error {
	var err error
	if format != "" {
		err = fmt.Errorf(format, args...)
	}
	return &Error{Kind: kind, Reason: reason, Err: err}
}

// KindOf returns the Kind of err, or 0 if err is not a rejection.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// ReasonOf returns the Reason of err, or "" if err is not a rejection.
func ReasonOf(err error) Reason {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}
