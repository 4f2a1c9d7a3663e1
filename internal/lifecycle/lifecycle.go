// Package lifecycle defines the status of a test and the transitions
// allowed between statuses.
package lifecycle

import (
	"errors"
	"fmt"
)

// Status is the single lifecycle state of a test.
type Status string

const (
	Pending        Status = "PENDING"
	Awaiting       Status = "AWAITING"
	Active         Status = "ACTIVE"
	FinishedPassed Status = "FINISHED_PASSED"
	FinishedFailed Status = "FINISHED_FAILED"
	Error          Status = "ERROR"
	Deleted        Status = "DELETED"
)

// Finished reports whether s carries a pass/fail verdict.
func (s Status) Finished() bool {
	return s == FinishedPassed || s == FinishedFailed
}

// Leasable reports whether work may be issued for a test in status s.
func (s Status) Leasable() bool {
	return s == Active
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case Pending, Awaiting, Active, FinishedPassed, FinishedFailed, Error, Deleted:
		return true
	}
	return false
}

// Event triggers a transition.
type Event string

const (
	Await   Event = "await"
	Approve Event = "approve"
	Pass    Event = "pass"
	Fail    Event = "fail"
	Fault   Event = "error"
	Resume  Event = "resume"
	Delete  Event = "delete"
)

// ErrInvalidTransition is returned by Next when the event does not apply.
var ErrInvalidTransition = errors.New("invalid status transition")

// transitions maps an event to the statuses it may fire from and the status
// it leads to. Delete is handled separately.
var transitions = map[Event]struct {
	from []Status
	to   Status
}{
	Await:   {[]Status{Pending}, Awaiting},
	Approve: {[]Status{Pending, Awaiting}, Active},
	Pass:    {[]Status{Active}, FinishedPassed},
	Fail:    {[]Status{Active}, FinishedFailed},
	Fault:   {[]Status{Pending, Awaiting, Active}, Error},
	Resume:  {[]Status{Error}, Active},
}

// Next returns the status reached from `from` on event ev.
// Delete applies from every status, including Deleted itself.
func Next(from Status, ev Event) (Status, error) {
	if ev == Delete {
		return Deleted, nil
	}
	t, ok := transitions[ev]
	if !ok {
		return from, fmt.Errorf("%w: unknown event %q", ErrInvalidTransition, ev)
	}
	for _, s := range t.from {
		if s == from {
			return t.to, nil
		}
	}
	return from, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, ev, from)
}
