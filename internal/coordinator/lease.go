package coordinator

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/leelachesszero/sprt-server/internal/metrics"
	"github.com/leelachesszero/sprt-server/internal/models"
)

type leaseState int32

const (
	leaseActive leaseState = iota
	leaseConsumed
	leaseExpired
	leaseRevoked
)

func (s leaseState) String() string {
	switch s {
	case leaseActive:
		return "active"
	case leaseConsumed:
		return "consumed"
	case leaseExpired:
		return "expired"
	}
	return "revoked"
}

// lease is the in-memory record of a work unit. State changes are single
// compare-and-swap steps so the sweeper never needs the test lock.
type lease struct {
	id       string
	testID   uint
	workerID string
	games    int
	issuedAt time.Time

	// mu orders expiry against deadline extension.
	mu       sync.Mutex
	deadline atomic.Int64 // unix nanoseconds
	state    atomic.Int32
	// faulted is set once the lease has frozen its test in ERROR.
	faulted atomic.Bool
}

func (l *lease) load() leaseState { return leaseState(l.state.Load()) }

func (l *lease) cas(from, to leaseState) bool {
	return l.state.CompareAndSwap(int32(from), int32(to))
}

func (l *lease) deadlineTime() time.Time { return time.Unix(0, l.deadline.Load()) }

func (l *lease) overdue(now time.Time) bool { return now.UnixNano() > l.deadline.Load() }

// WorkUnit is a lease as handed to a worker.
type WorkUnit struct {
	ID       string
	TestID   uint
	WorkerID string
	Games    int
	IssuedAt time.Time
	Deadline time.Time
	// Test is the configuration snapshot the worker needs to play the games.
	Test models.Test
}

func (l *lease) unit(t *models.Test) WorkUnit {
	return WorkUnit{
		ID:       l.id,
		TestID:   l.testID,
		WorkerID: l.workerID,
		Games:    l.games,
		IssuedAt: l.issuedAt,
		Deadline: l.deadlineTime(),
		Test:     *t,
	}
}

// release moves an active lease to `to` and returns its reservation to the
// test. It reports false if the lease was no longer active.
func (e *entry) release(l *lease, to leaseState) bool {
	if !l.cas(leaseActive, to) {
		return false
	}
	e.accounted.Add(int64(-l.games))
	e.outstanding.Add(-1)
	metrics.LeasesOutstanding.Dec()
	metrics.LeasesReleased.WithLabelValues(to.String()).Inc()
	return true
}

// consume settles an active lease against a batch of `games` games. Any
// reserved games the batch did not use go back to the test.
func (e *entry) consume(l *lease, games int) bool {
	if !l.cas(leaseActive, leaseConsumed) {
		return false
	}
	e.accounted.Add(int64(games - l.games))
	e.outstanding.Add(-1)
	metrics.LeasesOutstanding.Dec()
	return true
}

// unconsume reverts consume after a failed write.
func (e *entry) unconsume(l *lease, games int) {
	if l.cas(leaseConsumed, leaseActive) {
		e.accounted.Add(int64(l.games - games))
		e.outstanding.Add(1)
		metrics.LeasesOutstanding.Inc()
	}
}

// reinstate reverts a revocation after a failed write.
func (e *entry) reinstate(l *lease) {
	if l.cas(leaseRevoked, leaseActive) {
		e.accounted.Add(int64(l.games))
		e.outstanding.Add(1)
		metrics.LeasesOutstanding.Inc()
	}
}

// expireIfOverdue expires l if its deadline has passed.
func (e *entry) expireIfOverdue(l *lease, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.overdue(now) && e.release(l, leaseExpired)
}

// extend moves the deadline of an active lease to `until`. It reports false
// if the lease is no longer active.
func (l *lease) extend(until time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.load() != leaseActive {
		return false
	}
	l.deadline.Store(until.UnixNano())
	return true
}

// reclaimExpired expires the overdue leases of the test.
func (e *entry) reclaimExpired(now time.Time) int {
	n := 0
	e.leases.Range(func(_, v any) bool {
		l := v.(*lease)
		if l.load() == leaseActive && e.expireIfOverdue(l, now) {
			n++
		}
		return true
	})
	return n
}

// revokeAll revokes every active lease of the test.
func (e *entry) revokeAll() int {
	n := 0
	e.leases.Range(func(_, v any) bool {
		if e.release(v.(*lease), leaseRevoked) {
			n++
		}
		return true
	})
	return n
}
