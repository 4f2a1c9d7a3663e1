// Package coordinator owns the mutable state of every test: it merges result
// batches, issues leases and applies lifecycle transitions.
//
// Each test lives in its own entry. Writes to an entry are serialized by the
// entry's mutex; readers use the snapshot published through an atomic
// pointer, so a partially applied batch is never visible. Entries are held
// in a sync.Map and never share a lock.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/leelachesszero/sprt-server/internal/lifecycle"
	"github.com/leelachesszero/sprt-server/internal/metrics"
	"github.com/leelachesszero/sprt-server/internal/models"
	"github.com/leelachesszero/sprt-server/internal/sprt"
)

// Options configure a Pool.
type Options struct {
	// Model used for LLR computation.
	Model sprt.Model
	// Confidence of the Elo interval used for GAMES verdicts.
	Confidence float64
	// LeaseTTL is the time a worker has to return a lease.
	LeaseTTL time.Duration
	// MaxLeaseGames caps the games in a single lease.
	MaxLeaseGames int
	Logger        *slog.Logger
	// Now is the clock, time.Now when nil.
	Now func() time.Time
}

func (o *Options) setDefaults() {
	if o.Model == "" {
		o.Model = sprt.Logistic
	}
	if o.Confidence <= 0 || o.Confidence >= 1 {
		o.Confidence = 0.95
	}
	if o.LeaseTTL <= 0 {
		o.LeaseTTL = 15 * time.Minute
	}
	if o.MaxLeaseGames <= 0 {
		o.MaxLeaseGames = 8192
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

type entry struct {
	mu   sync.Mutex
	snap atomic.Pointer[models.Test]

	// accounted is completed games plus games reserved by active leases.
	accounted   atomic.Int64
	outstanding atomic.Int32

	applied map[string]struct{} // guarded by mu
	leases  sync.Map            // lease id -> *lease, kept after expiry
}

func newEntry(t models.Test) *entry {
	e := &entry{applied: make(map[string]struct{})}
	e.snap.Store(&t)
	e.accounted.Store(int64(t.Games))
	return e
}

func (e *entry) test() *models.Test { return e.snap.Load() }

// Pool holds every known test.
type Pool struct {
	store  Store
	opts   Options
	logger *slog.Logger

	tests  sync.Map // uint -> *entry
	leases sync.Map // lease id -> *lease
}

// NewPool returns an empty pool backed by store.
func NewPool(store Store, opts Options) *Pool {
	opts.setDefaults()
	return &Pool{
		store:  store,
		opts:   opts,
		logger: opts.Logger.With("component", "coordinator"),
	}
}

// Load reads every test from the store. Leases are not persisted, so any
// work that was in flight before a restart is treated as expired.
func (p *Pool) Load(ctx context.Context) error {
	tests, err := p.store.ListTests(ctx)
	if err != nil {
		return fmt.Errorf("list tests: %w", err)
	}
	for _, t := range tests {
		p.tests.Store(t.ID, newEntry(t))
		metrics.TestLLR.WithLabelValues(strconv.FormatUint(uint64(t.ID), 10)).Set(t.CurrentLLR)
	}
	p.logger.Info("tests loaded", "count", len(tests))
	return nil
}

func (p *Pool) entry(id uint) (*entry, error) {
	v, ok := p.tests.Load(id)
	if !ok {
		return nil, reject(KindNotFound, ReasonUnknownTest, "test %d", id)
	}
	return v.(*entry), nil
}

// Test returns the current snapshot of a test.
func (p *Pool) Test(id uint) (models.Test, error) {
	e, err := p.entry(id)
	if err != nil {
		return models.Test{}, err
	}
	return *e.test(), nil
}

// Tests returns a snapshot of every test ordered by id.
func (p *Pool) Tests() []models.Test {
	var out []models.Test
	p.tests.Range(func(_, v any) bool {
		out = append(out, *v.(*entry).test())
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RegisterEngine stores a new engine build.
func (p *Pool) RegisterEngine(ctx context.Context, e models.Engine) (models.Engine, error) {
	if err := validate.Struct(engineSpec{Name: e.Name, Source: e.Source, Sha: e.Sha, Bench: e.Bench}); err != nil {
		return models.Engine{}, &Error{Kind: KindValidation, Reason: ReasonInvalidRequest, Err: err}
	}
	e.ID = 0
	if err := p.store.CreateEngine(ctx, &e); err != nil {
		return models.Engine{}, fmt.Errorf("create engine: %w", err)
	}
	return e, nil
}

// Await moves a pending test to the review queue.
func (p *Pool) Await(ctx context.Context, id uint) (models.Test, error) {
	return p.apply(ctx, id, lifecycle.Await, nil)
}

// Approve opens a test for leasing.
func (p *Pool) Approve(ctx context.Context, id uint) (models.Test, error) {
	return p.apply(ctx, id, lifecycle.Approve, nil)
}

// Resume re-enables leasing for a test in ERROR once its remaining work
// budget has been checked.
func (p *Pool) Resume(ctx context.Context, id uint) (models.Test, error) {
	return p.apply(ctx, id, lifecycle.Resume, func(t *models.Test) error {
		if t.MaxGames > 0 && t.Games >= t.MaxGames {
			return reject(KindConflict, ReasonBudgetExhausted, "test %d has played %d of %d games", t.ID, t.Games, t.MaxGames)
		}
		t.ErrorReason = ""
		return nil
	})
}

// Delete removes a test administratively. Deleting twice is a no-op.
func (p *Pool) Delete(ctx context.Context, id uint) (models.Test, error) {
	e, err := p.entry(id)
	if err != nil {
		return models.Test{}, err
	}
	if e.test().Status == lifecycle.Deleted {
		return *e.test(), nil
	}
	return p.apply(ctx, id, lifecycle.Delete, nil)
}

// ReportError records a fatal engine or adjudication failure reported for a
// lease and freezes its test in ERROR. Only an active lease may report; a
// retried report for the lease that froze the test is a no-op.
func (p *Pool) ReportError(ctx context.Context, leaseID, reason string) (models.Test, error) {
	v, ok := p.leases.Load(leaseID)
	if !ok {
		return models.Test{}, reject(KindNotFound, ReasonUnknownLease, "lease %s", leaseID)
	}
	l := v.(*lease)
	e, err := p.entry(l.testID)
	if err != nil {
		return models.Test{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	cur := e.test()
	if l.faulted.Load() && cur.Status == lifecycle.Error {
		return *cur, nil
	}
	e.expireIfOverdue(l, p.opts.Now())
	if !e.release(l, leaseRevoked) {
		return *cur, reject(KindConflict, ReasonLeaseExpired, "lease %s is %s", leaseID, l.load())
	}
	l.faulted.Store(true)
	t, err := p.applyLocked(ctx, e, lifecycle.Fault, func(t *models.Test) error {
		t.ErrorReason = reason
		return nil
	})
	if err != nil {
		l.faulted.Store(false)
		e.reinstate(l)
		return t, err
	}
	failure := &Error{Kind: KindEngineFailure, Reason: ReasonEngineFailure, Err: errors.New(reason)}
	p.logger.Warn("test frozen", "test", t.ID, "lease", leaseID, "worker", l.workerID, "error", failure)
	return t, nil
}

// apply runs a lifecycle event against a test under its lock, persists the
// new snapshot and publishes it. Tests that can no longer receive work lose
// their outstanding leases.
func (p *Pool) apply(ctx context.Context, id uint, ev lifecycle.Event, mutate func(*models.Test) error) (models.Test, error) {
	e, err := p.entry(id)
	if err != nil {
		return models.Test{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return p.applyLocked(ctx, e, ev, mutate)
}

// applyLocked is apply with e.mu held.
func (p *Pool) applyLocked(ctx context.Context, e *entry, ev lifecycle.Event, mutate func(*models.Test) error) (models.Test, error) {
	cur := e.test()
	next := *cur
	status, err := lifecycle.Next(cur.Status, ev)
	if err != nil {
		reason := ReasonInvalidTransition
		if cur.Status.Finished() {
			reason = ReasonTestFinished
		}
		return *cur, &Error{Kind: KindConflict, Reason: reason, Err: err}
	}
	next.Status = status
	if mutate != nil {
		if err := mutate(&next); err != nil {
			return *cur, err
		}
	}
	next.UpdatedAt = p.opts.Now()
	if err := p.store.SaveTest(ctx, &next); err != nil {
		return *cur, fmt.Errorf("save test %d: %w", cur.ID, err)
	}
	p.publish(e, &next)
	p.logger.Info("test status changed", "test", cur.ID, "event", ev, "from", cur.Status, "to", next.Status)
	return next, nil
}

// publish installs next as the visible snapshot. Must be called with e.mu held.
func (p *Pool) publish(e *entry, next *models.Test) {
	prev := e.test()
	e.snap.Store(next)
	if prev.Status != next.Status {
		metrics.Transitions.WithLabelValues(string(next.Status)).Inc()
		if !next.Status.Leasable() {
			if n := e.revokeAll(); n > 0 {
				p.logger.Info("leases revoked", "test", next.ID, "count", n, "status", next.Status)
			}
		}
	}
	metrics.TestLLR.WithLabelValues(strconv.FormatUint(uint64(next.ID), 10)).Set(next.CurrentLLR)
}
