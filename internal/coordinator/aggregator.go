package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/leelachesszero/sprt-server/internal/lifecycle"
	"github.com/leelachesszero/sprt-server/internal/metrics"
	"github.com/leelachesszero/sprt-server/internal/models"
	"github.com/leelachesszero/sprt-server/internal/outcome"
	"github.com/leelachesszero/sprt-server/internal/sprt"
)

// ResultBatch is the outcome of one lease. LeaseID is the idempotency key.
type ResultBatch struct {
	LeaseID string
	TestID  uint
	outcome.Counters
}

// SubmitOutcome is the result of an applied or recognised batch.
type SubmitOutcome int

const (
	Accepted SubmitOutcome = iota + 1
	Duplicate
)

func (o SubmitOutcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case Duplicate:
		return "duplicate"
	}
	return "unknown"
}

// Receipt acknowledges a batch.
type Receipt struct {
	Outcome SubmitOutcome
	Verdict sprt.Verdict
	// Test is the snapshot after the merge, or the current one for duplicates.
	Test models.Test
}

// Aggregator merges result batches into test counters exactly once.
type Aggregator struct {
	pool   *Pool
	logger *slog.Logger
}

// NewAggregator returns an Aggregator over pool.
func NewAggregator(pool *Pool) *Aggregator {
	return &Aggregator{pool: pool, logger: pool.logger.With("component", "aggregator")}
}

// Submit merges b into its test. Batches for one test are applied one at a
// time; the SPRT verdict and any resulting lifecycle transition are applied
// before Submit returns. Rejections are *Error values and leave all state
// unchanged.
func (a *Aggregator) Submit(ctx context.Context, b ResultBatch) (Receipt, error) {
	start := time.Now()
	r, err := a.submit(ctx, b)
	switch {
	case err == nil:
		metrics.Batches.WithLabelValues(r.Outcome.String(), "").Inc()
		if r.Outcome == Accepted {
			metrics.MergeLatency.Observe(time.Since(start).Seconds())
		}
	case KindOf(err) != 0:
		metrics.Batches.WithLabelValues("rejected", string(ReasonOf(err))).Inc()
		a.logger.Debug("batch rejected", "test", b.TestID, "lease", b.LeaseID, "error", err)
	default:
		metrics.Batches.WithLabelValues("error", "").Inc()
		a.logger.Error("batch failed", "test", b.TestID, "lease", b.LeaseID, "error", err)
	}
	return r, err
}

func (a *Aggregator) submit(ctx context.Context, b ResultBatch) (Receipt, error) {
	if b.LeaseID == "" {
		return Receipt{}, reject(KindValidation, ReasonInvalidRequest, "missing lease id")
	}
	e, err := a.pool.entry(b.TestID)
	if err != nil {
		return Receipt{}, err
	}
	// Paired mode is immutable configuration, safe to read from any snapshot.
	paired := e.test().Paired
	if err := b.Counters.Validate(paired); err != nil {
		return Receipt{}, &Error{Kind: KindValidation, Reason: ReasonInconsistentCounts, Err: err}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	cur := e.test()
	if _, ok := e.applied[b.LeaseID]; ok {
		return Receipt{Outcome: Duplicate, Test: *cur}, nil
	}
	switch {
	case cur.Status.Finished():
		return Receipt{}, reject(KindConflict, ReasonTestFinished, "test %d is %s", cur.ID, cur.Status)
	case cur.Status != lifecycle.Active:
		return Receipt{}, reject(KindConflict, ReasonTestNotActive, "test %d is %s", cur.ID, cur.Status)
	}

	v, ok := e.leases.Load(b.LeaseID)
	if !ok {
		if other, found := a.pool.leases.Load(b.LeaseID); found {
			return Receipt{}, reject(KindValidation, ReasonTestMismatch, "lease %s belongs to test %d", b.LeaseID, other.(*lease).testID)
		}
		return Receipt{}, reject(KindConflict, ReasonUnknownLease, "lease %s", b.LeaseID)
	}
	l := v.(*lease)
	if b.Games > l.games {
		return Receipt{}, reject(KindValidation, ReasonExceedsLease, "%d games reported for a lease of %d", b.Games, l.games)
	}
	now := a.pool.opts.Now()
	e.expireIfOverdue(l, now)
	if !e.consume(l, b.Games) {
		return Receipt{}, reject(KindConflict, ReasonLeaseExpired, "lease %s is %s", l.id, l.load())
	}

	next := *cur
	next.Counters = cur.Counters.Add(b.Counters)
	if err := next.Counters.Validate(paired); err != nil {
		e.unconsume(l, b.Games)
		return Receipt{}, &Error{Kind: KindValidation, Reason: ReasonInconsistentCounts, Err: err}
	}

	res, err := sprt.Evaluate(next.Counters, next.Params(a.pool.opts.Model, a.pool.opts.Confidence))
	if err != nil {
		// Keep the previous LLR; the counters are still merged.
		a.logger.Warn("sprt evaluation failed", "test", cur.ID, "error", err)
		res = sprt.Result{LLR: cur.CurrentLLR, Verdict: sprt.Continue}
	}
	next.CurrentLLR = res.LLR
	if ev, final := verdictEvent(res.Verdict); final {
		if next.Status, err = lifecycle.Next(cur.Status, ev); err != nil {
			e.unconsume(l, b.Games)
			return Receipt{}, fmt.Errorf("finalize test %d: %w", cur.ID, err)
		}
	}
	next.UpdatedAt = now

	if err := a.pool.store.SaveTest(ctx, &next); err != nil {
		e.unconsume(l, b.Games)
		return Receipt{}, fmt.Errorf("save test %d: %w", cur.ID, errors.Join(err, ctx.Err()))
	}

	e.applied[b.LeaseID] = struct{}{}
	e.leases.Delete(b.LeaseID)
	a.pool.leases.Delete(b.LeaseID)
	a.pool.publish(e, &next)
	metrics.GamesMerged.Add(float64(b.Games))

	if next.Status.Finished() {
		a.logger.Info("test finished", "test", next.ID, "status", next.Status, "llr", next.CurrentLLR, "games", next.Games)
	}
	return Receipt{Outcome: Accepted, Verdict: res.Verdict, Test: next}, nil
}

func verdictEvent(v sprt.Verdict) (lifecycle.Event, bool) {
	switch v {
	case sprt.Pass:
		return lifecycle.Pass, true
	case sprt.Fail:
		return lifecycle.Fail, true
	}
	return "", false
}
