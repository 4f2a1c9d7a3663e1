package coordinator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApproveFromReviewQueue(t *testing.T) {
	f := newFixture(t)
	spec := f.spec("SPRT")
	spec.EloUpper = 5
	ctx := context.Background()

	test, err := f.pool.CreateTest(ctx, spec)
	require.NoError(t, err)
	test, err = f.pool.Await(ctx, test.ID)
	require.NoError(t, err)
	assert.Equal(t, "AWAITING", string(test.Status))

	_, err = f.pool.Await(ctx, test.ID)
	assert.Equal(t, ReasonInvalidTransition, ReasonOf(err))

	test, err = f.pool.Approve(ctx, test.ID)
	require.NoError(t, err)
	assert.Equal(t, "ACTIVE", string(test.Status))
	assert.Equal(t, "ACTIVE", string(f.store.tests[test.ID].Status))
}

func TestReportErrorFreezesTest(t *testing.T) {
	f := newFixture(t)
	spec := f.spec("SPRT")
	spec.EloUpper = 5
	spec.WorkloadSize = 10
	test := f.active(t, spec)
	ctx := context.Background()

	crashed := f.lease(t, "a")
	other := f.lease(t, "b")

	got, err := f.pool.ReportError(ctx, crashed.ID, "engine crashed in game 3")
	require.NoError(t, err)
	assert.Equal(t, "ERROR", string(got.Status))
	assert.Equal(t, "engine crashed in game 3", got.ErrorReason)

	e := f.pool.mustEntry(t, test.ID)
	assert.Zero(t, e.outstanding.Load())
	assert.Zero(t, e.accounted.Load())

	_, ok, err := f.dist.Lease(ctx, Capability{WorkerID: "c"})
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = f.agg.Submit(ctx, batchFor(other, wdl(5, 5, 0)))
	assert.Equal(t, ReasonTestNotActive, ReasonOf(err))

	_, err = f.pool.ReportError(ctx, "missing", "crash")
	assert.Equal(t, KindNotFound, KindOf(err))

	got, err = f.pool.Resume(ctx, test.ID)
	require.NoError(t, err)
	assert.Equal(t, "ACTIVE", string(got.Status))
	assert.Empty(t, got.ErrorReason)
	assert.Equal(t, test.ID, f.lease(t, "c").TestID)
}

func TestReportErrorNeedsActiveLease(t *testing.T) {
	f := newFixture(t)
	spec := f.spec("SPRT")
	spec.EloUpper = 5
	spec.WorkloadSize = 10
	test := f.active(t, spec)
	ctx := context.Background()

	u := f.lease(t, "a")
	_, err := f.pool.ReportError(ctx, u.ID, "engine crashed")
	require.NoError(t, err)

	got, err := f.pool.ReportError(ctx, u.ID, "engine crashed")
	require.NoError(t, err, "a retried report is a no-op")
	assert.Equal(t, "ERROR", string(got.Status))

	_, err = f.pool.Resume(ctx, test.ID)
	require.NoError(t, err)
	_, err = f.pool.ReportError(ctx, u.ID, "engine crashed")
	assert.Equal(t, ReasonLeaseExpired, ReasonOf(err))
	got, _ = f.pool.Test(test.ID)
	assert.Equal(t, "ACTIVE", string(got.Status))

	swept := f.lease(t, "b")
	f.clock.advance(11 * time.Minute)
	f.dist.Sweep(f.clock.Now())
	_, err = f.pool.ReportError(ctx, swept.ID, "engine crashed")
	assert.Equal(t, ReasonLeaseExpired, ReasonOf(err))
	got, _ = f.pool.Test(test.ID)
	assert.Equal(t, "ACTIVE", string(got.Status))

	overdue := f.lease(t, "c")
	f.clock.advance(11 * time.Minute)
	_, err = f.pool.ReportError(ctx, overdue.ID, "engine crashed")
	assert.Equal(t, ReasonLeaseExpired, ReasonOf(err))
	got, _ = f.pool.Test(test.ID)
	assert.Equal(t, "ACTIVE", string(got.Status))
	assert.Zero(t, f.pool.mustEntry(t, test.ID).outstanding.Load())
}

func TestReportErrorStoreFailureKeepsLease(t *testing.T) {
	f := newFixture(t)
	spec := f.spec("SPRT")
	spec.EloUpper = 5
	spec.WorkloadSize = 10
	test := f.active(t, spec)
	ctx := context.Background()

	u := f.lease(t, "a")
	f.store.setFail(errors.New("disk full"))
	_, err := f.pool.ReportError(ctx, u.ID, "engine crashed")
	require.Error(t, err)
	assert.Zero(t, KindOf(err))
	e := f.pool.mustEntry(t, test.ID)
	assert.Equal(t, int32(1), e.outstanding.Load())
	assert.Equal(t, int64(10), e.accounted.Load())

	f.store.setFail(nil)
	got, err := f.pool.ReportError(ctx, u.ID, "engine crashed")
	require.NoError(t, err)
	assert.Equal(t, "ERROR", string(got.Status))
}

func TestResumeChecksBudget(t *testing.T) {
	f := newFixture(t)
	spec := f.spec("SPRT")
	spec.EloUpper = 5
	spec.MaxGames = 20
	spec.WorkloadSize = 10
	test := f.active(t, spec)
	ctx := context.Background()

	a := f.lease(t, "a")
	b := f.lease(t, "b")
	_, err := f.agg.Submit(ctx, batchFor(a, wdl(4, 2, 4)))
	require.NoError(t, err)

	// Simulate a budget used up by games merged before the failure.
	e := f.pool.mustEntry(t, test.ID)
	e.mu.Lock()
	next := *e.test()
	next.Games, next.Wins, next.Draws, next.Losses = 20, 8, 4, 8
	e.snap.Store(&next)
	e.mu.Unlock()

	_, err = f.pool.ReportError(ctx, b.ID, "illegal move")
	require.NoError(t, err)
	_, err = f.pool.Resume(ctx, test.ID)
	assert.Equal(t, ReasonBudgetExhausted, ReasonOf(err))
	got, _ := f.pool.Test(test.ID)
	assert.Equal(t, "ERROR", string(got.Status))
}

func TestFinishedTestCannotResume(t *testing.T) {
	f := newFixture(t)
	spec := f.spec("SPRT")
	spec.EloUpper = 5
	spec.MaxGames = 10
	spec.WorkloadSize = 10
	test := f.active(t, spec)
	ctx := context.Background()

	u := f.lease(t, "a")
	r, err := f.agg.Submit(ctx, batchFor(u, wdl(4, 2, 4)))
	require.NoError(t, err)
	require.Equal(t, "FINISHED_FAILED", string(r.Test.Status), "capped SPRT tests fail at the cap")

	_, err = f.pool.Resume(ctx, test.ID)
	assert.Equal(t, ReasonTestFinished, ReasonOf(err))
	_, err = f.pool.ReportError(ctx, u.ID, "late crash")
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestDeleteRevokesLeases(t *testing.T) {
	f := newFixture(t)
	spec := f.spec("SPRT")
	spec.EloUpper = 5
	spec.WorkloadSize = 10
	test := f.active(t, spec)
	ctx := context.Background()

	u := f.lease(t, "a")
	got, err := f.pool.Delete(ctx, test.ID)
	require.NoError(t, err)
	assert.Equal(t, "DELETED", string(got.Status))
	assert.Zero(t, f.pool.mustEntry(t, test.ID).outstanding.Load())

	got, err = f.pool.Delete(ctx, test.ID)
	require.NoError(t, err)
	assert.Equal(t, "DELETED", string(got.Status))

	_, err = f.agg.Submit(ctx, batchFor(u, wdl(5, 5, 0)))
	assert.Equal(t, ReasonTestNotActive, ReasonOf(err))
	_, err = f.pool.Approve(ctx, test.ID)
	assert.Equal(t, KindConflict, KindOf(err))
	_, err = f.pool.Delete(ctx, 999)
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestLoadRestoresTests(t *testing.T) {
	f := newFixture(t)
	spec := f.spec("SPRT")
	spec.EloUpper = 5
	spec.WorkloadSize = 10
	test := f.active(t, spec)
	u := f.lease(t, "a")
	_, err := f.agg.Submit(context.Background(), batchFor(u, wdl(5, 3, 2)))
	require.NoError(t, err)
	f.lease(t, "b")

	restarted := NewPool(f.store, Options{
		LeaseTTL: time.Minute,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, restarted.Load(context.Background()))

	got, err := restarted.Test(test.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.Games)
	assert.Equal(t, "ACTIVE", string(got.Status))
	// In-flight work from before the restart is forgotten.
	assert.Equal(t, int64(10), restarted.mustEntry(t, test.ID).accounted.Load())
	assert.Len(t, restarted.Tests(), 1)

	// So are applied lease ids: a retried batch is refused, not merged twice.
	_, err = NewAggregator(restarted).Submit(context.Background(), batchFor(u, wdl(5, 3, 2)))
	assert.Equal(t, ReasonUnknownLease, ReasonOf(err))
	got, err = restarted.Test(test.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.Games)
}
