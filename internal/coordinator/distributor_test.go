package coordinator

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestLeaseNeverExceedsMaxGames(t *testing.T) {
	f := newFixture(t)
	spec := f.spec("GAMES")
	spec.MaxGames = 100
	spec.WorkloadSize = 8
	test := f.active(t, spec)

	var (
		g     errgroup.Group
		mu    sync.Mutex
		total int
	)
	for i := 0; i < 50; i++ {
		i := i
		g.Go(func() error {
			u, ok, err := f.dist.Lease(context.Background(), Capability{WorkerID: fmt.Sprintf("w%d", i)})
			if err != nil || !ok {
				return err
			}
			mu.Lock()
			total += u.Games
			mu.Unlock()
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, 100, total)
	assert.Equal(t, int64(100), f.pool.mustEntry(t, test.ID).accounted.Load())

	_, ok, err := f.dist.Lease(context.Background(), Capability{WorkerID: "late"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLeaseSize(t *testing.T) {
	f := newFixture(t)
	spec := f.spec("GAMES")
	spec.MaxGames = 50
	spec.Paired = true
	spec.WorkloadSize = 16
	f.active(t, spec)

	u, ok, err := f.dist.Lease(context.Background(), Capability{WorkerID: "big", Concurrency: 2})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 32, u.Games)
	assert.WithinDuration(t, f.clock.Now().Add(10*time.Minute), u.Deadline, 0)

	// 18 games remain; both are even.
	u, ok, err = f.dist.Lease(context.Background(), Capability{WorkerID: "big", Concurrency: 2})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 18, u.Games)
}

func TestLeaseSizeIsCapped(t *testing.T) {
	f := newFixture(t)
	spec := f.spec("SPRT")
	spec.EloUpper = 5
	spec.WorkloadSize = 4096
	f.active(t, spec)

	for _, concurrency := range []int{3, math.MaxInt32, math.MaxInt} {
		u, ok, err := f.dist.Lease(context.Background(), Capability{WorkerID: "greedy", Concurrency: concurrency})
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, 8192, u.Games, "concurrency %d", concurrency)
	}
}

func TestLeaseRejectsBadCapability(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.dist.Lease(context.Background(), Capability{})
	assert.Equal(t, ReasonInvalidRequest, ReasonOf(err))
	_, _, err = f.dist.Lease(context.Background(), Capability{WorkerID: "w", Concurrency: -1})
	assert.Equal(t, ReasonInvalidRequest, ReasonOf(err))
}

func TestExpiredLeaseIsReusable(t *testing.T) {
	f := newFixture(t)
	spec := f.spec("GAMES")
	spec.MaxGames = 8
	spec.WorkloadSize = 8
	f.active(t, spec)

	stale := f.lease(t, "slow")
	_, ok, err := f.dist.Lease(context.Background(), Capability{WorkerID: "fast"})
	require.NoError(t, err)
	require.False(t, ok)

	f.clock.advance(11 * time.Minute)
	fresh := f.lease(t, "fast")
	assert.Equal(t, 8, fresh.Games)

	_, err = f.agg.Submit(context.Background(), batchFor(stale, wdl(4, 2, 2)))
	assert.Equal(t, ReasonLeaseExpired, ReasonOf(err))
	assert.Equal(t, KindConflict, KindOf(err))

	r, err := f.agg.Submit(context.Background(), batchFor(fresh, wdl(4, 2, 2)))
	require.NoError(t, err)
	assert.Equal(t, 8, r.Test.Games)
}

func TestSweepReleasesReservations(t *testing.T) {
	f := newFixture(t)
	spec := f.spec("SPRT")
	spec.EloUpper = 5
	spec.WorkloadSize = 10
	test := f.active(t, spec)

	u := f.lease(t, "w")
	f.lease(t, "w")
	e := f.pool.mustEntry(t, test.ID)
	require.Equal(t, int64(20), e.accounted.Load())

	assert.Zero(t, f.dist.Sweep(f.clock.Now()))
	f.clock.advance(11 * time.Minute)
	assert.Equal(t, 2, f.dist.Sweep(f.clock.Now()))
	assert.Zero(t, e.accounted.Load())
	assert.Zero(t, e.outstanding.Load())

	_, err := f.agg.Submit(context.Background(), batchFor(u, wdl(5, 5, 0)))
	assert.Equal(t, ReasonLeaseExpired, ReasonOf(err))

	// Resolved leases are forgotten after the retention window.
	f.clock.advance(leaseRetention * 10 * time.Minute)
	f.dist.Sweep(f.clock.Now())
	_, err = f.agg.Submit(context.Background(), batchFor(u, wdl(5, 5, 0)))
	assert.Equal(t, ReasonUnknownLease, ReasonOf(err))
}

func TestHeartbeatExtendsLease(t *testing.T) {
	f := newFixture(t)
	spec := f.spec("SPRT")
	spec.EloUpper = 5
	spec.WorkloadSize = 10
	f.active(t, spec)
	u := f.lease(t, "w")

	f.clock.advance(9 * time.Minute)
	got, active, err := f.dist.Heartbeat(context.Background(), u.ID)
	require.NoError(t, err)
	assert.True(t, active)
	assert.WithinDuration(t, f.clock.Now().Add(10*time.Minute), got.Deadline, 0)

	f.clock.advance(9 * time.Minute)
	assert.Zero(t, f.dist.Sweep(f.clock.Now()))

	f.clock.advance(2 * time.Minute)
	_, _, err = f.dist.Heartbeat(context.Background(), u.ID)
	assert.Equal(t, ReasonLeaseExpired, ReasonOf(err))

	_, _, err = f.dist.Heartbeat(context.Background(), "missing")
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestHeartbeatRacesSweep(t *testing.T) {
	f := newFixture(t)
	spec := f.spec("SPRT")
	spec.EloUpper = 5
	spec.WorkloadSize = 1
	f.active(t, spec)

	for n := 0; n < 200; n++ {
		u := f.lease(t, "w")
		f.clock.advance(5 * time.Minute)
		// Overdue for the original deadline, not for an extended one.
		sweepAt := f.clock.Now().Add(7 * time.Minute)

		var (
			g     errgroup.Group
			hbErr error
		)
		g.Go(func() error {
			_, _, hbErr = f.dist.Heartbeat(context.Background(), u.ID)
			return nil
		})
		g.Go(func() error {
			f.dist.Sweep(sweepAt)
			return nil
		})
		require.NoError(t, g.Wait())

		v, ok := f.pool.leases.Load(u.ID)
		require.True(t, ok)
		state := v.(*lease).load()
		if hbErr == nil {
			assert.Equal(t, leaseActive, state, "extended lease was expired")
		} else {
			assert.Equal(t, ReasonLeaseExpired, ReasonOf(hbErr))
			assert.Equal(t, leaseExpired, state)
		}
	}
}

func TestLeaseOrder(t *testing.T) {
	f := newFixture(t)
	spec := f.spec("SPRT")
	spec.EloUpper = 5
	spec.WorkloadSize = 10

	older := f.active(t, spec)
	f.clock.advance(time.Minute)
	newer := f.active(t, spec)
	f.clock.advance(time.Minute)
	spec.Priority = 1
	urgent := f.active(t, spec)

	assert.Equal(t, urgent.ID, f.lease(t, "a").TestID)
	assert.Equal(t, urgent.ID, f.lease(t, "b").TestID, "priority wins over load")

	_, err := f.pool.Delete(context.Background(), urgent.ID)
	require.NoError(t, err)
	assert.Equal(t, older.ID, f.lease(t, "c").TestID, "oldest first on ties")
	assert.Equal(t, newer.ID, f.lease(t, "d").TestID, "least loaded next")
}

func TestLeaseMatchesEngines(t *testing.T) {
	f := newFixture(t)
	spec := f.spec("SPRT")
	spec.EloUpper = 5
	f.active(t, spec)

	_, ok, err := f.dist.Lease(context.Background(), Capability{WorkerID: "w", Engines: []string{"stockfish"}})
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = f.dist.Lease(context.Background(), Capability{WorkerID: "w", Engines: []string{"stockfish", "lc0"}})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRunStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.dist.Run(ctx, time.Millisecond) }()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
