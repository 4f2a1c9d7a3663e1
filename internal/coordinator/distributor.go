package coordinator

import (
	"context"
	"log/slog"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/leelachesszero/sprt-server/internal/metrics"
	"github.com/leelachesszero/sprt-server/internal/models"
)

// Capability describes what a worker can run.
type Capability struct {
	WorkerID string
	// Concurrency is the number of games the worker plays at once.
	Concurrency int
	// Engines the worker can build. Empty means any.
	Engines []string
}

func (c Capability) supports(t *models.Test) bool {
	if len(c.Engines) == 0 {
		return true
	}
	return slices.Contains(c.Engines, t.Dev.Name) && slices.Contains(c.Engines, t.Base.Name)
}

// Distributor hands out leases on active tests.
type Distributor struct {
	pool   *Pool
	logger *slog.Logger
}

// NewDistributor returns a Distributor over pool.
func NewDistributor(pool *Pool) *Distributor {
	return &Distributor{pool: pool, logger: pool.logger.With("component", "distributor")}
}

type candidate struct {
	e *entry
	t *models.Test
}

// Lease reserves work on the most deserving active test. ok is false when no
// test can take more work.
func (d *Distributor) Lease(ctx context.Context, c Capability) (WorkUnit, bool, error) {
	if err := ctx.Err(); err != nil {
		return WorkUnit{}, false, err
	}
	if c.WorkerID == "" {
		return WorkUnit{}, false, reject(KindValidation, ReasonInvalidRequest, "missing worker id")
	}
	if c.Concurrency < 0 {
		return WorkUnit{}, false, reject(KindValidation, ReasonInvalidRequest, "negative concurrency %d", c.Concurrency)
	}
	now := d.pool.opts.Now()

	limit := d.pool.opts.MaxLeaseGames
	for _, cand := range d.candidates(c, now) {
		want := min(cand.t.WorkloadSize*min(max(1, c.Concurrency), limit), limit)
		n := cand.e.reserve(want, cand.t.MaxGames, cand.t.Paired)
		if n == 0 {
			continue
		}
		l := &lease{
			id:       uuid.NewString(),
			testID:   cand.t.ID,
			workerID: c.WorkerID,
			games:    n,
			issuedAt: now,
		}
		l.deadline.Store(now.Add(d.pool.opts.LeaseTTL).UnixNano())
		cand.e.outstanding.Add(1)
		metrics.LeasesOutstanding.Inc()
		cand.e.leases.Store(l.id, l)
		d.pool.leases.Store(l.id, l)

		// A status change published before the lease was stored would have
		// missed it, so check again.
		t := cand.e.test()
		if !t.Status.Leasable() {
			cand.e.release(l, leaseRevoked)
			continue
		}
		metrics.LeasesIssued.Inc()
		metrics.GamesReserved.Add(float64(n))
		d.logger.Debug("lease issued", "lease", l.id, "test", l.testID, "worker", l.workerID, "games", n)
		return l.unit(t), true, nil
	}
	metrics.LeaseEmpty.Inc()
	return WorkUnit{}, false, nil
}

// candidates returns the leasable tests for c in the order they should be
// served: higher priority first, then the test with the fewest active leases
// relative to its throughput, then the oldest.
func (d *Distributor) candidates(c Capability, now time.Time) []candidate {
	var out []candidate
	d.pool.tests.Range(func(_, v any) bool {
		e := v.(*entry)
		t := e.test()
		if !t.Status.Leasable() || !c.supports(t) {
			return true
		}
		if t.MaxGames > 0 && e.accounted.Load() >= int64(t.MaxGames) {
			if e.reclaimExpired(now) == 0 {
				return true
			}
		}
		out = append(out, candidate{e: e, t: t})
		return true
	})
	share := func(c candidate) float64 {
		tp := c.t.Throughput
		if tp <= 0 {
			tp = 1
		}
		return float64(c.e.outstanding.Load()) / float64(tp)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.t.Priority != b.t.Priority {
			return a.t.Priority > b.t.Priority
		}
		if sa, sb := share(a), share(b); sa != sb {
			return sa < sb
		}
		if !a.t.CreatedAt.Equal(b.t.CreatedAt) {
			return a.t.CreatedAt.Before(b.t.CreatedAt)
		}
		return a.t.ID < b.t.ID
	})
	return out
}

// reserve claims up to want games against the test's budget in a single
// compare-and-swap step and returns the number claimed.
func (e *entry) reserve(want, maxGames int, paired bool) int {
	for {
		cur := e.accounted.Load()
		n := int64(want)
		if maxGames > 0 {
			n = min(n, int64(maxGames)-cur)
		}
		if paired {
			n -= n % 2
		}
		if n <= 0 {
			return 0
		}
		if e.accounted.CompareAndSwap(cur, cur+n) {
			return int(n)
		}
	}
}

// Heartbeat extends an active lease by the lease TTL. active reports whether
// the test still wants the results.
func (d *Distributor) Heartbeat(ctx context.Context, leaseID string) (unit WorkUnit, active bool, err error) {
	if err := ctx.Err(); err != nil {
		return WorkUnit{}, false, err
	}
	v, ok := d.pool.leases.Load(leaseID)
	if !ok {
		return WorkUnit{}, false, reject(KindNotFound, ReasonUnknownLease, "lease %s", leaseID)
	}
	l := v.(*lease)
	e, err := d.pool.entry(l.testID)
	if err != nil {
		return WorkUnit{}, false, err
	}
	now := d.pool.opts.Now()
	e.expireIfOverdue(l, now)
	if !l.extend(now.Add(d.pool.opts.LeaseTTL)) {
		return WorkUnit{}, false, reject(KindConflict, ReasonLeaseExpired, "lease %s is %s", leaseID, l.load())
	}
	t := e.test()
	return l.unit(t), t.Status.Leasable(), nil
}

// Sweep expires every overdue lease and returns the number expired. Resolved
// leases older than the retention window are forgotten.
func (d *Distributor) Sweep(now time.Time) int {
	expired := 0
	retain := now.Add(-leaseRetention * d.pool.opts.LeaseTTL)
	d.pool.tests.Range(func(_, v any) bool {
		e := v.(*entry)
		expired += e.reclaimExpired(now)
		e.leases.Range(func(k, v any) bool {
			l := v.(*lease)
			if l.load() != leaseActive && l.deadlineTime().Before(retain) {
				e.leases.Delete(k)
				d.pool.leases.Delete(k)
			}
			return true
		})
		return true
	})
	if expired > 0 {
		d.logger.Info("leases expired", "count", expired)
	}
	return expired
}

// leaseRetention is how many TTLs a resolved lease is remembered so late
// submits are told the lease expired rather than that it is unknown.
const leaseRetention = 4

// Run sweeps every interval until ctx is cancelled.
func (d *Distributor) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			d.Sweep(d.pool.opts.Now())
		}
	}
}
