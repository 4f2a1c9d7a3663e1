package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Coordinator counters, gauges and histograms.

var (
	// Distributor
	LeasesIssued = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sprt",
		Subsystem: "distributor",
		Name:      "leases_issued_total",
		Help:      "Total leases issued to workers",
	})

	LeasesReleased = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sprt",
		Subsystem: "distributor",
		Name:      "leases_released_total",
		Help:      "Total leases released without a result, by cause",
	}, []string{"cause"})

	LeasesOutstanding = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "sprt",
		Subsystem: "distributor",
		Name:      "leases_outstanding",
		Help:      "Leases issued and not yet resolved",
	})

	GamesReserved = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sprt",
		Subsystem: "distributor",
		Name:      "games_reserved_total",
		Help:      "Total games reserved by leases",
	})

	LeaseEmpty = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sprt",
		Subsystem: "distributor",
		Name:      "lease_empty_total",
		Help:      "Lease requests answered with no work",
	})

	// Aggregator
	Batches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sprt",
		Subsystem: "aggregator",
		Name:      "batches_total",
		Help:      "Result batches by outcome and rejection reason",
	}, []string{"outcome", "reason"})

	GamesMerged = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sprt",
		Subsystem: "aggregator",
		Name:      "games_merged_total",
		Help:      "Total games merged into test counters",
	})

	MergeLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "sprt",
		Subsystem: "aggregator",
		Name:      "merge_duration_seconds",
		Help:      "Time spent applying one result batch, including persistence",
		Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	})

	// Lifecycle
	Transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sprt",
		Subsystem: "lifecycle",
		Name:      "transitions_total",
		Help:      "Test status transitions by target status",
	}, []string{"status"})

	TestLLR = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "sprt",
		Subsystem: "tests",
		Name:      "llr",
		Help:      "Current log-likelihood ratio per test",
	}, []string{"test"})
)
