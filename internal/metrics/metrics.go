// Package metrics holds the prometheus collectors for run and solver
// instrumentation. Recording is unconditional; the collectors are only
// exported over HTTP when the debug server is enabled.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// IterationsTotal counts completed optimization iterations.
	IterationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "strut",
		Subsystem: "run",
		Name:      "iterations_total",
		Help:      "Completed optimization iterations.",
	})

	// Objective is the objective value of the latest iteration.
	Objective = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "strut",
		Subsystem: "run",
		Name:      "objective",
		Help:      "Aggregated stress objective of the latest iteration.",
	})

	// AreaFraction is the structural area fraction of the latest iteration.
	AreaFraction = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "strut",
		Subsystem: "run",
		Name:      "area_fraction",
		Help:      "Structural area over total mesh area.",
	})

	// RelativeChange is the moving-window stability metric of the latest
	// iteration.
	RelativeChange = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "strut",
		Subsystem: "run",
		Name:      "relative_change",
		Help:      "Moving-window relative objective change.",
	})

	// ReinitializationsTotal counts signed-distance reinitializations by
	// trigger: "implicit" when the advection step redistanced on its own,
	// "forced" when the scheduler demanded it.
	ReinitializationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "strut",
		Subsystem: "run",
		Name:      "reinitializations_total",
		Help:      "Signed-distance reinitializations by trigger.",
	}, []string{"trigger"})

	// SolveDuration observes wall time of structural state solves.
	SolveDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "strut",
		Subsystem: "fea",
		Name:      "solve_duration_seconds",
		Help:      "Wall time of one structural state solve.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	// CGIterations observes conjugate-gradient iteration counts per solve.
	CGIterations = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "strut",
		Subsystem: "fea",
		Name:      "cg_iterations",
		Help:      "Conjugate-gradient iterations per state solve.",
		Buckets:   prometheus.ExponentialBuckets(8, 2, 10),
	})
)
