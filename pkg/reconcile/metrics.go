package reconcile

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for reconciliation sweeps.
var (
	sweepItemsChecked = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_sweep_items_checked_total",
		Help: "Total identifiers handed to the comparison function by sweep",
	}, []string{"sweep"})

	sweepPagesChecked = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_sweep_pages_checked_total",
		Help: "Total non-empty pages fetched by sweep",
	}, []string{"sweep"})

	sweepPageErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_sweep_page_errors_total",
		Help: "Total failed page fetches by sweep",
	}, []string{"sweep"})

	sweepMismatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_sweep_mismatches_total",
		Help: "Total mismatches found by sweep",
	}, []string{"sweep"})

	sweepBreakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_sweep_breaker_trips_total",
		Help: "Total sweeps abandoned after reaching the page error ceiling",
	}, []string{"sweep"})

	sweepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sync_sweep_duration_seconds",
		Help:    "Sweep duration in seconds by sweep and outcome",
		Buckets: []float64{1, 5, 15, 60, 300, 900, 3600},
	}, []string{"sweep", "outcome"})
)
