// Package metrics documents the Prometheus metrics exported by the reconciler.
// Every collector is defined in the package that updates it (reconcile,
// client, ratelimit, compare, store, sweep) and registered via promauto.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Gatherer reads back the default registry that promauto registers every
// reconciler collector with; /metrics serves it.
var Gatherer = prometheus.DefaultGatherer

// Prefix is shared by every reconciler metric name.
const Prefix = "sync_"

// Names lists every metric the reconciler exports.
var Names = []string{
	// pkg/reconcile
	"sync_sweep_items_checked_total",
	"sync_sweep_pages_checked_total",
	"sync_sweep_page_errors_total",
	"sync_sweep_mismatches_total",
	"sync_sweep_breaker_trips_total",
	"sync_sweep_duration_seconds",

	// pkg/compare
	"sync_compare_mismatches_total",

	// pkg/client
	"sync_upstream_requests_total",
	"sync_upstream_request_duration_seconds",
	"sync_upstream_errors_total",
	"sync_upstream_retries_total",
	"sync_upstream_retry_backoff_seconds",
	"sync_upstream_retry_exhausted_total",

	// pkg/ratelimit
	"sync_upstream_budget_remaining",
	"sync_upstream_budget_blocks_total",
	"sync_upstream_budget_throttles_total",

	// pkg/store
	"sync_report_saves_total",
	"sync_report_errors_total",
	"sync_report_size_bytes",

	// pkg/sweep
	"sync_runner_runs_total",
	"sync_runner_last_success_timestamp_seconds",
	"sync_runner_last_mismatches",
}

// Exported returns the documented metrics currently present in Gatherer.
// Vector metrics appear once a label combination has been observed.
func Exported() (map[string]bool, error) {
	families, err := Gatherer.Gather()
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(Names))
	for _, name := range Names {
		known[name] = true
	}
	found := make(map[string]bool)
	for _, family := range families {
		if known[family.GetName()] {
			found[family.GetName()] = true
		}
	}
	return found, nil
}

// Metrics Documentation
//
// Sweep Metrics (pkg/reconcile), labelled by sweep:
//   - sync_sweep_items_checked_total (Counter): identifiers handed to the comparison
//   - sync_sweep_pages_checked_total (Counter): successful non-empty pages
//   - sync_sweep_page_errors_total (Counter): failed page fetches
//   - sync_sweep_mismatches_total (Counter): mismatches reported
//   - sync_sweep_breaker_trips_total (Counter): sweeps stopped at the page error ceiling
//   - sync_sweep_duration_seconds{outcome} (Histogram): success, aborted, error
//
// Comparison Metrics (pkg/compare):
//   - sync_compare_mismatches_total{kind} (Counter): missing_in_modern, missing_in_legacy, field_mismatch
//
// Upstream Metrics (pkg/client, pkg/ratelimit), labelled by system:
//   - sync_upstream_requests_total{status} (Counter)
//   - sync_upstream_request_duration_seconds (Histogram)
//   - sync_upstream_errors_total{class} (Counter): client, server, rate_limit, network
//   - sync_upstream_retries_total{error_class} (Counter)
//   - sync_upstream_retry_backoff_seconds{error_class} (Histogram, no system label)
//   - sync_upstream_retry_exhausted_total{error_class} (Counter)
//   - sync_upstream_budget_remaining (Gauge)
//   - sync_upstream_budget_blocks_total (Counter)
//   - sync_upstream_budget_throttles_total (Counter)
//
// Report Metrics (pkg/store, pkg/sweep):
//   - sync_report_saves_total{sweep} (Counter)
//   - sync_report_errors_total{operation} (Counter)
//   - sync_report_size_bytes{sweep} (Gauge)
//   - sync_runner_runs_total{sweep, outcome} (Counter)
//   - sync_runner_last_success_timestamp_seconds{sweep} (Gauge)
//   - sync_runner_last_mismatches{sweep} (Gauge)
//
// Example Prometheus Queries:
//
//   # Sweeps that have not covered the source in a day
//   time() - sync_runner_last_success_timestamp_seconds > 86400
//
//   # Page failure ratio
//   rate(sync_sweep_page_errors_total[1h]) /
//   (rate(sync_sweep_pages_checked_total[1h]) + rate(sync_sweep_page_errors_total[1h]))
//
//   # Comparison throughput
//   rate(sync_sweep_items_checked_total[5m])
//
//   # P95 upstream latency
//   histogram_quantile(0.95, rate(sync_upstream_request_duration_seconds_bucket[5m]))
