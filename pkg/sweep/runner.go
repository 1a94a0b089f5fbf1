// Package sweep runs named reconciliation sweeps on a schedule and
// persists their reports.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/sync-reconciler/pkg/compare"
	"github.com/Sternrassler/sync-reconciler/pkg/logging"
	"github.com/Sternrassler/sync-reconciler/pkg/reconcile"
	"github.com/Sternrassler/sync-reconciler/pkg/store"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for scheduled runs.
var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_runner_runs_total",
		Help: "Total sweep runs by sweep and outcome",
	}, []string{"sweep", "outcome"})

	lastSuccess = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sync_runner_last_success_timestamp_seconds",
		Help: "Unix time of the last sweep that covered the whole source",
	}, []string{"sweep"})

	lastMismatches = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sync_runner_last_mismatches",
		Help: "Mismatches found by the most recent sweep",
	}, []string{"sweep"})
)

// ReportSaver persists sweep reports. *store.Store implements it.
type ReportSaver interface {
	Save(ctx context.Context, report *store.Report) error
}

// Config holds runner configuration.
type Config struct {
	// Interval is the pause between the end of one run and the start of the next
	Interval time.Duration

	// RunTimeout bounds a single run; 0 means no limit
	RunTimeout time.Duration

	// Engine configures the sweep itself. Engine.Name names the sweep.
	Engine reconcile.Config
}

// DefaultConfig runs the default sweep hourly.
func DefaultConfig() Config {
	return Config{
		Interval: time.Hour,
		Engine:   reconcile.DefaultConfig(),
	}
}

// Runner executes one named sweep, one run at a time.
type Runner struct {
	config     Config
	nextPage   reconcile.NextPageFunc[int64]
	checkMatch reconcile.CheckMatchFunc[int64, compare.Mismatch]
	reports    ReportSaver
	logger     zerolog.Logger
	now        func() time.Time
}

// New creates a runner. reports may be nil, in which case reports are only logged.
func New(cfg Config, nextPage reconcile.NextPageFunc[int64], checkMatch reconcile.CheckMatchFunc[int64, compare.Mismatch], reports ReportSaver) (*Runner, error) {
	if err := cfg.Engine.Validate(); err != nil {
		return nil, err
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("interval must be > 0 (got %v)", cfg.Interval)
	}
	if nextPage == nil || checkMatch == nil {
		return nil, errors.New("nextPage and checkMatch are required")
	}
	if cfg.Engine.Name == "" {
		cfg.Engine.Name = "default"
	}

	return &Runner{
		config:     cfg,
		nextPage:   nextPage,
		checkMatch: checkMatch,
		reports:    reports,
		logger:     logging.NewLogger(logging.ComponentRunner).With().Str("sweep", cfg.Engine.Name).Logger(),
		now:        time.Now,
	}, nil
}

// Name returns the sweep name.
func (r *Runner) Name() string {
	return r.config.Engine.Name
}

// RunOnce executes a single sweep and saves its report.
// The report is returned even when the sweep failed; its Error field is
// then set and the sweep error is returned alongside it.
func (r *Runner) RunOnce(ctx context.Context) (*store.Report, error) {
	runID := uuid.NewString()
	logger := logging.WithSweep(r.logger, r.Name(), runID)

	if r.config.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.RunTimeout)
		defer cancel()
	}

	started := r.now()
	result, sweepErr := reconcile.GenerateReport(ctx, r.config.Engine, r.checkMatch, r.nextPage)
	finished := r.now()

	report := &store.Report{
		RunID:        runID,
		Sweep:        r.Name(),
		StartedAt:    started,
		FinishedAt:   finished,
		ItemsChecked: result.ItemsChecked,
		PagesChecked: result.PagesChecked,
		PageErrors:   result.PageErrors,
		Aborted:      result.Aborted,
		Mismatches:   result.Mismatches,
	}
	if sweepErr != nil {
		report.Error = sweepErr.Error()
	}

	outcome := outcomeOf(report)
	runsTotal.WithLabelValues(r.Name(), outcome).Inc()
	if outcome == "success" {
		lastSuccess.WithLabelValues(r.Name()).Set(float64(finished.Unix()))
	}
	lastMismatches.WithLabelValues(r.Name()).Set(float64(len(report.Mismatches)))

	if r.reports != nil {
		// The run context may already be cancelled; the report should still land.
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := r.reports.Save(saveCtx, report); err != nil {
			logger.Warn().Err(err).Msg("Failed to save sweep report")
			if sweepErr == nil {
				return report, fmt.Errorf("save report: %w", err)
			}
		}
	}

	logger.Info().
		Str("outcome", outcome).
		Int64("items_checked", report.ItemsChecked).
		Int64("pages_checked", report.PagesChecked).
		Int64("page_errors", report.PageErrors).
		Int("mismatches", len(report.Mismatches)).
		Dur("duration", report.Duration()).
		Msg("Sweep run finished")

	return report, sweepErr
}

// Run executes sweeps until ctx is cancelled, waiting Interval after each run.
// Run failures are logged and do not stop the loop.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info().Dur("interval", r.config.Interval).Msg("Sweep runner started")

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("Sweep runner stopped")
			return nil
		case <-timer.C:
		}

		if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
			r.logger.Error().Err(err).Msg("Sweep run failed")
		}

		timer.Reset(r.config.Interval)
	}
}

func outcomeOf(report *store.Report) string {
	switch {
	case report.Error != "":
		return "error"
	case report.Aborted:
		return "aborted"
	default:
		return "success"
	}
}
