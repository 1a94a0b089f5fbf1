package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/sync-reconciler/pkg/compare"
)

// ErrInvalidReport indicates a report is missing required fields.
var ErrInvalidReport = errors.New("invalid report")

// Report is the persisted outcome of one sweep.
type Report struct {
	// RunID uniquely identifies the sweep run
	RunID string `json:"run_id"`

	// Sweep is the sweep name
	Sweep string `json:"sweep"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	ItemsChecked int64 `json:"items_checked"`
	PagesChecked int64 `json:"pages_checked"`
	PageErrors   int64 `json:"page_errors"`

	// Aborted is true when the sweep stopped at the page error ceiling
	Aborted bool `json:"aborted"`

	// Mismatches found by the sweep
	Mismatches []compare.Mismatch `json:"mismatches"`

	// Error is set when the sweep failed
	Error string `json:"error,omitempty"`
}

// Validate checks the report can be stored.
func (r *Report) Validate() error {
	if r.RunID == "" {
		return fmt.Errorf("%w: run_id is required", ErrInvalidReport)
	}
	if r.Sweep == "" {
		return fmt.Errorf("%w: sweep is required", ErrInvalidReport)
	}
	if r.FinishedAt.Before(r.StartedAt) {
		return fmt.Errorf("%w: finished_at before started_at", ErrInvalidReport)
	}
	return nil
}

// Complete returns true if the sweep covered the whole source without failing.
func (r *Report) Complete() bool {
	return !r.Aborted && r.Error == ""
}

// Duration returns how long the sweep ran.
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
