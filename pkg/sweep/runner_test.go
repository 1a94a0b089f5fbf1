package sweep

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Sternrassler/sync-reconciler/pkg/compare"
	"github.com/Sternrassler/sync-reconciler/pkg/reconcile"
	"github.com/Sternrassler/sync-reconciler/pkg/store"
)

// memorySaver keeps saved reports in memory.
type memorySaver struct {
	mu      sync.Mutex
	reports []*store.Report
	err     error
}

func (m *memorySaver) Save(ctx context.Context, report *store.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if err := report.Validate(); err != nil {
		return err
	}
	m.reports = append(m.reports, report)
	return nil
}

func (m *memorySaver) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.reports)
}

// slicePages serves ids in pages of pageSize.
func slicePages(ids []int64, pageSize int) reconcile.NextPageFunc[int64] {
	return func(ctx context.Context, cursor int64) reconcile.PageResult[int64] {
		page := []int64{}
		for _, id := range ids {
			if id > cursor && len(page) < pageSize {
				page = append(page, id)
			}
		}
		last := cursor
		if len(page) > 0 {
			last = page[len(page)-1]
		}
		return reconcile.NewPageSuccess(page, last)
	}
}

func oddMismatch(ctx context.Context, id int64) (compare.Mismatch, bool, error) {
	if id%2 == 1 {
		return compare.Mismatch{ID: id, Kind: compare.KindMissingInModern}, true, nil
	}
	return compare.Mismatch{}, false, nil
}

func testConfig(name string) Config {
	cfg := DefaultConfig()
	cfg.Interval = 10 * time.Millisecond
	cfg.Engine.Name = name
	cfg.Engine.PageSize = 4
	cfg.Engine.ThreadCount = 2
	return cfg
}

func TestNew_Validation(t *testing.T) {
	pages := slicePages(nil, 4)

	tests := []struct {
		name   string
		mutate func(*Config)
		next   reconcile.NextPageFunc[int64]
		check  reconcile.CheckMatchFunc[int64, compare.Mismatch]
	}{
		{"bad engine config", func(c *Config) { c.Engine.ThreadCount = 0 }, pages, oddMismatch},
		{"zero interval", func(c *Config) { c.Interval = 0 }, pages, oddMismatch},
		{"missing pager", func(c *Config) {}, nil, oddMismatch},
		{"missing check", func(c *Config) {}, pages, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig("customers")
			tt.mutate(&cfg)
			if _, err := New(cfg, tt.next, tt.check, nil); err == nil {
				t.Error("New() expected error")
			}
		})
	}
}

func TestRunner_RunOnce(t *testing.T) {
	saver := &memorySaver{}
	runner, err := New(testConfig("customers"), slicePages([]int64{1, 2, 3, 4, 5, 6, 7, 8, 9}, 4), oddMismatch, saver)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	report, err := runner.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	if report.RunID == "" {
		t.Error("RunID is empty")
	}
	if report.Sweep != "customers" {
		t.Errorf("Sweep = %q, want customers", report.Sweep)
	}
	if report.ItemsChecked != 9 {
		t.Errorf("ItemsChecked = %d, want 9", report.ItemsChecked)
	}
	if report.PagesChecked != 3 {
		t.Errorf("PagesChecked = %d, want 3", report.PagesChecked)
	}
	if len(report.Mismatches) != 5 {
		t.Errorf("len(Mismatches) = %d, want 5", len(report.Mismatches))
	}
	if !report.Complete() {
		t.Errorf("Complete() = false, report = %+v", report)
	}
	if saver.count() != 1 {
		t.Errorf("saved reports = %d, want 1", saver.count())
	}
}

func TestRunner_RunOnce_UniqueRunIDs(t *testing.T) {
	runner, err := New(testConfig("customers"), slicePages([]int64{1}, 4), oddMismatch, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	first, _ := runner.RunOnce(context.Background())
	second, _ := runner.RunOnce(context.Background())
	if first.RunID == second.RunID {
		t.Errorf("run ids repeat: %q", first.RunID)
	}
}

func TestRunner_RunOnce_CheckFailure(t *testing.T) {
	saver := &memorySaver{}
	boom := errors.New("modern system unreachable")
	check := func(ctx context.Context, id int64) (compare.Mismatch, bool, error) {
		return compare.Mismatch{}, false, boom
	}

	runner, err := New(testConfig("customers"), slicePages([]int64{1, 2, 3}, 4), check, saver)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	report, err := runner.RunOnce(context.Background())
	if !errors.Is(err, reconcile.ErrCheckFailed) {
		t.Fatalf("RunOnce() error = %v, want ErrCheckFailed", err)
	}
	if report.Error == "" {
		t.Error("report.Error is empty for a failed sweep")
	}
	if saver.count() != 1 {
		t.Errorf("failed sweep report not saved (saved = %d)", saver.count())
	}
}

func TestRunner_RunOnce_Aborted(t *testing.T) {
	failing := func(ctx context.Context, cursor int64) reconcile.PageResult[int64] {
		return reconcile.NewPageError[int64](errors.New("legacy down"))
	}
	cfg := testConfig("customers")
	cfg.Engine.MaxPageErrors = 3

	runner, err := New(cfg, failing, oddMismatch, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	report, err := runner.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if !report.Aborted || report.PageErrors != 3 {
		t.Errorf("Aborted = %v, PageErrors = %d; want true, 3", report.Aborted, report.PageErrors)
	}
	if outcomeOf(report) != "aborted" {
		t.Errorf("outcome = %q, want aborted", outcomeOf(report))
	}
}

func TestRunner_RunOnce_SaveFailure(t *testing.T) {
	saver := &memorySaver{err: errors.New("redis down")}
	runner, err := New(testConfig("customers"), slicePages([]int64{2}, 4), oddMismatch, saver)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	report, err := runner.RunOnce(context.Background())
	if err == nil {
		t.Fatal("RunOnce() expected save error")
	}
	if report == nil || report.ItemsChecked != 1 {
		t.Errorf("report = %+v, want the completed report", report)
	}
}

func TestRunner_Run_StopsOnCancel(t *testing.T) {
	saver := &memorySaver{}
	runner, err := New(testConfig("customers"), slicePages([]int64{1, 2}, 4), oddMismatch, saver)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for saver.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}

	if saver.count() < 2 {
		t.Errorf("runs = %d, want at least 2", saver.count())
	}
}

func TestOutcomeOf(t *testing.T) {
	tests := []struct {
		report store.Report
		want   string
	}{
		{store.Report{}, "success"},
		{store.Report{Aborted: true}, "aborted"},
		{store.Report{Aborted: true, Error: "x"}, "error"},
	}
	for _, tt := range tests {
		if got := outcomeOf(&tt.report); got != tt.want {
			t.Errorf("outcomeOf(%+v) = %q, want %q", tt.report, got, tt.want)
		}
	}
}
