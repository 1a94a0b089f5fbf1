package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/Sternrassler/sync-reconciler/pkg/logging"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ErrCheckFailed wraps the first comparison error that failed a sweep.
var ErrCheckFailed = errors.New("check match failed")

// Result is the outcome of one sweep.
type Result[M any] struct {
	// Mismatches holds every mismatch found, in completion order
	Mismatches []M

	// ItemsChecked counts identifiers handed to the comparison function
	ItemsChecked int64

	// PagesChecked counts successful, non-empty pages
	PagesChecked int64

	// PageErrors counts failed page fetches
	PageErrors int64

	// Aborted is true when the sweep stopped at the page error ceiling,
	// so the source was not fully covered
	Aborted bool
}

// sweepStats holds the counters shared between producer and workers.
type sweepStats struct {
	itemsChecked atomic.Int64
	pagesChecked atomic.Int64
	pageErrors   atomic.Int64
	aborted      atomic.Bool
}

// GenerateReport runs one reconciliation sweep.
//
// Pages are requested from nextPage starting at cursor 0 and their
// identifiers are checked by cfg.ThreadCount workers calling checkMatch.
// The returned Result is complete once every enqueued identifier has been
// checked. The first checkMatch error cancels the sweep and is returned
// wrapped in ErrCheckFailed.
func GenerateReport[T, M any](ctx context.Context, cfg Config, checkMatch CheckMatchFunc[T, M], nextPage NextPageFunc[T]) (Result[M], error) {
	if err := cfg.Validate(); err != nil {
		return Result[M]{}, err
	}
	if checkMatch == nil || nextPage == nil {
		return Result[M]{}, fmt.Errorf("%w: checkMatch and nextPage are required", ErrInvalidConfig)
	}

	sweep := cfg.label()
	logger := logging.NewLogger(logging.ComponentReconcile).With().Str("sweep", sweep).Logger()
	start := time.Now()

	logger.Info().
		Int("thread_count", cfg.ThreadCount).
		Int("page_size", cfg.PageSize).
		Int("buffer_size", cfg.BufferSize()).
		Msg("Starting reconciliation sweep")

	stats := &sweepStats{}
	items := make(chan T, cfg.BufferSize())
	mismatches := make(chan M)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(items)
		return produce(gctx, cfg, nextPage, items, stats, logger)
	})

	for i := 0; i < cfg.ThreadCount; i++ {
		workerID := i
		g.Go(func() error {
			return work(gctx, workerID, sweep, checkMatch, items, mismatches, stats, logger)
		})
	}

	// The mismatch channel is closed only after the last worker returned,
	// so the drain below sees every send.
	var sweepErr error
	go func() {
		sweepErr = g.Wait()
		close(mismatches)
	}()

	result := Result[M]{Mismatches: []M{}}
	for m := range mismatches {
		result.Mismatches = append(result.Mismatches, m)
		sweepMismatches.WithLabelValues(sweep).Inc()
	}

	result.ItemsChecked = stats.itemsChecked.Load()
	result.PagesChecked = stats.pagesChecked.Load()
	result.PageErrors = stats.pageErrors.Load()
	result.Aborted = stats.aborted.Load()

	outcome := "success"
	switch {
	case sweepErr != nil:
		outcome = "error"
	case result.Aborted:
		outcome = "aborted"
	}
	sweepDuration.WithLabelValues(sweep, outcome).Observe(time.Since(start).Seconds())

	if sweepErr != nil {
		logger.Error().
			Err(sweepErr).
			Int64("items_checked", result.ItemsChecked).
			Int64("pages_checked", result.PagesChecked).
			Msg("Reconciliation sweep failed")
		return result, sweepErr
	}

	logger.Info().
		Int64("items_checked", result.ItemsChecked).
		Int64("pages_checked", result.PagesChecked).
		Int64("page_errors", result.PageErrors).
		Int("mismatches", len(result.Mismatches)).
		Bool("aborted", result.Aborted).
		Dur("duration", time.Since(start)).
		Msg("Reconciliation sweep complete")

	return result, nil
}

// produce walks the source page by page and feeds the item channel.
// It owns the cursor and the page error count.
func produce[T any](ctx context.Context, cfg Config, nextPage NextPageFunc[T], items chan<- T, stats *sweepStats, logger zerolog.Logger) error {
	sweep := cfg.label()
	var cursor int64
	pageErrors := 0

	for {
		page, err := unpackPage[T](nextPage(ctx, cursor), cursor)
		if errors.Is(err, ErrUnsupportedPage) {
			logger.Error().Err(err).Int64("cursor", cursor).Msg("Page source returned an unsupported result")
			return err
		}

		if err == nil {
			if len(page.Items) == 0 {
				logger.Debug().Int64("cursor", cursor).Msg("Empty page - end of source")
				return nil
			}

			stats.pagesChecked.Add(1)
			sweepPagesChecked.WithLabelValues(sweep).Inc()

			for _, item := range page.Items {
				select {
				case items <- item:
				case <-ctx.Done():
					logger.Debug().Int64("cursor", cursor).Msg("Producer stopping (context cancelled)")
					return ctx.Err()
				}
			}
			cursor = page.LastCursor

			if page.IsLastPage(cfg.PageSize) {
				return nil
			}
		} else {
			pageErrors++
			stats.pageErrors.Add(1)
			sweepPageErrors.WithLabelValues(sweep).Inc()

			logger.Warn().
				Err(err).
				Int64("cursor", cursor).
				Int("page_errors", pageErrors).
				Msg("Page fetch failed - skipping ahead")

			cursor += int64(cfg.PageSize)

			if pageErrors >= cfg.MaxPageErrors {
				stats.aborted.Store(true)
				sweepBreakerTrips.WithLabelValues(sweep).Inc()
				logger.Error().
					Int("page_errors", pageErrors).
					Int64("cursor", cursor).
					Msg("Page error ceiling reached - abandoning sweep")
				return nil
			}
		}

		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

// unpackPage turns a page result into its successful page or the error to
// record for it. Pointer variants are accepted; nil results count as page
// errors. A non-empty page whose LastCursor is behind cursor is rejected so
// the cursor never moves backwards. Any other type is ErrUnsupportedPage.
func unpackPage[T any](page PageResult[T], cursor int64) (PageSuccess[T], error) {
	var success PageSuccess[T]
	switch p := page.(type) {
	case nil:
		return success, ErrNilPage
	case PageSuccess[T]:
		success = p
	case *PageSuccess[T]:
		if p == nil {
			return success, ErrNilPage
		}
		success = *p
	case PageError:
		return success, p
	case *PageError:
		if p == nil {
			return success, ErrNilPage
		}
		return success, *p
	default:
		return success, fmt.Errorf("%w: %T", ErrUnsupportedPage, page)
	}

	if len(success.Items) > 0 && success.LastCursor < cursor {
		return PageSuccess[T]{}, fmt.Errorf("%w: last cursor %d is behind %d", ErrCursorRegression, success.LastCursor, cursor)
	}
	return success, nil
}

// work drains the item channel until it is closed and empty.
func work[T, M any](ctx context.Context, workerID int, sweep string, checkMatch CheckMatchFunc[T, M], items <-chan T, mismatches chan<- M, stats *sweepStats, logger zerolog.Logger) error {
	processed := 0
	wlog := logger.With().Int("worker_id", workerID).Logger()

	for {
		var item T
		var ok bool

		select {
		case <-ctx.Done():
			wlog.Debug().Int("items_processed", processed).Msg("Worker stopping (context cancelled)")
			return ctx.Err()
		case item, ok = <-items:
		}
		if !ok {
			if processed > 0 {
				wlog.Debug().Int("items_processed", processed).Msg("Worker completed")
			}
			return nil
		}

		mismatch, found, err := checkMatch(ctx, item)
		stats.itemsChecked.Add(1)
		sweepItemsChecked.WithLabelValues(sweep).Inc()
		processed++
		if err != nil {
			return fmt.Errorf("%w: item %v: %w", ErrCheckFailed, item, err)
		}
		if !found {
			continue
		}

		select {
		case mismatches <- mismatch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
