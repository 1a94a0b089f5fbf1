// Package reconcile provides a bounded-concurrency reconciliation engine for
// comparing large populations of records between two systems.
//
// A sweep streams identifiers from a cursor-paginated source into a bounded
// channel and fans them out to a fixed pool of workers, each of which runs a
// caller-supplied comparison. Mismatches are fanned back in and collected
// into a single Result together with exact item and page counts.
//
// Example usage:
//
//	cfg := reconcile.DefaultConfig()
//	cfg.Name = "customers"
//	result, err := reconcile.GenerateReport(ctx, cfg, checkMatch, nextPage)
//
// The engine:
//   - Requests pages sequentially, starting at cursor 0
//   - Buffers at most BufferMultiplier × PageSize identifiers (backpressure)
//   - Runs ThreadCount workers against the buffer
//   - Skips past failed pages by PageSize and gives up after MaxPageErrors
//   - Fails the sweep on the first comparison error
//
// Page failures never fail a sweep. A sweep that hit the page-error ceiling
// returns its partial result with Aborted set.
package reconcile
