// Package store persists reconciliation sweep reports in Redis.
//
// Every saved report becomes the sweep's latest report (kept for the
// configured TTL) and is prepended to a capped per-sweep history list.
//
// # Basic Usage
//
//	reports := store.NewStore(redisClient, store.DefaultConfig())
//
//	if err := reports.Save(ctx, report); err != nil {
//		return err
//	}
//
//	latest, err := reports.Latest(ctx, "customers")
//	if errors.Is(err, store.ErrNotFound) {
//		// no sweep has finished yet
//	}
//
// # Keys
//
//	sync:report:{sweep}:latest   JSON report, expires after TTL
//	sync:report:{sweep}:history  list of JSON reports, newest first
//
// # Metrics
//
//   - sync_report_saves_total{sweep} - Reports saved
//   - sync_report_errors_total{operation} - Store operation errors
//   - sync_report_size_bytes{sweep} - Size of the latest report
package store
