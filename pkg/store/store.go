package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/sync-reconciler/pkg/logging"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var (
	// ErrNotFound indicates no report exists for the sweep
	ErrNotFound = errors.New("report not found")

	// ErrCorruptReport indicates a stored report could not be decoded
	ErrCorruptReport = errors.New("corrupt report")
)

// Config holds report retention settings.
type Config struct {
	// TTL is how long the latest report is kept; 0 keeps it forever
	TTL time.Duration

	// HistoryLimit caps the per-sweep history list
	HistoryLimit int
}

// DefaultConfig keeps the latest report for a week and the last 50 runs.
func DefaultConfig() Config {
	return Config{
		TTL:          7 * 24 * time.Hour,
		HistoryLimit: 50,
	}
}

// Store handles report persistence with a Redis backend.
type Store struct {
	redis  *redis.Client
	config Config
	logger zerolog.Logger
}

// NewStore creates a new report store with Redis backend.
func NewStore(redisClient *redis.Client, cfg Config) *Store {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if cfg.HistoryLimit < 1 {
		cfg.HistoryLimit = DefaultConfig().HistoryLimit
	}
	return &Store{
		redis:  redisClient,
		config: cfg,
		logger: logging.NewLogger(logging.ComponentStore),
	}
}

// Save stores a report as the sweep's latest and appends it to history.
func (s *Store) Save(ctx context.Context, report *Report) error {
	if report == nil {
		return fmt.Errorf("%w: report cannot be nil", ErrInvalidReport)
	}
	if err := report.Validate(); err != nil {
		return err
	}

	data, err := json.Marshal(report)
	if err != nil {
		StoreErrors.WithLabelValues("save").Inc()
		return fmt.Errorf("marshal report: %w", err)
	}

	latestKey := ReportKey{Sweep: report.Sweep, Kind: KindLatest}.String()
	historyKey := ReportKey{Sweep: report.Sweep, Kind: KindHistory}.String()

	pipe := s.redis.TxPipeline()
	pipe.Set(ctx, latestKey, data, s.config.TTL)
	pipe.LPush(ctx, historyKey, data)
	pipe.LTrim(ctx, historyKey, 0, int64(s.config.HistoryLimit-1))
	if _, err := pipe.Exec(ctx); err != nil {
		StoreErrors.WithLabelValues("save").Inc()
		return fmt.Errorf("redis save report: %w", err)
	}

	ReportSaves.WithLabelValues(report.Sweep).Inc()
	ReportSize.WithLabelValues(report.Sweep).Set(float64(len(data)))

	s.logger.Debug().
		Str("sweep", report.Sweep).
		Str("run_id", report.RunID).
		Int("size", len(data)).
		Msg("Report saved")

	return nil
}

// Latest returns the most recent report for a sweep.
// Returns ErrNotFound if none exists or it has expired.
func (s *Store) Latest(ctx context.Context, sweep string) (*Report, error) {
	data, err := s.redis.Get(ctx, ReportKey{Sweep: sweep, Kind: KindLatest}.String()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		StoreErrors.WithLabelValues("latest").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var report Report
	if err := json.Unmarshal(data, &report); err != nil {
		StoreErrors.WithLabelValues("latest").Inc()
		return nil, fmt.Errorf("%w: %v", ErrCorruptReport, err)
	}
	return &report, nil
}

// History returns up to limit reports for a sweep, newest first.
// Entries that cannot be decoded are skipped.
func (s *Store) History(ctx context.Context, sweep string, limit int) ([]Report, error) {
	if limit < 1 || limit > s.config.HistoryLimit {
		limit = s.config.HistoryLimit
	}

	raw, err := s.redis.LRange(ctx, ReportKey{Sweep: sweep, Kind: KindHistory}.String(), 0, int64(limit-1)).Result()
	if err != nil {
		StoreErrors.WithLabelValues("history").Inc()
		return nil, fmt.Errorf("redis lrange: %w", err)
	}

	reports := make([]Report, 0, len(raw))
	for _, item := range raw {
		var report Report
		if err := json.Unmarshal([]byte(item), &report); err != nil {
			StoreErrors.WithLabelValues("history").Inc()
			s.logger.Warn().Err(err).Str("sweep", sweep).Msg("Skipping corrupt history entry")
			continue
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// Delete removes every stored report for a sweep.
func (s *Store) Delete(ctx context.Context, sweep string) error {
	keys := []string{
		ReportKey{Sweep: sweep, Kind: KindLatest}.String(),
		ReportKey{Sweep: sweep, Kind: KindHistory}.String(),
	}
	if err := s.redis.Del(ctx, keys...).Err(); err != nil {
		StoreErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	ReportSize.DeleteLabelValues(sweep)
	return nil
}
