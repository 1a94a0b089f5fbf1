package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrMissingReset is returned when a response reports a budget without a reset time.
var ErrMissingReset = errors.New(HeaderReset + " header missing")

// Prometheus metrics for upstream budget tracking.
var (
	budgetRemaining = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sync_upstream_budget_remaining",
		Help: "Requests remaining in the upstream rate limit window",
	}, []string{"system"})

	budgetBlocksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_upstream_budget_blocks_total",
		Help: "Requests refused because the upstream budget was critical",
	}, []string{"system"})

	budgetThrottlesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_upstream_budget_throttles_total",
		Help: "Requests delayed because the upstream budget was low",
	}, []string{"system"})
)

// Tracker records one upstream's budget in Redis and gates requests on it.
type Tracker struct {
	redis         *redis.Client
	system        string
	throttleDelay time.Duration
	logger        zerolog.Logger
}

// NewTracker creates a budget tracker for the named system.
func NewTracker(redisClient *redis.Client, system string, logger zerolog.Logger) *Tracker {
	return &Tracker{
		redis:         redisClient,
		system:        system,
		throttleDelay: time.Second,
		logger:        logger.With().Str("system", system).Logger(),
	}
}

// SetThrottleDelay changes how long a throttled request waits (for testing).
func (t *Tracker) SetThrottleDelay(d time.Duration) {
	t.throttleDelay = d
}

// ParseHeaders extracts a budget from response headers.
// ok is false when the response carries no budget information.
func ParseHeaders(system string, headers http.Header, now time.Time) (state *BudgetState, ok bool, err error) {
	remainStr := headers.Get(HeaderRemaining)
	if remainStr == "" {
		return nil, false, nil
	}

	remain, err := strconv.Atoi(remainStr)
	if err != nil {
		return nil, false, fmt.Errorf("parse %s header: %w", HeaderRemaining, err)
	}

	resetStr := headers.Get(HeaderReset)
	if resetStr == "" {
		return nil, false, ErrMissingReset
	}
	resetSeconds, err := strconv.Atoi(resetStr)
	if err != nil {
		return nil, false, fmt.Errorf("parse %s header: %w", HeaderReset, err)
	}

	state = &BudgetState{
		System:     system,
		Remaining:  remain,
		ResetAt:    now.Add(time.Duration(resetSeconds) * time.Second),
		LastUpdate: now,
	}
	state.UpdateHealth()
	return state, true, nil
}

// GetState loads the current budget from Redis.
// A system that has not reported yet is assumed healthy.
func (t *Tracker) GetState(ctx context.Context) (*BudgetState, error) {
	remainingKey, resetKey, lastUpdateKey := Keys(t.system)

	remaining, err := t.redis.Get(ctx, remainingKey).Int()
	if errors.Is(err, redis.Nil) {
		t.logger.Debug().Msg("No budget state in Redis, assuming healthy")
		return &BudgetState{
			System:     t.system,
			Remaining:  DefaultRemaining,
			ResetAt:    time.Now().Add(60 * time.Second),
			LastUpdate: time.Now(),
			IsHealthy:  true,
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get remaining: %w", err)
	}

	resetTimestamp, err := t.redis.Get(ctx, resetKey).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get reset timestamp: %w", err)
	}

	var lastUpdate time.Time
	raw, err := t.redis.Get(ctx, lastUpdateKey).Bytes()
	switch {
	case err == nil:
		if err := json.Unmarshal(raw, &lastUpdate); err != nil {
			return nil, fmt.Errorf("parse last update: %w", err)
		}
	case !errors.Is(err, redis.Nil):
		return nil, fmt.Errorf("get last update: %w", err)
	}

	state := &BudgetState{
		System:     t.system,
		Remaining:  remaining,
		ResetAt:    time.Unix(resetTimestamp, 0),
		LastUpdate: lastUpdate,
	}
	state.UpdateHealth()
	return state, nil
}

// UpdateFromHeaders stores the budget reported by a response.
// Responses without budget headers are ignored.
func (t *Tracker) UpdateFromHeaders(ctx context.Context, headers http.Header) error {
	state, ok, err := ParseHeaders(t.system, headers, time.Now())
	if err != nil || !ok {
		return err
	}

	lastUpdateJSON, err := json.Marshal(state.LastUpdate)
	if err != nil {
		return fmt.Errorf("marshal last update: %w", err)
	}

	remainingKey, resetKey, lastUpdateKey := Keys(t.system)
	pipe := t.redis.Pipeline()
	pipe.Set(ctx, remainingKey, state.Remaining, 0)
	pipe.Set(ctx, resetKey, state.ResetAt.Unix(), 0)
	pipe.Set(ctx, lastUpdateKey, lastUpdateJSON, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store budget state in redis: %w", err)
	}

	budgetRemaining.WithLabelValues(t.system).Set(float64(state.Remaining))

	switch {
	case state.NeedsCriticalBlock():
		t.logger.Error().
			Int("remaining", state.Remaining).
			Time("reset_at", state.ResetAt).
			Msg("Upstream budget CRITICAL - requests will be blocked")
	case state.NeedsThrottling():
		t.logger.Warn().
			Int("remaining", state.Remaining).
			Time("reset_at", state.ResetAt).
			Msg("Upstream budget low - requests will be throttled")
	default:
		t.logger.Debug().
			Int("remaining", state.Remaining).
			Bool("is_healthy", state.IsHealthy).
			Msg("Upstream budget updated")
	}

	return nil
}

// ShouldAllowRequest reports whether a request may be sent now.
// A low budget delays the caller; a critical budget refuses the request.
func (t *Tracker) ShouldAllowRequest(ctx context.Context) (bool, error) {
	state, err := t.GetState(ctx)
	if err != nil {
		return false, fmt.Errorf("get budget state: %w", err)
	}

	if state.NeedsCriticalBlock() {
		t.logger.Error().
			Int("remaining", state.Remaining).
			Dur("wait_duration", state.TimeUntilReset()).
			Msg("Upstream budget critical - blocking request")
		budgetBlocksTotal.WithLabelValues(t.system).Inc()
		return false, nil
	}

	if state.NeedsThrottling() {
		t.logger.Warn().
			Int("remaining", state.Remaining).
			Msg("Upstream budget low - throttling request")
		budgetThrottlesTotal.WithLabelValues(t.system).Inc()

		select {
		case <-time.After(t.throttleDelay):
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}

	return true, nil
}
