// Package ratelimit tracks the request budget an upstream system advertises
// and gates outgoing requests on it. Budget state lives in Redis so every
// reconciler instance talking to the same system shares it.
package ratelimit

import (
	"fmt"
	"time"
)

// Response headers carrying the upstream budget.
const (
	HeaderRemaining = "X-RateLimit-Remaining"
	HeaderReset     = "X-RateLimit-Reset"
)

// Thresholds for gating decisions.
const (
	// ThresholdCritical blocks requests while fewer requests than this remain.
	ThresholdCritical = 5

	// ThresholdWarning throttles requests while fewer requests than this remain.
	ThresholdWarning = 20

	// ThresholdHealthy marks the budget as healthy at or above this value.
	ThresholdHealthy = 50
)

// DefaultRemaining is assumed before an upstream has reported its budget.
const DefaultRemaining = 100

// Keys returns the Redis keys holding budget state for one system.
func Keys(system string) (remaining, reset, lastUpdate string) {
	prefix := fmt.Sprintf("sync:rate_limit:%s:", system)
	return prefix + "remaining", prefix + "reset_timestamp", prefix + "last_update"
}

// BudgetState is the last known request budget of one upstream system.
type BudgetState struct {
	// System is the upstream name (e.g. "legacy", "modern").
	System string `json:"system"`

	// Remaining is the number of requests left in the current window.
	Remaining int `json:"remaining"`

	// ResetAt is when the window resets.
	ResetAt time.Time `json:"reset_at"`

	// LastUpdate is when this state was recorded.
	LastUpdate time.Time `json:"last_update"`

	// IsHealthy is true when Remaining >= ThresholdHealthy.
	IsHealthy bool `json:"is_healthy"`
}

// IsStale returns true if the state is older than maxAge.
func (s *BudgetState) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// NeedsCriticalBlock returns true if requests should be refused.
func (s *BudgetState) NeedsCriticalBlock() bool {
	return s.Remaining < ThresholdCritical && s.TimeUntilReset() > 0
}

// NeedsThrottling returns true if requests should be slowed down.
func (s *BudgetState) NeedsThrottling() bool {
	return s.Remaining < ThresholdWarning && !s.NeedsCriticalBlock()
}

// TimeUntilReset returns the duration until the window resets, or 0.
func (s *BudgetState) TimeUntilReset() time.Duration {
	d := time.Until(s.ResetAt)
	if d < 0 {
		return 0
	}
	return d
}

// UpdateHealth recomputes IsHealthy from Remaining.
func (s *BudgetState) UpdateHealth() {
	s.IsHealthy = s.Remaining >= ThresholdHealthy
}
