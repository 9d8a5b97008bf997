// Package ratelimit implements Reddit API rate limit tracking and request gating.
// It monitors the X-Ratelimit-Used, X-Ratelimit-Remaining and X-Ratelimit-Reset
// headers and paces requests with a token bucket so a scrolling session never
// exhausts the request budget of the current window.
package ratelimit

import (
	"time"
)

// Redis keys for rate limit state storage.
const (
	RedisKeyRemaining      = "topposts:rate_limit:remaining"
	RedisKeyUsed           = "topposts:rate_limit:used"
	RedisKeyResetTimestamp = "topposts:rate_limit:reset_timestamp"
	RedisKeyLastUpdate     = "topposts:rate_limit:last_update"
)

// Thresholds for rate limit decisions.
const (
	// RemainingThresholdCritical blocks requests when remaining requests fall below this value.
	RemainingThresholdCritical = 2

	// RemainingThresholdWarning applies throttling when remaining requests fall below this value.
	RemainingThresholdWarning = 10

	// RemainingThresholdHealthy indicates normal operation.
	RemainingThresholdHealthy = 50

	// DefaultRemaining is assumed until the first response reports real data.
	DefaultRemaining = 100
)

// RateLimitState represents the current request budget reported by Reddit.
// When Redis is configured the state is shared across client instances.
type RateLimitState struct {
	// Remaining is the number of requests left in the current window.
	// Extracted from the X-Ratelimit-Remaining header (Reddit sends a float).
	Remaining float64 `json:"remaining"`

	// Used is the number of requests spent in the current window.
	Used int `json:"used"`

	// ResetAt is when the window resets.
	// Calculated from the X-Ratelimit-Reset header (seconds until reset).
	ResetAt time.Time `json:"reset_at"`

	// LastUpdate is when this state was last updated.
	LastUpdate time.Time `json:"last_update"`

	// IsHealthy is true when Remaining >= RemainingThresholdHealthy.
	IsHealthy bool `json:"is_healthy"`
}

// defaultState is the optimistic state used before any header was seen.
func defaultState() *RateLimitState {
	now := time.Now()
	return &RateLimitState{
		Remaining:  DefaultRemaining,
		ResetAt:    now.Add(60 * time.Second),
		LastUpdate: now,
		IsHealthy:  true,
	}
}

// IsStale returns true if the state data is older than the given duration.
func (s *RateLimitState) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// WindowElapsed returns true once the reported reset time has passed.
// The budget is then considered replenished.
func (s *RateLimitState) WindowElapsed() bool {
	return !s.ResetAt.IsZero() && time.Now().After(s.ResetAt)
}

// NeedsCriticalBlock returns true if requests should be blocked until reset.
func (s *RateLimitState) NeedsCriticalBlock() bool {
	return s.Remaining < RemainingThresholdCritical && !s.WindowElapsed()
}

// NeedsThrottling returns true if requests should be slowed down.
func (s *RateLimitState) NeedsThrottling() bool {
	return s.Remaining < RemainingThresholdWarning && !s.NeedsCriticalBlock() && !s.WindowElapsed()
}

// TimeUntilReset returns the duration until the window resets.
// Returns 0 if the reset time has already passed.
func (s *RateLimitState) TimeUntilReset() time.Duration {
	duration := time.Until(s.ResetAt)
	if duration < 0 {
		return 0
	}
	return duration
}

// UpdateHealth updates the IsHealthy field based on current Remaining.
func (s *RateLimitState) UpdateHealth() {
	s.IsHealthy = s.Remaining >= RemainingThresholdHealthy
}
