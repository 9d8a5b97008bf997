package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Prometheus metrics for rate limit tracking.
var (
	requestsRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "topposts_rate_limit_remaining",
		Help: "Number of requests remaining in the current Reddit rate limit window",
	})

	rateLimitBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "topposts_rate_limit_blocks_total",
		Help: "Total number of requests blocked because the request budget is exhausted",
	})

	rateLimitThrottlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "topposts_rate_limit_throttles_total",
		Help: "Total number of requests throttled because the request budget is low",
	})
)

// ThrottleDelay is the extra wait applied in the warning range.
const ThrottleDelay = 1 * time.Second

// DefaultRequestsPerSecond paces requests when no rate is configured.
const DefaultRequestsPerSecond = 1.0

// Tracker monitors the Reddit request budget and gates requests.
// Without Redis the state lives in memory.
type Tracker struct {
	redis   *redis.Client
	logger  zerolog.Logger
	limiter *rate.Limiter

	mu    sync.Mutex
	local *RateLimitState
}

// NewTracker creates a new rate limit tracker.
// redisClient may be nil. requestsPerSecond <= 0 selects DefaultRequestsPerSecond.
func NewTracker(redisClient *redis.Client, logger zerolog.Logger, requestsPerSecond float64) *Tracker {
	if requestsPerSecond <= 0 {
		requestsPerSecond = DefaultRequestsPerSecond
	}

	return &Tracker{
		redis:   redisClient,
		logger:  logger,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
	}
}

// Wait blocks until the pacer admits one request or ctx is done.
func (t *Tracker) Wait(ctx context.Context) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait for request slot: %w", err)
	}
	return nil
}

// GetState retrieves the current rate limit state.
// Returns a default healthy state if nothing has been recorded yet.
func (t *Tracker) GetState(ctx context.Context) (*RateLimitState, error) {
	if t.redis == nil {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.local == nil {
			return defaultState(), nil
		}
		state := *t.local
		return &state, nil
	}

	remaining, err := t.redis.Get(ctx, RedisKeyRemaining).Float64()
	if err == redis.Nil {
		t.logger.Debug().Msg("No rate limit state in Redis, returning default healthy state")
		return defaultState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("get remaining: %w", err)
	}

	used, err := t.redis.Get(ctx, RedisKeyUsed).Int()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get used: %w", err)
	}

	resetTimestamp, err := t.redis.Get(ctx, RedisKeyResetTimestamp).Int64()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get reset timestamp: %w", err)
	}

	lastUpdateStr, err := t.redis.Get(ctx, RedisKeyLastUpdate).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get last update: %w", err)
	}

	var lastUpdate time.Time
	if lastUpdateStr != "" {
		if err := json.Unmarshal([]byte(lastUpdateStr), &lastUpdate); err != nil {
			return nil, fmt.Errorf("parse last update: %w", err)
		}
	}

	state := &RateLimitState{
		Remaining:  remaining,
		Used:       used,
		ResetAt:    time.Unix(resetTimestamp, 0),
		LastUpdate: lastUpdate,
	}
	state.UpdateHealth()

	return state, nil
}

// ErrMissingReset is returned when X-Ratelimit-Remaining comes without X-Ratelimit-Reset.
var ErrMissingReset = errors.New("X-Ratelimit-Reset header missing")

// ParseHeaders extracts the rate limit state from response headers.
// ok is false when the response carries no rate limit headers.
func ParseHeaders(headers http.Header, now time.Time) (state *RateLimitState, ok bool, err error) {
	remainStr := strings.TrimSpace(headers.Get("X-Ratelimit-Remaining"))
	if remainStr == "" {
		return nil, false, nil
	}

	remaining, err := strconv.ParseFloat(remainStr, 64)
	if err != nil {
		return nil, false, fmt.Errorf("parse X-Ratelimit-Remaining header: %w", err)
	}

	resetStr := strings.TrimSpace(headers.Get("X-Ratelimit-Reset"))
	if resetStr == "" {
		return nil, false, ErrMissingReset
	}

	resetSeconds, err := strconv.Atoi(resetStr)
	if err != nil {
		return nil, false, fmt.Errorf("parse X-Ratelimit-Reset header: %w", err)
	}

	var used int
	if usedStr := strings.TrimSpace(headers.Get("X-Ratelimit-Used")); usedStr != "" {
		used, err = strconv.Atoi(usedStr)
		if err != nil {
			return nil, false, fmt.Errorf("parse X-Ratelimit-Used header: %w", err)
		}
	}

	state = &RateLimitState{
		Remaining:  remaining,
		Used:       used,
		ResetAt:    now.Add(time.Duration(resetSeconds) * time.Second),
		LastUpdate: now,
	}
	state.UpdateHealth()

	return state, true, nil
}

// UpdateFromHeaders parses Reddit rate limit headers and records the state.
func (t *Tracker) UpdateFromHeaders(ctx context.Context, headers http.Header) error {
	state, ok, err := ParseHeaders(headers, time.Now())
	if err != nil {
		return err
	}
	if !ok {
		// Header not present - RSS responses and error pages omit it
		return nil
	}

	if err := t.store(ctx, state); err != nil {
		return err
	}

	requestsRemaining.Set(state.Remaining)

	switch {
	case state.NeedsCriticalBlock():
		t.logger.Error().
			Float64("remaining", state.Remaining).
			Time("reset_at", state.ResetAt).
			Msg("Reddit request budget CRITICAL - requests will be blocked")
	case state.NeedsThrottling():
		t.logger.Warn().
			Float64("remaining", state.Remaining).
			Time("reset_at", state.ResetAt).
			Msg("Reddit request budget WARNING - requests will be throttled")
	default:
		t.logger.Debug().
			Float64("remaining", state.Remaining).
			Int("used", state.Used).
			Time("reset_at", state.ResetAt).
			Bool("is_healthy", state.IsHealthy).
			Msg("Rate limit state updated")
	}

	return nil
}

func (t *Tracker) store(ctx context.Context, state *RateLimitState) error {
	if t.redis == nil {
		t.mu.Lock()
		t.local = state
		t.mu.Unlock()
		return nil
	}

	lastUpdateJSON, err := json.Marshal(state.LastUpdate)
	if err != nil {
		return fmt.Errorf("marshal last update: %w", err)
	}

	// Keys expire with the window so a stale budget never blocks forever
	ttl := state.TimeUntilReset() + time.Minute

	pipe := t.redis.Pipeline()
	pipe.Set(ctx, RedisKeyRemaining, state.Remaining, ttl)
	pipe.Set(ctx, RedisKeyUsed, state.Used, ttl)
	pipe.Set(ctx, RedisKeyResetTimestamp, state.ResetAt.Unix(), ttl)
	pipe.Set(ctx, RedisKeyLastUpdate, lastUpdateJSON, ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store rate limit state in redis: %w", err)
	}

	return nil
}

// ShouldAllowRequest checks if a request should be allowed based on current rate limit state.
// Returns false if the request should be blocked because the budget is exhausted.
// Returns true but may wait for throttling in the warning range.
func (t *Tracker) ShouldAllowRequest(ctx context.Context) (bool, error) {
	state, err := t.GetState(ctx)
	if err != nil {
		return false, fmt.Errorf("get rate limit state: %w", err)
	}

	if state.NeedsCriticalBlock() {
		t.logger.Error().
			Float64("remaining", state.Remaining).
			Dur("wait_duration", state.TimeUntilReset()).
			Msg("Reddit request budget critical - blocking request")

		rateLimitBlocksTotal.Inc()
		return false, nil
	}

	if state.NeedsThrottling() {
		t.logger.Warn().
			Float64("remaining", state.Remaining).
			Msg("Reddit request budget low - throttling request")

		rateLimitThrottlesTotal.Inc()

		timer := time.NewTimer(ThrottleDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-timer.C:
		}
	}

	return true, nil
}
