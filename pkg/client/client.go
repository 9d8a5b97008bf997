// Package client provides the Reddit listing client with rate limiting,
// retries and error classification. A Client is a page source for the
// pagination controller.
package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/top-posts-client/pkg/feed"
	"github.com/Sternrassler/top-posts-client/pkg/logging"
	"github.com/Sternrassler/top-posts-client/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for Reddit client operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "topposts_requests_total",
		Help: "Total Reddit requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "topposts_request_duration_seconds",
		Help:    "Reddit request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "topposts_errors_total",
		Help: "Total Reddit errors by class",
	}, []string{"class"})

	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "topposts_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "topposts_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"error_class"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "topposts_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// validTimeWindows are the values Reddit accepts for the "t" parameter.
var validTimeWindows = map[string]bool{
	"hour": true, "day": true, "week": true, "month": true, "year": true, "all": true,
}

// Client fetches listing pages from Reddit.
type Client struct {
	httpClient  *http.Client
	rateLimiter *ratelimit.Tracker
	config      Config
	retry       RetryConfig
	logger      zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL is the API root (default "https://www.reddit.com")
	BaseURL string

	// Listing is the listing path, e.g. "/top" or "/r/golang/top"
	Listing string

	// TimeWindow is the "t" parameter for top listings
	TimeWindow string

	// Limit is the page size (1-100)
	Limit int

	// Redis shares rate limit state between processes (optional)
	Redis *redis.Client

	// User-Agent header (REQUIRED by Reddit)
	// Format: "<platform>:<app ID>:<version> (by /u/<username>)"
	UserAgent string

	// RequestsPerSecond paces outgoing requests
	RequestsPerSecond float64

	// Retry
	MaxRetries     int
	InitialBackoff time.Duration

	// Timeout is the per-attempt HTTP timeout
	Timeout time.Duration
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(redis *redis.Client, userAgent string) Config {
	return Config{
		BaseURL:           feed.DefaultBaseURL,
		Listing:           "/top",
		TimeWindow:        "day",
		Limit:             25,
		Redis:             redis,
		UserAgent:         userAgent,
		RequestsPerSecond: 1,
		MaxRetries:        3,
		InitialBackoff:    1 * time.Second,
		Timeout:           15 * time.Second,
	}
}

// New creates a new Reddit client.
func New(cfg Config) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	base, err := url.Parse(cfg.BaseURL)
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return nil, fmt.Errorf("base url must be an absolute http(s) url (got %q)", cfg.BaseURL)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	if cfg.Listing == "" {
		cfg.Listing = "/top"
	}
	if !strings.HasPrefix(cfg.Listing, "/") {
		cfg.Listing = "/" + cfg.Listing
	}
	cfg.Listing = strings.TrimSuffix(strings.TrimRight(cfg.Listing, "/"), ".json")

	if !validTimeWindows[cfg.TimeWindow] {
		return nil, fmt.Errorf("time window must be one of hour, day, week, month, year, all (got %q)", cfg.TimeWindow)
	}

	if cfg.Limit < 1 || cfg.Limit > 100 {
		return nil, fmt.Errorf("limit must be between 1 and 100 (got %d)", cfg.Limit)
	}

	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("max_retries must be >= 0 (got %d)", cfg.MaxRetries)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	logger := logging.NewLogger("reddit-client")

	retry := DefaultRetryConfig()
	retry.MaxAttempts = cfg.MaxRetries + 1
	if cfg.InitialBackoff > 0 {
		retry.InitialBackoff = cfg.InitialBackoff
		if retry.MaxBackoff < cfg.InitialBackoff {
			retry.MaxBackoff = cfg.InitialBackoff
		}
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		rateLimiter: ratelimit.NewTracker(cfg.Redis, logger, cfg.RequestsPerSecond),
		config:      cfg,
		retry:       retry,
		logger:      logger,
	}, nil
}

// Do performs an HTTP request with rate limiting, retries and error classification.
// Non-retriable error statuses are returned as a response for the caller to handle.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	endpoint := req.URL.Path

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	// Step 1: Check the request budget
	allowed, err := c.rateLimiter.ShouldAllowRequest(ctx)
	if err != nil {
		c.logger.Error().Err(err).Msg("Rate limit check failed")
		return nil, fmt.Errorf("rate limit check: %w", err)
	}
	if !allowed {
		c.logger.Warn().
			Str("endpoint", endpoint).
			Msg("Request blocked by rate limiter")
		requestsTotal.WithLabelValues(endpoint, "rate_limited").Inc()
		return nil, ErrRateLimited
	}

	// Step 2: Set headers
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("method", req.Method).
		Msg("Executing Reddit request")

	// Step 3: Execute with retries
	var resp *http.Response
	retryErr := retryWithBackoff(ctx, c.retry, func() error {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return err
		}

		var reqErr error
		resp, reqErr = c.httpClient.Do(req)
		if reqErr != nil {
			class := classifyError(reqErr)
			if class != "" {
				errorsTotal.WithLabelValues(string(class)).Inc()
			}
			requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
			c.logger.Error().Err(reqErr).Str("endpoint", endpoint).Msg("HTTP request failed")
			return reqErr
		}

		if err := c.rateLimiter.UpdateFromHeaders(ctx, resp.Header); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to update rate limit from headers")
		}

		requestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

		errClass := classifyStatus(resp.StatusCode)
		if errClass == "" {
			return nil
		}

		errorsTotal.WithLabelValues(string(errClass)).Inc()
		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Str("error_class", string(errClass)).
			Msg("Reddit request error")

		if !shouldRetry(errClass) {
			// Let the caller handle the status
			return nil
		}

		resp.Body.Close()
		return &APIError{
			StatusCode: resp.StatusCode,
			ErrorClass: errClass,
			Message:    resp.Status,
		}
	}, classifyError)

	if retryErr != nil {
		return nil, retryErr
	}

	return resp, nil
}

// Get performs a GET request against the configured base URL.
// ref is a path with optional query, e.g. "/top.json?limit=25".
func (c *Client) Get(ctx context.Context, ref string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+ref, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	return c.Do(req)
}

// PageURL returns the listing URL reference for cursor ("" for the first page).
func (c *Client) PageURL(cursor string) string {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(c.config.Limit))
	query.Set("t", c.config.TimeWindow)
	if cursor != "" {
		query.Set("after", cursor)
	}
	return c.config.Listing + ".json?" + query.Encode()
}

// FetchPage fetches one listing page. It is called with an empty cursor for
// the first page; the returned NextCursor is empty on the last page.
func (c *Client) FetchPage(ctx context.Context, cursor string) (feed.Batch, error) {
	resp, err := c.Get(ctx, c.PageURL(cursor))
	if err != nil {
		return feed.Batch{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return feed.Batch{}, &APIError{
			StatusCode: resp.StatusCode,
			ErrorClass: classifyStatus(resp.StatusCode),
			Message:    resp.Status,
		}
	}

	batch, err := decodeListing(resp.Body)
	if err != nil {
		c.logger.Warn().Err(err).Str("cursor", cursor).Msg("Listing decode failed")
		return feed.Batch{}, err
	}

	c.logger.Debug().
		Str("cursor", cursor).
		Str("next_cursor", batch.NextCursor).
		Int("items", len(batch.Items)).
		Msg("Listing page fetched")

	return batch, nil
}

// RateLimitState returns the last recorded request budget.
func (c *Client) RateLimitState(ctx context.Context) (*ratelimit.RateLimitState, error) {
	return c.rateLimiter.GetState(ctx)
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
