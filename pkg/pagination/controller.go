package pagination

import (
	"context"
	"sync"
	"time"

	"github.com/Sternrassler/top-posts-client/pkg/feed"
	"github.com/Sternrassler/top-posts-client/pkg/logging"
	"github.com/Sternrassler/top-posts-client/pkg/scroll"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Config holds controller configuration
type Config struct {
	// Buffer is the number of trailing items that should still be ahead of
	// the viewer when the next page is requested (reference value: 5)
	Buffer int

	// Logger overrides the default component logger
	Logger *zerolog.Logger
}

// DefaultConfig returns the reference configuration
func DefaultConfig() Config {
	return Config{
		Buffer: scroll.DefaultBuffer,
	}
}

// PageFetcher is the page source the controller pulls from.
// It is called with an empty cursor for the first page and must return an
// empty NextCursor when there are no further pages.
type PageFetcher interface {
	FetchPage(ctx context.Context, cursor string) (feed.Batch, error)
}

// PageFetcherFunc adapts a function to PageFetcher
type PageFetcherFunc func(ctx context.Context, cursor string) (feed.Batch, error)

// FetchPage calls f(ctx, cursor)
func (f PageFetcherFunc) FetchPage(ctx context.Context, cursor string) (feed.Batch, error) {
	return f(ctx, cursor)
}

// State is a read-only snapshot for rendering
type State struct {
	// Items in render order (a copy)
	Items []feed.Item

	// IsLoading is true exactly while a fetch is in flight
	IsLoading bool

	// Exhausted is true once the source reported no further pages
	Exhausted bool

	// Err is the last fetch failure, cleared by the next successful fetch
	Err error
}

// Controller decides when to fetch the next page and merges the results.
// All methods are safe for concurrent use; state mutations are serialised.
type Controller struct {
	fetcher  PageFetcher
	observer scroll.Observer
	logger   zerolog.Logger
	id       string

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	page    *feed.Page
	loading bool
	lastErr error
	epoch   uint64
	closed  bool
	idle    chan struct{}
	changes chan struct{}
}

// New creates a controller with an empty feed
func New(fetcher PageFetcher, cfg Config) (*Controller, error) {
	if fetcher == nil {
		return nil, ErrNilFetcher
	}

	id := uuid.NewString()

	var logger zerolog.Logger
	if cfg.Logger != nil {
		logger = cfg.Logger.With().Str("controller_id", id).Logger()
	} else {
		logger = logging.NewLogger("pagination").With().Str("controller_id", id).Logger()
	}

	ctx, cancel := context.WithCancel(context.Background())

	idle := make(chan struct{})
	close(idle)

	return &Controller{
		fetcher:  fetcher,
		observer: scroll.NewObserver(cfg.Buffer),
		logger:   logger,
		id:       id,
		ctx:      ctx,
		cancel:   cancel,
		page:     feed.NewPage(),
		idle:     idle,
		changes:  make(chan struct{}, 1),
	}, nil
}

// ID returns the controller instance identity used in logs
func (c *Controller) ID() string {
	return c.id
}

// Buffer returns the effective scroll buffer
func (c *Controller) Buffer() int {
	return c.observer.Buffer()
}

// State returns a snapshot of the feed
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return State{
		Items:     c.page.Items(),
		IsLoading: c.loading,
		Exhausted: c.page.Exhausted(),
		Err:       c.lastErr,
	}
}

// OnScrollMetricsChanged is called on every layout update with the visible
// indices and the total item count. It starts a fetch when the near-end
// threshold is crossed, no fetch is in flight and pages remain.
// Returns true if a fetch was started.
func (c *Controller) OnScrollMetricsChanged(visibleIndices []int, totalItemCount int) bool {
	if !c.observer.ShouldTrigger(visibleIndices, totalItemCount) {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startFetchLocked("scroll")
}

// LoadMore explicitly requests the next page. It is a no-op while a fetch
// is in flight or when the feed is exhausted.
// Returns true if a fetch was started.
func (c *Controller) LoadMore() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startFetchLocked("explicit")
}

// Refresh drops the accumulated feed and fetches the first page again.
// It is a no-op while a fetch is in flight.
func (c *Controller) Refresh() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.loading {
		return false
	}

	c.epoch++
	c.page = feed.NewPage()
	c.lastErr = nil

	c.logger.Debug().
		Uint64("epoch", c.epoch).
		Msg("Feed reset")

	return c.startFetchLocked("refresh")
}

// Changes delivers a coalesced signal after every state change.
// The channel is closed by Close.
func (c *Controller) Changes() <-chan struct{} {
	return c.changes
}

// Idle returns a channel that is closed once no fetch is in flight.
func (c *Controller) Idle() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.idle
}

// Close tears the controller down. A fetch still in flight is cancelled and
// its result, when it arrives, is discarded.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	c.epoch++
	c.cancel()
	close(c.changes)

	c.logger.Debug().
		Bool("fetch_in_flight", c.loading).
		Msg("Controller closed")
}

// startFetchLocked applies the guards and starts one fetch. c.mu must be held.
func (c *Controller) startFetchLocked(trigger string) bool {
	switch {
	case c.closed:
		triggersIgnored.WithLabelValues("closed").Inc()
		return false
	case c.loading:
		triggersIgnored.WithLabelValues("in_flight").Inc()
		return false
	case c.page.Exhausted():
		triggersIgnored.WithLabelValues("exhausted").Inc()
		return false
	}

	// Set before the fetch starts so a second trigger sees it
	c.loading = true
	done := make(chan struct{})
	c.idle = done
	c.notifyLocked()

	cursor := c.page.Cursor()
	epoch := c.epoch

	c.logger.Debug().
		Str("trigger", trigger).
		Str("cursor", cursor).
		Int("items", c.page.Len()).
		Uint64("epoch", epoch).
		Msg("Fetching page")

	go c.fetch(epoch, cursor, done)
	return true
}

// fetch calls the page source outside the lock and hands the result back.
func (c *Controller) fetch(epoch uint64, cursor string, done chan struct{}) {
	start := time.Now()
	batch, err := c.fetcher.FetchPage(c.ctx, cursor)
	fetchDuration.Observe(time.Since(start).Seconds())

	c.complete(epoch, cursor, batch, err, done, time.Since(start))
}

// complete merges a fetch result unless it belongs to an older epoch.
func (c *Controller) complete(epoch uint64, cursor string, batch feed.Batch, err error, done chan struct{}, took time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer close(done)

	if c.idle == done {
		c.loading = false
	}

	if c.closed || epoch != c.epoch {
		fetchesTotal.WithLabelValues("discarded").Inc()
		c.logger.Debug().
			Uint64("epoch", epoch).
			Uint64("current_epoch", c.epoch).
			Err(err).
			Msg("Discarding stale page result")
		return
	}

	if err != nil {
		fetchesTotal.WithLabelValues("error").Inc()
		c.lastErr = &FetchError{Cursor: cursor, Err: err}
		c.logger.Warn().
			Err(err).
			Str("cursor", cursor).
			Dur("duration", took).
			Msg("Page fetch failed")
		c.notifyLocked()
		return
	}

	res := c.page.Merge(batch)
	c.lastErr = nil

	fetchesTotal.WithLabelValues("success").Inc()
	itemsMerged.Add(float64(res.Added))
	duplicatesDropped.Add(float64(res.Duplicates))

	c.logger.Info().
		Str("cursor", cursor).
		Str("next_cursor", batch.NextCursor).
		Int("added", res.Added).
		Int("duplicates", res.Duplicates).
		Int("items", c.page.Len()).
		Bool("exhausted", c.page.Exhausted()).
		Dur("duration", took).
		Msg("Page merged")

	c.notifyLocked()
}

// notifyLocked signals Changes without blocking. c.mu must be held.
func (c *Controller) notifyLocked() {
	if c.closed {
		return
	}
	select {
	case c.changes <- struct{}{}:
	default:
	}
}
