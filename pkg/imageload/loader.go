package imageload

import (
	"context"
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/Sternrassler/top-posts-client/pkg/logging"
)

// Prometheus metrics for image loads.
var (
	imageLoadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "topposts_image_loads_total",
		Help: "Total image load attempts by final state",
	}, []string{"state"}) // "loaded", "failed", "missing"

	imageLoadsDiscarded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "topposts_image_loads_discarded_total",
		Help: "Total image load outcomes discarded because the item changed or was unmounted",
	})
)

// ErrNilTransport is returned by NewLoader when no transport is given.
var ErrNilTransport = errors.New("image transport is required")

// Transport yields exactly one outcome per call: nil when a decoded image
// is available, an error otherwise.
type Transport interface {
	Fetch(ctx context.Context, url string) error
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, url string) error

// Fetch calls f(ctx, url).
func (f TransportFunc) Fetch(ctx context.Context, url string) error {
	return f(ctx, url)
}

// Config holds loader configuration.
type Config struct {
	// MaxConcurrency bounds parallel transport calls
	MaxConcurrency int64

	// Logger overrides the default component logger
	Logger *zerolog.Logger
}

// DefaultConfig returns the default loader configuration.
func DefaultConfig() Config {
	return Config{MaxConcurrency: 4}
}

// Loader keeps one Load per mounted item and runs transport calls in the
// background. Loads are independent of each other and of pagination.
type Loader struct {
	transport Transport
	sem       *semaphore.Weighted
	logger    zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	loads   map[string]*Load
	closed  bool
	changes chan struct{}
}

// NewLoader creates a loader.
func NewLoader(transport Transport, cfg Config) (*Loader, error) {
	if transport == nil {
		return nil, ErrNilTransport
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 4
	}

	logger := logging.NewLogger("imageload")
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Loader{
		transport: transport,
		sem:       semaphore.NewWeighted(cfg.MaxConcurrency),
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		loads:     make(map[string]*Load),
		changes:   make(chan struct{}, 1),
	}, nil
}

// Request mounts key with url and returns its current state. Repeated calls
// with the same URL are cheap and do not start another attempt; a different
// URL replaces the previous attempt.
func (l *Loader) Request(key, url string) State {
	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, ok := l.loads[key]; ok && existing.URL() == url {
		return existing.State()
	}

	load := NewLoad(url)
	l.loads[key] = load

	if load.State() == Failed {
		imageLoadsTotal.WithLabelValues("missing").Inc()
		l.notifyLocked()
		return Failed
	}

	if l.closed {
		load.Resolve(context.Canceled)
		return load.State()
	}

	l.wg.Add(1)
	go l.run(key, load)

	return Pending
}

// State returns the state for key. ok is false if key is not mounted.
func (l *Loader) State(key string) (state State, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	load, ok := l.loads[key]
	if !ok {
		return Pending, false
	}
	return load.State(), true
}

// Placeholder reports whether key must be rendered as a placeholder.
func (l *Loader) Placeholder(key string) bool {
	state, ok := l.State(key)
	return ok && state == Failed
}

// Forget unmounts key. A pending outcome for it is discarded.
func (l *Loader) Forget(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.loads, key)
}

// Changes delivers a coalesced signal after every state change.
// The channel is closed by Close.
func (l *Loader) Changes() <-chan struct{} {
	return l.changes
}

// Close cancels pending transport calls, waits for them to return and
// closes the Changes channel.
func (l *Loader) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.mu.Unlock()

	l.cancel()
	l.wg.Wait()

	l.mu.Lock()
	close(l.changes)
	l.mu.Unlock()
}

func (l *Loader) run(key string, load *Load) {
	defer l.wg.Done()

	if err := l.sem.Acquire(l.ctx, 1); err != nil {
		l.resolve(key, load, err)
		return
	}
	defer l.sem.Release(1)

	err := l.transport.Fetch(l.ctx, load.URL())
	l.resolve(key, load, err)
}

// resolve applies an outcome if key still shows the same attempt.
func (l *Loader) resolve(key string, load *Load, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.loads[key] != load {
		imageLoadsDiscarded.Inc()
		return
	}

	if !load.Resolve(err) {
		return
	}

	imageLoadsTotal.WithLabelValues(load.State().String()).Inc()
	if err != nil {
		l.logger.Debug().
			Err(err).
			Str("key", key).
			Str("url", load.URL()).
			Msg("Image load failed, showing placeholder")
	}

	l.notifyLocked()
}

// notifyLocked signals Changes without blocking. l.mu must be held.
func (l *Loader) notifyLocked() {
	if l.closed {
		return
	}
	select {
	case l.changes <- struct{}{}:
	default:
	}
}
