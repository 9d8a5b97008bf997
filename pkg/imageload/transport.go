package imageload

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"io"
	"net/http"
	"time"

	"github.com/Sternrassler/top-posts-client/pkg/cache"
	"github.com/Sternrassler/top-posts-client/pkg/logging"
	"github.com/doyensec/safeurl"
	"github.com/rs/zerolog"
	_ "golang.org/x/image/webp" // register WebP decoder (Reddit previews)
)

const (
	// DefaultMaxBytes bounds the bytes read from an image response
	DefaultMaxBytes = 5 * 1024 * 1024

	// DefaultTimeout is the per-request timeout of the default client
	DefaultTimeout = 10 * time.Second
)

// LoadError describes a failed HTTP image load.
type LoadError struct {
	URL        string
	StatusCode int
	Err        error
}

// Error implements error.
func (e *LoadError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("image %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("image %s: %v", e.URL, e.Err)
}

// Unwrap returns the underlying error.
func (e *LoadError) Unwrap() error {
	return e.Err
}

var (
	// ErrBadStatus is the cause for non-2xx image responses
	ErrBadStatus = errors.New("unexpected status")

	// ErrUndecodable is the cause for bodies that are not a supported image
	ErrUndecodable = errors.New("not a decodable image")
)

// HTTPConfig holds HTTPTransport configuration.
type HTTPConfig struct {
	// Client overrides the SSRF-safe default client
	Client *http.Client

	// Cache remembers outcomes across runs (optional)
	Cache *cache.Manager

	// UserAgent is sent with every request
	UserAgent string

	// MaxBytes bounds the bytes read per image
	MaxBytes int64

	// Timeout for the default client
	Timeout time.Duration

	// Logger overrides the default component logger
	Logger *zerolog.Logger
}

// HTTPTransport fetches thumbnails over HTTP and reports whether they
// decode. Only the image header is decoded; the terminal renderer shows a
// glyph rather than pixels.
type HTTPTransport struct {
	client    *http.Client
	cache     *cache.Manager
	userAgent string
	maxBytes  int64
	logger    zerolog.Logger
}

// NewHTTPTransport creates an HTTP transport.
func NewHTTPTransport(cfg HTTPConfig) *HTTPTransport {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}

	client := cfg.Client
	if client == nil {
		client = NewSafeClient(cfg.Timeout)
	}

	logger := logging.NewLogger("image-transport")
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	return &HTTPTransport{
		client:    client,
		cache:     cfg.Cache,
		userAgent: cfg.UserAgent,
		maxBytes:  cfg.MaxBytes,
		logger:    logger,
	}
}

// NewSafeClient returns an HTTP client that refuses private, loopback and
// metadata addresses.
func NewSafeClient(timeout time.Duration) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("http", "https").
		SetAllowedPorts(80, 443).
		Build()

	return safeurl.Client(config).Client
}

// Fetch implements Transport.
func (t *HTTPTransport) Fetch(ctx context.Context, url string) error {
	key, keyErr := cache.KeyForURL(url)
	if keyErr == nil && t.cache != nil {
		entry, err := t.cache.Get(ctx, key)
		if err == nil {
			return entry.Outcome()
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			t.logger.Debug().Err(err).Str("url", url).Msg("Thumbnail cache read failed")
		}
	}

	entry, err := t.fetch(ctx, url)

	// Cancellation says nothing about the image
	if ctx.Err() != nil {
		return err
	}

	if keyErr == nil && t.cache != nil && entry != nil {
		if setErr := t.cache.Set(ctx, key, entry); setErr != nil {
			t.logger.Debug().Err(setErr).Str("url", url).Msg("Thumbnail cache write failed")
		}
	}

	return err
}

func (t *HTTPTransport) fetch(ctx context.Context, url string) (*cache.Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &LoadError{URL: url, Err: err}
	}
	if t.userAgent != "" {
		req.Header.Set("User-Agent", t.userAgent)
	}
	req.Header.Set("Accept", "image/*")

	resp, err := t.client.Do(req)
	if err != nil {
		loadErr := &LoadError{URL: url, Err: err}
		return cache.FailedEntry(url, 0, loadErr), loadErr
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		loadErr := &LoadError{URL: url, StatusCode: resp.StatusCode, Err: ErrBadStatus}
		return cache.FailedEntry(url, resp.StatusCode, loadErr), loadErr
	}

	cfg, format, err := image.DecodeConfig(io.LimitReader(resp.Body, t.maxBytes))
	if err != nil {
		loadErr := &LoadError{URL: url, StatusCode: resp.StatusCode, Err: fmt.Errorf("%w: %v", ErrUndecodable, err)}
		return cache.FailedEntry(url, resp.StatusCode, loadErr), loadErr
	}

	t.logger.Debug().
		Str("url", url).
		Str("format", format).
		Int("width", cfg.Width).
		Int("height", cfg.Height).
		Msg("Thumbnail decoded")

	return cache.LoadedEntry(url, resp.StatusCode, resp.Header, format, cfg.Width, cfg.Height), nil
}
