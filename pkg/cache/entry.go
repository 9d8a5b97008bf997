package cache

import (
	"errors"
	"time"
)

// Entry is a cached thumbnail load outcome.
type Entry struct {
	// URL is the image URL the outcome belongs to
	URL string `json:"url"`

	// Loaded is true when the image was fetched and decoded
	Loaded bool `json:"loaded"`

	// Format is the decoder name (jpeg, png, gif, webp)
	Format string `json:"format,omitempty"`

	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`

	// StatusCode is the HTTP status of the response (0 for network failures)
	StatusCode int `json:"status_code"`

	// Error is the failure message for failed outcomes
	Error string `json:"error,omitempty"`

	// Expires is when the entry becomes stale
	Expires time.Time `json:"expires"`

	// CachedAt is when we cached this outcome
	CachedAt time.Time `json:"cached_at"`
}

// ErrCachedFailure is returned by Outcome for cached failed loads.
var ErrCachedFailure = errors.New("cached image load failure")

// IsExpired returns true if the cache entry has expired.
func (e *Entry) IsExpired() bool {
	return time.Now().After(e.Expires)
}

// TTL returns the time until expiration.
// Returns 0 if already expired.
func (e *Entry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}

// Outcome converts the entry back into a transport result.
func (e *Entry) Outcome() error {
	if e.Loaded {
		return nil
	}
	if e.Error != "" {
		return &failure{msg: e.Error}
	}
	return ErrCachedFailure
}

type failure struct {
	msg string
}

func (f *failure) Error() string {
	return f.msg
}

func (f *failure) Unwrap() error {
	return ErrCachedFailure
}
