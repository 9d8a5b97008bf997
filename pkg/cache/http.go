package cache

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultTTL is the fallback TTL for loaded images when no caching headers are present
	DefaultTTL = 24 * time.Hour

	// FailureTTL is how long a failed load is remembered
	FailureTTL = 10 * time.Minute

	// MaxTTL caps header-provided lifetimes
	MaxTTL = 7 * 24 * time.Hour
)

// LoadedEntry builds the entry for a decoded image.
// headers may be nil.
func LoadedEntry(rawURL string, statusCode int, headers http.Header, format string, width, height int) *Entry {
	now := time.Now()
	return &Entry{
		URL:        rawURL,
		Loaded:     true,
		Format:     format,
		Width:      width,
		Height:     height,
		StatusCode: statusCode,
		Expires:    parseExpires(headers, now),
		CachedAt:   now,
	}
}

// FailedEntry builds the entry for a failed load.
func FailedEntry(rawURL string, statusCode int, err error) *Entry {
	now := time.Now()
	entry := &Entry{
		URL:        rawURL,
		StatusCode: statusCode,
		Expires:    now.Add(FailureTTL),
		CachedAt:   now,
	}
	if err != nil {
		entry.Error = err.Error()
	}
	return entry
}

// parseExpires derives the expiry from Cache-Control max-age, then Expires.
// Returns now + DefaultTTL if neither is usable.
func parseExpires(headers http.Header, now time.Time) time.Time {
	if headers == nil {
		return now.Add(DefaultTTL)
	}

	if maxAge, ok := parseMaxAge(headers.Get("Cache-Control")); ok {
		return now.Add(capTTL(maxAge))
	}

	expiresStr := headers.Get("Expires")
	if expiresStr == "" {
		return now.Add(DefaultTTL)
	}

	expires, err := http.ParseTime(expiresStr)
	if err != nil {
		return now.Add(DefaultTTL)
	}

	// Already expired - use minimal TTL
	if expires.Before(now) {
		return now
	}

	return now.Add(capTTL(expires.Sub(now)))
}

// parseMaxAge extracts max-age from a Cache-Control header.
// no-store and no-cache yield a zero lifetime.
func parseMaxAge(cacheControl string) (time.Duration, bool) {
	if cacheControl == "" {
		return 0, false
	}

	for _, directive := range strings.Split(cacheControl, ",") {
		directive = strings.ToLower(strings.TrimSpace(directive))
		switch {
		case directive == "no-store" || directive == "no-cache":
			return 0, true
		case strings.HasPrefix(directive, "max-age="):
			seconds, err := strconv.Atoi(strings.TrimPrefix(directive, "max-age="))
			if err != nil || seconds < 0 {
				return 0, false
			}
			return time.Duration(seconds) * time.Second, true
		}
	}

	return 0, false
}

func capTTL(ttl time.Duration) time.Duration {
	if ttl > MaxTTL {
		return MaxTTL
	}
	return ttl
}
