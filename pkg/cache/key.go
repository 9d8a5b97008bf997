package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// KeyPrefix namespaces all thumbnail cache keys in Redis.
const KeyPrefix = "topposts:img"

// CacheKey identifies a cached thumbnail outcome.
type CacheKey struct {
	// Host is the lower-cased image host (e.g. "b.thumbs.redditmedia.com")
	Host string

	// Path is the image path
	Path string

	// QueryParams are the query parameters (signed CDN URLs carry "s", "width", ...)
	QueryParams url.Values
}

// KeyForURL builds the key for an absolute image URL.
func KeyForURL(rawURL string) (CacheKey, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return CacheKey{}, fmt.Errorf("parse image url: %w", err)
	}
	if u.Host == "" {
		return CacheKey{}, fmt.Errorf("image url %q has no host", rawURL)
	}

	return CacheKey{
		Host:        strings.ToLower(u.Host),
		Path:        u.EscapedPath(),
		QueryParams: u.Query(),
	}, nil
}

// String generates a deterministic cache key string.
// Format: topposts:img:host/path:query1=val1:query2=val2
//
// Example:
//
//	topposts:img:preview.redd.it/abc.jpg:s=deadbeef:width=640
func (k CacheKey) String() string {
	parts := []string{KeyPrefix}

	location := k.Host + "/" + strings.Trim(k.Path, "/")
	parts = append(parts, strings.TrimSuffix(location, "/"))

	// Add query params (sorted for determinism)
	if len(k.QueryParams) > 0 {
		queryKeys := make([]string, 0, len(k.QueryParams))
		for key := range k.QueryParams {
			queryKeys = append(queryKeys, key)
		}
		sort.Strings(queryKeys)

		for _, key := range queryKeys {
			parts = append(parts, fmt.Sprintf("%s=%s", key, k.QueryParams.Get(key)))
		}
	}

	return strings.Join(parts, ":")
}
