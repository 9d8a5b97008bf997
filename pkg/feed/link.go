package feed

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// DefaultBaseURL is the site root relative permalinks are resolved against.
const DefaultBaseURL = "https://www.reddit.com"

var (
	// ErrNoDestination is returned when an item has no link for the requested target
	ErrNoDestination = errors.New("no destination url")

	// ErrInvalidURL is returned when a link cannot be turned into an absolute http(s) URL
	ErrInvalidURL = errors.New("invalid destination url")
)

// ResolveURL turns ref into a well-formed absolute URL.
//
// HTML entity escapes (e.g. "&amp;") are replaced by their raw characters
// first, then relative references are resolved against base. Only http and
// https results are accepted.
func ResolveURL(base, ref string) (string, error) {
	ref = strings.TrimSpace(html.UnescapeString(ref))
	if ref == "" {
		return "", ErrNoDestination
	}

	baseURL, err := url.Parse(base)
	if err != nil || !baseURL.IsAbs() {
		return "", fmt.Errorf("%w: base %q", ErrInvalidURL, base)
	}

	refURL, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	resolved := baseURL.ResolveReference(refURL)
	switch resolved.Scheme {
	case "http", "https":
	default:
		return "", fmt.Errorf("%w: scheme %q", ErrInvalidURL, resolved.Scheme)
	}
	if resolved.Host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidURL)
	}

	return resolved.String(), nil
}
