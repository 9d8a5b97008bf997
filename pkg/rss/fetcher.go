// Package rss provides a single-page feed source backed by the listing's
// Atom feed. It is used when the JSON listing is unavailable and never
// reports a further page.
package rss

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Sternrassler/top-posts-client/pkg/feed"
	"github.com/Sternrassler/top-posts-client/pkg/logging"
	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog"
)

// ErrBadStatus is returned for non-200 feed responses.
var ErrBadStatus = errors.New("unexpected feed status")

// Config holds the fetcher configuration.
type Config struct {
	// BaseURL is the site root (default "https://www.reddit.com")
	BaseURL string

	// Listing is the listing path, e.g. "/top"
	Listing string

	// TimeWindow is the "t" parameter for top listings (optional)
	TimeWindow string

	// UserAgent is sent with every request
	UserAgent string

	Timeout time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig(userAgent string) Config {
	return Config{
		BaseURL:    feed.DefaultBaseURL,
		Listing:    "/top",
		TimeWindow: "day",
		UserAgent:  userAgent,
		Timeout:    15 * time.Second,
	}
}

// Fetcher reads a listing's Atom feed.
type Fetcher struct {
	httpClient *http.Client
	parser     *gofeed.Parser
	config     Config
	logger     zerolog.Logger
}

// NewFetcher creates a feed fetcher.
func NewFetcher(cfg Config) (*Fetcher, error) {
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
	cfg.Listing = strings.TrimRight(cfg.Listing, "/")

	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	return &Fetcher{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		parser:     gofeed.NewParser(),
		config:     cfg,
		logger:     logging.NewLogger("rss"),
	}, nil
}

// FeedURL returns the absolute feed URL.
func (f *Fetcher) FeedURL() string {
	u := f.config.BaseURL + f.config.Listing + "/.rss"
	if f.config.TimeWindow != "" {
		u += "?t=" + url.QueryEscape(f.config.TimeWindow)
	}
	return u
}

// FetchPage fetches the whole feed as one page. Any cursor is ignored and
// the returned NextCursor is always empty.
func (f *Fetcher) FetchPage(ctx context.Context, cursor string) (feed.Batch, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.FeedURL(), nil)
	if err != nil {
		return feed.Batch{}, fmt.Errorf("build feed request: %w", err)
	}
	req.Header.Set("User-Agent", f.config.UserAgent)
	req.Header.Set("Accept", "application/atom+xml, application/rss+xml;q=0.9, */*;q=0.5")

	start := time.Now()
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return feed.Batch{}, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return feed.Batch{}, fmt.Errorf("%w: %d", ErrBadStatus, resp.StatusCode)
	}

	parsed, err := f.parser.Parse(resp.Body)
	if err != nil {
		return feed.Batch{}, fmt.Errorf("parse feed: %w", err)
	}

	items := convertItems(parsed.Items)

	f.logger.Debug().
		Str("url", f.FeedURL()).
		Int("items", len(items)).
		Dur("duration", time.Since(start)).
		Msg("Feed fetched")

	return feed.Batch{Items: items}, nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (f *Fetcher) SetHTTPClient(client *http.Client) {
	f.httpClient = client
}

// convertItems maps feed entries to items, skipping entries without identity.
func convertItems(entries []*gofeed.Item) []feed.Item {
	items := make([]feed.Item, 0, len(entries))
	for _, e := range entries {
		if e == nil {
			continue
		}
		id := e.GUID
		if id == "" {
			id = e.Link
		}
		if id == "" {
			continue
		}

		it := feed.Item{
			ID:           id,
			Title:        e.Title,
			Author:       authorName(e),
			ThumbnailURL: thumbnail(e),
			Permalink:    permalink(e.Link),
		}
		if e.PublishedParsed != nil {
			it.CreatedAtEpochSeconds = e.PublishedParsed.Unix()
		} else if e.UpdatedParsed != nil {
			it.CreatedAtEpochSeconds = e.UpdatedParsed.Unix()
		}
		items = append(items, it)
	}
	return items
}

func authorName(e *gofeed.Item) string {
	var name string
	if e.Author != nil {
		name = e.Author.Name
	}
	if name == "" && len(e.Authors) > 0 && e.Authors[0] != nil {
		name = e.Authors[0].Name
	}
	return strings.TrimPrefix(name, "/u/")
}

// thumbnail prefers the media:thumbnail extension over the item image.
func thumbnail(e *gofeed.Item) string {
	if media, ok := e.Extensions["media"]; ok {
		for _, ext := range media["thumbnail"] {
			if u := ext.Attrs["url"]; u != "" {
				return u
			}
		}
	}
	if e.Image != nil {
		return e.Image.URL
	}
	return ""
}

// permalink strips scheme and host so the value is relative to the site root.
func permalink(link string) string {
	if link == "" {
		return ""
	}
	u, err := url.Parse(link)
	if err != nil || u.Path == "" {
		return link
	}
	return u.Path
}
