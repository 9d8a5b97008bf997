// Package feed defines the post values shown in the list and the ordered,
// deduplicated page accumulation the pagination controller owns.
package feed

import (
	"time"
)

// Item is one list entry. It is a value type and must not be mutated after
// construction.
type Item struct {
	// ID is the stable, unique identity of the post (e.g. "t3_1epl10n")
	ID string `json:"id"`

	Title  string `json:"title"`
	Author string `json:"author"`

	// CreatedAtEpochSeconds is the creation time in seconds since the Unix epoch (UTC)
	CreatedAtEpochSeconds int64 `json:"created_at"`

	// ThumbnailURL is empty when the post has no thumbnail
	ThumbnailURL string `json:"thumbnail_url,omitempty"`

	// PreviewURL is empty when the post has no preview image.
	// May still contain HTML entity escapes as delivered by the source.
	PreviewURL string `json:"preview_url,omitempty"`

	CommentCount int `json:"comment_count"`
	Score        int `json:"score"`

	// Permalink is relative to the site root (e.g. "/r/pics/comments/...")
	Permalink string `json:"permalink"`
}

// CreatedAt returns the creation time in UTC.
func (i Item) CreatedAt() time.Time {
	return time.Unix(i.CreatedAtEpochSeconds, 0).UTC()
}

// HoursAgo returns the whole number of hours between creation and now.
// Posts dated in the future report 0.
func (i Item) HoursAgo(now time.Time) int64 {
	d := now.Sub(i.CreatedAt())
	if d < 0 {
		return 0
	}
	return int64(d / time.Hour)
}

// HasThumbnail reports whether the item carries a thumbnail URL.
func (i Item) HasThumbnail() bool {
	return i.ThumbnailURL != ""
}

// PermalinkURL returns the absolute destination URL for the post.
func (i Item) PermalinkURL() (string, error) {
	return ResolveURL(DefaultBaseURL, i.Permalink)
}

// PreviewLinkURL returns the absolute, unescaped preview image URL.
// Returns ErrNoDestination when the item has no preview.
func (i Item) PreviewLinkURL() (string, error) {
	if i.PreviewURL == "" {
		return "", ErrNoDestination
	}
	return ResolveURL(DefaultBaseURL, i.PreviewURL)
}

// Batch is the payload a page source returns for one fetch.
type Batch struct {
	Items []Item

	// NextCursor is empty when the source has no further pages
	NextCursor string
}
