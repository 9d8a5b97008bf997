package client

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/Sternrassler/top-posts-client/pkg/feed"
	"golang.org/x/net/html"
)

// maxListingBytes bounds the listing body that is decoded.
const maxListingBytes = 8 * 1024 * 1024

// thumbnailSentinels are the non-URL values Reddit puts in "thumbnail".
var thumbnailSentinels = map[string]bool{
	"":        true,
	"self":    true,
	"default": true,
	"nsfw":    true,
	"spoiler": true,
	"image":   true,
}

// listing is the envelope of a Reddit listing response.
type listing struct {
	Kind string      `json:"kind"`
	Data listingData `json:"data"`
}

type listingData struct {
	After    *string `json:"after"`
	Children []thing `json:"children"`
}

type thing struct {
	Kind string `json:"kind"`
	Data post   `json:"data"`
}

type post struct {
	Name        string  `json:"name"`
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Author      string  `json:"author"`
	CreatedUTC  float64 `json:"created_utc"`
	Thumbnail   string  `json:"thumbnail"`
	NumComments int     `json:"num_comments"`
	Score       int     `json:"score"`
	Permalink   string  `json:"permalink"`
	Preview     *struct {
		Images []struct {
			Source struct {
				URL string `json:"url"`
			} `json:"source"`
		} `json:"images"`
	} `json:"preview"`
}

// decodeListing reads a listing body into a batch.
// Children that are not posts, or lack an id, are skipped.
func decodeListing(r io.Reader) (feed.Batch, error) {
	var l listing
	if err := json.NewDecoder(io.LimitReader(r, maxListingBytes)).Decode(&l); err != nil {
		return feed.Batch{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if l.Kind != "" && l.Kind != "Listing" {
		return feed.Batch{}, fmt.Errorf("%w: unexpected kind %q", ErrDecode, l.Kind)
	}

	batch := feed.Batch{Items: make([]feed.Item, 0, len(l.Data.Children))}
	for _, child := range l.Data.Children {
		if child.Kind != "" && child.Kind != "t3" {
			continue
		}
		item, ok := child.Data.toItem()
		if !ok {
			continue
		}
		batch.Items = append(batch.Items, item)
	}

	if l.Data.After != nil {
		batch.NextCursor = *l.Data.After
	}

	return batch, nil
}

func (p post) toItem() (feed.Item, bool) {
	id := p.Name
	if id == "" && p.ID != "" {
		id = "t3_" + p.ID
	}
	if id == "" {
		return feed.Item{}, false
	}

	commentCount := p.NumComments
	if commentCount < 0 {
		commentCount = 0
	}

	var previewURL string
	if p.Preview != nil && len(p.Preview.Images) > 0 {
		// Kept HTML-escaped as delivered, unescaped when opened
		previewURL = p.Preview.Images[0].Source.URL
	}

	return feed.Item{
		ID:                    id,
		Title:                 html.UnescapeString(p.Title),
		Author:                p.Author,
		CreatedAtEpochSeconds: int64(p.CreatedUTC),
		ThumbnailURL:          thumbnailURL(p.Thumbnail),
		PreviewURL:            previewURL,
		CommentCount:          commentCount,
		Score:                 p.Score,
		Permalink:             p.Permalink,
	}, true
}

// thumbnailURL maps Reddit's thumbnail field to a loadable URL or "".
func thumbnailURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if thumbnailSentinels[raw] {
		return ""
	}
	if !strings.HasPrefix(raw, "https://") && !strings.HasPrefix(raw, "http://") {
		return ""
	}
	return html.UnescapeString(raw)
}
