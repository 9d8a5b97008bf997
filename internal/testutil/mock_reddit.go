// Package testutil provides testing utilities for the top-posts client.
package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockPost is one post served by MockReddit.
type MockPost struct {
	ID          string // fullname, e.g. "t3_p1"
	Title       string
	Author      string
	CreatedUTC  int64
	Thumbnail   string
	PreviewURL  string
	NumComments int
	Score       int
	Permalink   string
}

// MockReddit is a configurable mock Reddit listing server for testing.
// It pages through its posts with the "limit" and "after" query parameters
// on "<listing>.json", serves the same posts as RSS on "<listing>/.rss" and
// PNG thumbnails under "/thumb/".
type MockReddit struct {
	server   *httptest.Server
	listing  string
	mu       sync.RWMutex
	posts    []MockPost
	handlers map[string]func(w http.ResponseWriter, r *http.Request)
	failures []MockResponse

	// Tracking
	RequestCount      int
	Cursors           []string
	LastRequestHeader http.Header
}

// NewMockReddit creates a mock server for listing (e.g. "/top").
func NewMockReddit(listing string, posts []MockPost) *MockReddit {
	mock := &MockReddit{
		listing:  listing,
		posts:    posts,
		handlers: make(map[string]func(w http.ResponseWriter, r *http.Request)),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.LastRequestHeader = r.Header.Clone()
		var failure *MockResponse
		if len(mock.failures) > 0 && r.URL.Path == mock.listing+".json" {
			failure = &mock.failures[0]
			mock.failures = mock.failures[1:]
		}
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if failure != nil {
			writeResponse(w, *failure)
			return
		}

		if exists {
			handler(w, r)
			return
		}

		mock.defaultHandler(w, r)
	}))

	return mock
}

// GeneratePosts returns n posts with IDs "t3_p1".."t3_pn".
// Every third post has no thumbnail.
func GeneratePosts(n int) []MockPost {
	now := time.Now().Unix()
	posts := make([]MockPost, 0, n)
	for i := 1; i <= n; i++ {
		post := MockPost{
			ID:          fmt.Sprintf("t3_p%d", i),
			Title:       fmt.Sprintf("Post %d &amp; friends", i),
			Author:      fmt.Sprintf("user%d", i),
			CreatedUTC:  now - int64(i)*3600,
			Thumbnail:   fmt.Sprintf("/thumb/p%d.png", i),
			PreviewURL:  fmt.Sprintf("https://preview.redd.it/p%d.jpg?width=640&amp;s=abc%d", i, i),
			NumComments: i * 10,
			Score:       1000 - i,
			Permalink:   fmt.Sprintf("/r/test/comments/p%d/post_%d/", i, i),
		}
		if i%3 == 0 {
			post.Thumbnail = "self"
		}
		posts = append(posts, post)
	}
	return posts
}

// URL returns the mock server URL.
func (m *MockReddit) URL() string {
	return m.server.URL
}

// Client returns an HTTP client for the mock server.
func (m *MockReddit) Client() *http.Client {
	return m.server.Client()
}

// Close shuts down the mock server.
func (m *MockReddit) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockReddit) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.Cursors = nil
	m.LastRequestHeader = nil
}

// SetPosts replaces the served posts.
func (m *MockReddit) SetPosts(posts []MockPost) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.posts = posts
}

// SetHandler sets a custom handler for a specific path.
func (m *MockReddit) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a simple response for a path.
func (m *MockReddit) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		writeResponse(w, resp)
	})
}

// FailNext makes the next listing requests answer with the given responses, in order.
func (m *MockReddit) FailNext(responses ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, responses...)
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockReddit) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetCursors returns the "after" values of served listing pages, in order.
func (m *MockReddit) GetCursors() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.Cursors...)
}

func writeResponse(w http.ResponseWriter, resp MockResponse) {
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

// defaultHandler provides Reddit-like responses.
func (m *MockReddit) defaultHandler(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == m.listing+".json":
		m.serveListing(w, r)
	case r.URL.Path == m.listing+"/.rss":
		m.serveRSS(w, r)
	case strings.HasPrefix(r.URL.Path, "/thumb/"):
		serveThumbnail(w)
	default:
		http.NotFound(w, r)
	}
}

func (m *MockReddit) serveListing(w http.ResponseWriter, r *http.Request) {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = 25
	}
	after := r.URL.Query().Get("after")

	m.mu.Lock()
	m.Cursors = append(m.Cursors, after)
	posts := m.posts
	m.mu.Unlock()

	start := 0
	if after != "" {
		start = len(posts)
		for i, p := range posts {
			if p.ID == after {
				start = i + 1
				break
			}
		}
	}
	end := start + limit
	if end > len(posts) {
		end = len(posts)
	}

	children := make([]map[string]any, 0, end-start)
	for _, p := range posts[start:end] {
		children = append(children, map[string]any{"kind": "t3", "data": m.postData(p)})
	}

	var next any
	if end < len(posts) && end > start {
		next = posts[end-1].ID
	}

	body, _ := json.Marshal(map[string]any{
		"kind": "Listing",
		"data": map[string]any{
			"after":    next,
			"before":   nil,
			"dist":     len(children),
			"children": children,
		},
	})

	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.Header().Set("X-Ratelimit-Used", "4")
	w.Header().Set("X-Ratelimit-Remaining", "96.0")
	w.Header().Set("X-Ratelimit-Reset", "300")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func (m *MockReddit) postData(p MockPost) map[string]any {
	thumbnail := p.Thumbnail
	if strings.HasPrefix(thumbnail, "/") {
		thumbnail = m.server.URL + thumbnail
	}

	data := map[string]any{
		"name":         p.ID,
		"id":           strings.TrimPrefix(p.ID, "t3_"),
		"title":        p.Title,
		"author":       p.Author,
		"created_utc":  float64(p.CreatedUTC),
		"thumbnail":    thumbnail,
		"num_comments": p.NumComments,
		"score":        p.Score,
		"permalink":    p.Permalink,
	}
	if p.PreviewURL != "" {
		data["preview"] = map[string]any{
			"images": []map[string]any{
				{"source": map[string]any{"url": p.PreviewURL, "width": 640, "height": 480}},
			},
		}
	}
	return data
}

func (m *MockReddit) serveRSS(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	posts := m.posts
	m.mu.RUnlock()

	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString(`<feed xmlns="http://www.w3.org/2005/Atom" xmlns:media="http://search.yahoo.com/mrss/">` + "\n")
	b.WriteString("<title>top scoring links</title>\n")
	for _, p := range posts {
		fmt.Fprintf(&b, "<entry>\n<author><name>/u/%s</name></author>\n", p.Author)
		fmt.Fprintf(&b, "<id>%s</id>\n", p.ID)
		if strings.HasPrefix(p.Thumbnail, "/") {
			fmt.Fprintf(&b, "<media:thumbnail url=\"%s%s\" />\n", m.server.URL, p.Thumbnail)
		}
		fmt.Fprintf(&b, "<link href=\"https://www.reddit.com%s\" />\n", p.Permalink)
		fmt.Fprintf(&b, "<published>%s</published>\n", time.Unix(p.CreatedUTC, 0).UTC().Format(time.RFC3339))
		fmt.Fprintf(&b, "<title>%s</title>\n</entry>\n", p.Title)
	}
	b.WriteString("</feed>\n")

	w.Header().Set("Content-Type", "application/atom+xml; charset=UTF-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(b.String()))
}

func serveThumbnail(w http.ResponseWriter) {
	img := image.NewRGBA(image.Rect(0, 0, 140, 78))
	img.Set(0, 0, color.RGBA{G: 255, A: 255})

	var buf bytes.Buffer
	_ = png.Encode(&buf, img)

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "max-age=3600")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"message": "Too Many Requests", "error": 429}`,
		Headers: map[string]string{
			"X-Ratelimit-Used":      "100",
			"X-Ratelimit-Remaining": "0.0",
			"X-Ratelimit-Reset":     "1",
			"Content-Type":          "application/json; charset=UTF-8",
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"message": "Internal Server Error", "error": 500}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=UTF-8",
		},
	}
}

// NewNotFoundResponse creates a 404 Not Found response.
func NewNotFoundResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusNotFound,
		Body:       `{"message": "Not Found", "error": 404}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=UTF-8",
		},
	}
}
