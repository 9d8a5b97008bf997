// Package opener hands post destinations to the system browser.
package opener

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/Sternrassler/top-posts-client/pkg/feed"
	"github.com/Sternrassler/top-posts-client/pkg/logging"
	"github.com/cli/browser"
	"github.com/rs/zerolog"
)

// Opener opens an absolute URL outside the application.
type Opener interface {
	Open(url string) error
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(url string) error

// Open calls f(url).
func (f OpenerFunc) Open(url string) error {
	return f(url)
}

var browserOutput sync.Once

// BrowserOpener opens URLs with the platform browser launcher.
type BrowserOpener struct{}

// NewBrowserOpener returns a browser opener. The launcher's own output is
// sent to out (io.Discard when nil) so it cannot draw over a terminal UI.
func NewBrowserOpener(out io.Writer) BrowserOpener {
	if out == nil {
		out = io.Discard
	}
	browserOutput.Do(func() {
		browser.Stdout = out
		browser.Stderr = out
	})
	return BrowserOpener{}
}

// Open implements Opener.
func (BrowserOpener) Open(url string) error {
	if err := browser.OpenURL(url); err != nil {
		return fmt.Errorf("open browser: %w", err)
	}
	return nil
}

// Launcher resolves item links and opens them.
type Launcher struct {
	opener  Opener
	baseURL string
	logger  zerolog.Logger
}

// NewLauncher creates a launcher resolving permalinks against baseURL
// (feed.DefaultBaseURL when empty).
func NewLauncher(o Opener, baseURL string) *Launcher {
	if baseURL == "" {
		baseURL = feed.DefaultBaseURL
	}
	return &Launcher{
		opener:  o,
		baseURL: baseURL,
		logger:  logging.NewLogger("opener"),
	}
}

// OpenPermalink opens the discussion page of item.
func (l *Launcher) OpenPermalink(item feed.Item) (string, error) {
	return l.open(item.ID, "permalink", item.Permalink)
}

// OpenPreview opens the preview image of item.
// Returns feed.ErrNoDestination when the item has none.
func (l *Launcher) OpenPreview(item feed.Item) (string, error) {
	if item.PreviewURL == "" {
		return "", feed.ErrNoDestination
	}
	return l.open(item.ID, "preview", item.PreviewURL)
}

func (l *Launcher) open(id, target, ref string) (string, error) {
	dest, err := feed.ResolveURL(l.baseURL, ref)
	if err != nil {
		return "", fmt.Errorf("resolve %s of %s: %w", target, id, err)
	}

	if l.opener == nil {
		return dest, errors.New("no opener configured")
	}

	if err := l.opener.Open(dest); err != nil {
		l.logger.Warn().
			Err(err).
			Str("id", id).
			Str("url", dest).
			Msg("Failed to open destination")
		return dest, err
	}

	l.logger.Debug().
		Str("id", id).
		Str("target", target).
		Str("url", dest).
		Msg("Opened destination")

	return dest, nil
}
