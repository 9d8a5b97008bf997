// Package imageload models the loading lifecycle of item thumbnails.
//
// Every rendered item owns one Load: it starts Pending and ends either
// Loaded or Failed. A missing URL fails immediately without touching the
// transport. Failed loads must be rendered as a placeholder. There is no
// retry; a new attempt only happens when the item shows a different URL.
package imageload

import "errors"

// State is the outcome of one load attempt.
type State int

const (
	// Pending means the transport has not answered yet
	Pending State = iota

	// Loaded means a decoded image is available
	Loaded

	// Failed means the URL was missing or the transport reported an error
	Failed
)

// ErrNoURL is the failure recorded for items without an image URL.
var ErrNoURL = errors.New("no image url")

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Loaded:
		return "loaded"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can happen for the attempt.
func (s State) Terminal() bool {
	return s == Loaded || s == Failed
}

// Load is the state machine of a single load attempt for one URL.
// It is not safe for concurrent use.
type Load struct {
	url   string
	state State
	err   error
}

// NewLoad starts an attempt. An empty URL resolves to Failed at once.
func NewLoad(url string) *Load {
	if url == "" {
		return &Load{state: Failed, err: ErrNoURL}
	}
	return &Load{url: url, state: Pending}
}

// URL returns the image URL of the attempt.
func (l *Load) URL() string {
	return l.url
}

// State returns the current state.
func (l *Load) State() State {
	return l.state
}

// Err returns the failure cause when the state is Failed.
func (l *Load) Err() error {
	return l.err
}

// Resolve applies the transport outcome: nil moves Pending to Loaded, an
// error moves it to Failed. Terminal states ignore further outcomes.
// Returns true if the state changed.
func (l *Load) Resolve(err error) bool {
	if l.state.Terminal() {
		return false
	}

	if err != nil {
		l.state = Failed
		l.err = err
		return true
	}

	l.state = Loaded
	return true
}

// Placeholder reports whether the renderer must show the placeholder
// instead of the image.
func (l *Load) Placeholder() bool {
	return l.state == Failed
}
