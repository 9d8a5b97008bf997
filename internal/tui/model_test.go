package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Sternrassler/top-posts-client/pkg/feed"
	"github.com/Sternrassler/top-posts-client/pkg/imageload"
	"github.com/Sternrassler/top-posts-client/pkg/opener"
	"github.com/Sternrassler/top-posts-client/pkg/pagination"
)

var testNow = time.Date(2024, 8, 10, 12, 0, 0, 0, time.UTC)

// pagedSource serves pages of perPage items; cursors are "c1", "c2", ...
type pagedSource struct {
	pages   int
	perPage int
	calls   atomic.Int32
	fail    atomic.Bool
}

func (s *pagedSource) FetchPage(ctx context.Context, cursor string) (feed.Batch, error) {
	s.calls.Add(1)
	if s.fail.Load() {
		return feed.Batch{}, errors.New("upstream unavailable")
	}

	page := 0
	if cursor != "" {
		fmt.Sscanf(cursor, "c%d", &page)
	}

	items := make([]feed.Item, 0, s.perPage)
	for i := 1; i <= s.perPage; i++ {
		n := page*s.perPage + i
		item := feed.Item{
			ID:                    fmt.Sprintf("p%d", n),
			Title:                 fmt.Sprintf("Post %d", n),
			Author:                fmt.Sprintf("user%d", n),
			CreatedAtEpochSeconds: testNow.Add(-2 * time.Hour).Unix(),
			CommentCount:          n,
			Score:                 100 * n,
			Permalink:             fmt.Sprintf("/r/test/comments/p%d/", n),
		}
		if n%2 == 1 {
			item.ThumbnailURL = fmt.Sprintf("https://img.test/p%d.png", n)
		} else {
			item.PreviewURL = fmt.Sprintf("https://preview.redd.it/p%d.jpg?width=640&amp;s=x", n)
		}
		items = append(items, item)
	}

	next := ""
	if page+1 < s.pages {
		next = fmt.Sprintf("c%d", page+1)
	}
	return feed.Batch{Items: items, NextCursor: next}, nil
}

func newTestModel(t *testing.T, source *pagedSource, cfg Config) (Model, *pagination.Controller) {
	t.Helper()

	ctrl, err := pagination.New(source, pagination.DefaultConfig())
	if err != nil {
		t.Fatalf("pagination.New() error = %v", err)
	}
	t.Cleanup(ctrl.Close)

	cfg.Controller = ctrl
	cfg.Now = func() time.Time { return testNow }
	return New(cfg), ctrl
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	model, ok := next.(Model)
	if !ok {
		t.Fatalf("Update returned %T, want Model", next)
	}
	return model, cmd
}

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "pgdown":
		return tea.KeyMsg{Type: tea.KeyPgDown}
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// settle waits for the in-flight fetch and feeds the change to the model.
func settle(t *testing.T, m Model, ctrl *pagination.Controller) Model {
	t.Helper()
	select {
	case <-ctrl.Idle():
	case <-time.After(2 * time.Second):
		t.Fatal("fetch did not complete")
	}
	m, _ = update(t, m, feedChangedMsg{ok: true})
	return m
}

// loadFirstPage sizes the window and merges the first page.
func loadFirstPage(t *testing.T, m Model, ctrl *pagination.Controller, height int) Model {
	t.Helper()
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 120, Height: height})
	if !ctrl.LoadMore() {
		t.Fatal("LoadMore() did not start the first fetch")
	}
	return settle(t, m, ctrl)
}

func TestModel_FirstPageRenders(t *testing.T) {
	source := &pagedSource{pages: 3, perPage: 20}
	m, ctrl := newTestModel(t, source, Config{Title: "Top today"})

	m = loadFirstPage(t, m, ctrl, 13)

	view := m.View()
	for _, want := range []string{"Top today", "20 posts", "Post 1", "Post 10", "user1", "2h ago"} {
		if !strings.Contains(view, want) {
			t.Errorf("View() missing %q", want)
		}
	}
	if strings.Contains(view, "Post 11") {
		t.Error("View() should only render the rows that fit")
	}
	if ctrl.State().IsLoading {
		t.Error("no fetch expected before the threshold row is visible")
	}
}

func TestModel_ScrollTriggersAtThreshold(t *testing.T) {
	source := &pagedSource{pages: 3, perPage: 20}
	m, ctrl := newTestModel(t, source, Config{})

	// 10 rows on screen; threshold row is 20-5=15
	m = loadFirstPage(t, m, ctrl, 13)

	for i := 0; i < 14; i++ {
		m, _ = update(t, m, keyMsg("j"))
	}
	if ctrl.State().IsLoading {
		t.Fatalf("fetch started early (cursor %d, offset %d)", m.cursor, m.offset)
	}

	m, _ = update(t, m, keyMsg("down"))
	if !ctrl.State().IsLoading {
		t.Fatalf("fetch not started with row 15 visible (offset %d)", m.offset)
	}

	m = settle(t, m, ctrl)
	if got := len(m.state.Items); got != 40 {
		t.Errorf("items = %d, want 40", got)
	}
	if got := source.calls.Load(); got != 2 {
		t.Errorf("fetch calls = %d, want 2", got)
	}
}

func TestModel_PageDownReportsIntermediateLayouts(t *testing.T) {
	source := &pagedSource{pages: 3, perPage: 20}
	m, ctrl := newTestModel(t, source, Config{})
	m = loadFirstPage(t, m, ctrl, 13)

	m, _ = update(t, m, keyMsg("pgdown"))
	if ctrl.State().IsLoading {
		t.Fatalf("fetch started after first page down (offset %d)", m.offset)
	}

	// Jumps from last row 10 to 19, passing the threshold row 15
	m, _ = update(t, m, keyMsg("pgdown"))
	if !ctrl.State().IsLoading {
		t.Fatal("fetch not started when the window passed the threshold")
	}
	settle(t, m, ctrl)
}

func TestModel_ShortListFillsScreen(t *testing.T) {
	source := &pagedSource{pages: 2, perPage: 3}
	m, ctrl := newTestModel(t, source, Config{})

	m = loadFirstPage(t, m, ctrl, 24)
	if !ctrl.State().IsLoading {
		t.Fatal("short list should request the next page")
	}

	m = settle(t, m, ctrl)
	state := ctrl.State()
	if len(state.Items) != 6 || !state.Exhausted {
		t.Fatalf("items = %d exhausted = %v, want 6 and exhausted", len(state.Items), state.Exhausted)
	}
	if state.IsLoading {
		t.Error("exhausted feed must not fetch again")
	}
	if !strings.Contains(m.View(), "End of feed") {
		t.Error("View() should show the end of feed notice")
	}
}

func TestModel_FailureWaitsForExplicitRetry(t *testing.T) {
	source := &pagedSource{pages: 2, perPage: 3}
	source.fail.Store(true)
	m, ctrl := newTestModel(t, source, Config{})

	m = loadFirstPage(t, m, ctrl, 24)

	// Layout reports must not retry on their own
	m, _ = update(t, m, feedChangedMsg{ok: true})
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 120, Height: 20})
	if got := source.calls.Load(); got != 1 {
		t.Fatalf("fetch calls = %d, want 1", got)
	}
	if !strings.Contains(m.View(), "Load failed") {
		t.Error("View() should show the failure")
	}

	source.fail.Store(false)
	m, _ = update(t, m, keyMsg("l"))
	m = settle(t, m, ctrl)

	if got := len(m.state.Items); got == 0 {
		t.Error("retry should load items")
	}
	if m.state.Err != nil {
		t.Errorf("Err = %v, want nil after a successful retry", m.state.Err)
	}
}

func TestModel_ThresholdFailureFetchesOnce(t *testing.T) {
	source := &pagedSource{pages: 3, perPage: 20}
	m, ctrl := newTestModel(t, source, Config{})
	m = loadFirstPage(t, m, ctrl, 13)

	source.fail.Store(true)
	for i := 0; i < 15; i++ {
		m, _ = update(t, m, keyMsg("j"))
	}
	if !ctrl.State().IsLoading {
		t.Fatalf("fetch not started at the threshold row (offset %d)", m.offset)
	}

	// Each change re-reports the same window; none may start a fetch
	for i := 0; i < 5; i++ {
		m = settle(t, m, ctrl)
	}
	state := ctrl.State()
	if got := source.calls.Load(); got != 2 {
		t.Fatalf("fetch calls = %d, want 2", got)
	}
	if state.IsLoading || state.Err == nil {
		t.Fatalf("state = loading %v err %v, want idle with an error", state.IsLoading, state.Err)
	}

	// Scrolling away and back is a new crossing
	for i := 0; i < 10; i++ {
		m, _ = update(t, m, keyMsg("k"))
	}
	for i := 0; i < 10; i++ {
		m, _ = update(t, m, keyMsg("j"))
	}
	m = settle(t, m, ctrl)
	if got := source.calls.Load(); got != 3 {
		t.Fatalf("fetch calls after re-crossing = %d, want 3", got)
	}

	source.fail.Store(false)
	m, _ = update(t, m, keyMsg("l"))
	m = settle(t, m, ctrl)
	if got := source.calls.Load(); got != 4 {
		t.Errorf("fetch calls after l = %d, want 4", got)
	}
	if got := len(m.state.Items); got != 40 {
		t.Errorf("items = %d, want 40", got)
	}
	if m.state.Err != nil {
		t.Errorf("Err = %v, want nil after the retry", m.state.Err)
	}
}

func TestModel_Refresh(t *testing.T) {
	source := &pagedSource{pages: 3, perPage: 20}
	m, ctrl := newTestModel(t, source, Config{})
	m = loadFirstPage(t, m, ctrl, 13)

	for i := 0; i < 5; i++ {
		m, _ = update(t, m, keyMsg("j"))
	}

	m, _ = update(t, m, keyMsg("r"))
	if m.cursor != 0 || m.offset != 0 {
		t.Errorf("cursor/offset = %d/%d, want 0/0", m.cursor, m.offset)
	}
	if len(m.state.Items) != 0 || !m.state.IsLoading {
		t.Errorf("refresh should clear items and start loading: %+v", m.state)
	}

	m = settle(t, m, ctrl)
	if got := len(m.state.Items); got != 20 {
		t.Errorf("items = %d, want 20", got)
	}
}

type recordingOpener struct {
	mu   sync.Mutex
	urls []string
}

func (r *recordingOpener) Open(url string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.urls = append(r.urls, url)
	return nil
}

func TestModel_OpenKeys(t *testing.T) {
	rec := &recordingOpener{}
	source := &pagedSource{pages: 1, perPage: 20}
	m, ctrl := newTestModel(t, source, Config{Launcher: opener.NewLauncher(rec, "")})
	m = loadFirstPage(t, m, ctrl, 13)

	m, cmd := update(t, m, keyMsg("enter"))
	if cmd == nil {
		t.Fatal("enter should return an open command")
	}
	m, _ = update(t, m, cmd())
	if !strings.Contains(m.notice, "https://www.reddit.com/r/test/comments/p1/") {
		t.Errorf("notice = %q, want opened permalink", m.notice)
	}

	// First post has no preview
	m, cmd = update(t, m, keyMsg("p"))
	m, _ = update(t, m, cmd())
	if !strings.Contains(m.notice, "No preview") {
		t.Errorf("notice = %q, want missing preview notice", m.notice)
	}

	m, _ = update(t, m, keyMsg("j"))
	m, cmd = update(t, m, keyMsg("p"))
	m, _ = update(t, m, cmd())

	rec.mu.Lock()
	defer rec.mu.Unlock()
	want := []string{
		"https://www.reddit.com/r/test/comments/p1/",
		"https://preview.redd.it/p2.jpg?width=640&s=x",
	}
	if len(rec.urls) != len(want) {
		t.Fatalf("opened %v, want %v", rec.urls, want)
	}
	for i := range want {
		if rec.urls[i] != want[i] {
			t.Errorf("opened[%d] = %q, want %q", i, rec.urls[i], want[i])
		}
	}
}

func TestModel_OpenWithoutLauncher(t *testing.T) {
	source := &pagedSource{pages: 1, perPage: 3}
	m, ctrl := newTestModel(t, source, Config{})
	m = loadFirstPage(t, m, ctrl, 13)

	m, cmd := update(t, m, keyMsg("enter"))
	m, _ = update(t, m, cmd())
	if !strings.Contains(m.notice, "no opener configured") {
		t.Errorf("notice = %q, want missing opener error", m.notice)
	}
}

func waitForImageState(t *testing.T, l *imageload.Loader, key string, want imageload.State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if state, ok := l.State(key); ok && state == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	state, ok := l.State(key)
	t.Fatalf("image %s state = %v (mounted %v), want %v", key, state, ok, want)
}

func TestModel_Thumbnails(t *testing.T) {
	transport := imageload.TransportFunc(func(ctx context.Context, url string) error {
		if strings.Contains(url, "p3.png") {
			return errors.New("404")
		}
		return nil
	})
	loader, err := imageload.NewLoader(transport, imageload.DefaultConfig())
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}
	t.Cleanup(loader.Close)

	source := &pagedSource{pages: 1, perPage: 4}
	m, ctrl := newTestModel(t, source, Config{Images: loader})

	// Two rows on screen
	m = loadFirstPage(t, m, ctrl, 5)

	waitForImageState(t, loader, "p1", imageload.Loaded)
	if !loader.Placeholder("p2") {
		t.Error("post without thumbnail should show the placeholder")
	}
	if _, ok := loader.State("p3"); ok {
		t.Error("off-screen rows must not be mounted")
	}

	view := m.View()
	if !strings.Contains(view, glyphLoaded) || !strings.Contains(view, glyphPlaceholder) {
		t.Errorf("View() should show loaded and placeholder glyphs:\n%s", view)
	}

	m, _ = update(t, m, keyMsg("j"))
	m, _ = update(t, m, keyMsg("j"))
	waitForImageState(t, loader, "p3", imageload.Failed)
	if _, ok := loader.State("p1"); ok {
		t.Error("scrolled-away row should be forgotten")
	}
}

func TestModel_Quit(t *testing.T) {
	source := &pagedSource{pages: 1, perPage: 1}
	m, _ := newTestModel(t, source, Config{})

	_, cmd := update(t, m, keyMsg("q"))
	if cmd == nil {
		t.Fatal("q should return a command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q should quit")
	}
}

func TestModel_ClosedControllerStopsListening(t *testing.T) {
	source := &pagedSource{pages: 1, perPage: 1}
	m, _ := newTestModel(t, source, Config{})

	_, cmd := update(t, m, feedChangedMsg{ok: false})
	if cmd != nil {
		t.Error("closed controller should not be waited on again")
	}
}

func TestModel_ClosedLoaderStopsListening(t *testing.T) {
	source := &pagedSource{pages: 1, perPage: 1}
	loader, err := imageload.NewLoader(imageload.TransportFunc(func(ctx context.Context, url string) error {
		return nil
	}), imageload.DefaultConfig())
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}
	m, _ := newTestModel(t, source, Config{Images: loader})

	loader.Close()
	msg := waitForImages(loader.Changes())()
	if got, ok := msg.(imagesChangedMsg); !ok || got.ok {
		// a signal queued before Close is delivered first
		msg = waitForImages(loader.Changes())()
	}
	if got := msg.(imagesChangedMsg); got.ok {
		t.Fatal("closed loader should report ok=false")
	}

	_, cmd := update(t, m, msg)
	if cmd != nil {
		t.Error("closed loader should not be waited on again")
	}
}

func TestAgeLabel(t *testing.T) {
	tests := []struct {
		name    string
		created time.Time
		want    string
	}{
		{"just now", testNow, "0h ago"},
		{"hours", testNow.Add(-5*time.Hour - 59*time.Minute), "5h ago"},
		{"future", testNow.Add(time.Hour), "0h ago"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := feed.Item{CreatedAtEpochSeconds: tt.created.Unix()}
			if got := ageLabel(item, testNow); got != tt.want {
				t.Errorf("ageLabel() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"exactly", 7, "exactly"},
		{"too long title", 8, "too lon…"},
		{"äöüß", 3, "äö…"},
		{"ab", 1, "a"},
	}

	for _, tt := range tests {
		if got := truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}
