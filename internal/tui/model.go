// Package tui is the terminal rendering surface for the top posts feed.
//
// The model reports its visible window to the pagination controller on
// every layout change, mounts thumbnails for the rows on screen and
// re-renders whenever the controller or the image loader signal a change.
package tui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Sternrassler/top-posts-client/pkg/feed"
	"github.com/Sternrassler/top-posts-client/pkg/imageload"
	"github.com/Sternrassler/top-posts-client/pkg/opener"
	"github.com/Sternrassler/top-posts-client/pkg/pagination"
	"github.com/Sternrassler/top-posts-client/pkg/scroll"
)

const (
	defaultWidth  = 80
	defaultHeight = 24

	// header line plus loading/notice line plus help line
	chromeLines = 3
)

// feedChangedMsg is sent when the controller signalled a change.
// ok is false once the controller was closed.
type feedChangedMsg struct {
	ok bool
}

// imagesChangedMsg is sent when a thumbnail load settled.
// ok is false once the loader was closed.
type imagesChangedMsg struct {
	ok bool
}

// openedMsg is sent after an open attempt.
type openedMsg struct {
	url string
	err error
}

// Config holds the model dependencies.
type Config struct {
	Controller *pagination.Controller

	// Images is optional; without it every row shows the pending glyph
	Images *imageload.Loader

	// Launcher is optional; without it open keys report an error
	Launcher *opener.Launcher

	// Title is shown in the header
	Title string

	// Now is the clock for age labels (default time.Now)
	Now func() time.Time
}

// Model is the bubbletea model for the feed list.
type Model struct {
	controller *pagination.Controller
	images     *imageload.Loader
	launcher   *opener.Launcher
	title      string
	now        func() time.Time

	keys    KeyMap
	spinner spinner.Model

	state   pagination.State
	cursor  int
	offset  int
	width   int
	height  int
	notice  string
	mounted map[string]string

	// atThreshold is the last computed trigger condition; the controller
	// is only told about a window when it flips to true
	atThreshold bool
}

// New creates the list model.
func New(cfg Config) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(accent)

	title := cfg.Title
	if title == "" {
		title = "Top posts"
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return Model{
		controller: cfg.Controller,
		images:     cfg.Images,
		launcher:   cfg.Launcher,
		title:      title,
		now:        now,
		keys:       DefaultKeyMap(),
		spinner:    s,
		width:      defaultWidth,
		height:     defaultHeight,
		mounted:    make(map[string]string),
	}
}

// Init starts the first page fetch and the change listeners.
func (m Model) Init() tea.Cmd {
	c := m.controller
	cmds := []tea.Cmd{
		m.spinner.Tick,
		waitForFeed(c.Changes()),
		func() tea.Msg {
			c.LoadMore()
			return nil
		},
	}
	if m.images != nil {
		cmds = append(cmds, waitForImages(m.images.Changes()))
	}
	return tea.Batch(cmds...)
}

func waitForFeed(ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		_, ok := <-ch
		return feedChangedMsg{ok: ok}
	}
}

func waitForImages(ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		_, ok := <-ch
		return imagesChangedMsg{ok: ok}
	}
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.scrollTo(m.offset)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case feedChangedMsg:
		if !msg.ok {
			return m, nil
		}
		m.syncState()
		return m, waitForFeed(m.controller.Changes())

	case imagesChangedMsg:
		if !msg.ok {
			return m, nil
		}
		return m, waitForImages(m.images.Changes())

	case openedMsg:
		switch {
		case errors.Is(msg.err, feed.ErrNoDestination):
			m.notice = "No preview image for this post"
		case msg.err != nil:
			m.notice = errorStyle.Render("Open failed: " + msg.err.Error())
		default:
			m.notice = noticeStyle.Render("Opened " + msg.url)
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Down):
		m.moveCursor(1)

	case key.Matches(msg, m.keys.Up):
		m.moveCursor(-1)

	case key.Matches(msg, m.keys.PageDown):
		m.moveCursor(m.listRows())

	case key.Matches(msg, m.keys.PageUp):
		m.moveCursor(-m.listRows())

	case key.Matches(msg, m.keys.Open):
		if item, ok := m.selected(); ok {
			return m, m.open(item, false)
		}

	case key.Matches(msg, m.keys.Preview):
		if item, ok := m.selected(); ok {
			return m, m.open(item, true)
		}

	case key.Matches(msg, m.keys.Refresh):
		if m.controller.Refresh() {
			m.cursor = 0
			m.offset = 0
			m.atThreshold = false
			m.notice = ""
			m.unmountAll()
			m.state = m.controller.State()
		}

	case key.Matches(msg, m.keys.LoadMore):
		if m.controller.LoadMore() {
			m.state.IsLoading = true
			m.notice = ""
		}
	}

	return m, nil
}

func (m Model) open(item feed.Item, preview bool) tea.Cmd {
	launcher := m.launcher
	return func() tea.Msg {
		if launcher == nil {
			return openedMsg{err: errors.New("no opener configured")}
		}
		var (
			dest string
			err  error
		)
		if preview {
			dest, err = launcher.OpenPreview(item)
		} else {
			dest, err = launcher.OpenPermalink(item)
		}
		return openedMsg{url: dest, err: err}
	}
}

func (m Model) selected() (feed.Item, bool) {
	if m.cursor < 0 || m.cursor >= len(m.state.Items) {
		return feed.Item{}, false
	}
	return m.state.Items[m.cursor], true
}

// listRows is the number of item rows that fit on screen.
func (m Model) listRows() int {
	rows := m.height - chromeLines
	if rows < 1 {
		rows = 1
	}
	return rows
}

// syncState pulls a fresh snapshot and re-reports the layout.
func (m *Model) syncState() {
	m.state = m.controller.State()

	total := len(m.state.Items)
	if m.cursor >= total {
		m.cursor = max(total-1, 0)
	}
	m.scrollTo(min(m.offset, m.maxOffset()))
}

func (m *Model) moveCursor(delta int) {
	total := len(m.state.Items)
	if total == 0 {
		return
	}
	m.cursor = min(max(m.cursor+delta, 0), total-1)

	target := m.offset
	rows := m.listRows()
	if m.cursor < target {
		target = m.cursor
	}
	if m.cursor >= target+rows {
		target = m.cursor - rows + 1
	}
	m.scrollTo(target)
}

func (m Model) maxOffset() int {
	return max(len(m.state.Items)-m.listRows(), 0)
}

// scrollTo moves the window one row at a time so every intermediate layout
// is reported, then mounts the thumbnails of the final window.
func (m *Model) scrollTo(target int) {
	target = min(max(target, 0), m.maxOffset())
	for m.offset != target {
		if target > m.offset {
			m.offset++
		} else {
			m.offset--
		}
		m.reportLayout()
	}
	m.reportLayout()
	m.mountVisible()
}

// reportLayout hands the visible window to the controller once per
// threshold crossing. A window that stays on the threshold row after a
// failed fetch is not reported again; retries come from the load key or
// from scrolling away and back.
func (m *Model) reportLayout() {
	total := len(m.state.Items)
	visible := scroll.VisibleRange(m.offset, m.listRows(), total)

	crossed := m.atThreshold
	m.atThreshold = scroll.ShouldTriggerLoadMore(visible, total, m.controller.Buffer())
	if m.atThreshold && !crossed && m.controller.OnScrollMetricsChanged(visible, total) {
		m.state.IsLoading = true
		return
	}

	// The end of the list is on screen without the threshold row ever
	// having been reported (short list or tall terminal). Failed fetches
	// are left to the explicit load key.
	if len(visible) > 0 && visible[len(visible)-1] == total-1 &&
		!m.state.IsLoading && !m.state.Exhausted && m.state.Err == nil {
		if m.controller.LoadMore() {
			m.state.IsLoading = true
		}
	}
}

// mountVisible requests thumbnails for rows on screen and forgets the rest.
func (m *Model) mountVisible() {
	if m.images == nil {
		return
	}

	visible := make(map[string]string)
	for _, i := range scroll.VisibleRange(m.offset, m.listRows(), len(m.state.Items)) {
		item := m.state.Items[i]
		visible[item.ID] = item.ThumbnailURL
	}

	for id := range m.mounted {
		if _, ok := visible[id]; !ok {
			m.images.Forget(id)
			delete(m.mounted, id)
		}
	}
	for id, url := range visible {
		m.images.Request(id, url)
		m.mounted[id] = url
	}
}

func (m *Model) unmountAll() {
	if m.images == nil {
		return
	}
	for id := range m.mounted {
		m.images.Forget(id)
		delete(m.mounted, id)
	}
}

// View renders the list.
func (m Model) View() string {
	var b strings.Builder

	header := titleStyle.Render(m.title)
	header += mutedStyle.Render(fmt.Sprintf("  %d posts", len(m.state.Items)))
	b.WriteString(header + "\n")

	now := m.now()
	rows := m.listRows()
	for i := m.offset; i < len(m.state.Items) && i < m.offset+rows; i++ {
		b.WriteString(m.renderRow(m.state.Items[i], now, i == m.cursor))
		b.WriteString("\n")
	}

	switch {
	case m.state.IsLoading:
		b.WriteString(m.spinner.View() + " Loading more posts...")
	case m.state.Err != nil:
		b.WriteString(errorStyle.Render("Load failed: "+m.state.Err.Error()) + mutedStyle.Render("  (l to retry)"))
	case m.state.Exhausted && len(m.state.Items) > 0:
		b.WriteString(mutedStyle.Render("End of feed"))
	case m.notice != "":
		b.WriteString(m.notice)
	}
	b.WriteString("\n")

	b.WriteString(mutedStyle.Render(m.helpLine()))
	return b.String()
}

func (m Model) helpLine() string {
	parts := make([]string, 0, len(m.keys.ShortHelp()))
	for _, binding := range m.keys.ShortHelp() {
		h := binding.Help()
		parts = append(parts, h.Key+" "+h.Desc)
	}
	return strings.Join(parts, " • ")
}

func (m Model) renderRow(item feed.Item, now time.Time, selected bool) string {
	meta := fmt.Sprintf("%s %8s ", m.thumbnailGlyph(item), ageLabel(item, now))
	author := authorStyle.Render(truncate(item.Author, 16))
	counts := fmt.Sprintf("  %d comments ", item.CommentCount) + scoreStyle.Render(fmt.Sprintf("▲%d", item.Score))

	room := m.width - lipgloss.Width(meta) - lipgloss.Width(author) - lipgloss.Width(counts) - 2
	title := truncate(item.Title, max(room, 8))

	row := meta + author + "  " + title + counts
	if selected {
		return selectedStyle.Render(row)
	}
	return row
}

func (m Model) thumbnailGlyph(item feed.Item) string {
	if m.images == nil {
		return glyphPending
	}
	state, ok := m.images.State(item.ID)
	switch {
	case !ok || state == imageload.Pending:
		return glyphPending
	case state == imageload.Loaded:
		return glyphLoaded
	default:
		return glyphPlaceholder
	}
}

// ageLabel renders the "N h ago" age of item.
func ageLabel(item feed.Item, now time.Time) string {
	return fmt.Sprintf("%dh ago", item.HoursAgo(now))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
