package tui

import "github.com/charmbracelet/lipgloss"

var (
	accent = lipgloss.Color("#FF4500")
	muted  = lipgloss.Color("241")

	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(accent)
	mutedStyle    = lipgloss.NewStyle().Foreground(muted)
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("231")).Background(lipgloss.Color("236"))
	authorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	scoreStyle    = lipgloss.NewStyle().Foreground(accent)
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	noticeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
)

// Thumbnail glyphs
const (
	glyphLoaded      = "▣"
	glyphPending     = "◌"
	glyphPlaceholder = "□"
)
