// Package theme holds the terminal colors and styles.
package theme

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/lms-monitor/internal/model"
)

// Adaptive color pairs (dark terminal value, light terminal value).
var (
	ColorBlue    = lipgloss.AdaptiveColor{Dark: "#5B9BD5", Light: "#2B6CB0"}
	ColorGreen   = lipgloss.AdaptiveColor{Dark: "#6BCB77", Light: "#2F855A"}
	ColorYellow  = lipgloss.AdaptiveColor{Dark: "#FFD93D", Light: "#B7791F"}
	ColorRed     = lipgloss.AdaptiveColor{Dark: "#FF6B6B", Light: "#C53030"}
	ColorMagenta = lipgloss.AdaptiveColor{Dark: "#CC5DE8", Light: "#805AD5"}
	ColorGray    = lipgloss.AdaptiveColor{Dark: "#868E96", Light: "#718096"}
	ColorWhite   = lipgloss.AdaptiveColor{Dark: "#F8F9FA", Light: "#1A202C"}
	ColorSubtle  = lipgloss.AdaptiveColor{Dark: "#495057", Light: "#CBD5E0"}
	ColorBorder  = lipgloss.AdaptiveColor{Dark: "#495057", Light: "#E2E8F0"}
)

// HeaderStyle is used for the application title bar.
var HeaderStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorWhite).
	Background(ColorBlue).
	Padding(0, 1)

// StatusBarStyle is used for the bottom status bar.
var StatusBarStyle = lipgloss.NewStyle().
	Foreground(ColorWhite).
	Background(ColorSubtle).
	Padding(0, 1)

// PanelStyle wraps the main content area.
var PanelStyle = lipgloss.NewStyle().
	Padding(1, 2).
	Border(lipgloss.RoundedBorder()).
	BorderForeground(ColorBorder)

// HelpStyle is used for keyboard shortcut hints and help text.
var HelpStyle = lipgloss.NewStyle().
	Foreground(ColorGray).
	Italic(true)

// LabelStyle is used for field names in summaries.
var LabelStyle = lipgloss.NewStyle().
	Foreground(ColorGray).
	Width(22)

// Stage markers.
var (
	DoneMark    = lipgloss.NewStyle().Foreground(ColorGreen).Render("✓")
	PendingMark = lipgloss.NewStyle().Foreground(ColorSubtle).Render("·")
	FailedMark  = lipgloss.NewStyle().Foreground(ColorRed).Render("✗")
)

// ResultStyle colors a run outcome.
func ResultStyle(ok bool) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true)
	if ok {
		return base.Foreground(ColorGreen)
	}
	return base.Foreground(ColorRed)
}

// KindStyle returns the color used for an item kind.
func KindStyle(kind model.Kind) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true)

	switch kind {
	case model.KindAnnouncement:
		return base.Foreground(ColorBlue)
	case model.KindAssignment:
		return base.Foreground(ColorYellow)
	case model.KindExam:
		return base.Foreground(ColorMagenta)
	default:
		return base.Foreground(ColorGray)
	}
}
