// Package stats renders the delivery history kept by the dedup store.
package stats

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/nhle/lms-monitor/internal/model"
	"github.com/nhle/lms-monitor/internal/theme"
)

const timeLayout = "2006-01-02 15:04"

// Report is what the stats command prints.
type Report struct {
	Counts map[model.Kind]int
	Recent []model.SentNotification
}

// Total sums the per-kind counts.
func (r Report) Total() int {
	total := 0
	for _, n := range r.Counts {
		total += n
	}
	return total
}

// Render formats the report for a terminal of the given width. A width of
// zero leaves the tables unconstrained.
func Render(r Report, width int, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}

	title := theme.HeaderStyle.Render("Sent notifications")

	counts := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(theme.ColorBorder)).
		Headers("KIND", "SENT")
	for _, kind := range model.Kinds {
		counts.Row(theme.KindStyle(kind).Render(string(kind)), fmt.Sprint(r.Counts[kind]))
	}
	counts.Row("total", fmt.Sprint(r.Total()))

	parts := []string{title, counts.Render()}

	if len(r.Recent) == 0 {
		parts = append(parts, theme.HelpStyle.Render("Nothing has been sent yet."))
		return strings.Join(parts, "\n")
	}

	recent := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(theme.ColorBorder)).
		Headers("SENT AT", "KIND", "COURSE", "TITLE")
	if width > 0 {
		recent = recent.Width(width)
	}
	for _, rec := range r.Recent {
		course := "-"
		if rec.CourseCode != nil {
			course = *rec.CourseCode
		}
		recent.Row(
			rec.SentAt.In(loc).Format(timeLayout),
			theme.KindStyle(rec.Kind).Render(string(rec.Kind)),
			course,
			rec.Title,
		)
	}

	parts = append(parts, "", theme.HeaderStyle.Render("Most recent"), recent.Render())
	return strings.Join(parts, "\n")
}
