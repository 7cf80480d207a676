package notify

import (
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/nhle/lms-monitor/internal/model"
)

const (
	announcementBodyLimit = 800
	descriptionLimit      = 500
	notesLimit            = 300
	errorLimit            = 500

	dateTimeLayout = "Mon, Jan 02, 2006 at 03:04 PM"
	dateLayout     = "Mon, Jan 02, 2006"

	continuedPrefix = "(...continued)\n\n"
)

var separator = strings.Repeat("─", 20)

var markdownEscaper = strings.NewReplacer(
	"_", `\_`,
	"*", `\*`,
	"`", "\\`",
	"[", `\[`,
)

// escape protects portal text from being read as Telegram Markdown.
func escape(s string) string {
	return markdownEscaper.Replace(s)
}

// truncate shortens s to at most limit runes, cutting on a word boundary
// and appending "...".
func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	cut := string(r[:limit-3])
	if i := strings.LastIndex(cut, " "); i > 0 {
		cut = cut[:i]
	}
	return cut + "..."
}

// daysUntil counts whole days from now to t, rounding down.
func daysUntil(t, now time.Time) int {
	return int(math.Floor(t.Sub(now).Hours() / 24))
}

// FormatItem renders any item kind.
func FormatItem(item model.Item, now time.Time) string {
	switch item.Kind {
	case model.KindAnnouncement:
		return FormatAnnouncement(*item.Announcement)
	case model.KindAssignment:
		return FormatAssignment(*item.Assignment, now)
	case model.KindExam:
		return FormatExam(*item.Exam, now)
	}
	return ""
}

func FormatAnnouncement(a model.Announcement) string {
	lines := []string{
		"📢 *NEW ANNOUNCEMENT*",
		"",
		"📚 *Course:* " + escape(a.CourseCode),
		"📝 *Title:* " + escape(a.Title),
	}
	if a.Author != "" {
		lines = append(lines, "👤 *Posted by:* "+escape(a.Author))
	}
	if a.PostedAt != nil {
		lines = append(lines, "🕐 *Date:* "+a.PostedAt.Format(dateTimeLayout))
	}

	lines = append(lines, "", separator, "", escape(truncate(strings.TrimSpace(a.Content), announcementBodyLimit)))

	if a.URL != "" {
		lines = append(lines, "", "🔗 View: "+a.URL)
	}
	return strings.Join(lines, "\n")
}

func dueMarker(days int) string {
	switch {
	case days < 0:
		return "⚠️ OVERDUE"
	case days == 0:
		return "🔴 DUE TODAY"
	case days <= 2:
		return "🟠 DUE SOON"
	case days <= 7:
		return "🟡"
	default:
		return "🟢"
	}
}

func FormatAssignment(a model.Assignment, now time.Time) string {
	lines := []string{
		"📋 *NEW ASSIGNMENT*",
		"",
		"📚 *Course:* " + escape(a.CourseCode),
		"📝 *Title:* " + escape(a.Title),
	}
	if a.DueDate != nil {
		lines = append(lines, fmt.Sprintf("📅 *Due:* %s %s",
			a.DueDate.Format(dateTimeLayout), dueMarker(daysUntil(*a.DueDate, now))))
	}
	if a.OpenDate != nil {
		lines = append(lines, "📆 *Opens:* "+a.OpenDate.Format(dateTimeLayout))
	}
	if a.MaxPoints != nil && *a.MaxPoints > 0 {
		lines = append(lines, fmt.Sprintf("🎯 *Points:* %g", *a.MaxPoints))
	}
	if a.Description != "" {
		lines = append(lines, "", separator, "", escape(truncate(a.Description, descriptionLimit)))
	}
	if a.URL != "" {
		lines = append(lines, "", "🔗 View: "+a.URL)
	}
	return strings.Join(lines, "\n")
}

var examEmoji = map[string]string{
	"exam":    "📝",
	"midterm": "📊",
	"final":   "🎓",
	"quiz":    "❓",
	"test":    "✍️",
}

func countdown(days int) string {
	switch {
	case days < 0:
		return "(Already passed)"
	case days == 0:
		return "🔴 TODAY!"
	case days == 1:
		return "🟠 TOMORROW!"
	case days <= 7:
		return fmt.Sprintf("🟡 In %d days", days)
	default:
		return fmt.Sprintf("In %d days", days)
	}
}

func formatDuration(minutes int) string {
	var parts []string
	if h := minutes / 60; h > 0 {
		parts = append(parts, fmt.Sprintf("%dh", h))
	}
	if m := minutes % 60; m > 0 {
		parts = append(parts, fmt.Sprintf("%dm", m))
	}
	return strings.Join(parts, " ")
}

func FormatExam(e model.Exam, now time.Time) string {
	emoji, ok := examEmoji[strings.ToLower(e.ExamType)]
	if !ok {
		emoji = "📝"
	}
	examType := strings.ToUpper(strings.ReplaceAll(e.ExamType, "_", " "))

	lines := []string{
		fmt.Sprintf("🚨 *%s ALERT* %s", examType, emoji),
		"",
		"📚 *Course:* " + escape(e.CourseCode),
		"📝 *Title:* " + escape(e.Title),
	}
	if e.ExamDate != nil {
		// Exam dates carry no time of day, so count calendar days.
		y, m, d := now.In(e.ExamDate.Location()).Date()
		today := time.Date(y, m, d, 0, 0, 0, 0, e.ExamDate.Location())
		lines = append(lines, fmt.Sprintf("📅 *Date:* %s %s",
			e.ExamDate.Format(dateLayout), countdown(daysUntil(*e.ExamDate, today))))
	}
	if e.ExamTime != "" {
		lines = append(lines, "🕐 *Time:* "+e.ExamTime)
	}
	if e.Location != "" {
		lines = append(lines, "📍 *Location:* "+escape(e.Location))
	}
	if e.DurationMinutes != nil && *e.DurationMinutes > 0 {
		lines = append(lines, "⏱️ *Duration:* "+formatDuration(*e.DurationMinutes))
	}
	if e.Notes != "" {
		lines = append(lines, "", separator, "", "📌 "+escape(truncate(e.Notes, notesLimit)))
	}
	if e.URL != "" {
		lines = append(lines, "", "🔗 More info: "+e.URL)
	}
	return strings.Join(lines, "\n")
}

// FormatSummary renders the end-of-run summary.
func FormatSummary(announcements, assignments, exams int) string {
	total := announcements + assignments + exams
	if total == 0 {
		return "✅ *LMS Monitor Check Complete*\n\nNo new updates found."
	}

	lines := []string{"📊 *LMS Monitor Summary*", ""}
	if announcements > 0 {
		lines = append(lines, fmt.Sprintf("📢 %d new announcement(s)", announcements))
	}
	if assignments > 0 {
		lines = append(lines, fmt.Sprintf("📋 %d new assignment(s)", assignments))
	}
	if exams > 0 {
		lines = append(lines, fmt.Sprintf("🚨 %d exam/quiz alert(s)", exams))
	}
	lines = append(lines, "", fmt.Sprintf("_Total: %d new update(s)_", total))
	return strings.Join(lines, "\n")
}

// FormatError renders a failed-run report.
func FormatError(msg string) string {
	return "⚠️ *LMS Monitor Error*\n\n" +
		"An error occurred during monitoring:\n\n" +
		"```" + truncate(msg, errorLimit) + "```\n\n" +
		"_Please check the logs for more details._"
}

// SplitMessage breaks text into parts of at most maxLen runes. It splits
// on blank lines where it can and hard-splits paragraphs that are longer
// than maxLen on their own. Every part after the first is prefixed with
// "(...continued)".
func SplitMessage(text string, maxLen int) []string {
	if utf8.RuneCountInString(text) <= maxLen {
		return []string{text}
	}

	body := maxLen - utf8.RuneCountInString(continuedPrefix)
	if body <= 0 {
		body = maxLen
	}

	var parts []string
	var current string
	flush := func() {
		if s := strings.TrimSpace(current); s != "" {
			parts = append(parts, s)
		}
		current = ""
	}

	for _, para := range strings.Split(text, "\n\n") {
		for utf8.RuneCountInString(para) > body {
			flush()
			r := []rune(para)
			parts = append(parts, string(r[:body]))
			para = string(r[body:])
		}

		switch {
		case current == "":
			current = para
		case utf8.RuneCountInString(current)+2+utf8.RuneCountInString(para) > body:
			flush()
			current = para
		default:
			current += "\n\n" + para
		}
	}
	flush()

	for i := 1; i < len(parts); i++ {
		parts[i] = continuedPrefix + parts[i]
	}
	return parts
}
