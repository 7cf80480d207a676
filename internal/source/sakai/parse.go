package sakai

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/k3a/html2text"

	"github.com/nhle/lms-monitor/internal/model"
)

var (
	courseCodePattern = regexp.MustCompile(`(?i)\b([A-Z]{2,4})[- ]?(\d{3}[A-Z]?)\b`)
	blankLines        = regexp.MustCompile(`\n{3,}`)
)

// ExtractCourseCode finds a code like "DCIT 301", "CS101" or "MATH-223A"
// in a site title. Without one it returns the part before " - ".
func ExtractCourseCode(title string) string {
	if m := courseCodePattern.FindStringSubmatch(title); m != nil {
		return strings.ToUpper(m[1] + " " + m[2])
	}
	before, _, _ := strings.Cut(title, " - ")
	return strings.TrimSpace(before)
}

// CourseLevel returns the level implied by a course code (301 -> 300), or
// 0 when the code has no course number.
func CourseLevel(code string) int {
	m := courseCodePattern.FindStringSubmatch(code)
	if m == nil {
		return 0
	}
	return int(m[2][0]-'0') * 100
}

// htmlToText renders an HTML fragment as plain text.
func htmlToText(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	text := html2text.HTML2Text(s)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = blankLines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// assignmentStatus derives the status from the API's status text, then
// from the close and due dates relative to now.
func assignmentStatus(apiStatus string, due, closes *time.Time, now time.Time) model.AssignmentStatus {
	s := strings.ToLower(apiStatus)
	switch {
	case strings.Contains(s, "submitted"):
		return model.StatusSubmitted
	case strings.Contains(s, "graded"), strings.Contains(s, "returned"):
		return model.StatusGraded
	case closes != nil && now.After(*closes):
		return model.StatusClosed
	case due != nil && now.After(*due):
		return model.StatusLate
	}
	return model.StatusNotStarted
}

func parsePoints(v flexString) *float64 {
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(string(v), 64)
	if err != nil || f == 0 {
		return nil
	}
	return &f
}
