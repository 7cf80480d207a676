package examdetect

import (
	"regexp"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

const monthNames = `(?:jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|` +
	`aug(?:ust)?|sept?(?:ember)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)\.?`

var (
	datePatterns = []*regexp.Regexp{
		// March 5, 2025 / Mar 5th 2025
		regexp.MustCompile(`(?i)\b` + monthNames + `\s+\d{1,2}(?:st|nd|rd|th)?,?\s+\d{4}\b`),
		// 5 March 2025 / 5th March, 2025
		regexp.MustCompile(`(?i)\b\d{1,2}(?:st|nd|rd|th)?\s+(?:of\s+)?` + monthNames + `,?\s+\d{4}\b`),
		// 15/01/2024, 3-5-25
		regexp.MustCompile(`\b\d{1,2}[/-]\d{1,2}[/-](?:\d{4}|\d{2})\b`),
	}

	timePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b\d{1,2}:\d{2}(?:\s*[ap]\.?m\b)?`),
		regexp.MustCompile(`(?i)\b\d{1,2}\s*[ap]\.?m\b`),
	}

	labeledLocation = regexp.MustCompile(`(?i)\b(?:venue|location)\s*[:\-]?\s*([^\n,.;]+)`)
	namedLocation   = regexp.MustCompile(`\b((?i:hall|room|lab|theatre|theater|auditorium)[ \t]+[A-Z0-9][\w-]*(?:[ \t]+[A-Z0-9][\w-]*)*)`)

	ordinalSuffix = regexp.MustCompile(`(?i)(\d)(?:st|nd|rd|th)\b`)
	ofWord        = regexp.MustCompile(`(?i)\s+of\s+`)
	spaces        = regexp.MustCompile(`\s+`)
)

// fallbackLayouts are tried when the fuzzy parser rejects a candidate.
// Numeric forms are month-first before day-first.
var fallbackLayouts = []string{
	"January 2, 2006", "January 2 2006", "Jan 2, 2006", "Jan 2 2006",
	"2 January 2006", "2 January, 2006", "2 Jan 2006", "2 Jan, 2006",
	"1/2/2006", "1-2-2006", "1/2/06", "1-2-06",
	"2/1/2006", "2-1-2006", "2/1/06", "2-1-06",
}

// ExtractDate returns the earliest date mentioned in text, or nil.
func (d *Detector) ExtractDate(text string) *time.Time {
	candidate := earliestMatch(text, datePatterns)
	if candidate == "" {
		return nil
	}
	t, ok := parseDate(candidate, d.loc)
	if !ok {
		return nil
	}
	return &t
}

// ExtractTime returns the first time of day mentioned in text exactly as
// written, or "".
func ExtractTime(text string) string {
	for _, p := range timePatterns {
		if m := p.FindString(text); m != "" {
			return strings.TrimSpace(m)
		}
	}
	return ""
}

// ExtractLocation returns the venue mentioned in text, or "".
func ExtractLocation(text string) string {
	if m := labeledLocation.FindStringSubmatch(text); m != nil {
		if loc := strings.TrimSpace(m[1]); loc != "" {
			return loc
		}
	}
	if m := namedLocation.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

func earliestMatch(text string, patterns []*regexp.Regexp) string {
	best, bestAt := "", -1
	for _, p := range patterns {
		loc := p.FindStringIndex(text)
		if loc == nil {
			continue
		}
		if bestAt == -1 || loc[0] < bestAt {
			best, bestAt = text[loc[0]:loc[1]], loc[0]
		}
	}
	return best
}

func normalizeDate(s string) string {
	s = ordinalSuffix.ReplaceAllString(s, "$1")
	s = ofWord.ReplaceAllString(s, " ")
	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, "Sept ", "Sep ")
	s = strings.ReplaceAll(s, "sept ", "sep ")
	return strings.TrimSpace(spaces.ReplaceAllString(s, " "))
}

func parseDate(raw string, loc *time.Location) (time.Time, bool) {
	s := normalizeDate(raw)
	if t, err := dateparse.ParseIn(s, loc); err == nil {
		return t, true
	}
	for _, layout := range fallbackLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
