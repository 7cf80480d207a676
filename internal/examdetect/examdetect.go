// Package examdetect recognizes exam, quiz and test mentions in course
// announcements and extracts their type, date, time and venue.
package examdetect

import (
	"strings"
	"time"

	"github.com/nhle/lms-monitor/internal/model"
)

// Exam types, in classification priority order.
const (
	TypeMidterm              = "midterm"
	TypeFinal                = "final"
	TypeQuiz                 = "quiz"
	TypePractical            = "practical"
	TypeOral                 = "oral"
	TypeContinuousAssessment = "continuous_assessment"
	TypeExam                 = "exam"
)

// SourceAnnouncement is the Exam.Source value for announcement-derived exams.
const SourceAnnouncement = "announcement"

const notesLength = 300

// Keywords is the lexicon an announcement must mention to be treated as
// an exam. A keyword matches anywhere in the lower-cased text, so "Quiz1"
// and "exam2024" count.
var Keywords = []string{
	"exam", "examination", "midterm", "mid-term", "mid term",
	"final", "finals", "quiz", "quizz", "test", "assessment",
	"practical", "lab exam", "oral exam", "viva", "defense",
	"end of semester", "end-of-semester", "eos exam",
	"continuous assessment", "ca test", "ca exam",
}

type typeRule struct {
	examType string
	markers  []string
}

var typeRules = []typeRule{
	{TypeMidterm, []string{"midterm", "mid-term", "mid term"}},
	{TypeFinal, []string{"final"}},
	{TypeQuiz, []string{"quiz"}},
	{TypePractical, []string{"practical", "lab exam"}},
	{TypeOral, []string{"oral", "viva"}},
	{TypeContinuousAssessment, []string{"continuous assessment", "ca test"}},
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

// Detector extracts exams from announcements. Dates are interpreted in
// the detector's location.
type Detector struct {
	loc *time.Location
}

// New returns a Detector that interprets dates in loc (UTC when nil).
func New(loc *time.Location) *Detector {
	if loc == nil {
		loc = time.UTC
	}
	return &Detector{loc: loc}
}

// IsExamRelated reports whether text contains any lexicon keyword,
// ignoring case.
func IsExamRelated(text string) bool {
	return containsAny(strings.ToLower(text), Keywords)
}

// ClassifyType returns the highest-priority exam type mentioned in text,
// or TypeExam when none is more specific.
func ClassifyType(text string) string {
	text = strings.ToLower(text)
	for _, r := range typeRules {
		if containsAny(text, r.markers) {
			return r.examType
		}
	}
	return TypeExam
}

// Detect returns the exam an announcement describes, if any. Details are
// searched in the content first and then in the title; fields that cannot
// be extracted are left empty.
func (d *Detector) Detect(a model.Announcement) (model.Exam, bool) {
	combined := a.Title + " " + a.Content
	if !IsExamRelated(combined) {
		return model.Exam{}, false
	}

	exam := model.Exam{
		ID:          "ann-" + a.ID,
		CourseCode:  a.CourseCode,
		CourseTitle: a.CourseTitle,
		Title:       a.Title,
		ExamType:    ClassifyType(combined),
		Source:      SourceAnnouncement,
		SourceID:    a.ID,
		URL:         a.URL,
		Notes:       truncateRunes(a.Content, notesLength),
	}

	for _, text := range []string{a.Content, a.Title} {
		if exam.ExamDate == nil {
			exam.ExamDate = d.ExtractDate(text)
		}
		if exam.ExamTime == "" {
			exam.ExamTime = ExtractTime(text)
		}
		if exam.Location == "" {
			exam.Location = ExtractLocation(text)
		}
	}

	return exam, true
}

// DetectAll runs Detect over announcements and returns at most one exam
// per announcement id, in input order.
func (d *Detector) DetectAll(announcements []model.Announcement) []model.Exam {
	seen := make(map[string]bool)
	var exams []model.Exam
	for _, a := range announcements {
		exam, ok := d.Detect(a)
		if !ok || seen[exam.ID] {
			continue
		}
		seen[exam.ID] = true
		exams = append(exams, exam)
	}
	return exams
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
