package model

import (
	"fmt"
	"time"
)

// Kind identifies which variant an Item carries.
type Kind string

const (
	KindAnnouncement Kind = "announcement"
	KindAssignment   Kind = "assignment"
	KindExam         Kind = "exam"
)

// Kinds lists every item kind in notification order.
var Kinds = []Kind{KindAnnouncement, KindAssignment, KindExam}

// ParseKind converts a string to a Kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindAnnouncement, KindAssignment, KindExam:
		return k, nil
	}
	return "", fmt.Errorf("unknown item kind %q", s)
}

// AssignmentStatus is the submission state of an assignment.
type AssignmentStatus string

const (
	StatusNotStarted AssignmentStatus = "not_started"
	StatusInProgress AssignmentStatus = "in_progress"
	StatusSubmitted  AssignmentStatus = "submitted"
	StatusGraded     AssignmentStatus = "graded"
	StatusLate       AssignmentStatus = "late"
	StatusClosed     AssignmentStatus = "closed"
)

// Announcement is a course announcement.
type Announcement struct {
	ID          string     `json:"id"`
	CourseCode  string     `json:"course_code"`
	CourseTitle string     `json:"course_title"`
	Title       string     `json:"title"`
	Content     string     `json:"content"`
	Author      string     `json:"author,omitempty"`
	PostedAt    *time.Time `json:"posted_at,omitempty"`
	URL         string     `json:"url,omitempty"`
}

// Assignment is a course assignment.
type Assignment struct {
	ID          string           `json:"id"`
	CourseCode  string           `json:"course_code"`
	CourseTitle string           `json:"course_title"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	DueDate     *time.Time       `json:"due_date,omitempty"`
	OpenDate    *time.Time       `json:"open_date,omitempty"`
	CloseDate   *time.Time       `json:"close_date,omitempty"`
	Status      AssignmentStatus `json:"status"`
	MaxPoints   *float64         `json:"max_points,omitempty"`
	URL         string           `json:"url,omitempty"`
}

// Exam is an exam, quiz or test derived from an announcement.
type Exam struct {
	// ID is "ann-<announcement id>" for exams found in announcements.
	ID          string     `json:"id"`
	CourseCode  string     `json:"course_code"`
	CourseTitle string     `json:"course_title"`
	Title       string     `json:"title"`
	ExamType    string     `json:"exam_type"`
	ExamDate    *time.Time `json:"exam_date,omitempty"`

	// ExamTime is the time of day exactly as written, e.g. "9:00am".
	ExamTime        string `json:"exam_time,omitempty"`
	Location        string `json:"location,omitempty"`
	DurationMinutes *int   `json:"duration_minutes,omitempty"`

	// Source names where the exam was found ("announcement").
	Source   string `json:"source"`
	SourceID string `json:"source_id"`
	URL      string `json:"url,omitempty"`
	Notes    string `json:"notes,omitempty"`
}

// Item is one notifiable piece of content. Exactly one of the variant
// pointers is set, matching Kind. Items are built once and not mutated.
type Item struct {
	Kind         Kind
	Announcement *Announcement
	Assignment   *Assignment
	Exam         *Exam
}

// NewAnnouncementItem wraps an announcement.
func NewAnnouncementItem(a Announcement) Item {
	return Item{Kind: KindAnnouncement, Announcement: &a}
}

// NewAssignmentItem wraps an assignment.
func NewAssignmentItem(a Assignment) Item {
	return Item{Kind: KindAssignment, Assignment: &a}
}

// NewExamItem wraps an exam.
func NewExamItem(e Exam) Item {
	return Item{Kind: KindExam, Exam: &e}
}

// ID returns the portal id of the wrapped value.
func (i Item) ID() string {
	switch i.Kind {
	case KindAnnouncement:
		return i.Announcement.ID
	case KindAssignment:
		return i.Assignment.ID
	case KindExam:
		return i.Exam.ID
	}
	return ""
}

// Title returns the title of the wrapped value.
func (i Item) Title() string {
	switch i.Kind {
	case KindAnnouncement:
		return i.Announcement.Title
	case KindAssignment:
		return i.Assignment.Title
	case KindExam:
		return i.Exam.Title
	}
	return ""
}

// CourseCode returns the course code of the wrapped value.
func (i Item) CourseCode() string {
	switch i.Kind {
	case KindAnnouncement:
		return i.Announcement.CourseCode
	case KindAssignment:
		return i.Assignment.CourseCode
	case KindExam:
		return i.Exam.CourseCode
	}
	return ""
}

// URL returns the portal link of the wrapped value.
func (i Item) URL() string {
	switch i.Kind {
	case KindAnnouncement:
		return i.Announcement.URL
	case KindAssignment:
		return i.Assignment.URL
	case KindExam:
		return i.Exam.URL
	}
	return ""
}
