package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestItemAccessors(t *testing.T) {
	tests := []struct {
		name   string
		item   Item
		id     string
		title  string
		course string
	}{
		{
			name:   "announcement",
			item:   NewAnnouncementItem(Announcement{ID: "a1", Title: "Welcome", CourseCode: "DCIT 301"}),
			id:     "a1",
			title:  "Welcome",
			course: "DCIT 301",
		},
		{
			name:   "assignment",
			item:   NewAssignmentItem(Assignment{ID: "as1", Title: "Lab 1", CourseCode: "MATH 223"}),
			id:     "as1",
			title:  "Lab 1",
			course: "MATH 223",
		},
		{
			name:   "exam",
			item:   NewExamItem(Exam{ID: "ann-a1", Title: "Midterm", CourseCode: "DCIT 301"}),
			id:     "ann-a1",
			title:  "Midterm",
			course: "DCIT 301",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.id, tt.item.ID())
			assert.Equal(t, tt.title, tt.item.Title())
			assert.Equal(t, tt.course, tt.item.CourseCode())
		})
	}
}

func TestNewItemCopiesValue(t *testing.T) {
	a := Announcement{ID: "a1", Title: "Original"}
	item := NewAnnouncementItem(a)
	a.Title = "Changed"

	assert.Equal(t, "Original", item.Title())
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("exam")
	require.NoError(t, err)
	assert.Equal(t, KindExam, k)

	_, err = ParseKind("grade")
	assert.Error(t, err)
}

func TestCourseDisplayName(t *testing.T) {
	assert.Equal(t, "DCIT 301: Operating Systems", Course{Code: "DCIT 301", Title: "Operating Systems"}.DisplayName())
	assert.Equal(t, "Orientation", Course{Title: "Orientation"}.DisplayName())
}
