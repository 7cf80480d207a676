package sakai

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// siteCollection is the payload of /direct/site.json.
type siteCollection struct {
	Sites []site `json:"site_collection"`
}

type site struct {
	ID       flexString `json:"id"`
	EntityID flexString `json:"entityId"`
	Title    string     `json:"title"`
	Type     string     `json:"type"`
}

// announcementCollection is the payload of the announcement endpoints.
type announcementCollection struct {
	Announcements []announcement `json:"announcement_collection"`
}

type announcement struct {
	ID                   flexString `json:"id"`
	EntityID             flexString `json:"entityId"`
	Title                string     `json:"title"`
	Body                 string     `json:"body"`
	CreatedOn            dateValue  `json:"createdOn"`
	SiteID               string     `json:"siteId"`
	SiteTitle            string     `json:"siteTitle"`
	CreatedByDisplayName string     `json:"createdByDisplayName"`
}

// assignmentCollection is the payload of the assignment endpoints.
type assignmentCollection struct {
	Assignments []assignment `json:"assignment_collection"`
}

type assignment struct {
	ID                  flexString `json:"id"`
	EntityID            flexString `json:"entityId"`
	Title               string     `json:"title"`
	Context             string     `json:"context"`
	Instructions        string     `json:"instructions"`
	DueTime             dateValue  `json:"dueTime"`
	DueTimeString       dateValue  `json:"dueTimeString"`
	OpenTime            dateValue  `json:"openTime"`
	OpenTimeString      dateValue  `json:"openTimeString"`
	CloseTime           dateValue  `json:"closeTime"`
	CloseTimeString     dateValue  `json:"closeTimeString"`
	Status              string     `json:"status"`
	GradeScaleMaxPoints flexString `json:"gradeScaleMaxPoints"`
}

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(b)
	return nil
}

// firstOf returns the first non-empty value.
func firstOf(values ...flexString) string {
	for _, v := range values {
		if v != "" {
			return string(v)
		}
	}
	return ""
}

// dateValue holds a date the API encodes as epoch seconds or milliseconds,
// as an object with epochSecond or time, or as a formatted string.
type dateValue struct {
	raw json.RawMessage
}

func (d *dateValue) UnmarshalJSON(b []byte) error {
	d.raw = append(d.raw[:0], b...)
	return nil
}

// epochMillisThreshold separates epoch seconds from epoch milliseconds:
// values above it (year 3000 in seconds) are milliseconds.
const epochMillisThreshold = 32503680000

var datePrefixes = []string{"Due:", "Posted:", "Opens:", "Closes:", "Date:"}

// Time decodes the value, interpreting zone-less strings in loc.
func (d dateValue) Time(loc *time.Location) *time.Time {
	b := bytes.TrimSpace(d.raw)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}

	switch b[0] {
	case '{':
		var obj struct {
			EpochSecond json.Number `json:"epochSecond"`
			Time        json.Number `json:"time"`
		}
		if err := json.Unmarshal(b, &obj); err != nil {
			return nil
		}
		if obj.EpochSecond != "" {
			return fromEpoch(string(obj.EpochSecond))
		}
		if obj.Time != "" {
			return fromEpoch(string(obj.Time))
		}
		return nil
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return nil
		}
		return parseDateString(s, loc)
	default:
		return fromEpoch(string(b))
	}
}

func fromEpoch(s string) *time.Time {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || v <= 0 {
		return nil
	}
	var t time.Time
	if v > epochMillisThreshold {
		t = time.UnixMilli(int64(v)).UTC()
	} else {
		t = time.Unix(int64(v), 0).UTC()
	}
	return &t
}

func parseDateString(s string, loc *time.Location) *time.Time {
	s = strings.Join(strings.Fields(s), " ")
	for _, prefix := range datePrefixes {
		s = strings.TrimSpace(strings.ReplaceAll(s, prefix, ""))
	}
	if s == "" {
		return nil
	}
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return fromEpoch(s)
	}
	t, err := dateparse.ParseIn(s, loc)
	if err != nil {
		return nil
	}
	return &t
}
