// Package fingerprint derives the stable identity and content fingerprint
// of notifiable items. The dedup store keys records by identity and
// compares fingerprints to detect edits.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/nhle/lms-monitor/internal/model"
)

// CanonicalVersion identifies the canonical encoding below. Stored
// fingerprints are only comparable within one version.
const CanonicalVersion = 1

// Length is the number of hex characters kept from the digest.
const Length = 16

// IdentityKey returns "<kind>:<id>".
func IdentityKey(item model.Item) string {
	return string(item.Kind) + ":" + item.ID()
}

// ContentFingerprint returns the first 16 hex characters of the SHA-256 of
// the item's canonical content string.
func ContentFingerprint(item model.Item) string {
	sum := sha256.Sum256([]byte(Canonical(item)))
	return hex.EncodeToString(sum[:])[:Length]
}

// Canonical joins the fields that define an item's content with "|".
// Absent times are empty; present times are RFC 3339 in UTC.
func Canonical(item model.Item) string {
	var fields []string
	switch item.Kind {
	case model.KindAnnouncement:
		a := item.Announcement
		fields = []string{a.Title, a.Content}
	case model.KindAssignment:
		a := item.Assignment
		fields = []string{a.Title, formatTime(a.DueDate), string(a.Status)}
	case model.KindExam:
		e := item.Exam
		fields = []string{e.Title, formatTime(e.ExamDate), e.ExamTime}
	}
	return strings.Join(fields, "|")
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
