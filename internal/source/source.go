// Package source defines how course content is pulled from the portal.
package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/nhle/lms-monitor/internal/model"
)

// Session is the authenticated portal access a scraper needs.
type Session interface {
	// GetJSON fetches path relative to the portal root and decodes its
	// JSON body into out.
	GetJSON(ctx context.Context, path string, out any) error

	// BaseURL returns the portal root URL without a trailing slash.
	BaseURL() string
}

// ScrapeError indicates that one kind of content could not be collected.
// The run continues without that kind.
type ScrapeError struct {
	What string
	Err  error
}

func (e *ScrapeError) Error() string {
	return fmt.Sprintf("scraping %s: %v", e.What, e.Err)
}

func (e *ScrapeError) Unwrap() error { return e.Err }

// IsScrapeError reports whether err (or any error in its chain) is a ScrapeError.
func IsScrapeError(err error) bool {
	var scrapeErr *ScrapeError
	return errors.As(err, &scrapeErr)
}

// CourseScraper discovers the courses the user is enrolled in.
type CourseScraper interface {
	ScrapeCourses(ctx context.Context, s Session) ([]model.Course, error)
}

// AnnouncementScraper collects announcements for the given courses.
// Failures for a single course are logged and skipped.
type AnnouncementScraper interface {
	ScrapeAnnouncements(ctx context.Context, s Session, courses []model.Course) ([]model.Announcement, error)
}

// AssignmentScraper collects assignments for the given courses.
// Failures for a single course are logged and skipped.
type AssignmentScraper interface {
	ScrapeAssignments(ctx context.Context, s Session, courses []model.Course) ([]model.Assignment, error)
}

// Scraper collects every kind of content from one portal.
type Scraper interface {
	CourseScraper
	AnnouncementScraper
	AssignmentScraper
}
