// Package sakai scrapes courses, announcements and assignments from a
// Sakai portal through its /direct REST endpoints.
package sakai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/nhle/lms-monitor/internal/model"
	"github.com/nhle/lms-monitor/internal/source"
)

const (
	sitePageSize     = 50
	maxSitePages     = 20
	announcementsMax = 100
)

// Adapter implements source.Scraper for Sakai.
type Adapter struct {
	filter model.CourseFilterConfig
	loc    *time.Location
	logger *slog.Logger
	now    func() time.Time
}

var _ source.Scraper = (*Adapter)(nil)

// NewAdapter creates a Sakai scraper. Zone-less dates are read in loc.
func NewAdapter(filter model.CourseFilterConfig, loc *time.Location, logger *slog.Logger) *Adapter {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		filter: filter,
		loc:    loc,
		logger: logger.With("component", "sakai"),
		now:    time.Now,
	}
}

// ScrapeCourses lists the user's course sites, skipping personal and
// administrative sites and applying the configured filters.
func (a *Adapter) ScrapeCourses(ctx context.Context, s source.Session) ([]model.Course, error) {
	seen := make(map[string]bool)
	var courses []model.Course

	for page := 0; page < maxSitePages; page++ {
		path := fmt.Sprintf("/direct/site.json?_limit=%d&_start=%d", sitePageSize, page*sitePageSize)

		var coll siteCollection
		if err := s.GetJSON(ctx, path, &coll); err != nil {
			if page == 0 {
				return nil, &source.ScrapeError{What: "courses", Err: err}
			}
			a.logger.Warn("stopping site pagination", "page", page, "error", err)
			break
		}

		added := 0
		for _, st := range coll.Sites {
			course, ok := a.siteToCourse(st, s.BaseURL())
			if !ok || seen[course.SiteID] {
				continue
			}
			seen[course.SiteID] = true
			added++
			if a.keep(course) {
				courses = append(courses, course)
			}
		}

		if len(coll.Sites) < sitePageSize || added == 0 {
			break
		}
	}

	a.logger.Info("found courses", "count", len(courses))
	return courses, nil
}

func (a *Adapter) siteToCourse(st site, baseURL string) (model.Course, bool) {
	id := firstOf(st.ID, st.EntityID)
	if id == "" || strings.HasPrefix(id, "~") || strings.HasPrefix(id, "!") {
		return model.Course{}, false
	}
	if strings.TrimSpace(st.Title) == "" || st.Type == "myworkspace" {
		return model.Course{}, false
	}
	return model.Course{
		SiteID: id,
		Code:   ExtractCourseCode(st.Title),
		Title:  st.Title,
		URL:    siteURL(baseURL, id),
	}, true
}

func (a *Adapter) keep(c model.Course) bool {
	if sem := a.filter.Semester; sem != "" &&
		!strings.Contains(c.Title, sem) && !strings.Contains(c.SiteID, sem) {
		return false
	}
	if a.filter.MinLevel > 0 {
		if level := CourseLevel(c.Code); level > 0 && level < a.filter.MinLevel {
			return false
		}
	}
	return true
}

// ScrapeAnnouncements collects announcements from each course and from the
// user-level feed, keeping the first copy of each id.
func (a *Adapter) ScrapeAnnouncements(
	ctx context.Context,
	s source.Session,
	courses []model.Course,
) ([]model.Announcement, error) {
	seen := make(map[string]bool)
	var out []model.Announcement
	add := func(ann model.Announcement) {
		if seen[ann.ID] {
			return
		}
		seen[ann.ID] = true
		out = append(out, ann)
	}

	failures := 0
	for _, c := range courses {
		path := fmt.Sprintf("/direct/announcement/site/%s.json?n=%d&_limit=%d",
			url.PathEscape(c.SiteID), announcementsMax, announcementsMax)

		var coll announcementCollection
		if err := s.GetJSON(ctx, path, &coll); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			failures++
			a.logger.Warn("skipping course announcements", "course", c.DisplayName(), "error", err)
			continue
		}

		for _, item := range coll.Announcements {
			if ann, ok := a.toAnnouncement(item, &c, s.BaseURL()); ok {
				add(ann)
			}
		}
	}

	feedErr := a.scrapeUserFeed(ctx, s, courses, add)
	if feedErr != nil {
		a.logger.Warn("user announcement feed unavailable", "error", feedErr)
	}

	if len(courses) > 0 && failures == len(courses) && feedErr != nil {
		return nil, &source.ScrapeError{
			What: "announcements",
			Err:  errors.Join(fmt.Errorf("all %d courses failed", failures), feedErr),
		}
	}

	a.logger.Info("scraped announcements", "count", len(out))
	return out, nil
}

func (a *Adapter) scrapeUserFeed(
	ctx context.Context,
	s source.Session,
	courses []model.Course,
	add func(model.Announcement),
) error {
	var coll announcementCollection
	path := fmt.Sprintf("/direct/announcement/user.json?n=%d&_limit=%d", announcementsMax, announcementsMax)
	if err := s.GetJSON(ctx, path, &coll); err != nil {
		return err
	}

	bySite := make(map[string]*model.Course, len(courses)*2)
	for i := range courses {
		bySite[courses[i].SiteID] = &courses[i]
		bySite[courses[i].Title] = &courses[i]
	}

	for _, item := range coll.Announcements {
		course := bySite[item.SiteID]
		if course == nil {
			course = bySite[item.SiteTitle]
		}
		if course == nil {
			continue
		}
		if ann, ok := a.toAnnouncement(item, course, s.BaseURL()); ok {
			add(ann)
		}
	}
	return nil
}

func (a *Adapter) toAnnouncement(item announcement, c *model.Course, baseURL string) (model.Announcement, bool) {
	id := firstOf(item.ID, item.EntityID)
	if id == "" || item.Title == "" {
		return model.Announcement{}, false
	}

	ann := model.Announcement{
		ID:          id,
		CourseCode:  c.Code,
		CourseTitle: c.Title,
		Title:       strings.TrimSpace(item.Title),
		Content:     htmlToText(item.Body),
		Author:      item.CreatedByDisplayName,
		PostedAt:    item.CreatedOn.Time(a.loc),
		URL:         c.URL,
	}
	if item.SiteID != "" {
		ann.URL = siteURL(baseURL, item.SiteID)
	}
	return ann, true
}

// ScrapeAssignments reads the user's assignment list and keeps those from
// known courses. When that endpoint fails it falls back to each course.
func (a *Adapter) ScrapeAssignments(
	ctx context.Context,
	s source.Session,
	courses []model.Course,
) ([]model.Assignment, error) {
	bySite := make(map[string]*model.Course, len(courses))
	for i := range courses {
		bySite[courses[i].SiteID] = &courses[i]
	}

	seen := make(map[string]bool)
	var out []model.Assignment
	add := func(item assignment) {
		asg, ok := a.toAssignment(item, bySite, s.BaseURL())
		if !ok || seen[asg.ID] {
			return
		}
		seen[asg.ID] = true
		out = append(out, asg)
	}

	var coll assignmentCollection
	err := s.GetJSON(ctx, "/direct/assignment/my.json", &coll)
	if err == nil {
		for _, item := range coll.Assignments {
			if bySite[item.Context] != nil {
				add(item)
			}
		}
		a.logger.Info("scraped assignments", "count", len(out))
		return out, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	a.logger.Warn("assignment list unavailable, trying each course", "error", err)

	failures := 0
	for _, c := range courses {
		path := fmt.Sprintf("/direct/assignment/site/%s.json", url.PathEscape(c.SiteID))

		var siteColl assignmentCollection
		if err := s.GetJSON(ctx, path, &siteColl); err != nil {
			failures++
			a.logger.Warn("skipping course assignments", "course", c.DisplayName(), "error", err)
			continue
		}
		for _, item := range siteColl.Assignments {
			if item.Context == "" {
				item.Context = c.SiteID
			}
			add(item)
		}
	}

	if len(courses) > 0 && failures == len(courses) {
		return nil, &source.ScrapeError{What: "assignments", Err: err}
	}

	a.logger.Info("scraped assignments", "count", len(out))
	return out, nil
}

func (a *Adapter) toAssignment(item assignment, bySite map[string]*model.Course, baseURL string) (model.Assignment, bool) {
	id := firstOf(item.ID, item.EntityID)
	if id == "" || item.Title == "" {
		return model.Assignment{}, false
	}

	asg := model.Assignment{
		ID:          id,
		CourseCode:  strings.ReplaceAll(item.Context, "-", " "),
		CourseTitle: item.Context,
		Title:       strings.TrimSpace(item.Title),
		Description: htmlToText(item.Instructions),
		DueDate:     firstTime(a.loc, item.DueTime, item.DueTimeString),
		OpenDate:    firstTime(a.loc, item.OpenTime, item.OpenTimeString),
		CloseDate:   firstTime(a.loc, item.CloseTime, item.CloseTimeString),
		MaxPoints:   parsePoints(item.GradeScaleMaxPoints),
	}
	if c := bySite[item.Context]; c != nil {
		asg.CourseCode = c.Code
		asg.CourseTitle = c.Title
	}
	if item.Context != "" {
		asg.URL = siteURL(baseURL, item.Context)
	}
	asg.Status = assignmentStatus(item.Status, asg.DueDate, asg.CloseDate, a.now())

	return asg, true
}

func firstTime(loc *time.Location, values ...dateValue) *time.Time {
	for _, v := range values {
		if t := v.Time(loc); t != nil {
			return t
		}
	}
	return nil
}

func siteURL(baseURL, siteID string) string {
	return baseURL + "/portal/site/" + url.PathEscape(siteID)
}
