// Package monitor runs the monitoring pass: log in, scrape, detect exams,
// filter through the dedup store, notify and record.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/lms-monitor/internal/model"
	"github.com/nhle/lms-monitor/internal/notify"
	"github.com/nhle/lms-monitor/internal/session"
	"github.com/nhle/lms-monitor/internal/source"
)

// ErrNoCourses fails a run in which the portal listed no courses. It
// usually means the login landed on an unexpected page.
var ErrNoCourses = errors.New("no courses found")

// errorNotifyTimeout bounds the best-effort failure report.
const errorNotifyTimeout = 30 * time.Second

// Portal is an authenticated session the scrapers read through.
type Portal interface {
	session.Authenticator
	source.Session
}

// Detector derives exams from announcements.
type Detector interface {
	DetectAll(announcements []model.Announcement) []model.Exam
}

// Dedup decides which items still need a notification.
type Dedup interface {
	HasBeenSent(ctx context.Context, item model.Item) bool
	MarkAsSent(ctx context.Context, item model.Item) bool
	ClearOlderThan(ctx context.Context, age time.Duration) (int64, error)
}

// Recorder receives run outcomes, e.g. for metrics.
type Recorder interface {
	RunFinished(stats Stats, err error)
	RunSkipped()
}

// ErrorReporter forwards run failures to an error tracker.
type ErrorReporter interface {
	CaptureError(err error)
}

// Stats summarizes one run.
type Stats struct {
	RunID     uuid.UUID
	StartedAt time.Time
	Duration  time.Duration

	Courses       int
	Announcements int
	Assignments   int
	Exams         int

	NewAnnouncements int
	NewAssignments   int
	NewExams         int

	NotificationsSent int
	Errors            int
}

// NewItems is the number of items that needed a notification.
func (s Stats) NewItems() int {
	return s.NewAnnouncements + s.NewAssignments + s.NewExams
}

type noopRecorder struct{}

func (noopRecorder) RunFinished(Stats, error) {}
func (noopRecorder) RunSkipped()              {}

// Option configures a Monitor.
type Option func(*Monitor)

// WithSummary sends a summary message after runs with more than one new item.
func WithSummary(enabled bool) Option {
	return func(m *Monitor) { m.summary = enabled }
}

// WithProgress publishes run events on ch. Sends never block; events are
// dropped when ch is full.
func WithProgress(ch chan<- Event) Option {
	return func(m *Monitor) { m.progress = ch }
}

func WithRecorder(r Recorder) Option {
	return func(m *Monitor) { m.recorder = r }
}

func WithErrorReporter(r ErrorReporter) Option {
	return func(m *Monitor) { m.reporter = r }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// Monitor orchestrates monitoring runs. A Monitor must not run two passes
// at once; Watch serializes its own runs and the run lock guards against
// other processes.
type Monitor struct {
	portal   Portal
	scraper  source.Scraper
	detector Detector
	dedup    Dedup
	notifier notify.Notifier
	logger   *slog.Logger

	summary  bool
	progress chan<- Event
	recorder Recorder
	reporter ErrorReporter
	now      func() time.Time

	watch watchConfig
}

// New wires a Monitor from its collaborators.
func New(
	portal Portal,
	scraper source.Scraper,
	detector Detector,
	dedup Dedup,
	notifier notify.Notifier,
	logger *slog.Logger,
	opts ...Option,
) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Monitor{
		portal:   portal,
		scraper:  scraper,
		detector: detector,
		dedup:    dedup,
		notifier: notifier,
		logger:   logger.With("component", "monitor"),
		summary:  true,
		recorder: noopRecorder{},
		now:      time.Now,
		watch:    defaultWatchConfig(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run performs one monitoring pass. Any failure, including a panic, is
// logged, counted, reported once as an error notification and returned.
func (m *Monitor) Run(ctx context.Context) (stats Stats, err error) {
	stats = Stats{RunID: uuid.New(), StartedAt: m.now()}
	logger := m.logger.With("run_id", stats.RunID.String())
	logger.Info("starting monitoring run")

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during monitoring run: %v", r)
		}
		stats.Duration = m.now().Sub(stats.StartedAt)

		if err != nil {
			stats.Errors++
			logger.Error("monitoring run failed", "error", err, "duration", stats.Duration)
			m.reportFailure(ctx, logger, err)
		} else {
			logger.Info("monitoring run complete",
				"courses", stats.Courses,
				"announcements", stats.Announcements,
				"assignments", stats.Assignments,
				"exams", stats.Exams,
				"notifications_sent", stats.NotificationsSent,
				"errors", stats.Errors,
				"duration", stats.Duration,
			)
		}

		m.recorder.RunFinished(stats, err)
		m.emit(Event{Stage: StageDone, Stats: stats, Err: err})
	}()

	m.emit(Event{Stage: StageLogin, Stats: stats})
	err = session.WithSession(ctx, m.portal, logger, func(ctx context.Context) error {
		return m.pass(ctx, logger, &stats)
	})
	return stats, err
}

func (m *Monitor) pass(ctx context.Context, logger *slog.Logger, stats *Stats) error {
	m.emit(Event{Stage: StageCourses, Stats: *stats})
	courses, err := m.scraper.ScrapeCourses(ctx, m.portal)
	if err != nil {
		return fmt.Errorf("discovering courses: %w", err)
	}
	if len(courses) == 0 {
		return ErrNoCourses
	}
	stats.Courses = len(courses)
	logger.Info("found enrolled courses", "count", len(courses))

	m.emit(Event{Stage: StageAnnouncements, Stats: *stats})
	announcements, err := m.scraper.ScrapeAnnouncements(ctx, m.portal, courses)
	if err != nil {
		m.scrapeFailed(logger, stats, err)
	}
	stats.Announcements = len(announcements)

	m.emit(Event{Stage: StageAssignments, Stats: *stats})
	assignments, err := m.scraper.ScrapeAssignments(ctx, m.portal, courses)
	if err != nil {
		m.scrapeFailed(logger, stats, err)
	}
	stats.Assignments = len(assignments)

	m.emit(Event{Stage: StageExams, Stats: *stats})
	exams := m.detector.DetectAll(announcements)
	stats.Exams = len(exams)

	newAnnouncements := m.filterNew(ctx, announcementItems(announcements))
	newAssignments := m.filterNew(ctx, assignmentItems(assignments))
	newExams := m.filterNew(ctx, examItems(exams))
	stats.NewAnnouncements = len(newAnnouncements)
	stats.NewAssignments = len(newAssignments)
	stats.NewExams = len(newExams)
	logger.Info("filtered new items",
		"announcements", fmt.Sprintf("%d/%d", stats.NewAnnouncements, stats.Announcements),
		"assignments", fmt.Sprintf("%d/%d", stats.NewAssignments, stats.Assignments),
		"exams", fmt.Sprintf("%d/%d", stats.NewExams, stats.Exams),
	)

	m.emit(Event{Stage: StageNotify, Stats: *stats})
	total := stats.NewItems()
	if total == 0 {
		logger.Info("no new items to notify")
		return nil
	}

	for _, batch := range [][]model.Item{newAnnouncements, newAssignments, newExams} {
		for _, item := range batch {
			if err := ctx.Err(); err != nil {
				return err
			}
			m.sendAndRecord(ctx, logger, stats, item)
			m.emit(Event{Stage: StageNotify, Stats: *stats})
		}
	}

	if m.summary && total > 1 {
		summary := notify.FormatSummary(stats.NewAnnouncements, stats.NewAssignments, stats.NewExams)
		if err := m.notifier.Send(ctx, summary); err != nil {
			logger.Warn("failed to send summary", "error", err)
		}
	}
	return nil
}

func (m *Monitor) scrapeFailed(logger *slog.Logger, stats *Stats, err error) {
	stats.Errors++
	logger.Warn("scrape failed, continuing without it", "error", err)
}

func (m *Monitor) filterNew(ctx context.Context, items []model.Item) []model.Item {
	var out []model.Item
	for _, item := range items {
		if !m.dedup.HasBeenSent(ctx, item) {
			out = append(out, item)
		}
	}
	return out
}

// sendAndRecord notifies one item and records it only after the channel
// accepted it. Failed items stay unrecorded and are retried next run.
func (m *Monitor) sendAndRecord(ctx context.Context, logger *slog.Logger, stats *Stats, item model.Item) {
	text := notify.FormatItem(item, m.now())
	if err := m.notifier.Send(ctx, text); err != nil {
		stats.Errors++
		logger.Warn("failed to send notification",
			"kind", item.Kind, "id", item.ID(), "title", item.Title(), "error", err)
		return
	}
	stats.NotificationsSent++

	if !m.dedup.MarkAsSent(ctx, item) {
		stats.Errors++
		logger.Warn("notification sent but not recorded, it may repeat next run",
			"kind", item.Kind, "id", item.ID())
		return
	}
	logger.Debug("sent notification", "kind", item.Kind, "id", item.ID(), "title", item.Title())
}

// reportFailure sends one error notification. It never fails the caller.
func (m *Monitor) reportFailure(ctx context.Context, logger *slog.Logger, err error) {
	if m.reporter != nil {
		m.reporter.CaptureError(err)
	}
	if errors.Is(err, ErrNoCourses) || errors.Is(err, context.Canceled) {
		return
	}

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), errorNotifyTimeout)
	defer cancel()
	if sendErr := m.notifier.Send(sendCtx, notify.FormatError(err.Error())); sendErr != nil {
		logger.Warn("failed to send error notification", "error", sendErr)
	}
}

func announcementItems(in []model.Announcement) []model.Item {
	out := make([]model.Item, 0, len(in))
	for _, a := range in {
		out = append(out, model.NewAnnouncementItem(a))
	}
	return out
}

func assignmentItems(in []model.Assignment) []model.Item {
	out := make([]model.Item, 0, len(in))
	for _, a := range in {
		out = append(out, model.NewAssignmentItem(a))
	}
	return out
}

func examItems(in []model.Exam) []model.Item {
	out := make([]model.Item, 0, len(in))
	for _, e := range in {
		out = append(out, model.NewExamItem(e))
	}
	return out
}
