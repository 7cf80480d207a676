package monitor_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/nhle/lms-monitor/internal/dedup"
	"github.com/nhle/lms-monitor/internal/examdetect"
	"github.com/nhle/lms-monitor/internal/model"
	"github.com/nhle/lms-monitor/internal/monitor"
	"github.com/nhle/lms-monitor/internal/runlock"
	"github.com/nhle/lms-monitor/internal/session"
	"github.com/nhle/lms-monitor/internal/source"
	"github.com/nhle/lms-monitor/tests/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakePortal struct {
	mu       sync.Mutex
	loginErr error
	logins   int
	logouts  int
}

func (p *fakePortal) Login(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.logins++
	return p.loginErr
}

func (p *fakePortal) Logout(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.logouts++
	return nil
}

func (p *fakePortal) GetJSON(context.Context, string, any) error { return nil }
func (p *fakePortal) BaseURL() string                            { return "https://lms.example" }

type fakeScraper struct {
	courses          []model.Course
	coursesErr       error
	announcements    []model.Announcement
	announcementsErr error
	assignments      []model.Assignment
	assignmentsErr   error
	panicOn          string
}

func (s *fakeScraper) ScrapeCourses(context.Context, source.Session) ([]model.Course, error) {
	if s.panicOn == "courses" {
		panic("unexpected markup")
	}
	return s.courses, s.coursesErr
}

func (s *fakeScraper) ScrapeAnnouncements(context.Context, source.Session, []model.Course) ([]model.Announcement, error) {
	return s.announcements, s.announcementsErr
}

func (s *fakeScraper) ScrapeAssignments(context.Context, source.Session, []model.Course) ([]model.Assignment, error) {
	return s.assignments, s.assignmentsErr
}

type noExams struct{}

func (noExams) DetectAll([]model.Announcement) []model.Exam { return nil }

type fakeNotifier struct {
	mu    sync.Mutex
	sent  []string
	fails int
}

func (n *fakeNotifier) Name() string { return "fake" }

func (n *fakeNotifier) Send(_ context.Context, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fails > 0 {
		n.fails--
		return errors.New("channel unavailable")
	}
	n.sent = append(n.sent, text)
	return nil
}

func (n *fakeNotifier) messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.sent...)
}

type fakeRecorder struct {
	mu       sync.Mutex
	finished []error
	skipped  int
	runs     chan struct{}
}

func (r *fakeRecorder) RunFinished(_ monitor.Stats, err error) {
	r.mu.Lock()
	r.finished = append(r.finished, err)
	r.mu.Unlock()
	if r.runs != nil {
		select {
		case r.runs <- struct{}{}:
		default:
		}
	}
}

func (r *fakeRecorder) RunSkipped() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skipped++
}

type fakeReporter struct{ errs []error }

func (r *fakeReporter) CaptureError(err error) { r.errs = append(r.errs, err) }

var course = model.Course{SiteID: "site-1", Code: "DCIT 301", Title: "DCIT 301 Software Engineering"}

type harness struct {
	portal   *fakePortal
	scraper  *fakeScraper
	notifier *fakeNotifier
	dedup    *dedup.Store
	backend  interface {
		GetSent(context.Context, string) (*model.SentNotification, error)
	}
}

func newHarness(t *testing.T) *harness {
	backend := testutil.NewTestStore(t)
	return &harness{
		portal:   &fakePortal{},
		scraper:  &fakeScraper{courses: []model.Course{course}},
		notifier: &fakeNotifier{},
		dedup:    dedup.New(backend, quietLogger()),
		backend:  backend,
	}
}

func (h *harness) monitor(detector monitor.Detector, opts ...monitor.Option) *monitor.Monitor {
	return monitor.New(h.portal, h.scraper, detector, h.dedup, h.notifier, quietLogger(), opts...)
}

func TestRun_OnlyNewOrChangedItemsAreSent(t *testing.T) {
	h := newHarness(t)
	m := h.monitor(noExams{})
	ctx := context.Background()

	h.scraper.announcements = []model.Announcement{{
		ID: "42", CourseCode: "DCIT 301", Title: "Quiz announced", Content: "Quiz on Friday",
	}}

	stats, err := m.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.NotificationsSent)
	assert.Equal(t, 1, stats.NewAnnouncements)
	require.Len(t, h.notifier.messages(), 1)

	first, err := h.backend.GetSent(ctx, "announcement:42")
	require.NoError(t, err)

	stats, err = m.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.NotificationsSent)
	assert.Len(t, h.notifier.messages(), 1)

	h.scraper.announcements[0].Content = "Quiz moved to Monday"
	stats, err = m.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.NotificationsSent)
	require.Len(t, h.notifier.messages(), 2)
	assert.Contains(t, h.notifier.messages()[1], "Quiz moved to Monday")

	updated, err := h.backend.GetSent(ctx, "announcement:42")
	require.NoError(t, err)
	assert.NotEqual(t, first.ContentFingerprint, updated.ContentFingerprint)

	assert.Equal(t, 3, h.portal.logins)
	assert.Equal(t, 3, h.portal.logouts)
}

func TestRun_FailedSendIsRetriedNextRun(t *testing.T) {
	h := newHarness(t)
	h.notifier.fails = 1
	h.scraper.assignments = []model.Assignment{{ID: "a1", CourseCode: "DCIT 301", Title: "Lab report"}}
	m := h.monitor(noExams{})

	stats, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.NotificationsSent)
	assert.Equal(t, 1, stats.Errors)
	assert.False(t, h.dedup.HasBeenSent(context.Background(), model.NewAssignmentItem(h.scraper.assignments[0])))

	stats, err = m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.NotificationsSent)
	assert.Equal(t, 0, stats.Errors)
}

func TestRun_SendsSummaryAfterSeveralItems(t *testing.T) {
	h := newHarness(t)
	h.scraper.announcements = []model.Announcement{
		{ID: "1", Title: "Welcome", Content: "Hello class"},
		{ID: "2", Title: "Slides", Content: "Week 1 slides are up"},
	}
	h.scraper.assignments = []model.Assignment{{ID: "a1", Title: "Essay"}}

	stats, err := h.monitor(noExams{}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.NotificationsSent)

	msgs := h.notifier.messages()
	require.Len(t, msgs, 4)
	assert.Contains(t, msgs[0], "NEW ANNOUNCEMENT")
	assert.Contains(t, msgs[2], "NEW ASSIGNMENT")
	assert.Contains(t, msgs[3], "LMS Monitor Summary")
	assert.Contains(t, msgs[3], "2 new announcement(s)")
}

func TestRun_SummaryDisabled(t *testing.T) {
	h := newHarness(t)
	h.scraper.announcements = []model.Announcement{
		{ID: "1", Title: "Welcome", Content: "Hello class"},
		{ID: "2", Title: "Slides", Content: "Week 1 slides are up"},
	}

	_, err := h.monitor(noExams{}, monitor.WithSummary(false)).Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, h.notifier.messages(), 2)
}

func TestRun_ScrapeFailureDoesNotAbort(t *testing.T) {
	h := newHarness(t)
	h.scraper.announcementsErr = &source.ScrapeError{What: "announcements", Err: errors.New("500")}
	h.scraper.assignments = []model.Assignment{{ID: "a1", Title: "Essay"}}

	stats, err := h.monitor(noExams{}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Errors)
	assert.Equal(t, 1, stats.NotificationsSent)
}

func TestRun_DetectsExamsFromAnnouncements(t *testing.T) {
	h := newHarness(t)
	h.scraper.announcements = []model.Announcement{{
		ID: "7", CourseCode: "DCIT 301", Title: "Midterm",
		Content: "Midterm exam on March 5, 2025 at 9:00am in Hall A",
	}}

	stats, err := h.monitor(examdetect.New(time.UTC), monitor.WithSummary(false)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Exams)
	assert.Equal(t, 1, stats.NewExams)

	msgs := h.notifier.messages()
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[0], "NEW ANNOUNCEMENT")
	assert.Contains(t, msgs[1], "MIDTERM ALERT")
	assert.Contains(t, msgs[1], "Hall A")
}

func TestRun_QuizAnnouncementWithExamDetection(t *testing.T) {
	h := newHarness(t)
	h.scraper.announcements = []model.Announcement{{
		ID: "42", CourseCode: "DCIT 301", Title: "Quiz announced", Content: "Quiz on Friday",
	}}
	m := h.monitor(examdetect.New(time.UTC))
	ctx := context.Background()

	stats, err := m.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.NewAnnouncements)
	assert.Equal(t, 1, stats.NewExams)
	assert.Equal(t, 2, stats.NotificationsSent)

	msgs := h.notifier.messages()
	require.Len(t, msgs, 3)
	assert.Contains(t, msgs[0], "NEW ANNOUNCEMENT")
	assert.Contains(t, msgs[1], "QUIZ ALERT")
	assert.Contains(t, msgs[2], "LMS Monitor Summary")

	_, err = h.backend.GetSent(ctx, "announcement:42")
	require.NoError(t, err)
	_, err = h.backend.GetSent(ctx, "exam:ann-42")
	require.NoError(t, err)

	stats, err = m.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.NotificationsSent)
	assert.Len(t, h.notifier.messages(), 3)
}

func TestRun_NoCourses(t *testing.T) {
	h := newHarness(t)
	h.scraper.courses = nil
	rec := &fakeRecorder{}

	stats, err := h.monitor(noExams{}, monitor.WithRecorder(rec)).Run(context.Background())
	assert.ErrorIs(t, err, monitor.ErrNoCourses)
	assert.Equal(t, 1, stats.Errors)
	assert.Empty(t, h.notifier.messages())
	assert.Equal(t, 1, h.portal.logouts)
	require.Len(t, rec.finished, 1)
	assert.ErrorIs(t, rec.finished[0], monitor.ErrNoCourses)
}

func TestRun_LoginFailureIsReported(t *testing.T) {
	h := newHarness(t)
	h.portal.loginErr = &session.AuthError{Message: "invalid credentials"}
	reporter := &fakeReporter{}

	_, err := h.monitor(noExams{}, monitor.WithErrorReporter(reporter)).Run(context.Background())
	require.Error(t, err)
	assert.True(t, session.IsAuthError(err))

	msgs := h.notifier.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "LMS Monitor Error")
	assert.Contains(t, msgs[0], "invalid credentials")
	assert.Len(t, reporter.errs, 1)
	assert.Equal(t, 0, h.portal.logouts)
}

func TestRun_RecoversFromPanic(t *testing.T) {
	h := newHarness(t)
	h.scraper.panicOn = "courses"

	var (
		stats monitor.Stats
		err   error
	)
	assert.NotPanics(t, func() {
		stats, err = h.monitor(noExams{}).Run(context.Background())
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected markup")
	assert.Equal(t, 1, stats.Errors)
	assert.Equal(t, 1, h.portal.logouts)

	msgs := h.notifier.messages()
	require.Len(t, msgs, 1)
	assert.True(t, strings.Contains(msgs[0], "panic"))
}

func TestRun_PublishesProgress(t *testing.T) {
	h := newHarness(t)
	events := make(chan monitor.Event, 32)

	_, err := h.monitor(noExams{}, monitor.WithProgress(events)).Run(context.Background())
	require.NoError(t, err)
	close(events)

	var stages []monitor.Stage
	for ev := range events {
		stages = append(stages, ev.Stage)
	}
	require.NotEmpty(t, stages)
	assert.Equal(t, monitor.StageLogin, stages[0])
	assert.Equal(t, monitor.StageDone, stages[len(stages)-1])
	assert.Equal(t, "Done", monitor.StageDone.String())
}

type busyLocker struct{}

func (busyLocker) Acquire(context.Context) (runlock.Release, error) { return nil, runlock.ErrLocked }
func (busyLocker) Close() error                                     { return nil }

func TestRunLocked_SkipsWhenLocked(t *testing.T) {
	h := newHarness(t)
	rec := &fakeRecorder{}

	_, err := h.monitor(noExams{}, monitor.WithLocker(busyLocker{}), monitor.WithRecorder(rec)).
		RunLocked(context.Background())
	assert.ErrorIs(t, err, runlock.ErrLocked)
	assert.Equal(t, 1, rec.skipped)
	assert.Equal(t, 0, h.portal.logins)
}

type countingDedup struct {
	monitor.Dedup
	cleared []time.Duration
}

func (d *countingDedup) ClearOlderThan(_ context.Context, age time.Duration) (int64, error) {
	d.cleared = append(d.cleared, age)
	return 0, nil
}

func TestRunLocked_PrunesWithRetention(t *testing.T) {
	h := newHarness(t)
	d := &countingDedup{Dedup: h.dedup}
	m := monitor.New(h.portal, h.scraper, noExams{}, d, h.notifier, quietLogger(),
		monitor.WithRetention(90*24*time.Hour))

	_, err := m.RunLocked(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{90 * 24 * time.Hour}, d.cleared)
}

func TestWatch_RunsUntilCancelled(t *testing.T) {
	h := newHarness(t)
	rec := &fakeRecorder{runs: make(chan struct{}, 1)}
	m := h.monitor(noExams{}, monitor.WithRecorder(rec))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Watch(ctx, 10*time.Millisecond) }()

	for range 2 {
		select {
		case <-rec.runs:
		case <-time.After(5 * time.Second):
			t.Fatal("watch did not run")
		}
	}
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestWatch_RejectsNonPositiveInterval(t *testing.T) {
	h := newHarness(t)
	assert.Error(t, h.monitor(noExams{}).Watch(context.Background(), 0))
}
