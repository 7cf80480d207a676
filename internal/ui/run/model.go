// Package run renders live progress of a single monitoring pass.
package run

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/lms-monitor/internal/keys"
	"github.com/nhle/lms-monitor/internal/monitor"
	"github.com/nhle/lms-monitor/internal/theme"
	"github.com/nhle/lms-monitor/internal/ui"
	helpview "github.com/nhle/lms-monitor/internal/ui/help"
)

// RunFunc performs one monitoring pass.
type RunFunc func(ctx context.Context) (monitor.Stats, error)

type eventMsg monitor.Event

type runDoneMsg struct {
	stats monitor.Stats
	err   error
}

// channelClosedMsg is sent once the progress channel has been drained.
type channelClosedMsg struct{}

var stages = []monitor.Stage{
	monitor.StageLogin,
	monitor.StageCourses,
	monitor.StageAnnouncements,
	monitor.StageAssignments,
	monitor.StageExams,
	monitor.StageNotify,
}

// Model is the bubbletea model for the run view.
type Model struct {
	ctx    context.Context
	events <-chan monitor.Event

	keys     *keys.KeyMap
	help     help.Model
	helpView helpview.Model
	spinner  spinner.Model

	stage       monitor.Stage
	lastStage   monitor.Stage
	stats       monitor.Stats
	err         error
	done        bool
	showHelp    bool
	showDetails bool
	width       int
	height      int
}

// New creates a run view. events should be the channel the monitor was
// built with via monitor.WithProgress.
func New(ctx context.Context, events <-chan monitor.Event) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(theme.ColorBlue)

	km := keys.DefaultKeyMap()
	return Model{
		ctx:      ctx,
		events:   events,
		keys:     km,
		help:     help.New(),
		helpView: helpview.New(km, 80, 24),
		spinner:  sp,
		stage:    monitor.StageLogin,
		width:    80,
		height:   24,
	}
}

// Init starts the spinner and the event listener.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.waitForEvent())
}

func (m Model) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		select {
		case ev, ok := <-m.events:
			if !ok {
				return channelClosedMsg{}
			}
			return eventMsg(ev)
		case <-m.ctx.Done():
			return channelClosedMsg{}
		}
	}
}

// Update handles messages for the run view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.helpView.SetSize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Help):
			m.showHelp = !m.showHelp
		case key.Matches(msg, m.keys.Details):
			m.showDetails = !m.showDetails
		}
		return m, nil

	case eventMsg:
		if !m.done && msg.Stage != monitor.StageDone {
			m.stage = msg.Stage
			m.stats = msg.Stats
		}
		return m, m.waitForEvent()

	case channelClosedMsg:
		return m, nil

	case runDoneMsg:
		m.done = true
		m.lastStage = m.stage
		m.stage = monitor.StageDone
		m.stats = msg.stats
		m.err = msg.err
		return m, tea.Quit

	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// Stats returns the final statistics once the run has finished.
func (m Model) Stats() monitor.Stats { return m.stats }

// Err returns the run error, if any.
func (m Model) Err() error { return m.err }

// Done reports whether the run has finished.
func (m Model) Done() bool { return m.done }

// View renders the run view.
func (m Model) View() string {
	layout := ui.NewLayout(m.width, m.height)

	status := m.spinner.View() + " " + m.stage.String()
	if m.done {
		status = theme.ResultStyle(m.err == nil).Render(resultText(m.err))
	}
	header := layout.RenderHeader("LMS Monitor", status)

	var content string
	if m.showHelp {
		content = m.helpView.View()
	} else {
		content = m.renderStages()
		if m.done || m.showDetails {
			content = lipgloss.JoinVertical(lipgloss.Left, content, "", RenderStats(m.stats))
		}
		if m.err != nil {
			content = lipgloss.JoinVertical(lipgloss.Left, content, "",
				theme.ResultStyle(false).Render("Error: ")+m.err.Error())
		}
	}

	statusBar := layout.RenderStatusBar(m.help.ShortHelpView(m.keys.ShortHelp()))
	return layout.RenderWithFrame(header, content, statusBar) + "\n"
}

func (m Model) renderStages() string {
	var b strings.Builder
	for _, st := range stages {
		var mark string
		switch {
		case m.done && m.err != nil && st == m.lastStage:
			mark = theme.FailedMark
		case m.done && m.err != nil && st > m.lastStage:
			mark = theme.PendingMark
		case m.done || st < m.stage:
			mark = theme.DoneMark
		case st == m.stage:
			mark = m.spinner.View()
		default:
			mark = theme.PendingMark
		}
		fmt.Fprintf(&b, " %s %s\n", mark, st)
	}
	return strings.TrimRight(b.String(), "\n")
}

func resultText(err error) string {
	if err != nil {
		return "failed"
	}
	return "completed"
}

// RenderStats formats run statistics as a labelled block.
func RenderStats(s monitor.Stats) string {
	rows := []struct {
		label string
		value string
	}{
		{"Courses", fmt.Sprint(s.Courses)},
		{"Announcements", fmt.Sprintf("%d (%d new)", s.Announcements, s.NewAnnouncements)},
		{"Assignments", fmt.Sprintf("%d (%d new)", s.Assignments, s.NewAssignments)},
		{"Exams", fmt.Sprintf("%d (%d new)", s.Exams, s.NewExams)},
		{"Notifications sent", fmt.Sprint(s.NotificationsSent)},
		{"Errors", fmt.Sprint(s.Errors)},
		{"Duration", s.Duration.Round(1e6).String()},
	}

	lines := make([]string, 0, len(rows))
	for _, r := range rows {
		lines = append(lines, theme.LabelStyle.Render(r.label)+r.value)
	}
	return strings.Join(lines, "\n")
}

// Start runs the view in the terminal while run executes. Quitting the
// view early cancels the pass; Start always waits for run to return.
func Start(ctx context.Context, run RunFunc, events <-chan monitor.Event) (monitor.Stats, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(New(ctx, events), tea.WithContext(ctx))

	results := make(chan runDoneMsg, 1)
	go func() {
		stats, err := run(ctx)
		res := runDoneMsg{stats: stats, err: err}
		results <- res
		p.Send(res)
	}()

	_, viewErr := p.Run()
	cancel()
	res := <-results

	if viewErr != nil && !errors.Is(viewErr, tea.ErrProgramKilled) {
		return res.stats, fmt.Errorf("running progress view: %w", viewErr)
	}
	return res.stats, res.err
}
