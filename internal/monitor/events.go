package monitor

// Stage is the step a run is in.
type Stage int

const (
	StageLogin Stage = iota
	StageCourses
	StageAnnouncements
	StageAssignments
	StageExams
	StageNotify
	StageDone
)

func (s Stage) String() string {
	switch s {
	case StageLogin:
		return "Logging in"
	case StageCourses:
		return "Discovering courses"
	case StageAnnouncements:
		return "Fetching announcements"
	case StageAssignments:
		return "Fetching assignments"
	case StageExams:
		return "Detecting exams"
	case StageNotify:
		return "Sending notifications"
	case StageDone:
		return "Done"
	default:
		return "Unknown"
	}
}

// Event is a progress update published while a run is in flight. Err is
// only set on the final StageDone event.
type Event struct {
	Stage Stage
	Stats Stats
	Err   error
}

// emit publishes ev without blocking the run.
func (m *Monitor) emit(ev Event) {
	if m.progress == nil {
		return
	}
	select {
	case m.progress <- ev:
	default:
		// Drop if the consumer is behind.
	}
}
