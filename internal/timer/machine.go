// Package timer implements the study-timer state machine: a single countdown
// cycling through work and break phases, crediting finished work phases to an
// active task and recording every interval as a session record.
//
// The machine is pure in-memory state with no I/O of its own. Side effects
// leave it through the Hooks callbacks, so callers decide where records,
// task credits and activity signals go.
package timer

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Phase string

const (
	PhaseWork       Phase = "work"
	PhaseShortBreak Phase = "short_break"
	PhaseLongBreak  Phase = "long_break"
)

// MinActivitySeconds is the threshold below which a work interval is too
// short to count as learning activity.
const MinActivitySeconds = 60

const (
	DefaultWorkDuration       = 25 * 60
	DefaultShortBreakDuration = 5 * 60
	DefaultLongBreakDuration  = 15 * 60
	DefaultLongBreakInterval  = 4
)

// Settings is the user-tunable timer configuration. All durations are in
// seconds.
type Settings struct {
	WorkDuration       int
	ShortBreakDuration int
	LongBreakDuration  int
	LongBreakInterval  int
	AutoStartBreaks    bool
	AutoStartPomodoros bool
	SoundEnabled       bool
}

func DefaultSettings() Settings {
	return Settings{
		WorkDuration:       DefaultWorkDuration,
		ShortBreakDuration: DefaultShortBreakDuration,
		LongBreakDuration:  DefaultLongBreakDuration,
		LongBreakInterval:  DefaultLongBreakInterval,
		AutoStartBreaks:    true,
		AutoStartPomodoros: true,
		SoundEnabled:       true,
	}
}

func (s Settings) Validate() error {
	if s.WorkDuration <= 0 || s.ShortBreakDuration <= 0 || s.LongBreakDuration <= 0 {
		return fmt.Errorf("timer: all durations must be positive seconds")
	}
	if s.LongBreakInterval < 1 {
		return fmt.Errorf("timer: long break interval must be at least 1")
	}
	return nil
}

// Duration returns the configured duration in seconds for the given phase.
func (s Settings) Duration(phase Phase) int {
	switch phase {
	case PhaseShortBreak:
		return s.ShortBreakDuration
	case PhaseLongBreak:
		return s.LongBreakDuration
	default:
		return s.WorkDuration
	}
}

// Record is one timer interval. EndedAt stays zero while the interval is
// open; Completed is set only when the countdown reaches zero naturally.
type Record struct {
	ID        string
	TaskID    string // set only for work intervals with an active task
	Phase     Phase
	Duration  int // seconds planned when the record was opened
	StartedAt time.Time
	EndedAt   time.Time
	Completed bool
}

// Activity is a learning-activity signal bridging timer time into the
// platform's progress tracking.
type Activity struct {
	Kind     string
	Resource string
	Seconds  int
}

// Hooks receives the machine's side effects. Nil fields are skipped.
type Hooks struct {
	// SessionOpened fires when a new interval record is opened.
	SessionOpened func(Record)
	// SessionClosed fires when an interval completes naturally.
	SessionClosed func(Record)
	// SessionDiscarded fires when an open interval is abandoned via Reset
	// or SwitchPhase. The record must not be kept as completed history.
	SessionDiscarded func(id string)
	// WorkCredited fires once per natural work-phase completion while an
	// active task is set, carrying that task's id.
	WorkCredited func(taskID string)
	// ActivityRecorded fires for work intervals that accumulated at least
	// MinActivitySeconds of elapsed time.
	ActivityRecorded func(Activity)
	// PhaseEnded fires on natural expiry when sound is enabled, naming the
	// phase that just finished.
	PhaseEnded func(Phase)
}

// Snapshot is the machine's persistable state.
type Snapshot struct {
	Phase               Phase
	RemainingSeconds    int
	Running             bool
	CompletedWorkPhases int
	ActiveTaskID        string
	Open                *Record
}

// Machine is the session state machine. It is not safe for concurrent use;
// callers driving it from multiple goroutines must serialize access (see
// Driver).
type Machine struct {
	settings Settings
	hooks    Hooks
	now      func() time.Time
	newID    func() string

	phase               Phase
	remaining           int
	running             bool
	completedWorkPhases int
	activeTaskID        string
	open                *Record
}

func New(settings Settings, hooks Hooks) (*Machine, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return &Machine{
		settings:  settings,
		hooks:     hooks,
		now:       time.Now,
		newID:     uuid.NewString,
		phase:     PhaseWork,
		remaining: settings.WorkDuration,
	}, nil
}

// Restore rebuilds a machine from a previously taken Snapshot.
func Restore(settings Settings, snap Snapshot, hooks Hooks) (*Machine, error) {
	m, err := New(settings, hooks)
	if err != nil {
		return nil, err
	}
	if !snap.Phase.Valid() {
		return nil, fmt.Errorf("timer: invalid phase %q", snap.Phase)
	}
	m.phase = snap.Phase
	m.remaining = snap.RemainingSeconds
	m.running = snap.Running
	m.completedWorkPhases = snap.CompletedWorkPhases
	m.activeTaskID = snap.ActiveTaskID
	if snap.Open != nil {
		open := *snap.Open
		m.open = &open
	}
	if m.remaining < 0 {
		m.remaining = 0
	}
	return m, nil
}

func (p Phase) Valid() bool {
	return p == PhaseWork || p == PhaseShortBreak || p == PhaseLongBreak
}

// SetClock overrides the wall clock used to stamp records. Intended for
// tests and replay.
func (m *Machine) SetClock(now func() time.Time) {
	if now != nil {
		m.now = now
	}
}

func (m *Machine) Phase() Phase             { return m.phase }
func (m *Machine) RemainingSeconds() int    { return m.remaining }
func (m *Machine) Running() bool            { return m.running }
func (m *Machine) CompletedWorkPhases() int { return m.completedWorkPhases }
func (m *Machine) ActiveTaskID() string     { return m.activeTaskID }
func (m *Machine) Settings() Settings       { return m.settings }

// OpenRecord returns a copy of the currently open interval record, if any.
func (m *Machine) OpenRecord() (Record, bool) {
	if m.open == nil {
		return Record{}, false
	}
	return *m.open, true
}

func (m *Machine) Snapshot() Snapshot {
	snap := Snapshot{
		Phase:               m.phase,
		RemainingSeconds:    m.remaining,
		Running:             m.running,
		CompletedWorkPhases: m.completedWorkPhases,
		ActiveTaskID:        m.activeTaskID,
	}
	if m.open != nil {
		open := *m.open
		snap.Open = &open
	}
	return snap
}

// SetActiveTask sets the task credited on work-phase completion. An empty id
// clears the reference. The open record is not retouched; the task id is
// captured when a work record is opened.
func (m *Machine) SetActiveTask(taskID string) {
	m.activeTaskID = taskID
}

// Start begins or resumes the countdown. Starting while already running is a
// no-op. If no interval record is open, one is opened for the current phase.
func (m *Machine) Start() {
	if m.running {
		return
	}
	if m.remaining <= 0 {
		m.remaining = m.settings.Duration(m.phase)
	}
	m.running = true
	if m.open == nil {
		m.openRecord()
	}
}

// Pause stops the countdown but leaves the open record open, preserving
// resumability.
func (m *Machine) Pause() {
	m.running = false
}

// Reset stops the countdown, reloads the current phase's full duration and
// discards any open record without marking it completed.
func (m *Machine) Reset() {
	m.running = false
	m.discardOpen()
	m.remaining = m.settings.Duration(m.phase)
}

// SwitchPhase stops the countdown and loads the target phase's full
// duration, discarding any open record.
func (m *Machine) SwitchPhase(phase Phase) error {
	if !phase.Valid() {
		return fmt.Errorf("timer: invalid phase %q", phase)
	}
	m.running = false
	m.discardOpen()
	m.phase = phase
	m.remaining = m.settings.Duration(phase)
	return nil
}

// UpdateSettings replaces the configuration. While stopped, the current
// phase's remaining time reloads immediately; while running, the in-progress
// countdown is left untouched so it can neither skip nor stall.
func (m *Machine) UpdateSettings(settings Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	m.settings = settings
	if !m.running {
		m.remaining = settings.Duration(m.phase)
	}
	return nil
}

// Tick advances the countdown by one second. Ticks while not running, or
// with nothing left to count down, are no-ops.
func (m *Machine) Tick() {
	m.Advance(1)
}

// Advance fast-forwards the countdown by n seconds with per-tick semantics:
// phase transitions, task credits and record bookkeeping happen at every
// zero crossing, and the countdown stops wherever auto-start rules say so.
func (m *Machine) Advance(n int) {
	for n > 0 && m.running && m.remaining > 0 {
		step := m.remaining
		if step > n {
			step = n
		}
		m.remaining -= step
		n -= step
		if m.remaining == 0 {
			m.completePhase()
		}
	}
}

func (m *Machine) openRecord() {
	rec := Record{
		ID:        m.newID(),
		Phase:     m.phase,
		Duration:  m.remaining,
		StartedAt: m.now(),
	}
	if m.phase == PhaseWork {
		rec.TaskID = m.activeTaskID
	}
	m.open = &rec
	if m.hooks.SessionOpened != nil {
		m.hooks.SessionOpened(rec)
	}
}

// completePhase performs the natural-expiry transition. Called exactly when
// remaining hits zero while running.
func (m *Machine) completePhase() {
	ended := m.phase

	if m.open != nil {
		rec := *m.open
		rec.EndedAt = m.now()
		rec.Completed = true
		m.open = nil
		if m.hooks.SessionClosed != nil {
			m.hooks.SessionClosed(rec)
		}
		if rec.Phase == PhaseWork && rec.Duration >= MinActivitySeconds {
			m.recordActivity(rec.TaskID, rec.Duration)
		}
	}

	if ended == PhaseWork {
		m.completedWorkPhases++
		if m.activeTaskID != "" && m.hooks.WorkCredited != nil {
			m.hooks.WorkCredited(m.activeTaskID)
		}
		if m.completedWorkPhases%m.settings.LongBreakInterval == 0 {
			m.phase = PhaseLongBreak
		} else {
			m.phase = PhaseShortBreak
		}
		m.running = m.settings.AutoStartBreaks
	} else {
		m.phase = PhaseWork
		m.running = m.settings.AutoStartPomodoros
	}
	m.remaining = m.settings.Duration(m.phase)

	if m.settings.SoundEnabled && m.hooks.PhaseEnded != nil {
		m.hooks.PhaseEnded(ended)
	}

	if m.running {
		m.openRecord()
	}
}

// discardOpen drops the open record. Abandoned work time still counts as
// learning activity once it crossed the minimum threshold.
func (m *Machine) discardOpen() {
	if m.open == nil {
		return
	}
	rec := *m.open
	m.open = nil
	elapsed := rec.Duration - m.remaining
	if elapsed < 0 {
		elapsed = 0
	}
	if rec.Phase == PhaseWork && elapsed >= MinActivitySeconds {
		m.recordActivity(rec.TaskID, elapsed)
	}
	if m.hooks.SessionDiscarded != nil {
		m.hooks.SessionDiscarded(rec.ID)
	}
}

func (m *Machine) recordActivity(taskID string, seconds int) {
	if m.hooks.ActivityRecorded == nil {
		return
	}
	resource := taskID
	if resource == "" {
		resource = "timer"
	}
	m.hooks.ActivityRecorded(Activity{
		Kind:     "pomodoro",
		Resource: resource,
		Seconds:  seconds,
	})
}
