package timer_test

import (
	"testing"

	"lernfokus/backend/internal/timer"
)

type hookLog struct {
	opened     []timer.Record
	closed     []timer.Record
	discarded  []string
	credited   []string
	activities []timer.Activity
	chimes     []timer.Phase
}

func (l *hookLog) hooks() timer.Hooks {
	return timer.Hooks{
		SessionOpened:    func(r timer.Record) { l.opened = append(l.opened, r) },
		SessionClosed:    func(r timer.Record) { l.closed = append(l.closed, r) },
		SessionDiscarded: func(id string) { l.discarded = append(l.discarded, id) },
		WorkCredited:     func(taskID string) { l.credited = append(l.credited, taskID) },
		ActivityRecorded: func(a timer.Activity) { l.activities = append(l.activities, a) },
		PhaseEnded:       func(p timer.Phase) { l.chimes = append(l.chimes, p) },
	}
}

func newMachine(t *testing.T, settings timer.Settings, hooks timer.Hooks) *timer.Machine {
	t.Helper()
	m, err := timer.New(settings, hooks)
	if err != nil {
		t.Fatalf("new machine: %v", err)
	}
	return m
}

func tick(m *timer.Machine, n int) {
	for i := 0; i < n; i++ {
		m.Tick()
	}
}

func TestSettingsValidation(t *testing.T) {
	bad := []timer.Settings{
		{WorkDuration: 0, ShortBreakDuration: 300, LongBreakDuration: 900, LongBreakInterval: 4},
		{WorkDuration: 1500, ShortBreakDuration: -1, LongBreakDuration: 900, LongBreakInterval: 4},
		{WorkDuration: 1500, ShortBreakDuration: 300, LongBreakDuration: 0, LongBreakInterval: 4},
		{WorkDuration: 1500, ShortBreakDuration: 300, LongBreakDuration: 900, LongBreakInterval: 0},
	}
	for i, s := range bad {
		if err := s.Validate(); err == nil {
			t.Errorf("settings %d: expected validation error", i)
		}
	}
	if err := timer.DefaultSettings().Validate(); err != nil {
		t.Errorf("default settings should validate: %v", err)
	}
}

func TestWorkExpiryAutoStartsBreak(t *testing.T) {
	settings := timer.DefaultSettings() // 1500/300/900, interval 4, autostart on
	log := &hookLog{}
	m := newMachine(t, settings, log.hooks())

	m.Start()
	tick(m, 1500)

	if m.Phase() != timer.PhaseShortBreak {
		t.Fatalf("expected short break, got %s", m.Phase())
	}
	if m.RemainingSeconds() != 300 {
		t.Fatalf("expected 300 remaining, got %d", m.RemainingSeconds())
	}
	if m.CompletedWorkPhases() != 1 {
		t.Fatalf("expected 1 completed work phase, got %d", m.CompletedWorkPhases())
	}
	if !m.Running() {
		t.Fatal("expected break to auto-start")
	}
	if len(log.closed) != 1 || !log.closed[0].Completed {
		t.Fatalf("expected one completed record, got %+v", log.closed)
	}
	// The auto-started break opened its own record.
	if len(log.opened) != 2 || log.opened[1].Phase != timer.PhaseShortBreak {
		t.Fatalf("expected a break record to open, got %+v", log.opened)
	}
}

func TestWorkExpiryWithoutAutoStartStops(t *testing.T) {
	settings := timer.DefaultSettings()
	settings.AutoStartBreaks = false
	m := newMachine(t, settings, timer.Hooks{})

	m.Start()
	tick(m, 1500)

	if m.Phase() != timer.PhaseShortBreak {
		t.Fatalf("expected short break, got %s", m.Phase())
	}
	if m.RemainingSeconds() != 300 {
		t.Fatalf("expected 300 remaining, got %d", m.RemainingSeconds())
	}
	if m.Running() {
		t.Fatal("expected timer stopped after expiry")
	}
}

func TestLongBreakEveryInterval(t *testing.T) {
	settings := timer.Settings{
		WorkDuration:       10,
		ShortBreakDuration: 2,
		LongBreakDuration:  5,
		LongBreakInterval:  4,
		AutoStartBreaks:    true,
		AutoStartPomodoros: true,
		SoundEnabled:       true,
	}
	m := newMachine(t, settings, timer.Hooks{})

	m.Start()
	// Three full work+short-break cycles.
	tick(m, 3*(10+2))
	if m.CompletedWorkPhases() != 3 {
		t.Fatalf("expected 3 completed work phases, got %d", m.CompletedWorkPhases())
	}
	if m.Phase() != timer.PhaseWork {
		t.Fatalf("expected work phase, got %s", m.Phase())
	}

	// Fourth work phase expires: multiple of interval, so long break.
	tick(m, 10)
	if m.CompletedWorkPhases() != 4 {
		t.Fatalf("expected 4 completed work phases, got %d", m.CompletedWorkPhases())
	}
	if m.Phase() != timer.PhaseLongBreak {
		t.Fatalf("expected long break, got %s", m.Phase())
	}
	if m.RemainingSeconds() != 5 {
		t.Fatalf("expected 5 remaining, got %d", m.RemainingSeconds())
	}
}

func TestPauseResumeKeepsRemaining(t *testing.T) {
	settings := timer.DefaultSettings()
	m := newMachine(t, settings, timer.Hooks{})

	m.Start()
	tick(m, 10)
	m.Pause()
	if m.Running() {
		t.Fatal("expected paused")
	}
	tick(m, 100) // ticks while paused are no-ops
	m.Start()
	tick(m, 5)

	if got, want := m.RemainingSeconds(), settings.WorkDuration-15; got != want {
		t.Fatalf("expected %d remaining, got %d", want, got)
	}
}

func TestPauseLeavesRecordOpen(t *testing.T) {
	log := &hookLog{}
	m := newMachine(t, timer.DefaultSettings(), log.hooks())

	m.Start()
	tick(m, 10)
	m.Pause()

	if _, ok := m.OpenRecord(); !ok {
		t.Fatal("expected record to stay open across pause")
	}
	if len(log.discarded) != 0 || len(log.closed) != 0 {
		t.Fatal("pause must neither close nor discard the open record")
	}

	// Resuming must not open a second record.
	m.Start()
	if len(log.opened) != 1 {
		t.Fatalf("expected a single opened record, got %d", len(log.opened))
	}
}

func TestResetDiscardsOpenRecord(t *testing.T) {
	settings := timer.DefaultSettings()
	log := &hookLog{}
	m := newMachine(t, settings, log.hooks())

	m.Start()
	tick(m, 10)
	m.Reset()

	if m.Running() {
		t.Fatal("expected stopped after reset")
	}
	if m.RemainingSeconds() != settings.WorkDuration {
		t.Fatalf("expected full duration after reset, got %d", m.RemainingSeconds())
	}
	if len(log.discarded) != 1 || log.discarded[0] != log.opened[0].ID {
		t.Fatalf("expected the open record discarded, got %v", log.discarded)
	}
	if len(log.closed) != 0 {
		t.Fatal("an abandoned record must never be closed as completed")
	}
}

func TestSwitchPhaseDiscardsAndLoadsTarget(t *testing.T) {
	settings := timer.DefaultSettings()
	log := &hookLog{}
	m := newMachine(t, settings, log.hooks())

	m.Start()
	tick(m, 30)
	if err := m.SwitchPhase(timer.PhaseLongBreak); err != nil {
		t.Fatalf("switch phase: %v", err)
	}

	if m.Running() {
		t.Fatal("expected stopped after switch")
	}
	if m.Phase() != timer.PhaseLongBreak {
		t.Fatalf("expected long break, got %s", m.Phase())
	}
	if m.RemainingSeconds() != settings.LongBreakDuration {
		t.Fatalf("expected long break duration, got %d", m.RemainingSeconds())
	}
	if len(log.discarded) != 1 {
		t.Fatalf("expected one discarded record, got %d", len(log.discarded))
	}

	if err := m.SwitchPhase(timer.Phase("nap")); err == nil {
		t.Fatal("expected error for invalid phase")
	}
}

func TestWorkCompletionCreditsActiveTask(t *testing.T) {
	settings := timer.Settings{
		WorkDuration:       120,
		ShortBreakDuration: 30,
		LongBreakDuration:  60,
		LongBreakInterval:  4,
	}
	log := &hookLog{}
	m := newMachine(t, settings, log.hooks())

	m.SetActiveTask("task-1")
	m.Start()
	tick(m, 120)

	if len(log.credited) != 1 || log.credited[0] != "task-1" {
		t.Fatalf("expected one credit for task-1, got %v", log.credited)
	}
	if len(log.activities) != 1 {
		t.Fatalf("expected one activity signal, got %d", len(log.activities))
	}
	a := log.activities[0]
	if a.Kind != "pomodoro" || a.Resource != "task-1" || a.Seconds != 120 {
		t.Fatalf("unexpected activity %+v", a)
	}
	if log.opened[0].TaskID != "task-1" {
		t.Fatalf("expected work record tagged with task, got %+v", log.opened[0])
	}
}

func TestNoCreditWithoutActiveTask(t *testing.T) {
	settings := timer.Settings{
		WorkDuration:       90,
		ShortBreakDuration: 30,
		LongBreakDuration:  60,
		LongBreakInterval:  4,
	}
	log := &hookLog{}
	m := newMachine(t, settings, log.hooks())

	m.Start()
	tick(m, 90)

	if len(log.credited) != 0 {
		t.Fatalf("expected no credit, got %v", log.credited)
	}
	if len(log.activities) != 1 || log.activities[0].Resource != "timer" {
		t.Fatalf("expected untargeted activity, got %+v", log.activities)
	}
}

func TestShortWorkIntervalEmitsNoActivity(t *testing.T) {
	settings := timer.Settings{
		WorkDuration:       30, // below the 60s activity threshold
		ShortBreakDuration: 10,
		LongBreakDuration:  20,
		LongBreakInterval:  2,
	}
	log := &hookLog{}
	m := newMachine(t, settings, log.hooks())

	m.Start()
	tick(m, 30)

	if len(log.activities) != 0 {
		t.Fatalf("expected no activity for short interval, got %+v", log.activities)
	}
}

func TestAbandonedWorkStillCountsAsActivity(t *testing.T) {
	log := &hookLog{}
	m := newMachine(t, timer.DefaultSettings(), log.hooks())

	m.SetActiveTask("task-9")
	m.Start()
	tick(m, 75)
	m.Reset()

	if len(log.activities) != 1 {
		t.Fatalf("expected one activity for abandoned work, got %d", len(log.activities))
	}
	if a := log.activities[0]; a.Seconds != 75 || a.Resource != "task-9" {
		t.Fatalf("unexpected activity %+v", a)
	}
}

func TestBreakExpiryReturnsToWork(t *testing.T) {
	settings := timer.Settings{
		WorkDuration:       10,
		ShortBreakDuration: 4,
		LongBreakDuration:  8,
		LongBreakInterval:  4,
		AutoStartBreaks:    true,
		AutoStartPomodoros: false,
	}
	m := newMachine(t, settings, timer.Hooks{})

	m.Start()
	tick(m, 10+4)

	if m.Phase() != timer.PhaseWork {
		t.Fatalf("expected work after break, got %s", m.Phase())
	}
	if m.Running() {
		t.Fatal("expected stopped: auto-start pomodoros is off")
	}
	if m.RemainingSeconds() != 10 {
		t.Fatalf("expected full work duration loaded, got %d", m.RemainingSeconds())
	}
}

func TestRemainingNeverNegativeAndMonotonic(t *testing.T) {
	settings := timer.Settings{
		WorkDuration:       20,
		ShortBreakDuration: 5,
		LongBreakDuration:  10,
		LongBreakInterval:  2,
		AutoStartBreaks:    true,
		AutoStartPomodoros: true,
	}
	m := newMachine(t, settings, timer.Hooks{})

	m.Start()
	prev := m.RemainingSeconds()
	prevPhase := m.Phase()
	for i := 0; i < 200; i++ {
		m.Tick()
		r := m.RemainingSeconds()
		if r < 0 {
			t.Fatalf("remaining went negative: %d", r)
		}
		if m.Phase() == prevPhase && r > prev {
			t.Fatalf("remaining increased within a phase: %d -> %d", prev, r)
		}
		prev, prevPhase = r, m.Phase()
	}
}

func TestStartTwiceIsNoOp(t *testing.T) {
	log := &hookLog{}
	m := newMachine(t, timer.DefaultSettings(), log.hooks())

	m.Start()
	m.Start()
	tick(m, 1)

	if got, want := m.RemainingSeconds(), timer.DefaultWorkDuration-1; got != want {
		t.Fatalf("expected single decrement, got remaining %d", got)
	}
	if len(log.opened) != 1 {
		t.Fatalf("expected one record, got %d", len(log.opened))
	}
}

func TestTickWhileIdleIsNoOp(t *testing.T) {
	m := newMachine(t, timer.DefaultSettings(), timer.Hooks{})
	tick(m, 50)
	if m.RemainingSeconds() != timer.DefaultWorkDuration {
		t.Fatalf("idle tick mutated remaining: %d", m.RemainingSeconds())
	}
}

func TestSettingsChangeWhileStoppedReloads(t *testing.T) {
	m := newMachine(t, timer.DefaultSettings(), timer.Hooks{})

	settings := timer.DefaultSettings()
	settings.WorkDuration = 600
	if err := m.UpdateSettings(settings); err != nil {
		t.Fatalf("update settings: %v", err)
	}
	if m.RemainingSeconds() != 600 {
		t.Fatalf("expected reload to 600, got %d", m.RemainingSeconds())
	}
}

func TestSettingsChangeWhileRunningKeepsCountdown(t *testing.T) {
	m := newMachine(t, timer.DefaultSettings(), timer.Hooks{})

	m.Start()
	tick(m, 100)
	settings := timer.DefaultSettings()
	settings.WorkDuration = 600
	if err := m.UpdateSettings(settings); err != nil {
		t.Fatalf("update settings: %v", err)
	}
	if got, want := m.RemainingSeconds(), timer.DefaultWorkDuration-100; got != want {
		t.Fatalf("running countdown must not be retouched: got %d want %d", got, want)
	}
	// The new duration applies from the next work phase on.
	m.Reset()
	if m.RemainingSeconds() != 600 {
		t.Fatalf("expected new duration after reset, got %d", m.RemainingSeconds())
	}
}

func TestAdvanceMatchesTickByTick(t *testing.T) {
	settings := timer.Settings{
		WorkDuration:       50,
		ShortBreakDuration: 10,
		LongBreakDuration:  25,
		LongBreakInterval:  3,
		AutoStartBreaks:    true,
		AutoStartPomodoros: true,
	}

	single := newMachine(t, settings, timer.Hooks{})
	bulk := newMachine(t, settings, timer.Hooks{})
	single.Start()
	bulk.Start()

	tick(single, 137)
	bulk.Advance(137)

	if single.Phase() != bulk.Phase() ||
		single.RemainingSeconds() != bulk.RemainingSeconds() ||
		single.CompletedWorkPhases() != bulk.CompletedWorkPhases() ||
		single.Running() != bulk.Running() {
		t.Fatalf("advance diverged: tick=%s/%d/%d bulk=%s/%d/%d",
			single.Phase(), single.RemainingSeconds(), single.CompletedWorkPhases(),
			bulk.Phase(), bulk.RemainingSeconds(), bulk.CompletedWorkPhases())
	}
}

func TestRestoreRoundTrip(t *testing.T) {
	settings := timer.DefaultSettings()
	m := newMachine(t, settings, timer.Hooks{})
	m.SetActiveTask("task-3")
	m.Start()
	tick(m, 42)
	m.Pause()

	snap := m.Snapshot()
	restored, err := timer.Restore(settings, snap, timer.Hooks{})
	if err != nil {
		t.Fatalf("restore: %v", err)
	}

	got := restored.Snapshot()
	if got.Phase != snap.Phase || got.RemainingSeconds != snap.RemainingSeconds ||
		got.Running != snap.Running || got.CompletedWorkPhases != snap.CompletedWorkPhases ||
		got.ActiveTaskID != snap.ActiveTaskID {
		t.Fatalf("snapshot mismatch: %+v vs %+v", got, snap)
	}
	if got.Open == nil || snap.Open == nil || got.Open.ID != snap.Open.ID {
		t.Fatalf("open record lost in restore: %+v vs %+v", got.Open, snap.Open)
	}
}

func TestChimeFiresOnlyWhenSoundEnabled(t *testing.T) {
	settings := timer.Settings{
		WorkDuration:       5,
		ShortBreakDuration: 5,
		LongBreakDuration:  5,
		LongBreakInterval:  2,
		SoundEnabled:       false,
	}
	log := &hookLog{}
	m := newMachine(t, settings, log.hooks())

	m.Start()
	tick(m, 5)
	if len(log.chimes) != 0 {
		t.Fatalf("expected no chime with sound disabled, got %v", log.chimes)
	}

	settings.SoundEnabled = true
	if err := m.UpdateSettings(settings); err != nil {
		t.Fatalf("update settings: %v", err)
	}
	m.Start()
	tick(m, 5)
	if len(log.chimes) != 1 {
		t.Fatalf("expected one chime, got %v", log.chimes)
	}
}
