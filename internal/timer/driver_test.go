package timer

import (
	"testing"
	"time"
)

func testSettings() Settings {
	return Settings{
		WorkDuration:       1000,
		ShortBreakDuration: 100,
		LongBreakDuration:  200,
		LongBreakInterval:  4,
	}
}

func newTestDriver(t *testing.T, settings Settings) *Driver {
	t.Helper()
	m, err := New(settings, Hooks{})
	if err != nil {
		t.Fatalf("new machine: %v", err)
	}
	d := NewDriver(m)
	d.interval = 5 * time.Millisecond
	t.Cleanup(d.Close)
	return d
}

func TestDriverCountsDown(t *testing.T) {
	d := newTestDriver(t, testSettings())

	d.Start()
	time.Sleep(60 * time.Millisecond)
	d.Pause()

	snap := d.State()
	if snap.RemainingSeconds >= 1000 {
		t.Fatalf("expected countdown to advance, remaining %d", snap.RemainingSeconds)
	}
	if snap.Running {
		t.Fatal("expected paused")
	}
}

func TestDriverStartTwiceSingleLoop(t *testing.T) {
	d := newTestDriver(t, testSettings())

	d.Start()
	d.Start()
	d.Start()
	time.Sleep(50 * time.Millisecond)
	d.Pause()

	// A second concurrent loop would roughly double the decrement rate.
	// With a 5ms interval and ~50ms of running, a single loop takes at
	// most ~12 ticks even with scheduling slack.
	elapsed := 1000 - d.State().RemainingSeconds
	if elapsed > 25 {
		t.Fatalf("decrement rate suggests multiple drivers: %d ticks", elapsed)
	}
}

func TestDriverPauseStopsSynchronously(t *testing.T) {
	d := newTestDriver(t, testSettings())

	d.Start()
	time.Sleep(30 * time.Millisecond)
	d.Pause()

	remaining := d.State().RemainingSeconds
	time.Sleep(40 * time.Millisecond)
	if got := d.State().RemainingSeconds; got != remaining {
		t.Fatalf("tick fired after pause: %d -> %d", remaining, got)
	}
}

func TestDriverResetDiscardsAndStops(t *testing.T) {
	settings := testSettings()
	d := newTestDriver(t, settings)

	d.Start()
	time.Sleep(30 * time.Millisecond)
	d.Reset()

	snap := d.State()
	if snap.Running {
		t.Fatal("expected stopped after reset")
	}
	if snap.RemainingSeconds != settings.WorkDuration {
		t.Fatalf("expected full duration, got %d", snap.RemainingSeconds)
	}
	if snap.Open != nil {
		t.Fatal("expected open record discarded")
	}
}

func TestDriverLoopExitsWhenAutoStartOff(t *testing.T) {
	settings := Settings{
		WorkDuration:       2,
		ShortBreakDuration: 100,
		LongBreakDuration:  100,
		LongBreakInterval:  4,
		AutoStartBreaks:    false,
	}
	d := newTestDriver(t, settings)

	d.Start()
	time.Sleep(60 * time.Millisecond)

	snap := d.State()
	if snap.Phase != PhaseShortBreak {
		t.Fatalf("expected short break, got %s", snap.Phase)
	}
	if snap.Running {
		t.Fatal("expected stopped after expiry with auto-start off")
	}
	d.mu.Lock()
	alive := d.loopAlive()
	d.mu.Unlock()
	if alive {
		t.Fatal("expected ticker goroutine to exit with the countdown stopped")
	}

	// Restarting must spin up a fresh loop for the break phase.
	d.Start()
	time.Sleep(30 * time.Millisecond)
	d.Pause()
	if d.State().RemainingSeconds >= 100 {
		t.Fatal("expected restarted countdown to advance")
	}
}

func TestDriverCloseIdempotent(t *testing.T) {
	d := newTestDriver(t, testSettings())
	d.Start()
	d.Close()
	d.Close()
}
