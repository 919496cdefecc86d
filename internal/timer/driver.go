package timer

import (
	"sync"
	"time"
)

// Driver owns a Machine and advances it once per second from a ticker
// goroutine. All machine access goes through the driver's mutex, so the
// Machine's single-threaded contract holds even with the ticker running.
//
// At most one ticker goroutine exists per driver: Start while already
// running is a no-op rather than a second concurrent countdown. Pause,
// Reset, SwitchPhase and Close stop the goroutine synchronously before
// returning, so no late tick can fire afterwards.
type Driver struct {
	mu       sync.Mutex
	machine  *Machine
	interval time.Duration

	stop chan struct{}
	done chan struct{}
}

func NewDriver(machine *Machine) *Driver {
	return &Driver{
		machine:  machine,
		interval: time.Second,
	}
}

// Start begins or resumes the countdown and launches the ticker goroutine
// if one is not already alive.
func (d *Driver) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.machine.Start()
	if !d.machine.Running() || d.loopAlive() {
		return
	}
	d.stop = make(chan struct{})
	d.done = make(chan struct{})
	go d.run(d.stop, d.done)
}

// Pause stops the countdown. The ticker goroutine has exited by the time
// Pause returns.
func (d *Driver) Pause() {
	d.mu.Lock()
	d.machine.Pause()
	stop, done := d.stop, d.done
	d.mu.Unlock()
	haltLoop(stop, done)
}

// Reset stops the countdown and reloads the current phase, discarding any
// open record.
func (d *Driver) Reset() {
	d.mu.Lock()
	d.machine.Reset()
	stop, done := d.stop, d.done
	d.mu.Unlock()
	haltLoop(stop, done)
}

// SwitchPhase stops the countdown and loads the target phase.
func (d *Driver) SwitchPhase(phase Phase) error {
	d.mu.Lock()
	err := d.machine.SwitchPhase(phase)
	stop, done := d.stop, d.done
	d.mu.Unlock()
	if err != nil {
		return err
	}
	haltLoop(stop, done)
	return nil
}

func (d *Driver) UpdateSettings(settings Settings) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.machine.UpdateSettings(settings)
}

func (d *Driver) SetActiveTask(taskID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.machine.SetActiveTask(taskID)
}

func (d *Driver) State() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.machine.Snapshot()
}

// Close disposes the driver, stopping the ticker goroutine synchronously.
// The machine keeps its state; Close is idempotent.
func (d *Driver) Close() {
	d.mu.Lock()
	stop, done := d.stop, d.done
	d.mu.Unlock()
	haltLoop(stop, done)
}

// loopAlive reports whether the ticker goroutine is still running. Must be
// called with d.mu held.
func (d *Driver) loopAlive() bool {
	if d.done == nil {
		return false
	}
	select {
	case <-d.done:
		return false
	default:
		return true
	}
}

func (d *Driver) run(stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			d.mu.Lock()
			d.machine.Tick()
			running := d.machine.Running()
			d.mu.Unlock()
			if !running {
				// Auto-start is off and the phase expired; the next
				// Start launches a fresh goroutine.
				return
			}
		}
	}
}

// haltLoop tells the ticker goroutine to exit and waits until it has. Safe
// to call when no goroutine is alive, and safe to call twice.
func haltLoop(stop, done chan struct{}) {
	if stop == nil {
		return
	}
	select {
	case stop <- struct{}{}:
	case <-done:
	}
	<-done
}
