package service

import (
	"context"
	"database/sql"
	"log"
	"time"

	apperrors "lernfokus/backend/internal/errors"
	"lernfokus/backend/internal/model"
	"lernfokus/backend/internal/progress"
	"lernfokus/backend/internal/repository"
	"lernfokus/backend/internal/timer"
)

// maxReplaySeconds bounds how much elapsed wall-clock time is replayed
// through the state machine on a single request. A device coming back after
// a longer gap gets the timer paused instead of a day-long chain of
// auto-started phases.
const maxReplaySeconds = 24 * 60 * 60

// notifyTimeout bounds each fire-and-forget delivery to the progress
// collaborator.
const notifyTimeout = 5 * time.Second

// TimerService loads a user's persisted timer, replays elapsed time through
// the state machine, applies one operation and persists the machine's
// side effects in the same transaction. Cross-device writes are guarded by
// the optimistic baseVersion protocol.
type TimerService struct {
	repo     *repository.TimerRepository
	taskRepo *repository.TaskRepository
	notifier progress.Notifier
	now      func() time.Time
}

func NewTimerService(
	repo *repository.TimerRepository,
	taskRepo *repository.TaskRepository,
	notifier progress.Notifier,
) *TimerService {
	if notifier == nil {
		notifier = progress.NopNotifier{}
	}
	return &TimerService{
		repo:     repo,
		taskRepo: taskRepo,
		notifier: notifier,
		now:      time.Now,
	}
}

// StateView is the client-facing snapshot of the timer.
type StateView struct {
	UserID                    string     `json:"userId"`
	Phase                     string     `json:"phase"`
	Status                    string     `json:"status"`
	RemainingSeconds          int        `json:"remainingSeconds"`
	WorkDurationSeconds       int        `json:"workDurationSeconds"`
	ShortBreakDurationSeconds int        `json:"shortBreakDurationSeconds"`
	LongBreakDurationSeconds  int        `json:"longBreakDurationSeconds"`
	LongBreakInterval         int        `json:"longBreakInterval"`
	AutoStartBreaks           bool       `json:"autoStartBreaks"`
	AutoStartPomodoros        bool       `json:"autoStartPomodoros"`
	SoundEnabled              bool       `json:"soundEnabled"`
	CompletedWorkPhases       int        `json:"completedWorkPhases"`
	ActiveTaskID              *string    `json:"activeTaskId,omitempty"`
	SessionID                 *string    `json:"sessionId,omitempty"`
	StartedAt                 *time.Time `json:"startedAt,omitempty"`
	Version                   int        `json:"version"`
	UpdatedAt                 time.Time  `json:"updatedAt"`
	ServerTime                time.Time  `json:"serverTime"`
}

// SettingsInput carries a full settings update.
type SettingsInput struct {
	BaseVersion               int
	WorkDurationSeconds       int
	ShortBreakDurationSeconds int
	LongBreakDurationSeconds  int
	LongBreakInterval         int
	AutoStartBreaks           bool
	AutoStartPomodoros        bool
	SoundEnabled              bool
}

func (s *TimerService) GetState(ctx context.Context, userID string) (*StateView, *apperrors.APIError) {
	return s.apply(ctx, userID, 0, nil)
}

func (s *TimerService) Start(ctx context.Context, userID string, baseVersion int) (*StateView, *apperrors.APIError) {
	return s.apply(ctx, userID, baseVersion, func(m *timer.Machine) *apperrors.APIError {
		m.Start()
		return nil
	})
}

func (s *TimerService) Pause(ctx context.Context, userID string, baseVersion int) (*StateView, *apperrors.APIError) {
	return s.apply(ctx, userID, baseVersion, func(m *timer.Machine) *apperrors.APIError {
		m.Pause()
		return nil
	})
}

func (s *TimerService) Reset(ctx context.Context, userID string, baseVersion int) (*StateView, *apperrors.APIError) {
	return s.apply(ctx, userID, baseVersion, func(m *timer.Machine) *apperrors.APIError {
		m.Reset()
		return nil
	})
}

func (s *TimerService) SwitchPhase(ctx context.Context, userID, phase string, baseVersion int) (*StateView, *apperrors.APIError) {
	if !model.IsValidPhase(phase) {
		return nil, apperrors.BadRequest("invalid_phase", "phase must be one of work, short_break, long_break")
	}
	return s.apply(ctx, userID, baseVersion, func(m *timer.Machine) *apperrors.APIError {
		if err := m.SwitchPhase(timer.Phase(phase)); err != nil {
			return apperrors.BadRequest("invalid_phase", err.Error())
		}
		return nil
	})
}

func (s *TimerService) UpdateSettings(ctx context.Context, userID string, input SettingsInput) (*StateView, *apperrors.APIError) {
	settings := timer.Settings{
		WorkDuration:       input.WorkDurationSeconds,
		ShortBreakDuration: input.ShortBreakDurationSeconds,
		LongBreakDuration:  input.LongBreakDurationSeconds,
		LongBreakInterval:  input.LongBreakInterval,
		AutoStartBreaks:    input.AutoStartBreaks,
		AutoStartPomodoros: input.AutoStartPomodoros,
		SoundEnabled:       input.SoundEnabled,
	}
	if err := settings.Validate(); err != nil {
		return nil, apperrors.BadRequest("invalid_settings", err.Error())
	}
	return s.apply(ctx, userID, input.BaseVersion, func(m *timer.Machine) *apperrors.APIError {
		if err := m.UpdateSettings(settings); err != nil {
			return apperrors.BadRequest("invalid_settings", err.Error())
		}
		return nil
	})
}

// SetActiveTask points the timer at the task credited on work completion.
// An empty task id clears the reference.
func (s *TimerService) SetActiveTask(ctx context.Context, userID, taskID string, baseVersion int) (*StateView, *apperrors.APIError) {
	if taskID != "" {
		if _, err := s.taskRepo.Get(ctx, userID, taskID); err != nil {
			if err == repository.ErrNotFound {
				return nil, apperrors.NotFound("task_not_found", "task not found")
			}
			return nil, apperrors.Internal("failed to read task")
		}
	}
	return s.apply(ctx, userID, baseVersion, func(m *timer.Machine) *apperrors.APIError {
		m.SetActiveTask(taskID)
		return nil
	})
}

func (s *TimerService) GetHistory(ctx context.Context, userID string, limit int) ([]model.Session, *apperrors.APIError) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	sessions, err := s.repo.ListSessions(ctx, userID, limit)
	if err != nil {
		return nil, apperrors.Internal("failed to get history")
	}
	return sessions, nil
}

func (s *TimerService) GetStats(ctx context.Context, userID string) (*model.SessionStats, *apperrors.APIError) {
	stats, err := s.repo.GetStats(ctx, userID)
	if err != nil {
		return nil, apperrors.Internal("failed to aggregate stats")
	}
	return stats, nil
}

// timerEvent is one ordered side effect collected from the machine while a
// request replays and mutates it. Events apply inside the request's
// transaction; activities dispatch after commit.
type timerEvent struct {
	opened    *timer.Record
	closed    *timer.Record
	discarded string
	credited  string
	activity  *timer.Activity
}

// apply is the shared request path: load, replay elapsed time, run op,
// persist. A nil op is a plain normalization (GetState).
func (s *TimerService) apply(
	ctx context.Context,
	userID string,
	baseVersion int,
	op func(*timer.Machine) *apperrors.APIError,
) (*StateView, *apperrors.APIError) {
	now := s.now().UTC()

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, apperrors.Internal("failed to start transaction")
	}
	defer tx.Rollback()

	state, err := s.repo.GetStateTx(ctx, tx, userID)
	if err == repository.ErrNotFound {
		return nil, apperrors.NotFound("state_not_found", "timer state not found")
	}
	if err != nil {
		return nil, apperrors.Internal("failed to get timer state")
	}

	var events []timerEvent
	machine, apiErr := s.restoreMachine(ctx, tx, state, collectorHooks(&events))
	if apiErr != nil {
		return nil, apiErr
	}
	machine.SetClock(func() time.Time { return now })

	replayed := s.replayElapsed(machine, state, now)

	if apiErr := s.ensureVersion(baseVersion, state, machine, now); apiErr != nil {
		return nil, apiErr
	}

	if op != nil {
		if apiErr := op(machine); apiErr != nil {
			return nil, apiErr
		}
	}

	dirty := op != nil || len(events) > 0
	if dirty {
		if apiErr := s.persist(ctx, tx, state, machine, events, replayed, now); apiErr != nil {
			return nil, apiErr
		}
		if err := tx.Commit(); err != nil {
			return nil, apperrors.Internal("failed to commit transaction")
		}
		s.dispatchActivities(userID, events)
	}

	view := s.toView(state, machine, now)
	return &view, nil
}

// restoreMachine rebuilds the state machine from the persisted row plus the
// open session record, if any.
func (s *TimerService) restoreMachine(
	ctx context.Context,
	tx *sql.Tx,
	state *model.TimerState,
	hooks timer.Hooks,
) (*timer.Machine, *apperrors.APIError) {
	snap := timer.Snapshot{
		Phase:               timer.Phase(state.Phase),
		RemainingSeconds:    state.RemainingSeconds,
		Running:             state.Status == model.StatusRunning,
		CompletedWorkPhases: state.CompletedWorkPhases,
	}
	if state.ActiveTaskID != nil {
		snap.ActiveTaskID = *state.ActiveTaskID
	}

	if state.SessionID != nil {
		session, err := s.repo.GetSessionTx(ctx, tx, *state.SessionID)
		if err == nil {
			record := timer.Record{
				ID:        session.ID,
				Phase:     timer.Phase(session.Phase),
				Duration:  session.DurationSeconds,
				StartedAt: session.StartedAt,
			}
			if session.TaskID != nil {
				record.TaskID = *session.TaskID
			}
			snap.Open = &record
		} else if err != repository.ErrNotFound {
			return nil, apperrors.Internal("failed to read open session")
		}
	}

	machine, err := timer.Restore(settingsFromState(state), snap, hooks)
	if err != nil {
		return nil, apperrors.Internal("failed to restore timer state")
	}
	return machine, nil
}

func collectorHooks(events *[]timerEvent) timer.Hooks {
	return timer.Hooks{
		SessionOpened: func(r timer.Record) {
			record := r
			*events = append(*events, timerEvent{opened: &record})
		},
		SessionClosed: func(r timer.Record) {
			record := r
			*events = append(*events, timerEvent{closed: &record})
		},
		SessionDiscarded: func(id string) {
			*events = append(*events, timerEvent{discarded: id})
		},
		WorkCredited: func(taskID string) {
			*events = append(*events, timerEvent{credited: taskID})
		},
		ActivityRecorded: func(a timer.Activity) {
			activity := a
			*events = append(*events, timerEvent{activity: &activity})
		},
	}
}

// replayElapsed advances the machine by the wall-clock seconds since the
// countdown was anchored, bounded by maxReplaySeconds. Returns the number of
// seconds consumed so the anchor can move forward without losing the
// sub-second fraction.
func (s *TimerService) replayElapsed(machine *timer.Machine, state *model.TimerState, now time.Time) int {
	if state.Status != model.StatusRunning || state.StartedAt == nil {
		return 0
	}
	elapsed := int(now.Sub(*state.StartedAt).Seconds())
	if elapsed <= 0 {
		return 0
	}
	if elapsed > maxReplaySeconds {
		machine.Advance(maxReplaySeconds)
		machine.Pause()
		return elapsed
	}
	machine.Advance(elapsed)
	return elapsed
}

func (s *TimerService) ensureVersion(
	baseVersion int,
	state *model.TimerState,
	machine *timer.Machine,
	now time.Time,
) *apperrors.APIError {
	if baseVersion <= 0 || baseVersion == state.Version {
		return nil
	}
	view := s.toView(state, machine, now)
	return apperrors.Conflict("state_conflict", "timer changed on another device", map[string]interface{}{
		"state": view,
	})
}

func (s *TimerService) persist(
	ctx context.Context,
	tx *sql.Tx,
	state *model.TimerState,
	machine *timer.Machine,
	events []timerEvent,
	replayed int,
	now time.Time,
) *apperrors.APIError {
	for _, ev := range events {
		switch {
		case ev.opened != nil:
			session := s.toSession(state.UserID, *ev.opened, now)
			if err := s.repo.InsertSessionTx(ctx, tx, &session); err != nil {
				return apperrors.Internal("failed to create session record")
			}
		case ev.closed != nil:
			if err := s.repo.CompleteSessionTx(ctx, tx, ev.closed.ID, ev.closed.EndedAt); err != nil {
				return apperrors.Internal("failed to finalize session record")
			}
		case ev.discarded != "":
			if err := s.repo.DeleteSessionTx(ctx, tx, ev.discarded); err != nil {
				return apperrors.Internal("failed to discard session record")
			}
		case ev.credited != "":
			if err := s.taskRepo.IncrementCompletedTx(ctx, tx, state.UserID, ev.credited, now); err != nil {
				return apperrors.Internal("failed to credit task")
			}
		}
	}

	snap := machine.Snapshot()
	settings := machine.Settings()

	previousAnchor := state.StartedAt
	state.Phase = string(snap.Phase)
	state.RemainingSeconds = snap.RemainingSeconds
	state.WorkDurationSeconds = settings.WorkDuration
	state.ShortBreakDurationSeconds = settings.ShortBreakDuration
	state.LongBreakDurationSeconds = settings.LongBreakDuration
	state.LongBreakInterval = settings.LongBreakInterval
	state.AutoStartBreaks = settings.AutoStartBreaks
	state.AutoStartPomodoros = settings.AutoStartPomodoros
	state.SoundEnabled = settings.SoundEnabled
	state.CompletedWorkPhases = snap.CompletedWorkPhases

	state.ActiveTaskID = nil
	if snap.ActiveTaskID != "" {
		taskID := snap.ActiveTaskID
		state.ActiveTaskID = &taskID
	}

	state.SessionID = nil
	if snap.Open != nil {
		sessionID := snap.Open.ID
		state.SessionID = &sessionID
	}

	state.StartedAt = nil
	if snap.Running {
		// Move the anchor forward by the whole seconds consumed so the
		// sub-second fraction survives polling; fresh starts anchor at now.
		anchor := now
		if previousAnchor != nil && state.Status == model.StatusRunning && replayed > 0 && replayed <= maxReplaySeconds {
			anchor = previousAnchor.Add(time.Duration(replayed) * time.Second)
		} else if previousAnchor != nil && state.Status == model.StatusRunning && replayed == 0 {
			anchor = *previousAnchor
		}
		state.StartedAt = &anchor
		state.Status = model.StatusRunning
	} else if snap.Open != nil {
		state.Status = model.StatusPaused
	} else {
		state.Status = model.StatusIdle
	}

	state.Version++
	state.UpdatedAt = now

	if err := s.repo.UpdateStateTx(ctx, tx, state); err != nil {
		return apperrors.Internal("failed to update timer state")
	}
	return nil
}

// dispatchActivities forwards learning-activity signals after commit.
// Failures are logged and swallowed: progress tracking under-reports at
// worst, local state stays authoritative.
func (s *TimerService) dispatchActivities(userID string, events []timerEvent) {
	for _, ev := range events {
		if ev.activity == nil {
			continue
		}
		activity := progress.Activity{
			Kind:     ev.activity.Kind,
			Resource: ev.activity.Resource,
			Seconds:  ev.activity.Seconds,
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
			defer cancel()
			if err := s.notifier.LearningActivity(ctx, userID, activity); err != nil {
				log.Printf("learning activity signal failed for user %s: %v", userID, err)
			}
		}()
	}
}

func (s *TimerService) toSession(userID string, record timer.Record, now time.Time) model.Session {
	session := model.Session{
		ID:              record.ID,
		UserID:          userID,
		Phase:           string(record.Phase),
		DurationSeconds: record.Duration,
		StartedAt:       record.StartedAt,
		CreatedAt:       now,
	}
	if record.TaskID != "" {
		taskID := record.TaskID
		session.TaskID = &taskID
	}
	return session
}

func (s *TimerService) toView(state *model.TimerState, machine *timer.Machine, now time.Time) StateView {
	snap := machine.Snapshot()
	settings := machine.Settings()

	view := StateView{
		UserID:                    state.UserID,
		Phase:                     string(snap.Phase),
		RemainingSeconds:          snap.RemainingSeconds,
		WorkDurationSeconds:       settings.WorkDuration,
		ShortBreakDurationSeconds: settings.ShortBreakDuration,
		LongBreakDurationSeconds:  settings.LongBreakDuration,
		LongBreakInterval:         settings.LongBreakInterval,
		AutoStartBreaks:           settings.AutoStartBreaks,
		AutoStartPomodoros:        settings.AutoStartPomodoros,
		SoundEnabled:              settings.SoundEnabled,
		CompletedWorkPhases:       snap.CompletedWorkPhases,
		Version:                   state.Version,
		UpdatedAt:                 state.UpdatedAt,
		ServerTime:                now,
	}

	switch {
	case snap.Running:
		view.Status = model.StatusRunning
		if state.StartedAt != nil {
			anchor := *state.StartedAt
			view.StartedAt = &anchor
		} else {
			anchor := now
			view.StartedAt = &anchor
		}
	case snap.Open != nil:
		view.Status = model.StatusPaused
	default:
		view.Status = model.StatusIdle
	}

	if snap.ActiveTaskID != "" {
		taskID := snap.ActiveTaskID
		view.ActiveTaskID = &taskID
	}
	if snap.Open != nil {
		sessionID := snap.Open.ID
		view.SessionID = &sessionID
	}

	return view
}

func settingsFromState(state *model.TimerState) timer.Settings {
	return timer.Settings{
		WorkDuration:       state.WorkDurationSeconds,
		ShortBreakDuration: state.ShortBreakDurationSeconds,
		LongBreakDuration:  state.LongBreakDurationSeconds,
		LongBreakInterval:  state.LongBreakInterval,
		AutoStartBreaks:    state.AutoStartBreaks,
		AutoStartPomodoros: state.AutoStartPomodoros,
		SoundEnabled:       state.SoundEnabled,
	}
}
