package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"lernfokus/backend/internal/model"
)

// TimerRepository persists per-user timer state and the session history.
// Session rows are append-only once completed; open rows may be deleted when
// the user abandons an interval.
type TimerRepository struct {
	db *sql.DB
}

func NewTimerRepository(db *sql.DB) *TimerRepository {
	return &TimerRepository{db: db}
}

func (r *TimerRepository) BeginTx(ctx context.Context) (*sql.Tx, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return tx, nil
}

// CreateInitialState seeds a fresh user's timer row with the defaults.
func (r *TimerRepository) CreateInitialState(ctx context.Context, userID string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := r.db.ExecContext(
		ctx,
		`INSERT INTO timer_states (
			user_id, phase, status, remaining_seconds,
			work_duration_seconds, short_break_duration_seconds, long_break_duration_seconds,
			long_break_interval, auto_start_breaks, auto_start_pomodoros, sound_enabled,
			completed_work_phases, version, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		userID,
		model.PhaseWork,
		model.StatusIdle,
		model.DefaultWorkDurationSeconds,
		model.DefaultWorkDurationSeconds,
		model.DefaultShortBreakDurationSeconds,
		model.DefaultLongBreakDurationSeconds,
		model.DefaultLongBreakInterval,
		1,
		1,
		1,
		0,
		1,
		now,
	)
	if err != nil {
		return fmt.Errorf("create initial timer state: %w", err)
	}
	return nil
}

const timerStateColumns = `user_id, phase, status, remaining_seconds,
	work_duration_seconds, short_break_duration_seconds, long_break_duration_seconds,
	long_break_interval, auto_start_breaks, auto_start_pomodoros, sound_enabled,
	completed_work_phases, active_task_id, session_id, started_at, version, updated_at`

func (r *TimerRepository) GetStateTx(ctx context.Context, tx *sql.Tx, userID string) (*model.TimerState, error) {
	row := tx.QueryRowContext(
		ctx,
		`SELECT `+timerStateColumns+` FROM timer_states WHERE user_id = ?`,
		userID,
	)
	return scanTimerState(row)
}

func (r *TimerRepository) UpdateStateTx(ctx context.Context, tx *sql.Tx, state *model.TimerState) error {
	var startedAt interface{}
	if state.StartedAt != nil {
		startedAt = state.StartedAt.UTC().Format(time.RFC3339Nano)
	}
	var sessionID interface{}
	if state.SessionID != nil {
		sessionID = *state.SessionID
	}
	var activeTaskID interface{}
	if state.ActiveTaskID != nil {
		activeTaskID = *state.ActiveTaskID
	}

	_, err := tx.ExecContext(
		ctx,
		`UPDATE timer_states
		 SET phase = ?,
		     status = ?,
		     remaining_seconds = ?,
		     work_duration_seconds = ?,
		     short_break_duration_seconds = ?,
		     long_break_duration_seconds = ?,
		     long_break_interval = ?,
		     auto_start_breaks = ?,
		     auto_start_pomodoros = ?,
		     sound_enabled = ?,
		     completed_work_phases = ?,
		     active_task_id = ?,
		     session_id = ?,
		     started_at = ?,
		     version = ?,
		     updated_at = ?
		 WHERE user_id = ?`,
		state.Phase,
		state.Status,
		state.RemainingSeconds,
		state.WorkDurationSeconds,
		state.ShortBreakDurationSeconds,
		state.LongBreakDurationSeconds,
		state.LongBreakInterval,
		boolToInt(state.AutoStartBreaks),
		boolToInt(state.AutoStartPomodoros),
		boolToInt(state.SoundEnabled),
		state.CompletedWorkPhases,
		activeTaskID,
		sessionID,
		startedAt,
		state.Version,
		state.UpdatedAt.UTC().Format(time.RFC3339Nano),
		state.UserID,
	)
	if err != nil {
		return fmt.Errorf("update timer state: %w", err)
	}
	return nil
}

// ClearActiveTaskTx clears the active-task reference iff it points at the
// given task. Used when the task is deleted.
func (r *TimerRepository) ClearActiveTaskTx(ctx context.Context, tx *sql.Tx, userID, taskID string) error {
	_, err := tx.ExecContext(
		ctx,
		`UPDATE timer_states SET active_task_id = NULL WHERE user_id = ? AND active_task_id = ?`,
		userID,
		taskID,
	)
	if err != nil {
		return fmt.Errorf("clear active task: %w", err)
	}
	return nil
}

func (r *TimerRepository) InsertSessionTx(ctx context.Context, tx *sql.Tx, session *model.Session) error {
	var taskID interface{}
	if session.TaskID != nil {
		taskID = *session.TaskID
	}
	var endedAt interface{}
	if session.EndedAt != nil {
		endedAt = session.EndedAt.UTC().Format(time.RFC3339Nano)
	}

	_, err := tx.ExecContext(
		ctx,
		`INSERT INTO sessions (
			id, user_id, task_id, phase, duration_seconds,
			started_at, ended_at, completed, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID,
		session.UserID,
		taskID,
		session.Phase,
		session.DurationSeconds,
		session.StartedAt.UTC().Format(time.RFC3339Nano),
		endedAt,
		boolToInt(session.Completed),
		session.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// CompleteSessionTx finalizes a session record on natural expiry. Completed
// records are never touched again.
func (r *TimerRepository) CompleteSessionTx(ctx context.Context, tx *sql.Tx, sessionID string, endedAt time.Time) error {
	_, err := tx.ExecContext(
		ctx,
		`UPDATE sessions SET ended_at = ?, completed = 1 WHERE id = ? AND completed = 0`,
		endedAt.UTC().Format(time.RFC3339Nano),
		sessionID,
	)
	if err != nil {
		return fmt.Errorf("complete session: %w", err)
	}
	return nil
}

// DeleteSessionTx discards an abandoned open record. Completed history is
// immutable, hence the completed = 0 guard.
func (r *TimerRepository) DeleteSessionTx(ctx context.Context, tx *sql.Tx, sessionID string) error {
	_, err := tx.ExecContext(
		ctx,
		`DELETE FROM sessions WHERE id = ? AND completed = 0`,
		sessionID,
	)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (r *TimerRepository) ListSessions(ctx context.Context, userID string, limit int) ([]model.Session, error) {
	rows, err := r.db.QueryContext(
		ctx,
		`SELECT id, user_id, task_id, phase, duration_seconds,
		        started_at, ended_at, completed, created_at
		 FROM sessions
		 WHERE user_id = ?
		 ORDER BY started_at DESC
		 LIMIT ?`,
		userID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]model.Session, 0, limit)
	for rows.Next() {
		session, scanErr := scanSession(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		sessions = append(sessions, *session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	return sessions, nil
}

// GetStats aggregates the completed history: total focus minutes and the
// number of finished work phases.
func (r *TimerRepository) GetStats(ctx context.Context, userID string) (*model.SessionStats, error) {
	var focusSeconds int
	var completedCount int
	err := r.db.QueryRowContext(
		ctx,
		`SELECT COALESCE(SUM(duration_seconds), 0), COUNT(1)
		 FROM sessions
		 WHERE user_id = ? AND phase = ? AND completed = 1`,
		userID,
		model.PhaseWork,
	).Scan(&focusSeconds, &completedCount)
	if err != nil {
		return nil, fmt.Errorf("aggregate stats: %w", err)
	}
	return &model.SessionStats{
		FocusMinutes:       focusSeconds / 60,
		CompletedPomodoros: completedCount,
	}, nil
}

func (r *TimerRepository) GetSessionTx(ctx context.Context, tx *sql.Tx, sessionID string) (*model.Session, error) {
	row := tx.QueryRowContext(
		ctx,
		`SELECT id, user_id, task_id, phase, duration_seconds,
		        started_at, ended_at, completed, created_at
		 FROM sessions
		 WHERE id = ?`,
		sessionID,
	)
	return scanSession(row)
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTimerState(s scanner) (*model.TimerState, error) {
	state := model.TimerState{}
	var autoBreaks, autoPomodoros, sound int
	var activeTaskID, sessionID, startedAt sql.NullString
	var updatedAt string
	err := s.Scan(
		&state.UserID,
		&state.Phase,
		&state.Status,
		&state.RemainingSeconds,
		&state.WorkDurationSeconds,
		&state.ShortBreakDurationSeconds,
		&state.LongBreakDurationSeconds,
		&state.LongBreakInterval,
		&autoBreaks,
		&autoPomodoros,
		&sound,
		&state.CompletedWorkPhases,
		&activeTaskID,
		&sessionID,
		&startedAt,
		&state.Version,
		&updatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan timer state: %w", err)
	}

	state.AutoStartBreaks = autoBreaks != 0
	state.AutoStartPomodoros = autoPomodoros != 0
	state.SoundEnabled = sound != 0

	if activeTaskID.Valid {
		value := activeTaskID.String
		state.ActiveTaskID = &value
	}
	if sessionID.Valid {
		value := sessionID.String
		state.SessionID = &value
	}
	if startedAt.Valid {
		parsed, parseErr := parseTime(startedAt.String)
		if parseErr != nil {
			return nil, fmt.Errorf("parse state started_at: %w", parseErr)
		}
		state.StartedAt = &parsed
	}

	parsedUpdatedAt, parseErr := parseTime(updatedAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parse state updated_at: %w", parseErr)
	}
	state.UpdatedAt = parsedUpdatedAt
	return &state, nil
}

func scanSession(s scanner) (*model.Session, error) {
	session := model.Session{}
	var taskID, endedAt sql.NullString
	var completed int
	var startedAt, createdAt string
	err := s.Scan(
		&session.ID,
		&session.UserID,
		&taskID,
		&session.Phase,
		&session.DurationSeconds,
		&startedAt,
		&endedAt,
		&completed,
		&createdAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}

	session.Completed = completed != 0
	if taskID.Valid {
		value := taskID.String
		session.TaskID = &value
	}

	parsedStartedAt, err := parseTime(startedAt)
	if err != nil {
		return nil, fmt.Errorf("parse session started_at: %w", err)
	}
	session.StartedAt = parsedStartedAt

	if endedAt.Valid {
		parsedEndedAt, parseErr := parseTime(endedAt.String)
		if parseErr != nil {
			return nil, fmt.Errorf("parse session ended_at: %w", parseErr)
		}
		session.EndedAt = &parsedEndedAt
	}

	parsedCreatedAt, err := parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse session created_at: %w", err)
	}
	session.CreatedAt = parsedCreatedAt

	return &session, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
