package model

import "time"

const (
	PhaseWork       = "work"
	PhaseShortBreak = "short_break"
	PhaseLongBreak  = "long_break"

	StatusIdle    = "idle"
	StatusRunning = "running"
	StatusPaused  = "paused"
)

const (
	DefaultWorkDurationSeconds       = 25 * 60
	DefaultShortBreakDurationSeconds = 5 * 60
	DefaultLongBreakDurationSeconds  = 15 * 60
	DefaultLongBreakInterval         = 4
)

func IsValidPhase(phase string) bool {
	return phase == PhaseWork || phase == PhaseShortBreak || phase == PhaseLongBreak
}

// TimerState is the per-user persisted snapshot of the study timer.
type TimerState struct {
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
	StartedAt                 *time.Time `json:"startedAt,omitempty"`
	SessionID                 *string    `json:"sessionId,omitempty"`
	Version                   int        `json:"version"`
	UpdatedAt                 time.Time  `json:"updatedAt"`
}

// Session is one interval of the timer. Records stay open (EndedAt nil) while
// the interval is in progress; completed is set only on natural expiry. Open
// records that the user abandons are deleted, never finalized.
type Session struct {
	ID              string     `json:"id"`
	UserID          string     `json:"userId"`
	TaskID          *string    `json:"taskId,omitempty"`
	Phase           string     `json:"phase"`
	DurationSeconds int        `json:"durationSeconds"`
	StartedAt       time.Time  `json:"startedAt"`
	EndedAt         *time.Time `json:"endedAt,omitempty"`
	Completed       bool       `json:"completed"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// SessionStats is the read-side aggregation over completed sessions.
type SessionStats struct {
	FocusMinutes       int `json:"focusMinutes"`
	CompletedPomodoros int `json:"completedPomodoros"`
}
