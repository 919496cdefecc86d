package model

import "time"

// Task is a user-defined study task the timer can credit pomodoros against.
// Subtasks have no independent lifecycle; they live and die with the parent.
type Task struct {
	ID                 string    `json:"id"`
	UserID             string    `json:"-"`
	Text               string    `json:"text"`
	Completed          bool      `json:"completed"`
	EstimatedPomodoros int       `json:"estimatedPomodoros"`
	CompletedPomodoros int       `json:"completedPomodoros"`
	Subtasks           []Subtask `json:"subtasks"`
	Notes              string    `json:"notes,omitempty"`
	RoadmapGoalID      *string   `json:"roadmapGoalId,omitempty"`
	Position           int       `json:"position"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

type Subtask struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
}
