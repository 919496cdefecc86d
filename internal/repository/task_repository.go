package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"lernfokus/backend/internal/model"
)

// TaskRepository persists the task ledger. Subtasks have no independent
// lifecycle, so they are stored as a JSON column on the parent row.
type TaskRepository struct {
	db *sql.DB
}

func NewTaskRepository(db *sql.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) BeginTx(ctx context.Context) (*sql.Tx, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return tx, nil
}

const taskColumns = `id, user_id, text, completed, estimated_pomodoros,
	completed_pomodoros, subtasks, notes, roadmap_goal_id, position,
	created_at, updated_at`

func (r *TaskRepository) List(ctx context.Context, userID string) ([]model.Task, error) {
	rows, err := r.db.QueryContext(
		ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE user_id = ? ORDER BY position ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]model.Task, 0)
	for rows.Next() {
		task, scanErr := scanTask(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		tasks = append(tasks, *task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}

	return tasks, nil
}

func (r *TaskRepository) Get(ctx context.Context, userID, taskID string) (*model.Task, error) {
	row := r.db.QueryRowContext(
		ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE user_id = ? AND id = ?`,
		userID,
		taskID,
	)
	return scanTask(row)
}

func (r *TaskRepository) GetTx(ctx context.Context, tx *sql.Tx, userID, taskID string) (*model.Task, error) {
	row := tx.QueryRowContext(
		ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE user_id = ? AND id = ?`,
		userID,
		taskID,
	)
	return scanTask(row)
}

func (r *TaskRepository) Insert(ctx context.Context, task *model.Task) error {
	subtasks, err := marshalSubtasks(task.Subtasks)
	if err != nil {
		return err
	}
	var goalID interface{}
	if task.RoadmapGoalID != nil {
		goalID = *task.RoadmapGoalID
	}

	_, err = r.db.ExecContext(
		ctx,
		`INSERT INTO tasks (
			id, user_id, text, completed, estimated_pomodoros,
			completed_pomodoros, subtasks, notes, roadmap_goal_id, position,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID,
		task.UserID,
		task.Text,
		boolToInt(task.Completed),
		task.EstimatedPomodoros,
		task.CompletedPomodoros,
		subtasks,
		task.Notes,
		goalID,
		task.Position,
		task.CreatedAt.UTC().Format(time.RFC3339Nano),
		task.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

func (r *TaskRepository) Update(ctx context.Context, task *model.Task) error {
	subtasks, err := marshalSubtasks(task.Subtasks)
	if err != nil {
		return err
	}
	var goalID interface{}
	if task.RoadmapGoalID != nil {
		goalID = *task.RoadmapGoalID
	}

	result, err := r.db.ExecContext(
		ctx,
		`UPDATE tasks
		 SET text = ?,
		     completed = ?,
		     estimated_pomodoros = ?,
		     completed_pomodoros = ?,
		     subtasks = ?,
		     notes = ?,
		     roadmap_goal_id = ?,
		     position = ?,
		     updated_at = ?
		 WHERE user_id = ? AND id = ?`,
		task.Text,
		boolToInt(task.Completed),
		task.EstimatedPomodoros,
		task.CompletedPomodoros,
		subtasks,
		task.Notes,
		goalID,
		task.Position,
		task.UpdatedAt.UTC().Format(time.RFC3339Nano),
		task.UserID,
		task.ID,
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update task affected rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementCompletedTx adds one finished pomodoro to the task. Missing tasks
// are tolerated: the credit is best effort and the timer must not fail on a
// task deleted mid-phase.
func (r *TaskRepository) IncrementCompletedTx(ctx context.Context, tx *sql.Tx, userID, taskID string, now time.Time) error {
	_, err := tx.ExecContext(
		ctx,
		`UPDATE tasks
		 SET completed_pomodoros = completed_pomodoros + 1, updated_at = ?
		 WHERE user_id = ? AND id = ?`,
		now.UTC().Format(time.RFC3339Nano),
		userID,
		taskID,
	)
	if err != nil {
		return fmt.Errorf("increment task pomodoros: %w", err)
	}
	return nil
}

func (r *TaskRepository) DeleteTx(ctx context.Context, tx *sql.Tx, userID, taskID string) error {
	result, err := tx.ExecContext(
		ctx,
		`DELETE FROM tasks WHERE user_id = ? AND id = ?`,
		userID,
		taskID,
	)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete task affected rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// NextPosition returns the append position for a new task in the user's
// ordered list.
func (r *TaskRepository) NextPosition(ctx context.Context, userID string) (int, error) {
	var position int
	err := r.db.QueryRowContext(
		ctx,
		`SELECT COALESCE(MAX(position) + 1, 0) FROM tasks WHERE user_id = ?`,
		userID,
	).Scan(&position)
	if err != nil {
		return 0, fmt.Errorf("next task position: %w", err)
	}
	return position, nil
}

func scanTask(s scanner) (*model.Task, error) {
	task := model.Task{}
	var completed int
	var subtasksRaw string
	var goalID sql.NullString
	var createdAt, updatedAt string
	err := s.Scan(
		&task.ID,
		&task.UserID,
		&task.Text,
		&completed,
		&task.EstimatedPomodoros,
		&task.CompletedPomodoros,
		&subtasksRaw,
		&task.Notes,
		&goalID,
		&task.Position,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan task: %w", err)
	}

	task.Completed = completed != 0
	if goalID.Valid {
		value := goalID.String
		task.RoadmapGoalID = &value
	}

	if err := json.Unmarshal([]byte(subtasksRaw), &task.Subtasks); err != nil {
		return nil, fmt.Errorf("decode subtasks: %w", err)
	}
	if task.Subtasks == nil {
		task.Subtasks = []model.Subtask{}
	}

	parsedCreatedAt, err := parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse task created_at: %w", err)
	}
	task.CreatedAt = parsedCreatedAt

	parsedUpdatedAt, err := parseTime(updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse task updated_at: %w", err)
	}
	task.UpdatedAt = parsedUpdatedAt

	return &task, nil
}

func marshalSubtasks(subtasks []model.Subtask) (string, error) {
	if subtasks == nil {
		subtasks = []model.Subtask{}
	}
	raw, err := json.Marshal(subtasks)
	if err != nil {
		return "", fmt.Errorf("encode subtasks: %w", err)
	}
	return string(raw), nil
}
