package service

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "lernfokus/backend/internal/errors"
	"lernfokus/backend/internal/model"
	"lernfokus/backend/internal/progress"
	"lernfokus/backend/internal/repository"
)

// TaskService is the task ledger: CRUD over tasks and their subtasks, plus
// the roadmap-goal signal fired when a goal-linked task is completed.
type TaskService struct {
	taskRepo  *repository.TaskRepository
	timerRepo *repository.TimerRepository
	notifier  progress.Notifier
	now       func() time.Time
}

func NewTaskService(
	taskRepo *repository.TaskRepository,
	timerRepo *repository.TimerRepository,
	notifier progress.Notifier,
) *TaskService {
	if notifier == nil {
		notifier = progress.NopNotifier{}
	}
	return &TaskService{
		taskRepo:  taskRepo,
		timerRepo: timerRepo,
		notifier:  notifier,
		now:       time.Now,
	}
}

// AddTaskInput is the creation payload. Subtasks start empty.
type AddTaskInput struct {
	Text               string
	EstimatedPomodoros int
	Notes              string
	RoadmapGoalID      *string
}

// UpdateTaskInput is a full-record replace.
type UpdateTaskInput struct {
	Text               string
	Completed          bool
	EstimatedPomodoros int
	CompletedPomodoros int
	Notes              string
	RoadmapGoalID      *string
}

func (s *TaskService) List(ctx context.Context, userID string) ([]model.Task, *apperrors.APIError) {
	tasks, err := s.taskRepo.List(ctx, userID)
	if err != nil {
		return nil, apperrors.Internal("failed to list tasks")
	}
	return tasks, nil
}

func (s *TaskService) Get(ctx context.Context, userID, taskID string) (*model.Task, *apperrors.APIError) {
	task, err := s.taskRepo.Get(ctx, userID, taskID)
	if err == repository.ErrNotFound {
		return nil, apperrors.NotFound("task_not_found", "task not found")
	}
	if err != nil {
		return nil, apperrors.Internal("failed to read task")
	}
	return task, nil
}

// Add creates a task. If no task is currently active on the timer, the new
// task becomes the active one.
func (s *TaskService) Add(ctx context.Context, userID string, input AddTaskInput) (*model.Task, *apperrors.APIError) {
	text := strings.TrimSpace(input.Text)
	if text == "" {
		return nil, apperrors.BadRequest("invalid_text", "task text must not be empty")
	}
	if input.EstimatedPomodoros <= 0 {
		return nil, apperrors.BadRequest("invalid_estimate", "estimated pomodoros must be positive")
	}

	now := s.now().UTC()
	position, err := s.taskRepo.NextPosition(ctx, userID)
	if err != nil {
		return nil, apperrors.Internal("failed to position task")
	}

	task := model.Task{
		ID:                 uuid.NewString(),
		UserID:             userID,
		Text:               text,
		EstimatedPomodoros: input.EstimatedPomodoros,
		Subtasks:           []model.Subtask{},
		Notes:              input.Notes,
		RoadmapGoalID:      input.RoadmapGoalID,
		Position:           position,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := s.taskRepo.Insert(ctx, &task); err != nil {
		return nil, apperrors.Internal("failed to create task")
	}

	if apiErr := s.adoptAsActiveIfUnset(ctx, userID, task.ID, now); apiErr != nil {
		return nil, apiErr
	}

	return &task, nil
}

// Update replaces the task record. Completing a task that carries a roadmap
// goal fires the goal-completion signal exactly once, on the transition.
func (s *TaskService) Update(ctx context.Context, userID, taskID string, input UpdateTaskInput) (*model.Task, *apperrors.APIError) {
	text := strings.TrimSpace(input.Text)
	if text == "" {
		return nil, apperrors.BadRequest("invalid_text", "task text must not be empty")
	}
	if input.EstimatedPomodoros <= 0 {
		return nil, apperrors.BadRequest("invalid_estimate", "estimated pomodoros must be positive")
	}
	if input.CompletedPomodoros < 0 {
		return nil, apperrors.BadRequest("invalid_progress", "completed pomodoros must not be negative")
	}

	existing, apiErr := s.Get(ctx, userID, taskID)
	if apiErr != nil {
		return nil, apiErr
	}

	now := s.now().UTC()
	task := *existing
	task.Text = text
	task.Completed = input.Completed
	task.EstimatedPomodoros = input.EstimatedPomodoros
	task.CompletedPomodoros = input.CompletedPomodoros
	task.Notes = input.Notes
	task.RoadmapGoalID = input.RoadmapGoalID
	task.UpdatedAt = now

	if err := s.taskRepo.Update(ctx, &task); err != nil {
		if err == repository.ErrNotFound {
			return nil, apperrors.NotFound("task_not_found", "task not found")
		}
		return nil, apperrors.Internal("failed to update task")
	}

	if task.Completed && !existing.Completed && task.RoadmapGoalID != nil {
		s.signalGoalCompleted(userID, *task.RoadmapGoalID)
	}

	return &task, nil
}

// Delete removes the task; if it was the timer's active task, the reference
// is cleared in the same transaction.
func (s *TaskService) Delete(ctx context.Context, userID, taskID string) *apperrors.APIError {
	tx, err := s.taskRepo.BeginTx(ctx)
	if err != nil {
		return apperrors.Internal("failed to start transaction")
	}
	defer tx.Rollback()

	if err := s.taskRepo.DeleteTx(ctx, tx, userID, taskID); err != nil {
		if err == repository.ErrNotFound {
			return apperrors.NotFound("task_not_found", "task not found")
		}
		return apperrors.Internal("failed to delete task")
	}

	if err := s.timerRepo.ClearActiveTaskTx(ctx, tx, userID, taskID); err != nil {
		return apperrors.Internal("failed to clear active task")
	}

	if err := tx.Commit(); err != nil {
		return apperrors.Internal("failed to commit transaction")
	}
	return nil
}

func (s *TaskService) AddSubtask(ctx context.Context, userID, taskID, text string) (*model.Task, *apperrors.APIError) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperrors.BadRequest("invalid_text", "subtask text must not be empty")
	}

	return s.mutateSubtasks(ctx, userID, taskID, func(subtasks []model.Subtask) ([]model.Subtask, *apperrors.APIError) {
		return append(subtasks, model.Subtask{
			ID:   uuid.NewString(),
			Text: text,
		}), nil
	})
}

func (s *TaskService) ToggleSubtask(ctx context.Context, userID, taskID, subtaskID string) (*model.Task, *apperrors.APIError) {
	return s.mutateSubtasks(ctx, userID, taskID, func(subtasks []model.Subtask) ([]model.Subtask, *apperrors.APIError) {
		for i := range subtasks {
			if subtasks[i].ID == subtaskID {
				subtasks[i].Completed = !subtasks[i].Completed
				return subtasks, nil
			}
		}
		return nil, apperrors.NotFound("subtask_not_found", "subtask not found")
	})
}

func (s *TaskService) DeleteSubtask(ctx context.Context, userID, taskID, subtaskID string) (*model.Task, *apperrors.APIError) {
	return s.mutateSubtasks(ctx, userID, taskID, func(subtasks []model.Subtask) ([]model.Subtask, *apperrors.APIError) {
		for i := range subtasks {
			if subtasks[i].ID == subtaskID {
				return append(subtasks[:i], subtasks[i+1:]...), nil
			}
		}
		return nil, apperrors.NotFound("subtask_not_found", "subtask not found")
	})
}

func (s *TaskService) mutateSubtasks(
	ctx context.Context,
	userID, taskID string,
	mutate func([]model.Subtask) ([]model.Subtask, *apperrors.APIError),
) (*model.Task, *apperrors.APIError) {
	task, apiErr := s.Get(ctx, userID, taskID)
	if apiErr != nil {
		return nil, apiErr
	}

	subtasks, apiErr := mutate(task.Subtasks)
	if apiErr != nil {
		return nil, apiErr
	}

	task.Subtasks = subtasks
	task.UpdatedAt = s.now().UTC()

	if err := s.taskRepo.Update(ctx, task); err != nil {
		if err == repository.ErrNotFound {
			return nil, apperrors.NotFound("task_not_found", "task not found")
		}
		return nil, apperrors.Internal("failed to update subtasks")
	}
	return task, nil
}

// adoptAsActiveIfUnset makes the new task active when the timer has none.
func (s *TaskService) adoptAsActiveIfUnset(ctx context.Context, userID, taskID string, now time.Time) *apperrors.APIError {
	tx, err := s.timerRepo.BeginTx(ctx)
	if err != nil {
		return apperrors.Internal("failed to start transaction")
	}
	defer tx.Rollback()

	state, err := s.timerRepo.GetStateTx(ctx, tx, userID)
	if err == repository.ErrNotFound {
		// No timer row yet; nothing to adopt into.
		return nil
	}
	if err != nil {
		return apperrors.Internal("failed to read timer state")
	}
	if state.ActiveTaskID != nil {
		return nil
	}

	state.ActiveTaskID = &taskID
	state.Version++
	state.UpdatedAt = now
	if err := s.timerRepo.UpdateStateTx(ctx, tx, state); err != nil {
		return apperrors.Internal("failed to set active task")
	}
	if err := tx.Commit(); err != nil {
		return apperrors.Internal("failed to commit transaction")
	}
	return nil
}

func (s *TaskService) signalGoalCompleted(userID, goalID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := s.notifier.GoalCompleted(ctx, userID, goalID); err != nil {
			log.Printf("goal completion signal failed for user %s goal %s: %v", userID, goalID, err)
		}
	}()
}
