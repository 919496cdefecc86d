package service

import (
	"context"
	"testing"
	"time"
)

func TestAddTaskValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, apiErr := f.tasks.Add(ctx, f.userID, AddTaskInput{Text: "   ", EstimatedPomodoros: 1}); apiErr == nil {
		t.Fatal("expected error for empty text")
	}
	if _, apiErr := f.tasks.Add(ctx, f.userID, AddTaskInput{Text: "Kapitel 3 lesen", EstimatedPomodoros: 0}); apiErr == nil {
		t.Fatal("expected error for non-positive estimate")
	}
}

func TestFirstTaskBecomesActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, apiErr := f.tasks.Add(ctx, f.userID, AddTaskInput{Text: "Vokabeln wiederholen", EstimatedPomodoros: 2})
	if apiErr != nil {
		t.Fatalf("add first task: %v", apiErr)
	}
	second, apiErr := f.tasks.Add(ctx, f.userID, AddTaskInput{Text: "Hörverstehen", EstimatedPomodoros: 1})
	if apiErr != nil {
		t.Fatalf("add second task: %v", apiErr)
	}

	state := f.mustState(t)
	if state.ActiveTaskID == nil || *state.ActiveTaskID != first.ID {
		t.Fatalf("expected first task to stay active, got %+v", state.ActiveTaskID)
	}
	if second.Position <= first.Position {
		t.Fatalf("expected append ordering, got %d then %d", first.Position, second.Position)
	}
}

func TestCompletingGoalLinkedTaskSignalsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	goalID := "goal-b1-grammatik"
	task, apiErr := f.tasks.Add(ctx, f.userID, AddTaskInput{
		Text:               "Konjunktiv II abschließen",
		EstimatedPomodoros: 3,
		RoadmapGoalID:      &goalID,
	})
	if apiErr != nil {
		t.Fatalf("add task: %v", apiErr)
	}

	update := UpdateTaskInput{
		Text:               task.Text,
		Completed:          true,
		EstimatedPomodoros: task.EstimatedPomodoros,
		CompletedPomodoros: 3,
		RoadmapGoalID:      &goalID,
	}
	if _, apiErr := f.tasks.Update(ctx, f.userID, task.ID, update); apiErr != nil {
		t.Fatalf("update task: %v", apiErr)
	}

	waitFor(t, func() bool { return f.notifier.goalCount() == 1 })
	f.notifier.mu.Lock()
	got := f.notifier.goals[0]
	f.notifier.mu.Unlock()
	if got != goalID {
		t.Fatalf("expected signal for %s, got %s", goalID, got)
	}

	// Saving the already-completed task again must not re-signal.
	if _, apiErr := f.tasks.Update(ctx, f.userID, task.ID, update); apiErr != nil {
		t.Fatalf("second update: %v", apiErr)
	}
	time.Sleep(50 * time.Millisecond)
	if got := f.notifier.goalCount(); got != 1 {
		t.Fatalf("expected exactly one goal signal, got %d", got)
	}
}

func TestCompletingTaskWithoutGoalSignalsNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	task, apiErr := f.tasks.Add(ctx, f.userID, AddTaskInput{Text: "Aussprache üben", EstimatedPomodoros: 1})
	if apiErr != nil {
		t.Fatalf("add task: %v", apiErr)
	}

	update := UpdateTaskInput{
		Text:               task.Text,
		Completed:          true,
		EstimatedPomodoros: 1,
	}
	if _, apiErr := f.tasks.Update(ctx, f.userID, task.ID, update); apiErr != nil {
		t.Fatalf("update task: %v", apiErr)
	}

	time.Sleep(50 * time.Millisecond)
	if got := f.notifier.goalCount(); got != 0 {
		t.Fatalf("expected no goal signal, got %d", got)
	}
}

func TestDeleteActiveTaskClearsReference(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	task, apiErr := f.tasks.Add(ctx, f.userID, AddTaskInput{Text: "Relativsätze", EstimatedPomodoros: 2})
	if apiErr != nil {
		t.Fatalf("add task: %v", apiErr)
	}
	if state := f.mustState(t); state.ActiveTaskID == nil {
		t.Fatal("expected task active before delete")
	}

	if apiErr := f.tasks.Delete(ctx, f.userID, task.ID); apiErr != nil {
		t.Fatalf("delete task: %v", apiErr)
	}

	if state := f.mustState(t); state.ActiveTaskID != nil {
		t.Fatalf("expected active reference cleared, got %+v", state.ActiveTaskID)
	}
	if apiErr := f.tasks.Delete(ctx, f.userID, task.ID); apiErr == nil {
		t.Fatal("expected 404 for second delete")
	}
}

func TestSubtaskLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	task, apiErr := f.tasks.Add(ctx, f.userID, AddTaskInput{Text: "Brief schreiben", EstimatedPomodoros: 2})
	if apiErr != nil {
		t.Fatalf("add task: %v", apiErr)
	}

	task, apiErr = f.tasks.AddSubtask(ctx, f.userID, task.ID, "Anrede formulieren")
	if apiErr != nil {
		t.Fatalf("add subtask: %v", apiErr)
	}
	task, apiErr = f.tasks.AddSubtask(ctx, f.userID, task.ID, "Schlussformel")
	if apiErr != nil {
		t.Fatalf("add second subtask: %v", apiErr)
	}
	if len(task.Subtasks) != 2 {
		t.Fatalf("expected 2 subtasks, got %d", len(task.Subtasks))
	}

	subtaskID := task.Subtasks[0].ID
	task, apiErr = f.tasks.ToggleSubtask(ctx, f.userID, task.ID, subtaskID)
	if apiErr != nil {
		t.Fatalf("toggle subtask: %v", apiErr)
	}
	if !task.Subtasks[0].Completed {
		t.Fatal("expected subtask toggled on")
	}

	task, apiErr = f.tasks.DeleteSubtask(ctx, f.userID, task.ID, subtaskID)
	if apiErr != nil {
		t.Fatalf("delete subtask: %v", apiErr)
	}
	if len(task.Subtasks) != 1 || task.Subtasks[0].ID == subtaskID {
		t.Fatalf("expected remaining subtask only, got %+v", task.Subtasks)
	}

	if _, apiErr := f.tasks.ToggleSubtask(ctx, f.userID, task.ID, "missing"); apiErr == nil {
		t.Fatal("expected 404 for unknown subtask")
	}

	if _, apiErr := f.tasks.AddSubtask(ctx, f.userID, task.ID, ""); apiErr == nil {
		t.Fatal("expected error for empty subtask text")
	}
}
