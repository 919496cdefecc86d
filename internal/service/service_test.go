package service

import (
	"context"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"lernfokus/backend/internal/db"
	"lernfokus/backend/internal/model"
	"lernfokus/backend/internal/progress"
	"lernfokus/backend/internal/repository"
)

// spyNotifier records outbound signals. Services dispatch them from
// goroutines, so tests synchronize through waitFor.
type spyNotifier struct {
	mu         sync.Mutex
	goals      []string
	activities []progress.Activity
}

func (s *spyNotifier) GoalCompleted(_ context.Context, _ string, goalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.goals = append(s.goals, goalID)
	return nil
}

func (s *spyNotifier) LearningActivity(_ context.Context, _ string, activity progress.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activities = append(s.activities, activity)
	return nil
}

func (s *spyNotifier) goalCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.goals)
}

func (s *spyNotifier) activityCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.activities)
}

func waitFor(t *testing.T, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

type fixture struct {
	timerRepo *repository.TimerRepository
	taskRepo  *repository.TaskRepository
	userRepo  *repository.UserRepository
	notifier  *spyNotifier
	timers    *TimerService
	tasks     *TaskService
	userID    string

	// clock drives every service's notion of now.
	clock time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	database, err := db.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		_ = database.Close()
	})

	_, currentFile, _, _ := runtime.Caller(0)
	migrationsDir := filepath.Join(filepath.Dir(currentFile), "..", "..", "migrations")
	if err := db.RunMigrations(database, migrationsDir); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	f := &fixture{
		timerRepo: repository.NewTimerRepository(database),
		taskRepo:  repository.NewTaskRepository(database),
		userRepo:  repository.NewUserRepository(database),
		notifier:  &spyNotifier{},
		clock:     time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	f.timers = NewTimerService(f.timerRepo, f.taskRepo, f.notifier)
	f.timers.now = func() time.Time { return f.clock }
	f.tasks = NewTaskService(f.taskRepo, f.timerRepo, f.notifier)
	f.tasks.now = func() time.Time { return f.clock }

	f.userID = uuid.NewString()
	now := f.clock
	user := model.User{
		ID:           f.userID,
		Email:        "student@example.com",
		PasswordHash: "x",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	ctx := context.Background()
	if err := f.userRepo.Create(ctx, &user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := f.timerRepo.CreateInitialState(ctx, f.userID); err != nil {
		t.Fatalf("create initial state: %v", err)
	}

	return f
}

func (f *fixture) advance(d time.Duration) {
	f.clock = f.clock.Add(d)
}

func (f *fixture) mustState(t *testing.T) *StateView {
	t.Helper()
	state, apiErr := f.timers.GetState(context.Background(), f.userID)
	if apiErr != nil {
		t.Fatalf("get state: %v", apiErr)
	}
	return state
}

func (f *fixture) mustHistory(t *testing.T) []model.Session {
	t.Helper()
	sessions, apiErr := f.timers.GetHistory(context.Background(), f.userID, 50)
	if apiErr != nil {
		t.Fatalf("get history: %v", apiErr)
	}
	return sessions
}
