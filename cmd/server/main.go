package main

import (
	"log"

	"lernfokus/backend/internal/config"
	"lernfokus/backend/internal/db"
	"lernfokus/backend/internal/handler"
	"lernfokus/backend/internal/progress"
	"lernfokus/backend/internal/repository"
	"lernfokus/backend/internal/router"
	"lernfokus/backend/internal/service"
)

func main() {
	cfg := config.Load()

	database, err := db.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer database.Close()

	if err := db.RunMigrations(database, cfg.MigrationsDir); err != nil {
		log.Fatalf("run migrations: %v", err)
	}

	userRepo := repository.NewUserRepository(database)
	timerRepo := repository.NewTimerRepository(database)
	taskRepo := repository.NewTaskRepository(database)

	var notifier progress.Notifier = progress.NopNotifier{}
	if cfg.ProgressURL != "" {
		notifier = progress.NewWebhookNotifier(cfg.ProgressURL, cfg.ProgressTimeout)
	}

	authService := service.NewAuthService(userRepo, timerRepo, cfg.JWTSecret, cfg.TokenTTL)
	timerService := service.NewTimerService(timerRepo, taskRepo, notifier)
	taskService := service.NewTaskService(taskRepo, timerRepo, notifier)

	authHandler := handler.NewAuthHandler(authService)
	timerHandler := handler.NewTimerHandler(timerService)
	taskHandler := handler.NewTaskHandler(taskService)

	engine := router.New(authService, authHandler, timerHandler, taskHandler, cfg.CORSOrigins)
	log.Printf("backend listening on :%s", cfg.Port)
	if err := engine.Run(":" + cfg.Port); err != nil {
		log.Fatalf("run server: %v", err)
	}
}
