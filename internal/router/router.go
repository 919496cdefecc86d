package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"lernfokus/backend/internal/handler"
	"lernfokus/backend/internal/middleware"
	"lernfokus/backend/internal/service"
)

func New(
	authService *service.AuthService,
	authHandler *handler.AuthHandler,
	timerHandler *handler.TimerHandler,
	taskHandler *handler.TaskHandler,
	corsOrigins []string,
) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Logger(), gin.Recovery(), middleware.CORS(corsOrigins))

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := engine.Group("/api")
	auth := api.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)

	timer := api.Group("/timer")
	timer.Use(middleware.Auth(authService))
	timer.GET("/state", timerHandler.GetState)
	timer.POST("/start", timerHandler.Start)
	timer.POST("/pause", timerHandler.Pause)
	timer.POST("/reset", timerHandler.Reset)
	timer.POST("/phase", timerHandler.SwitchPhase)
	timer.PUT("/settings", timerHandler.UpdateSettings)
	timer.PUT("/active-task", timerHandler.SetActiveTask)
	timer.GET("/history", timerHandler.GetHistory)
	timer.GET("/stats", timerHandler.GetStats)

	tasks := api.Group("/tasks")
	tasks.Use(middleware.Auth(authService))
	tasks.GET("", taskHandler.List)
	tasks.POST("", taskHandler.Add)
	tasks.PUT("/:id", taskHandler.Update)
	tasks.DELETE("/:id", taskHandler.Delete)
	tasks.POST("/:id/subtasks", taskHandler.AddSubtask)
	tasks.POST("/:id/subtasks/:subtaskID/toggle", taskHandler.ToggleSubtask)
	tasks.DELETE("/:id/subtasks/:subtaskID", taskHandler.DeleteSubtask)

	return engine
}
