package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"lernfokus/backend/internal/middleware"
	"lernfokus/backend/internal/service"
)

type TaskHandler struct {
	taskService *service.TaskService
}

type addTaskRequest struct {
	Text               string  `json:"text"`
	EstimatedPomodoros int     `json:"estimatedPomodoros"`
	Notes              string  `json:"notes"`
	RoadmapGoalID      *string `json:"roadmapGoalId"`
}

type updateTaskRequest struct {
	Text               string  `json:"text"`
	Completed          bool    `json:"completed"`
	EstimatedPomodoros int     `json:"estimatedPomodoros"`
	CompletedPomodoros int     `json:"completedPomodoros"`
	Notes              string  `json:"notes"`
	RoadmapGoalID      *string `json:"roadmapGoalId"`
}

type subtaskRequest struct {
	Text string `json:"text"`
}

func NewTaskHandler(taskService *service.TaskService) *TaskHandler {
	return &TaskHandler{taskService: taskService}
}

func (h *TaskHandler) List(c *gin.Context) {
	userID := middleware.UserID(c)
	if userID == "" {
		writeUnauthorized(c)
		return
	}

	tasks, apiErr := h.taskService.List(c.Request.Context(), userID)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

func (h *TaskHandler) Add(c *gin.Context) {
	var req addTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeInvalidJSON(c)
		return
	}

	userID := middleware.UserID(c)
	task, apiErr := h.taskService.Add(c.Request.Context(), userID, service.AddTaskInput{
		Text:               req.Text,
		EstimatedPomodoros: req.EstimatedPomodoros,
		Notes:              req.Notes,
		RoadmapGoalID:      req.RoadmapGoalID,
	})
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"task": task})
}

func (h *TaskHandler) Update(c *gin.Context) {
	var req updateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeInvalidJSON(c)
		return
	}

	userID := middleware.UserID(c)
	task, apiErr := h.taskService.Update(c.Request.Context(), userID, c.Param("id"), service.UpdateTaskInput{
		Text:               req.Text,
		Completed:          req.Completed,
		EstimatedPomodoros: req.EstimatedPomodoros,
		CompletedPomodoros: req.CompletedPomodoros,
		Notes:              req.Notes,
		RoadmapGoalID:      req.RoadmapGoalID,
	})
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"task": task})
}

func (h *TaskHandler) Delete(c *gin.Context) {
	userID := middleware.UserID(c)
	if apiErr := h.taskService.Delete(c.Request.Context(), userID, c.Param("id")); apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *TaskHandler) AddSubtask(c *gin.Context) {
	var req subtaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeInvalidJSON(c)
		return
	}

	userID := middleware.UserID(c)
	task, apiErr := h.taskService.AddSubtask(c.Request.Context(), userID, c.Param("id"), req.Text)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"task": task})
}

func (h *TaskHandler) ToggleSubtask(c *gin.Context) {
	userID := middleware.UserID(c)
	task, apiErr := h.taskService.ToggleSubtask(c.Request.Context(), userID, c.Param("id"), c.Param("subtaskID"))
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"task": task})
}

func (h *TaskHandler) DeleteSubtask(c *gin.Context) {
	userID := middleware.UserID(c)
	task, apiErr := h.taskService.DeleteSubtask(c.Request.Context(), userID, c.Param("id"), c.Param("subtaskID"))
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"task": task})
}
