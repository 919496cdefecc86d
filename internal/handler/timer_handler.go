package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"lernfokus/backend/internal/middleware"
	"lernfokus/backend/internal/service"
)

type TimerHandler struct {
	timerService *service.TimerService
}

type versionRequest struct {
	BaseVersion int `json:"baseVersion"`
}

type switchPhaseRequest struct {
	BaseVersion int    `json:"baseVersion"`
	Phase       string `json:"phase"`
}

type updateSettingsRequest struct {
	BaseVersion               int    `json:"baseVersion"`
	WorkDurationSeconds       int    `json:"workDurationSeconds"`
	ShortBreakDurationSeconds int    `json:"shortBreakDurationSeconds"`
	LongBreakDurationSeconds  int    `json:"longBreakDurationSeconds"`
	LongBreakInterval         int    `json:"longBreakInterval"`
	AutoStartBreaks           *bool  `json:"autoStartBreaks"`
	AutoStartPomodoros        *bool  `json:"autoStartPomodoros"`
	SoundEnabled              *bool  `json:"soundEnabled"`
}

type activeTaskRequest struct {
	BaseVersion int    `json:"baseVersion"`
	TaskID      string `json:"taskId"`
}

func NewTimerHandler(timerService *service.TimerService) *TimerHandler {
	return &TimerHandler{timerService: timerService}
}

func (h *TimerHandler) GetState(c *gin.Context) {
	userID := middleware.UserID(c)
	if userID == "" {
		writeUnauthorized(c)
		return
	}

	state, apiErr := h.timerService.GetState(c.Request.Context(), userID)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": state})
}

func (h *TimerHandler) Start(c *gin.Context) {
	req, ok := bindVersioned(c)
	if !ok {
		return
	}

	userID := middleware.UserID(c)
	state, apiErr := h.timerService.Start(c.Request.Context(), userID, req.BaseVersion)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": state})
}

func (h *TimerHandler) Pause(c *gin.Context) {
	req, ok := bindVersioned(c)
	if !ok {
		return
	}

	userID := middleware.UserID(c)
	state, apiErr := h.timerService.Pause(c.Request.Context(), userID, req.BaseVersion)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": state})
}

func (h *TimerHandler) Reset(c *gin.Context) {
	req, ok := bindVersioned(c)
	if !ok {
		return
	}

	userID := middleware.UserID(c)
	state, apiErr := h.timerService.Reset(c.Request.Context(), userID, req.BaseVersion)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": state})
}

func (h *TimerHandler) SwitchPhase(c *gin.Context) {
	var req switchPhaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeInvalidJSON(c)
		return
	}
	if req.BaseVersion <= 0 {
		writeMissingBaseVersion(c)
		return
	}

	userID := middleware.UserID(c)
	state, apiErr := h.timerService.SwitchPhase(c.Request.Context(), userID, req.Phase, req.BaseVersion)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": state})
}

func (h *TimerHandler) UpdateSettings(c *gin.Context) {
	var req updateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeInvalidJSON(c)
		return
	}
	if req.BaseVersion <= 0 {
		writeMissingBaseVersion(c)
		return
	}

	// The auto-start and sound booleans default to on when omitted.
	input := service.SettingsInput{
		BaseVersion:               req.BaseVersion,
		WorkDurationSeconds:       req.WorkDurationSeconds,
		ShortBreakDurationSeconds: req.ShortBreakDurationSeconds,
		LongBreakDurationSeconds:  req.LongBreakDurationSeconds,
		LongBreakInterval:         req.LongBreakInterval,
		AutoStartBreaks:           boolOr(req.AutoStartBreaks, true),
		AutoStartPomodoros:        boolOr(req.AutoStartPomodoros, true),
		SoundEnabled:              boolOr(req.SoundEnabled, true),
	}

	userID := middleware.UserID(c)
	state, apiErr := h.timerService.UpdateSettings(c.Request.Context(), userID, input)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": state})
}

func (h *TimerHandler) SetActiveTask(c *gin.Context) {
	var req activeTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeInvalidJSON(c)
		return
	}
	if req.BaseVersion <= 0 {
		writeMissingBaseVersion(c)
		return
	}

	userID := middleware.UserID(c)
	state, apiErr := h.timerService.SetActiveTask(c.Request.Context(), userID, req.TaskID, req.BaseVersion)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": state})
}

func (h *TimerHandler) GetHistory(c *gin.Context) {
	userID := middleware.UserID(c)
	if userID == "" {
		writeUnauthorized(c)
		return
	}

	limit := 50
	if rawLimit := c.Query("limit"); rawLimit != "" {
		if parsed, err := strconv.Atoi(rawLimit); err == nil {
			limit = parsed
		}
	}

	sessions, apiErr := h.timerService.GetHistory(c.Request.Context(), userID, limit)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func (h *TimerHandler) GetStats(c *gin.Context) {
	userID := middleware.UserID(c)
	if userID == "" {
		writeUnauthorized(c)
		return
	}

	stats, apiErr := h.timerService.GetStats(c.Request.Context(), userID)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

func bindVersioned(c *gin.Context) (versionRequest, bool) {
	var req versionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeInvalidJSON(c)
		return req, false
	}
	if req.BaseVersion <= 0 {
		writeMissingBaseVersion(c)
		return req, false
	}
	return req, true
}

func boolOr(value *bool, fallback bool) bool {
	if value == nil {
		return fallback
	}
	return *value
}
