package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/hray3182/GeoNudge/internal/errs"
	"github.com/hray3182/GeoNudge/internal/models"
)

func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		abort(c, http.StatusBadRequest, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

type taskSyncRequest struct {
	UserID         uuid.UUID             `json:"user_id" binding:"required"`
	Title          string                `json:"title" binding:"required,max=255"`
	PlaceName      string                `json:"place_name"`
	CategoryTag    string                `json:"category_tag"`
	Classification models.Classification `json:"classification" binding:"required"`
	Lat            float64               `json:"lat"`
	Lng            float64               `json:"lng"`
	Status         models.TaskStatus     `json:"status"`
}

// handleTaskSync upserts a task and regenerates its geofence set. A full
// registry answers 200 with the task stored dormant, flagged in the body:
// the client treats it as success.
func (h *Handler) handleTaskSync(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req taskSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "invalid request body")
		return
	}

	task := &models.Task{
		ID:             id,
		UserID:         req.UserID,
		Title:          req.Title,
		PlaceName:      req.PlaceName,
		CategoryTag:    req.CategoryTag,
		Classification: req.Classification,
		Lat:            req.Lat,
		Lng:            req.Lng,
		Status:         req.Status,
	}
	geofences, err := h.service.SyncTask(c.Request.Context(), task)
	if err != nil && !errors.Is(err, errs.ErrCapacity) {
		abortError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"task":        task,
		"geofences":   geofences,
		"at_capacity": errors.Is(err, errs.ErrCapacity),
	})
}

type taskStatusRequest struct {
	Status models.TaskStatus `json:"status" binding:"required"`
}

func (h *Handler) handleTaskStatus(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req taskStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.service.TaskStatusChanged(c.Request.Context(), id, req.Status); err != nil {
		abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": req.Status})
}

type taskMuteRequest struct {
	Duration models.MuteDuration `json:"duration" binding:"required"`
}

func (h *Handler) handleTaskMute(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req taskMuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "invalid request body")
		return
	}
	mute, err := h.service.MuteTask(c.Request.Context(), id, req.Duration)
	if err != nil {
		abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"mute": mute})
}

func (h *Handler) handleTaskUnmute(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.service.UnmuteTask(c.Request.Context(), id); err != nil {
		abortError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) handleTaskDelete(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.service.DeleteTask(c.Request.Context(), id); err != nil {
		abortError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
