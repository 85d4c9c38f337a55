package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/hray3182/GeoNudge/internal/models"
)

type actionRequest struct {
	Action models.NotificationAction `json:"action" binding:"required"`
}

// handleNotificationAction applies a user action. Acting on a cancelled or
// failed notification answers 409; the client drops the stale banner.
func (h *Handler) handleNotificationAction(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req actionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.service.HandleAction(c.Request.Context(), id, req.Action)
	if err != nil {
		abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) handleUserGeofences(c *gin.Context) {
	userID, ok := pathID(c)
	if !ok {
		return
	}
	geofences, err := h.geofences.ListActiveForUser(c.Request.Context(), userID)
	if err != nil {
		abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"geofences": geofences})
}

func (h *Handler) handleUserNotifications(c *gin.Context) {
	userID, ok := pathID(c)
	if !ok {
		return
	}
	notifs, err := h.notifs.ListByUser(c.Request.Context(), userID, 100)
	if err != nil {
		abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": notifs})
}

type deviceRequest struct {
	UserID   uuid.UUID `json:"user_id" binding:"required"`
	Token    string    `json:"token" binding:"required"`
	Platform string    `json:"platform"`
}

func (h *Handler) handleDeviceRegister(c *gin.Context) {
	var req deviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "invalid request body")
		return
	}
	d := &models.Device{
		UserID:   req.UserID,
		Token:    req.Token,
		Platform: req.Platform,
	}
	if err := h.devices.Register(c.Request.Context(), d); err != nil {
		abortError(c, err)
		return
	}
	c.JSON(http.StatusCreated, d)
}

func (h *Handler) handleDeviceRemove(c *gin.Context) {
	var req deviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.devices.Remove(c.Request.Context(), req.UserID, req.Token); err != nil {
		abortError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) handleStats(c *gin.Context) {
	stats, err := h.stats.Snapshot(c.Request.Context())
	if err != nil {
		abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
