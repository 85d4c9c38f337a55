// Package api is the HTTP surface: crossing-report intake, task sync and
// lifecycle, notification actions, and the ops endpoints.
package api

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hray3182/GeoNudge/internal/intake"
	"github.com/hray3182/GeoNudge/internal/models"
	"github.com/hray3182/GeoNudge/internal/notify"
	"github.com/hray3182/GeoNudge/internal/repository"
)

type EventIntake interface {
	Process(ctx context.Context, report intake.CrossingReport) (*models.GeofenceEvent, error)
}

type OfflineBuffer interface {
	Enqueue(ctx context.Context, report intake.CrossingReport) (*models.OfflineEvent, error)
}

type NotifyService interface {
	HandleAction(ctx context.Context, notificationID uuid.UUID, action models.NotificationAction) (*notify.ActionResult, error)
	TaskStatusChanged(ctx context.Context, taskID uuid.UUID, status models.TaskStatus) error
	DeleteTask(ctx context.Context, taskID uuid.UUID) error
	SyncTask(ctx context.Context, task *models.Task) ([]models.Geofence, error)
	MuteTask(ctx context.Context, taskID uuid.UUID, d models.MuteDuration) (*models.TaskMute, error)
	UnmuteTask(ctx context.Context, taskID uuid.UUID) error
}

type GeofenceReader interface {
	ListActiveForUser(ctx context.Context, userID uuid.UUID) ([]models.Geofence, error)
}

type NotificationReader interface {
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Notification, error)
}

type DeviceRegistrar interface {
	Register(ctx context.Context, d *models.Device) error
	Remove(ctx context.Context, userID uuid.UUID, token string) error
}

type StatsSource interface {
	Snapshot(ctx context.Context) (*repository.Stats, error)
}

type Handler struct {
	intake    EventIntake
	offline   OfflineBuffer
	service   NotifyService
	geofences GeofenceReader
	notifs    NotificationReader
	devices   DeviceRegistrar
	stats     StatsSource
	logger    zerolog.Logger
}

func NewHandler(intake EventIntake, offline OfflineBuffer, service NotifyService,
	geofences GeofenceReader, notifs NotificationReader, devices DeviceRegistrar,
	stats StatsSource, logger zerolog.Logger) *Handler {
	return &Handler{
		intake:    intake,
		offline:   offline,
		service:   service,
		geofences: geofences,
		notifs:    notifs,
		devices:   devices,
		stats:     stats,
		logger:    logger.With().Str("component", "api").Logger(),
	}
}

// Register wires the v1 routes onto the engine.
func (h *Handler) Register(r *gin.Engine) {
	v1 := r.Group("/v1")
	{
		v1.POST("/events", h.handleEvent)
		v1.POST("/events/sync", h.handleEventSync)

		v1.POST("/tasks/:id/sync", h.handleTaskSync)
		v1.POST("/tasks/:id/status", h.handleTaskStatus)
		v1.POST("/tasks/:id/mute", h.handleTaskMute)
		v1.POST("/tasks/:id/unmute", h.handleTaskUnmute)
		v1.DELETE("/tasks/:id", h.handleTaskDelete)

		v1.POST("/notifications/:id/action", h.handleNotificationAction)

		v1.GET("/users/:id/geofences", h.handleUserGeofences)
		v1.GET("/users/:id/notifications", h.handleUserNotifications)

		v1.POST("/devices", h.handleDeviceRegister)
		v1.DELETE("/devices", h.handleDeviceRemove)

		v1.GET("/stats", h.handleStats)
	}
}
