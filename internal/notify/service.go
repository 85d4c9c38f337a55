package notify

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hray3182/GeoNudge/internal/errs"
	"github.com/hray3182/GeoNudge/internal/geo"
	"github.com/hray3182/GeoNudge/internal/models"
	"github.com/hray3182/GeoNudge/internal/tier"
)

type TaskStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error)
	Upsert(ctx context.Context, t *models.Task) error
	SetStatus(ctx context.Context, id uuid.UUID, status models.TaskStatus) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// GeofenceWriter regenerates a task's geofence rows. Replaced rows come back
// inactive; admission into the active set is the registry's call.
type GeofenceWriter interface {
	ReplaceForTask(ctx context.Context, task *models.Task, specs []tier.Spec) ([]models.Geofence, error)
	DeactivateForTask(ctx context.Context, taskID uuid.UUID) error
}

// Suppressor is the suppress service surface the action handler needs.
type Suppressor interface {
	Snooze(ctx context.Context, n *models.Notification, d models.SnoozeDuration) (*models.NotificationSnooze, error)
	Mute(ctx context.Context, userID, taskID uuid.UUID, d models.MuteDuration) (*models.TaskMute, error)
	Unmute(ctx context.Context, taskID uuid.UUID) (bool, error)
}

// Reoptimizer recomputes a user's active geofence set.
type Reoptimizer interface {
	Reoptimize(ctx context.Context, userID uuid.UUID) ([]models.Geofence, error)
}

// ActionResult reports what an action did, for the API response.
type ActionResult struct {
	Notification *models.Notification       `json:"notification"`
	Snooze       *models.NotificationSnooze `json:"snooze,omitempty"`
	Mute         *models.TaskMute           `json:"mute,omitempty"`
}

// Service handles user actions on notifications and keeps tasks, geofences,
// and open notifications consistent when task status changes.
type Service struct {
	notifs    NotificationStore
	tasks     TaskStore
	geofences GeofenceWriter
	suppress  Suppressor
	registry  Reoptimizer
	logger    zerolog.Logger
}

func NewService(notifs NotificationStore, tasks TaskStore, geofences GeofenceWriter,
	suppress Suppressor, registry Reoptimizer, logger zerolog.Logger) *Service {
	return &Service{
		notifs:    notifs,
		tasks:     tasks,
		geofences: geofences,
		suppress:  suppress,
		registry:  registry,
		logger:    logger.With().Str("component", "notify").Logger(),
	}
}

// HandleAction applies one user action to a notification. Actions against a
// cancelled or failed notification return ErrConflict; acting on a stale
// banner must not mutate anything.
func (s *Service) HandleAction(ctx context.Context, notificationID uuid.UUID, action models.NotificationAction) (*ActionResult, error) {
	if !action.Valid() {
		return nil, fmt.Errorf("unknown action %q: %w", action, errs.ErrValidation)
	}

	n, err := s.notifs.GetByID(ctx, notificationID)
	if err != nil {
		return nil, err
	}
	if n.Status.Terminal() {
		return nil, fmt.Errorf("notification is %s: %w", n.Status, errs.ErrConflict)
	}

	res := &ActionResult{Notification: n}
	switch action {
	case models.ActionComplete:
		if err := s.completeTask(ctx, n.TaskID); err != nil {
			return nil, err
		}

	case models.ActionSnooze15m, models.ActionSnooze1h, models.ActionSnoozeToday:
		snooze, err := s.suppress.Snooze(ctx, n, snoozeDuration(action))
		if err != nil {
			return nil, err
		}
		if n.Status == models.NotifPending {
			if err := s.notifs.MarkSnoozed(ctx, n.ID); err != nil {
				return nil, err
			}
			n.Status = models.NotifSnoozed
		}
		res.Snooze = snooze

	case models.ActionMute:
		// The notification action carries no duration; until-tomorrow is
		// the default, longer windows go through the task mute endpoint.
		mute, err := s.suppress.Mute(ctx, n.UserID, n.TaskID, models.MuteUntilTomorrow)
		if err != nil {
			return nil, err
		}
		if _, err := s.notifs.CancelOpenForTask(ctx, n.TaskID); err != nil {
			return nil, err
		}
		if _, err := s.registry.Reoptimize(ctx, n.UserID); err != nil {
			return nil, err
		}
		res.Mute = mute

	case models.ActionOpenMap:
		// Navigation is a client concern; nothing changes server-side.
	}

	s.logger.Info().
		Str("notification_id", n.ID.String()).
		Str("action", string(action)).
		Msg("handled notification action")
	return res, nil
}

func snoozeDuration(action models.NotificationAction) models.SnoozeDuration {
	switch action {
	case models.ActionSnooze1h:
		return models.Snooze1h
	case models.ActionSnoozeToday:
		return models.SnoozeToday
	default:
		return models.Snooze15m
	}
}

// TaskStatusChanged reconciles everything hanging off a task after its
// status moves. Cancellation of open notifications is synchronous: by the
// time this returns no stale banner can still be dispatched.
func (s *Service) TaskStatusChanged(ctx context.Context, taskID uuid.UUID, status models.TaskStatus) error {
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return err
	}

	switch status {
	case models.TaskCompleted:
		return s.completeTask(ctx, taskID)

	case models.TaskMuted:
		if err := s.tasks.SetStatus(ctx, taskID, models.TaskMuted); err != nil {
			return err
		}
		if _, err := s.suppress.Mute(ctx, task.UserID, taskID, models.MutePermanent); err != nil {
			return err
		}
		if _, err := s.notifs.CancelOpenForTask(ctx, taskID); err != nil {
			return err
		}
		_, err = s.registry.Reoptimize(ctx, task.UserID)
		return err

	case models.TaskActive:
		if err := s.tasks.SetStatus(ctx, taskID, models.TaskActive); err != nil {
			return err
		}
		if _, err := s.suppress.Unmute(ctx, taskID); err != nil {
			return err
		}
		_, err = s.registry.Reoptimize(ctx, task.UserID)
		return err

	default:
		return fmt.Errorf("unknown task status %q: %w", status, errs.ErrValidation)
	}
}

// DeleteTask removes a task and everything attached to it. Open
// notifications are cancelled before the row goes away.
func (s *Service) DeleteTask(ctx context.Context, taskID uuid.UUID) error {
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return err
	}
	if _, err := s.notifs.CancelOpenForTask(ctx, taskID); err != nil {
		return err
	}
	if err := s.tasks.Delete(ctx, taskID); err != nil {
		return err
	}
	_, err = s.registry.Reoptimize(ctx, task.UserID)
	return err
}

// MuteTask applies a timed (or permanent) mute directly to a task, outside
// any notification. Open notifications are cancelled and the registry
// demotes the task's geofences.
func (s *Service) MuteTask(ctx context.Context, taskID uuid.UUID, d models.MuteDuration) (*models.TaskMute, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("unknown mute duration %q: %w", d, errs.ErrValidation)
	}
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	mute, err := s.suppress.Mute(ctx, task.UserID, taskID, d)
	if err != nil {
		return nil, err
	}
	if _, err := s.notifs.CancelOpenForTask(ctx, taskID); err != nil {
		return nil, err
	}
	if _, err := s.registry.Reoptimize(ctx, task.UserID); err != nil {
		return nil, err
	}
	return mute, nil
}

// UnmuteTask lifts the task's mute ahead of schedule and restores its
// registry priority. Nothing is resent; eligibility applies on the next
// qualifying event.
func (s *Service) UnmuteTask(ctx context.Context, taskID uuid.UUID) error {
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return err
	}
	if _, err := s.suppress.Unmute(ctx, taskID); err != nil {
		return err
	}
	_, err = s.registry.Reoptimize(ctx, task.UserID)
	return err
}

func (s *Service) completeTask(ctx context.Context, taskID uuid.UUID) error {
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return err
	}
	if err := s.tasks.SetStatus(ctx, taskID, models.TaskCompleted); err != nil {
		return err
	}
	if _, err := s.notifs.CancelOpenForTask(ctx, taskID); err != nil {
		return err
	}
	if err := s.geofences.DeactivateForTask(ctx, taskID); err != nil {
		return err
	}
	// Freed capacity promotes the user's dormant geofences.
	if _, err := s.registry.Reoptimize(ctx, task.UserID); err != nil {
		return err
	}

	s.logger.Info().Str("task_id", taskID.String()).Msg("task completed")
	return nil
}

// SyncTask upserts a task and regenerates its geofence set from the
// classification rules, then lets the registry decide which rows go live.
// The stored task survives even when every geofence stays dormant; in that
// case the wrapped error is ErrCapacity.
func (s *Service) SyncTask(ctx context.Context, task *models.Task) ([]models.Geofence, error) {
	if !task.Classification.Valid() {
		return nil, fmt.Errorf("unknown classification %q: %w", task.Classification, errs.ErrValidation)
	}
	if !task.Status.Valid() {
		task.Status = models.TaskActive
	}
	if err := s.tasks.Upsert(ctx, task); err != nil {
		return nil, err
	}

	specs := tier.Specs(task.Classification, geo.Point{Lat: task.Lat, Lng: task.Lng})
	created, err := s.geofences.ReplaceForTask(ctx, task, specs)
	if err != nil {
		return nil, err
	}

	active, err := s.registry.Reoptimize(ctx, task.UserID)
	if err != nil {
		return nil, err
	}

	activeIDs := make(map[uuid.UUID]bool, len(active))
	for _, gf := range active {
		activeIDs[gf.ID] = true
	}
	var admitted bool
	for i := range created {
		if activeIDs[created[i].ID] {
			created[i].Active = true
			admitted = true
		}
	}
	if !admitted && len(created) > 0 {
		return created, fmt.Errorf("task %s stored but no geofence admitted: %w", task.ID, errs.ErrCapacity)
	}

	s.logger.Info().
		Str("task_id", task.ID.String()).
		Str("classification", string(task.Classification)).
		Int("geofences", len(created)).
		Msg("synced task geofences")
	return created, nil
}
