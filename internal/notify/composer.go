// Package notify turns accepted geofence events into notifications and owns
// their lifecycle: composition, bundling, scheduled dispatch, retries with
// backoff, and the periodic sweeps.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hray3182/GeoNudge/internal/ai"
	"github.com/hray3182/GeoNudge/internal/geo"
	"github.com/hray3182/GeoNudge/internal/models"
	"github.com/hray3182/GeoNudge/internal/tier"
)

// timeNow is a package-level variable for testability.
var timeNow = time.Now

// NotificationStore is the persistence surface for notification rows.
type NotificationStore interface {
	Create(ctx context.Context, n *models.Notification) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Notification, error)
	HasOpen(ctx context.Context, taskID uuid.UUID, tierKind models.TierKind) (bool, error)
	// OpenBundle returns the newest pending immediate notification for the
	// user created at or after cutoff, or nil.
	OpenBundle(ctx context.Context, userID uuid.UUID, cutoff time.Time) (*models.Notification, error)
	UpdateBundleContent(ctx context.Context, id uuid.UUID, title, body string, sourceCount int) error
	ClaimDue(ctx context.Context, now, leaseUntil time.Time, limit int) ([]*models.Notification, error)
	MarkDelivered(ctx context.Context, id uuid.UUID, at time.Time) error
	ScheduleRetry(ctx context.Context, id uuid.UUID, attempts int, lastError string, nextAt, at time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, attempts int, lastError string, at time.Time) error
	MarkSnoozed(ctx context.Context, id uuid.UUID) error
	CancelOpenForTask(ctx context.Context, taskID uuid.UUID) (int, error)
	CancelPendingTier(ctx context.Context, taskID uuid.UUID, tierKind models.TierKind) (bool, error)
}

// EventStore is the slice of event persistence the composer needs for
// bundling bookkeeping.
type EventStore interface {
	SetStatus(ctx context.Context, id uuid.UUID, status models.EventStatus, reason string) error
	AttachToBundle(ctx context.Context, eventID, bundleID uuid.UUID, status models.EventStatus) error
	BundleTaskTitles(ctx context.Context, bundleID uuid.UUID) ([]string, error)
}

// Waker pokes the dispatch loop after new work is created.
type Waker interface {
	Notify()
}

type ComposerConfig struct {
	BundleWindow     time.Duration
	BundleRadiusM    float64
	PostArrivalDwell time.Duration
}

// Composer builds notification content from accepted events and merges
// co-incident events into one bundle so dense corridors don't storm the
// user. It implements intake.Sink.
type Composer struct {
	notifs NotificationStore
	events EventStore
	ai     *ai.Client // nil disables copy polishing
	waker  Waker
	cfg    ComposerConfig
	logger zerolog.Logger
}

func NewComposer(notifs NotificationStore, events EventStore, aiClient *ai.Client,
	waker Waker, cfg ComposerConfig, logger zerolog.Logger) *Composer {
	return &Composer{
		notifs: notifs,
		events: events,
		ai:     aiClient,
		waker:  waker,
		cfg:    cfg,
		logger: logger.With().Str("component", "composer").Logger(),
	}
}

// HandleAccepted consumes one accepted event. Enter events become (or join)
// a notification; an exit from the arrival boundary cancels the armed
// post-arrival timer.
func (c *Composer) HandleAccepted(ctx context.Context, ev *models.GeofenceEvent, task *models.Task, gf *models.Geofence) error {
	if ev.Type == models.EventExit {
		return c.handleExit(ctx, ev, task, gf)
	}

	if err := c.composeEnter(ctx, ev, task, gf); err != nil {
		return err
	}

	// Arrival-enter arms the dwell timer for classifications that have a
	// post-arrival stage. It fires only if no exit is seen first.
	if gf.Tier == models.TierArrival && tier.HasPostArrival(task.Classification) {
		if err := c.armPostArrival(ctx, ev, task); err != nil {
			return err
		}
	}

	if c.waker != nil {
		c.waker.Notify()
	}
	return nil
}

func (c *Composer) handleExit(ctx context.Context, ev *models.GeofenceEvent, task *models.Task, gf *models.Geofence) error {
	if gf.Tier == models.TierArrival {
		cancelled, err := c.notifs.CancelPendingTier(ctx, task.ID, models.TierPostArrival)
		if err != nil {
			return fmt.Errorf("cancel post-arrival: %w", err)
		}
		if cancelled {
			c.logger.Info().
				Str("task_id", task.ID.String()).
				Msg("cancelled post-arrival timer on exit")
		}
	}
	return c.events.SetStatus(ctx, ev.ID, models.EventProcessed, "")
}

func (c *Composer) composeEnter(ctx context.Context, ev *models.GeofenceEvent, task *models.Task, gf *models.Geofence) error {
	now := timeNow()

	open, err := c.notifs.OpenBundle(ctx, ev.UserID, now.Add(-c.cfg.BundleWindow))
	if err != nil {
		return fmt.Errorf("find open bundle: %w", err)
	}
	if open != nil && c.withinBundleRadius(open, ev) {
		return c.joinBundle(ctx, ev, open)
	}

	// One open notification per (task, tier): a qualifying event while one
	// is pending produces nothing new.
	exists, err := c.notifs.HasOpen(ctx, task.ID, gf.Tier)
	if err != nil {
		return fmt.Errorf("check open notification: %w", err)
	}
	if exists {
		return c.events.SetStatus(ctx, ev.ID, models.EventSuppressed, models.SuppressAlreadyOpen)
	}

	title, body := content(gf.Tier, task)
	body = c.ai.PolishBody(ctx, body)

	n := &models.Notification{
		ID:          uuid.New(),
		TaskID:      task.ID,
		UserID:      ev.UserID,
		Type:        models.TypeForTier(gf.Tier),
		Tier:        gf.Tier,
		Title:       title,
		Body:        body,
		Actions:     models.DefaultActions(),
		Lat:         ev.Lat,
		Lng:         ev.Lng,
		SourceCount: 1,
		ScheduledAt: now,
		Status:      models.NotifPending,
		CreatedAt:   now,
	}
	if err := c.notifs.Create(ctx, n); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	if err := c.events.AttachToBundle(ctx, ev.ID, n.ID, models.EventProcessed); err != nil {
		return fmt.Errorf("link event to notification: %w", err)
	}

	c.logger.Info().
		Str("notification_id", n.ID.String()).
		Str("task_id", task.ID.String()).
		Str("tier", string(gf.Tier)).
		Msg("composed notification")
	return nil
}

func (c *Composer) withinBundleRadius(open *models.Notification, ev *models.GeofenceEvent) bool {
	anchor := geo.Point{Lat: open.Lat, Lng: open.Lng}
	at := geo.Point{Lat: ev.Lat, Lng: ev.Lng}
	return geo.DistanceMeters(anchor, at) <= c.cfg.BundleRadiusM
}

func (c *Composer) joinBundle(ctx context.Context, ev *models.GeofenceEvent, open *models.Notification) error {
	if err := c.events.AttachToBundle(ctx, ev.ID, open.ID, models.EventBundled); err != nil {
		return fmt.Errorf("attach to bundle: %w", err)
	}
	titles, err := c.events.BundleTaskTitles(ctx, open.ID)
	if err != nil {
		return fmt.Errorf("list bundle titles: %w", err)
	}
	title, body := bundleContent(titles)
	if err := c.notifs.UpdateBundleContent(ctx, open.ID, title, body, len(titles)); err != nil {
		return fmt.Errorf("update bundle: %w", err)
	}

	c.logger.Info().
		Str("notification_id", open.ID.String()).
		Int("sources", len(titles)).
		Msg("bundled event into existing notification")
	return nil
}

func (c *Composer) armPostArrival(ctx context.Context, ev *models.GeofenceEvent, task *models.Task) error {
	exists, err := c.notifs.HasOpen(ctx, task.ID, models.TierPostArrival)
	if err != nil {
		return fmt.Errorf("check post-arrival: %w", err)
	}
	if exists {
		return nil
	}

	now := timeNow()
	title, body := content(models.TierPostArrival, task)
	n := &models.Notification{
		ID:          uuid.New(),
		TaskID:      task.ID,
		UserID:      ev.UserID,
		Type:        models.NotifPostArrival,
		Tier:        models.TierPostArrival,
		Title:       title,
		Body:        body,
		Actions:     models.DefaultActions(),
		Lat:         ev.Lat,
		Lng:         ev.Lng,
		SourceCount: 1,
		ScheduledAt: now.Add(c.cfg.PostArrivalDwell),
		Status:      models.NotifPending,
		CreatedAt:   now,
	}
	if err := c.notifs.Create(ctx, n); err != nil {
		return fmt.Errorf("arm post-arrival: %w", err)
	}

	c.logger.Info().
		Str("task_id", task.ID.String()).
		Time("fires_at", n.ScheduledAt).
		Msg("armed post-arrival timer")
	return nil
}
