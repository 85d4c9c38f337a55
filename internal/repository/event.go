package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hray3182/GeoNudge/internal/database"
	"github.com/hray3182/GeoNudge/internal/models"
)

type EventRepository struct {
	db *database.DB
}

func NewEventRepository(db *database.DB) *EventRepository {
	return &EventRepository{db: db}
}

func (r *EventRepository) Create(ctx context.Context, ev *models.GeofenceEvent) error {
	return r.db.Pool.QueryRow(ctx,
		`INSERT INTO geofence_events
		   (id, user_id, task_id, geofence_id, type, tier, lat, lng, confidence,
		    status, suppress_reason, bundle_id, cooldown_until, client_time)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 RETURNING created_at`,
		ev.ID, ev.UserID, ev.TaskID, ev.GeofenceID, ev.Type, ev.Tier, ev.Lat, ev.Lng,
		ev.Confidence, ev.Status, ev.SuppressReason, ev.BundleID, ev.CooldownUntil, ev.ClientTime,
	).Scan(&ev.CreatedAt)
}

func (r *EventRepository) SetStatus(ctx context.Context, id uuid.UUID, status models.EventStatus, reason string) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE geofence_events
		 SET status = $1, suppress_reason = CASE WHEN $2 <> '' THEN $2 ELSE suppress_reason END
		 WHERE id = $3`,
		status, reason, id,
	)
	return err
}

// AttachToBundle links an event to the notification that absorbed it.
func (r *EventRepository) AttachToBundle(ctx context.Context, eventID, bundleID uuid.UUID, status models.EventStatus) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE geofence_events SET bundle_id = $1, status = $2 WHERE id = $3`,
		bundleID, status, eventID,
	)
	return err
}

// BundleTaskTitles returns the task titles behind a bundled notification in
// the order the events were absorbed.
func (r *EventRepository) BundleTaskTitles(ctx context.Context, bundleID uuid.UUID) ([]string, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT t.title
		 FROM geofence_events e
		 JOIN tasks t ON t.id = e.task_id
		 WHERE e.bundle_id = $1
		 ORDER BY e.created_at`,
		bundleID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var titles []string
	for rows.Next() {
		var title string
		if err := rows.Scan(&title); err != nil {
			return nil, err
		}
		titles = append(titles, title)
	}
	return titles, rows.Err()
}

func (r *EventRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.GeofenceEvent, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT id, user_id, task_id, geofence_id, type, tier, lat, lng, confidence,
		        status, suppress_reason, bundle_id, cooldown_until, client_time, created_at
		 FROM geofence_events
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*models.GeofenceEvent
	for rows.Next() {
		ev := &models.GeofenceEvent{}
		if err := rows.Scan(&ev.ID, &ev.UserID, &ev.TaskID, &ev.GeofenceID, &ev.Type, &ev.Tier,
			&ev.Lat, &ev.Lng, &ev.Confidence, &ev.Status, &ev.SuppressReason, &ev.BundleID,
			&ev.CooldownUntil, &ev.ClientTime, &ev.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func (r *EventRepository) PurgeEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx,
		`DELETE FROM geofence_events WHERE created_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
