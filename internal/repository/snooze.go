package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hray3182/GeoNudge/internal/database"
	"github.com/hray3182/GeoNudge/internal/errs"
	"github.com/hray3182/GeoNudge/internal/models"
)

const snoozeColumns = `id, user_id, task_id, notification_id, tier, duration,
	until_at, original_scheduled_at, count, status, created_at, updated_at`

type SnoozeRepository struct {
	db *database.DB
}

func NewSnoozeRepository(db *database.DB) *SnoozeRepository {
	return &SnoozeRepository{db: db}
}

func scanSnooze(row pgx.Row) (*models.NotificationSnooze, error) {
	s := &models.NotificationSnooze{}
	err := row.Scan(&s.ID, &s.UserID, &s.TaskID, &s.NotificationID, &s.Tier, &s.Duration,
		&s.Until, &s.OriginalAt, &s.Count, &s.Status, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *SnoozeRepository) ActiveForNotification(ctx context.Context, notificationID uuid.UUID) (*models.NotificationSnooze, error) {
	s, err := scanSnooze(r.db.Pool.QueryRow(ctx,
		`SELECT `+snoozeColumns+`
		 FROM notification_snoozes
		 WHERE notification_id = $1 AND status = 'active'`,
		notificationID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

func (r *SnoozeRepository) ActiveForTaskTier(ctx context.Context, userID, taskID uuid.UUID, tier models.TierKind) (*models.NotificationSnooze, error) {
	s, err := scanSnooze(r.db.Pool.QueryRow(ctx,
		`SELECT `+snoozeColumns+`
		 FROM notification_snoozes
		 WHERE user_id = $1 AND task_id = $2 AND tier = $3 AND status = 'active'
		 ORDER BY until_at DESC
		 LIMIT 1`,
		userID, taskID, tier))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

func (r *SnoozeRepository) Create(ctx context.Context, s *models.NotificationSnooze) error {
	return r.db.Pool.QueryRow(ctx,
		`INSERT INTO notification_snoozes
		   (id, user_id, task_id, notification_id, tier, duration, until_at,
		    original_scheduled_at, count, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING created_at, updated_at`,
		s.ID, s.UserID, s.TaskID, s.NotificationID, s.Tier, s.Duration, s.Until,
		s.OriginalAt, s.Count, s.Status,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
}

// Extend overwrites the window of an active snooze, bumps the counter, and
// returns the updated row.
func (r *SnoozeRepository) Extend(ctx context.Context, id uuid.UUID, duration models.SnoozeDuration, until time.Time) (*models.NotificationSnooze, error) {
	s, err := scanSnooze(r.db.Pool.QueryRow(ctx,
		`UPDATE notification_snoozes
		 SET duration = $1, until_at = $2, count = count + 1, updated_at = now()
		 WHERE id = $3 AND status = 'active'
		 RETURNING `+snoozeColumns,
		duration, until, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("snooze %s: %w", id, errs.ErrNotFound)
	}
	return s, err
}

func (r *SnoozeRepository) ExpireDue(ctx context.Context, now time.Time) ([]*models.NotificationSnooze, error) {
	rows, err := r.db.Pool.Query(ctx,
		`UPDATE notification_snoozes
		 SET status = 'expired', updated_at = now()
		 WHERE status = 'active' AND until_at <= $1
		 RETURNING `+snoozeColumns,
		now,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var expired []*models.NotificationSnooze
	for rows.Next() {
		s, err := scanSnooze(rows)
		if err != nil {
			return nil, err
		}
		expired = append(expired, s)
	}
	return expired, rows.Err()
}
