package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hray3182/GeoNudge/internal/database"
	"github.com/hray3182/GeoNudge/internal/errs"
	"github.com/hray3182/GeoNudge/internal/models"
)

const notificationColumns = `id, task_id, user_id, type, tier, title, body, actions,
	lat, lng, source_count, scheduled_at, status, attempts, last_attempt_at,
	last_error, claimed_until, created_at`

type NotificationRepository struct {
	db *database.DB
}

func NewNotificationRepository(db *database.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func scanNotification(row pgx.Row) (*models.Notification, error) {
	n := &models.Notification{}
	err := row.Scan(&n.ID, &n.TaskID, &n.UserID, &n.Type, &n.Tier, &n.Title, &n.Body,
		&n.Actions, &n.Lat, &n.Lng, &n.SourceCount, &n.ScheduledAt, &n.Status,
		&n.Attempts, &n.LastAttemptAt, &n.LastError, &n.ClaimedUntil, &n.CreatedAt)
	if err != nil {
		return nil, err
	}
	return n, nil
}

// Create inserts a notification. The partial unique index on pending
// (task, tier) backs the one-open-notification invariant; losing that race
// surfaces as ErrConflict.
func (r *NotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	err := r.db.Pool.QueryRow(ctx,
		`INSERT INTO notifications
		   (id, task_id, user_id, type, tier, title, body, actions, lat, lng,
		    source_count, scheduled_at, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 RETURNING created_at`,
		n.ID, n.TaskID, n.UserID, n.Type, n.Tier, n.Title, n.Body, n.Actions,
		n.Lat, n.Lng, n.SourceCount, n.ScheduledAt, n.Status,
	).Scan(&n.CreatedAt)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("open notification already exists for task %s tier %s: %w",
			n.TaskID, n.Tier, errs.ErrConflict)
	}
	return err
}

func (r *NotificationRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Notification, error) {
	n, err := scanNotification(r.db.Pool.QueryRow(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("notification %s: %w", id, errs.ErrNotFound)
	}
	return n, err
}

func (r *NotificationRepository) HasOpen(ctx context.Context, taskID uuid.UUID, tier models.TierKind) (bool, error) {
	var exists bool
	err := r.db.Pool.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM notifications
		   WHERE task_id = $1 AND tier = $2 AND status = 'pending')`,
		taskID, tier,
	).Scan(&exists)
	return exists, err
}

// OpenBundle finds the newest pending immediate notification for a user
// inside the bundle window. Post-arrival timers never anchor a bundle.
func (r *NotificationRepository) OpenBundle(ctx context.Context, userID uuid.UUID, cutoff time.Time) (*models.Notification, error) {
	n, err := scanNotification(r.db.Pool.QueryRow(ctx,
		`SELECT `+notificationColumns+`
		 FROM notifications
		 WHERE user_id = $1 AND status = 'pending' AND tier <> 'post_arrival'
		   AND created_at >= $2
		 ORDER BY created_at DESC
		 LIMIT 1`,
		userID, cutoff))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return n, err
}

func (r *NotificationRepository) UpdateBundleContent(ctx context.Context, id uuid.UUID, title, body string, sourceCount int) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE notifications SET title = $1, body = $2, source_count = $3
		 WHERE id = $4`,
		title, body, sourceCount, id,
	)
	return err
}

// ClaimDue leases due pending notifications for one dispatch pass. SKIP
// LOCKED keeps concurrent sweeps from fighting over rows; the lease keeps a
// crashed sweep's rows claimable after it expires.
func (r *NotificationRepository) ClaimDue(ctx context.Context, now, leaseUntil time.Time, limit int) ([]*models.Notification, error) {
	rows, err := r.db.Pool.Query(ctx,
		`UPDATE notifications SET claimed_until = $2
		 WHERE id IN (
		   SELECT id FROM notifications
		   WHERE status = 'pending' AND scheduled_at <= $1
		     AND (claimed_until IS NULL OR claimed_until <= $1)
		   ORDER BY scheduled_at
		   LIMIT $3
		   FOR UPDATE SKIP LOCKED)
		 RETURNING `+notificationColumns,
		now, leaseUntil, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var due []*models.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		due = append(due, n)
	}
	return due, rows.Err()
}

// MarkDelivered flips a pending row to delivered. The status guard keeps a
// dispatch that raced a synchronous cancel from resurrecting the row.
func (r *NotificationRepository) MarkDelivered(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE notifications
		 SET status = 'delivered', attempts = attempts + 1, last_attempt_at = $1,
		     last_error = '', claimed_until = NULL
		 WHERE id = $2 AND status = 'pending'`,
		at, id,
	)
	return err
}

func (r *NotificationRepository) ScheduleRetry(ctx context.Context, id uuid.UUID, attempts int, lastError string, nextAt, at time.Time) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE notifications
		 SET attempts = $1, last_error = $2, scheduled_at = $3, last_attempt_at = $4,
		     claimed_until = NULL
		 WHERE id = $5`,
		attempts, lastError, nextAt, at, id,
	)
	return err
}

func (r *NotificationRepository) MarkFailed(ctx context.Context, id uuid.UUID, attempts int, lastError string, at time.Time) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE notifications
		 SET status = 'failed', attempts = $1, last_error = $2, last_attempt_at = $3,
		     claimed_until = NULL
		 WHERE id = $4`,
		attempts, lastError, at, id,
	)
	return err
}

func (r *NotificationRepository) MarkSnoozed(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE notifications SET status = 'snoozed', claimed_until = NULL
		 WHERE id = $1 AND status = 'pending'`,
		id,
	)
	return err
}

// CancelOpenForTask cancels every pending notification of a task. Runs
// synchronously on task completion/mute/deletion so no stale banner can
// still be dispatched afterwards.
func (r *NotificationRepository) CancelOpenForTask(ctx context.Context, taskID uuid.UUID) (int, error) {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE notifications SET status = 'cancelled', claimed_until = NULL
		 WHERE task_id = $1 AND status = 'pending'`,
		taskID,
	)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *NotificationRepository) CancelPendingTier(ctx context.Context, taskID uuid.UUID, tier models.TierKind) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE notifications SET status = 'cancelled', claimed_until = NULL
		 WHERE task_id = $1 AND tier = $2 AND status = 'pending'`,
		taskID, tier,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *NotificationRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Notification, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT `+notificationColumns+`
		 FROM notifications
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// PurgeNotificationsBefore removes terminal rows past the retention horizon.
// Pending and delivered rows are kept regardless of age.
func (r *NotificationRepository) PurgeNotificationsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx,
		`DELETE FROM notifications
		 WHERE created_at < $1 AND status IN ('cancelled', 'failed', 'snoozed')`,
		cutoff,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
