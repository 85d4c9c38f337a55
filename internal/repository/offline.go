package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hray3182/GeoNudge/internal/database"
	"github.com/hray3182/GeoNudge/internal/models"
)

type OfflineRepository struct {
	db *database.DB
}

func NewOfflineRepository(db *database.DB) *OfflineRepository {
	return &OfflineRepository{db: db}
}

func (r *OfflineRepository) Enqueue(ctx context.Context, ev *models.OfflineEvent) error {
	return r.db.Pool.QueryRow(ctx,
		`INSERT INTO offline_events (id, user_id, payload, retry_count, last_error, status)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING enqueued_at`,
		ev.ID, ev.UserID, ev.Payload, ev.RetryCount, ev.LastError, ev.Status,
	).Scan(&ev.EnqueuedAt)
}

// ClaimBatch leases at most one queued row per user, oldest first, so each
// user's buffered reports replay in the order they happened. The update
// re-checks eligibility row-locked, so a row another instance just leased
// is silently skipped.
func (r *OfflineRepository) ClaimBatch(ctx context.Context, now, leaseUntil time.Time, limit int) ([]*models.OfflineEvent, error) {
	rows, err := r.db.Pool.Query(ctx,
		`UPDATE offline_events SET claimed_until = $2
		 WHERE status = 'queued'
		   AND (claimed_until IS NULL OR claimed_until <= $1)
		   AND id IN (
		     SELECT DISTINCT ON (user_id) id
		     FROM offline_events
		     WHERE status = 'queued' AND (claimed_until IS NULL OR claimed_until <= $1)
		     ORDER BY user_id, enqueued_at
		     LIMIT $3)
		 RETURNING id, user_id, payload, retry_count, last_error, status, claimed_until, enqueued_at`,
		now, leaseUntil, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var batch []*models.OfflineEvent
	for rows.Next() {
		ev := &models.OfflineEvent{}
		if err := rows.Scan(&ev.ID, &ev.UserID, &ev.Payload, &ev.RetryCount,
			&ev.LastError, &ev.Status, &ev.ClaimedUntil, &ev.EnqueuedAt); err != nil {
			return nil, err
		}
		batch = append(batch, ev)
	}
	return batch, rows.Err()
}

func (r *OfflineRepository) MarkDone(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE offline_events SET status = 'done', claimed_until = NULL WHERE id = $1`,
		id,
	)
	return err
}

func (r *OfflineRepository) MarkRetry(ctx context.Context, id uuid.UUID, retryCount int, lastError string) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE offline_events
		 SET retry_count = $1, last_error = $2, claimed_until = NULL
		 WHERE id = $3`,
		retryCount, lastError, id,
	)
	return err
}

func (r *OfflineRepository) MarkDead(ctx context.Context, id uuid.UUID, lastError string) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE offline_events
		 SET status = 'dead', last_error = $1, claimed_until = NULL
		 WHERE id = $2`,
		lastError, id,
	)
	return err
}

// QueueDepth counts reports still waiting for replay.
func (r *OfflineRepository) QueueDepth(ctx context.Context) (int, error) {
	var depth int
	err := r.db.Pool.QueryRow(ctx,
		`SELECT count(*) FROM offline_events WHERE status = 'queued'`,
	).Scan(&depth)
	return depth, err
}
