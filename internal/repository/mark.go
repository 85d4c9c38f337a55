package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hray3182/GeoNudge/internal/database"
)

// MarkRepository backs the intake cooldown and dedup windows with one-row
// compare-and-set claims.
type MarkRepository struct {
	db *database.DB
}

func NewMarkRepository(db *database.DB) *MarkRepository {
	return &MarkRepository{db: db}
}

// Claim atomically takes the (user, task, kind, scope) window until the
// given time. The upsert only overwrites a lapsed hold, so exactly one of
// two concurrent claimants wins: the loser's statement affects no row.
func (r *MarkRepository) Claim(ctx context.Context, userID, taskID uuid.UUID, kind, scope string, until time.Time) (bool, error) {
	var held time.Time
	err := r.db.Pool.QueryRow(ctx,
		`INSERT INTO intake_marks (user_id, task_id, kind, scope, held_until)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (user_id, task_id, kind, scope)
		 DO UPDATE SET held_until = EXCLUDED.held_until
		 WHERE intake_marks.held_until <= now()
		 RETURNING held_until`,
		userID, taskID, kind, scope, until,
	).Scan(&held)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Release gives a window back after downstream processing failed, so the
// replay of the same report is not suppressed by its own earlier claim.
func (r *MarkRepository) Release(ctx context.Context, userID, taskID uuid.UUID, kind, scope string) error {
	_, err := r.db.Pool.Exec(ctx,
		`DELETE FROM intake_marks
		 WHERE user_id = $1 AND task_id = $2 AND kind = $3 AND scope = $4`,
		userID, taskID, kind, scope,
	)
	return err
}
