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

const muteColumns = `id, user_id, task_id, duration, until_at, count, status, created_at, updated_at`

type MuteRepository struct {
	db *database.DB
}

func NewMuteRepository(db *database.DB) *MuteRepository {
	return &MuteRepository{db: db}
}

func scanMute(row pgx.Row) (*models.TaskMute, error) {
	m := &models.TaskMute{}
	err := row.Scan(&m.ID, &m.UserID, &m.TaskID, &m.Duration, &m.Until, &m.Count,
		&m.Status, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (r *MuteRepository) ActiveForTask(ctx context.Context, taskID uuid.UUID) (*models.TaskMute, error) {
	m, err := scanMute(r.db.Pool.QueryRow(ctx,
		`SELECT `+muteColumns+`
		 FROM task_mutes
		 WHERE task_id = $1 AND status = 'active'`,
		taskID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

func (r *MuteRepository) Create(ctx context.Context, m *models.TaskMute) error {
	return r.db.Pool.QueryRow(ctx,
		`INSERT INTO task_mutes (id, user_id, task_id, duration, until_at, count, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING created_at, updated_at`,
		m.ID, m.UserID, m.TaskID, m.Duration, m.Until, m.Count, m.Status,
	).Scan(&m.CreatedAt, &m.UpdatedAt)
}

// Extend overwrites the window of the active mute, bumps the counter, and
// returns the updated row. A nil until makes the mute permanent.
func (r *MuteRepository) Extend(ctx context.Context, id uuid.UUID, duration models.MuteDuration, until *time.Time) (*models.TaskMute, error) {
	m, err := scanMute(r.db.Pool.QueryRow(ctx,
		`UPDATE task_mutes
		 SET duration = $1, until_at = $2, count = count + 1, updated_at = now()
		 WHERE id = $3 AND status = 'active'
		 RETURNING `+muteColumns,
		duration, until, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("mute %s: %w", id, errs.ErrNotFound)
	}
	return m, err
}

// Cancel clears the active mute for a task. Reports whether one existed.
func (r *MuteRepository) Cancel(ctx context.Context, taskID uuid.UUID) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE task_mutes SET status = 'cancelled', updated_at = now()
		 WHERE task_id = $1 AND status = 'active'`,
		taskID,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ExpireDue flips lapsed timed mutes. Permanent mutes (NULL until_at) never
// match and only clear via Cancel.
func (r *MuteRepository) ExpireDue(ctx context.Context, now time.Time) ([]*models.TaskMute, error) {
	rows, err := r.db.Pool.Query(ctx,
		`UPDATE task_mutes
		 SET status = 'expired', updated_at = now()
		 WHERE status = 'active' AND until_at IS NOT NULL AND until_at <= $1
		 RETURNING `+muteColumns,
		now,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var expired []*models.TaskMute
	for rows.Next() {
		m, err := scanMute(rows)
		if err != nil {
			return nil, err
		}
		expired = append(expired, m)
	}
	return expired, rows.Err()
}
