package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hray3182/GeoNudge/internal/database"
	"github.com/hray3182/GeoNudge/internal/errs"
	"github.com/hray3182/GeoNudge/internal/models"
	"github.com/hray3182/GeoNudge/internal/registry"
	"github.com/hray3182/GeoNudge/internal/tier"
)

type GeofenceRepository struct {
	db *database.DB
}

func NewGeofenceRepository(db *database.DB) *GeofenceRepository {
	return &GeofenceRepository{db: db}
}

func (r *GeofenceRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Geofence, error) {
	gf := &models.Geofence{}
	err := r.db.Pool.QueryRow(ctx,
		`SELECT id, task_id, lat, lng, radius_m, tier, active, created_at
		 FROM geofences WHERE id = $1`,
		id,
	).Scan(&gf.ID, &gf.TaskID, &gf.Lat, &gf.Lng, &gf.RadiusM, &gf.Tier, &gf.Active, &gf.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("geofence %s: %w", id, errs.ErrNotFound)
		}
		return nil, err
	}
	return gf, nil
}

// WithUserLock serializes registry work per user via a transaction-scoped
// advisory lock. Different users proceed in parallel; two re-optimizations
// for the same user queue behind each other.
func (r *GeofenceRepository) WithUserLock(ctx context.Context, userID uuid.UUID, fn func(ctx context.Context) error) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1::text, 0))`, userID); err != nil {
		return fmt.Errorf("acquire user lock: %w", err)
	}
	if err := fn(ctx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ListCandidates returns every geofence of the user's non-completed tasks
// with the ranking inputs joined in.
func (r *GeofenceRepository) ListCandidates(ctx context.Context, userID uuid.UUID) ([]registry.Candidate, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT g.id, g.task_id, g.lat, g.lng, g.radius_m, g.tier, g.active, g.created_at,
		        t.created_at,
		        EXISTS (
		          SELECT 1 FROM task_mutes m
		          WHERE m.task_id = t.id AND m.status = 'active'
		            AND (m.until_at IS NULL OR m.until_at > now())
		        ) OR t.status = 'muted'
		 FROM geofences g
		 JOIN tasks t ON t.id = g.task_id
		 WHERE t.user_id = $1 AND t.status <> 'completed'`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candidates []registry.Candidate
	for rows.Next() {
		var c registry.Candidate
		if err := rows.Scan(&c.Geofence.ID, &c.Geofence.TaskID, &c.Geofence.Lat, &c.Geofence.Lng,
			&c.Geofence.RadiusM, &c.Geofence.Tier, &c.Geofence.Active, &c.Geofence.CreatedAt,
			&c.TaskCreatedAt, &c.Muted); err != nil {
			return nil, err
		}
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

func (r *GeofenceRepository) SetActive(ctx context.Context, ids []uuid.UUID, active bool) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE geofences SET active = $1 WHERE id = ANY($2)`,
		active, ids,
	)
	return err
}

// ReplaceForTask regenerates the task's geofence rows from the tier specs.
// New rows start inactive; admission is the registry's decision.
func (r *GeofenceRepository) ReplaceForTask(ctx context.Context, task *models.Task, specs []tier.Spec) ([]models.Geofence, error) {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM geofences WHERE task_id = $1`, task.ID); err != nil {
		return nil, fmt.Errorf("clear old geofences: %w", err)
	}

	out := make([]models.Geofence, 0, len(specs))
	for _, spec := range specs {
		gf := models.Geofence{
			ID:      uuid.New(),
			TaskID:  task.ID,
			Lat:     spec.Center.Lat,
			Lng:     spec.Center.Lng,
			RadiusM: spec.RadiusM,
			Tier:    spec.Tier,
		}
		if err := tx.QueryRow(ctx,
			`INSERT INTO geofences (id, task_id, lat, lng, radius_m, tier, active)
			 VALUES ($1, $2, $3, $4, $5, $6, false)
			 RETURNING created_at`,
			gf.ID, gf.TaskID, gf.Lat, gf.Lng, gf.RadiusM, gf.Tier,
		).Scan(&gf.CreatedAt); err != nil {
			return nil, fmt.Errorf("insert geofence %s: %w", spec.Tier, err)
		}
		out = append(out, gf)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *GeofenceRepository) DeactivateForTask(ctx context.Context, taskID uuid.UUID) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE geofences SET active = false WHERE task_id = $1`,
		taskID,
	)
	return err
}

// ListActiveForUser returns the user's currently registered geofences, the
// set the client mirrors into OS registrations.
func (r *GeofenceRepository) ListActiveForUser(ctx context.Context, userID uuid.UUID) ([]models.Geofence, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT g.id, g.task_id, g.lat, g.lng, g.radius_m, g.tier, g.active, g.created_at
		 FROM geofences g
		 JOIN tasks t ON t.id = g.task_id
		 WHERE t.user_id = $1 AND g.active
		 ORDER BY g.created_at`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Geofence
	for rows.Next() {
		var gf models.Geofence
		if err := rows.Scan(&gf.ID, &gf.TaskID, &gf.Lat, &gf.Lng, &gf.RadiusM,
			&gf.Tier, &gf.Active, &gf.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, gf)
	}
	return out, rows.Err()
}

// UsersWithGeofences lists users for the periodic full registry recheck.
func (r *GeofenceRepository) UsersWithGeofences(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT DISTINCT t.user_id
		 FROM geofences g JOIN tasks t ON t.id = g.task_id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		users = append(users, id)
	}
	return users, rows.Err()
}
