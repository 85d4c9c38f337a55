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
)

type TaskRepository struct {
	db *database.DB
}

func NewTaskRepository(db *database.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	task := &models.Task{}
	err := r.db.Pool.QueryRow(ctx,
		`SELECT id, user_id, title, place_name, category_tag, classification, lat, lng, status, created_at, updated_at
		 FROM tasks WHERE id = $1`,
		id,
	).Scan(&task.ID, &task.UserID, &task.Title, &task.PlaceName, &task.CategoryTag,
		&task.Classification, &task.Lat, &task.Lng, &task.Status, &task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("task %s: %w", id, errs.ErrNotFound)
		}
		return nil, err
	}
	return task, nil
}

// Upsert inserts or replaces a task by ID. Sync is idempotent: replaying the
// same task payload overwrites the row with identical values.
func (r *TaskRepository) Upsert(ctx context.Context, task *models.Task) error {
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	return r.db.Pool.QueryRow(ctx,
		`INSERT INTO tasks (id, user_id, title, place_name, category_tag, classification, lat, lng, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO UPDATE SET
		   title = EXCLUDED.title,
		   place_name = EXCLUDED.place_name,
		   category_tag = EXCLUDED.category_tag,
		   classification = EXCLUDED.classification,
		   lat = EXCLUDED.lat,
		   lng = EXCLUDED.lng,
		   status = EXCLUDED.status,
		   updated_at = now()
		 RETURNING created_at, updated_at`,
		task.ID, task.UserID, task.Title, task.PlaceName, task.CategoryTag,
		task.Classification, task.Lat, task.Lng, task.Status,
	).Scan(&task.CreatedAt, &task.UpdatedAt)
}

func (r *TaskRepository) SetStatus(ctx context.Context, id uuid.UUID, status models.TaskStatus) error {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE tasks SET status = $1, updated_at = now() WHERE id = $2`,
		status, id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("task %s: %w", id, errs.ErrNotFound)
	}
	return nil
}

func (r *TaskRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	return err
}

func (r *TaskRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Task, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT id, user_id, title, place_name, category_tag, classification, lat, lng, status, created_at, updated_at
		 FROM tasks WHERE user_id = $1
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		task := &models.Task{}
		if err := rows.Scan(&task.ID, &task.UserID, &task.Title, &task.PlaceName, &task.CategoryTag,
			&task.Classification, &task.Lat, &task.Lng, &task.Status, &task.CreatedAt, &task.UpdatedAt); err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}
