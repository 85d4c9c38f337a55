package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/hray3182/GeoNudge/internal/database"
	"github.com/hray3182/GeoNudge/internal/models"
)

type DeviceRepository struct {
	db *database.DB
}

func NewDeviceRepository(db *database.DB) *DeviceRepository {
	return &DeviceRepository{db: db}
}

// Register upserts a device token. Re-registering an existing token is a
// no-op; the client does this on every launch.
func (r *DeviceRepository) Register(ctx context.Context, d *models.Device) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO devices (id, user_id, token, platform)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id, token) DO UPDATE SET platform = EXCLUDED.platform`,
		d.ID, d.UserID, d.Token, d.Platform,
	)
	return err
}

func (r *DeviceRepository) Remove(ctx context.Context, userID uuid.UUID, token string) error {
	_, err := r.db.Pool.Exec(ctx,
		`DELETE FROM devices WHERE user_id = $1 AND token = $2`,
		userID, token,
	)
	return err
}

func (r *DeviceRepository) TokensForUser(ctx context.Context, userID uuid.UUID) ([]string, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT token FROM devices WHERE user_id = $1 ORDER BY created_at`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
	}
	return tokens, rows.Err()
}
