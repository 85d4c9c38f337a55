package repository

import (
	"context"

	"github.com/hray3182/GeoNudge/internal/database"
)

// Stats is the ops snapshot served by the stats endpoint.
type Stats struct {
	ActiveTasks        int            `json:"active_tasks"`
	ActiveGeofences    int            `json:"active_geofences"`
	EventsByStatus     map[string]int `json:"events_by_status"`
	NotifsByStatus     map[string]int `json:"notifications_by_status"`
	OfflineQueueDepth  int            `json:"offline_queue_depth"`
	ActiveSuppressions int            `json:"active_suppressions"`
}

type StatsRepository struct {
	db *database.DB
}

func NewStatsRepository(db *database.DB) *StatsRepository {
	return &StatsRepository{db: db}
}

func (r *StatsRepository) Snapshot(ctx context.Context) (*Stats, error) {
	s := &Stats{
		EventsByStatus: make(map[string]int),
		NotifsByStatus: make(map[string]int),
	}

	err := r.db.Pool.QueryRow(ctx,
		`SELECT
		   (SELECT count(*) FROM tasks WHERE status = 'active'),
		   (SELECT count(*) FROM geofences WHERE active),
		   (SELECT count(*) FROM offline_events WHERE status = 'queued'),
		   (SELECT count(*) FROM task_mutes WHERE status = 'active') +
		   (SELECT count(*) FROM notification_snoozes WHERE status = 'active')`,
	).Scan(&s.ActiveTasks, &s.ActiveGeofences, &s.OfflineQueueDepth, &s.ActiveSuppressions)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Pool.Query(ctx,
		`SELECT status, count(*) FROM geofence_events GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		s.EventsByStatus[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = r.db.Pool.Query(ctx,
		`SELECT status, count(*) FROM notifications GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		s.NotifsByStatus[status] = n
	}
	return s, rows.Err()
}
