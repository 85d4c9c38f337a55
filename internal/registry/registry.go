// Package registry keeps each user's platform-registered geofence count
// under the OS cap by priority-based admission and eviction. Evicted
// geofences are deactivated, never deleted, and are promoted automatically
// when capacity frees up.
package registry

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hray3182/GeoNudge/internal/errs"
	"github.com/hray3182/GeoNudge/internal/models"
)

// Store is the persistence surface the registry needs. WithUserLock runs fn
// inside the per-user critical section: concurrent re-optimizations for one
// user serialize, different users proceed in parallel.
type Store interface {
	WithUserLock(ctx context.Context, userID uuid.UUID, fn func(ctx context.Context) error) error
	ListCandidates(ctx context.Context, userID uuid.UUID) ([]Candidate, error)
	SetActive(ctx context.Context, ids []uuid.UUID, active bool) error
}

// ChangeListener is told whenever a user's active set changes so the device
// collaborator can re-register OS-level geofences.
type ChangeListener func(userID uuid.UUID, active []models.Geofence)

type Registry struct {
	store    Store
	cap      int
	onChange ChangeListener
	logger   zerolog.Logger
}

func New(store Store, cap int, logger zerolog.Logger) *Registry {
	return &Registry{
		store:  store,
		cap:    cap,
		logger: logger.With().Str("component", "registry").Logger(),
	}
}

// OnChange registers the active-set listener. At most one listener; wiring
// happens once at startup.
func (r *Registry) OnChange(fn ChangeListener) {
	r.onChange = fn
}

// Reoptimize recomputes the active set for a user: rank all geofences of
// non-completed tasks, activate the top cap, deactivate the rest. Returns
// the resulting active set.
func (r *Registry) Reoptimize(ctx context.Context, userID uuid.UUID) ([]models.Geofence, error) {
	var active []models.Geofence
	err := r.store.WithUserLock(ctx, userID, func(ctx context.Context) error {
		candidates, err := r.store.ListCandidates(ctx, userID)
		if err != nil {
			return fmt.Errorf("list candidates: %w", err)
		}
		Rank(candidates)

		var activate, deactivate []uuid.UUID
		for i, c := range candidates {
			wantActive := i < r.cap
			if wantActive {
				active = append(active, c.Geofence)
			}
			if wantActive == c.Geofence.Active {
				continue
			}
			if wantActive {
				activate = append(activate, c.Geofence.ID)
			} else {
				deactivate = append(deactivate, c.Geofence.ID)
			}
		}

		// Deactivate before activating so the stored active count never
		// exceeds the cap, even if the second statement fails.
		if len(deactivate) > 0 {
			if err := r.store.SetActive(ctx, deactivate, false); err != nil {
				return fmt.Errorf("deactivate: %w", err)
			}
		}
		if len(activate) > 0 {
			if err := r.store.SetActive(ctx, activate, true); err != nil {
				return fmt.Errorf("activate: %w", err)
			}
		}

		if len(activate) > 0 || len(deactivate) > 0 {
			r.logger.Info().
				Str("user_id", userID.String()).
				Int("activated", len(activate)).
				Int("deactivated", len(deactivate)).
				Int("active_total", len(active)).
				Msg("re-optimized geofence set")
			if r.onChange != nil {
				r.onChange(userID, active)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return active, nil
}

// Admit re-optimizes after a new geofence was stored and reports whether it
// made the active set. A newcomer that ranks below every active geofence is
// left inactive and ErrCapacity is returned; an existing higher-priority
// registration is never dropped for it.
func (r *Registry) Admit(ctx context.Context, userID, geofenceID uuid.UUID) error {
	active, err := r.Reoptimize(ctx, userID)
	if err != nil {
		return err
	}
	for _, gf := range active {
		if gf.ID == geofenceID {
			return nil
		}
	}
	return fmt.Errorf("geofence %s not admitted: %w", geofenceID, errs.ErrCapacity)
}
