// Package intake validates raw crossing reports and applies the
// mute/snooze/confidence/cooldown/dedup gauntlet before anything reaches
// the composer. Every report leaves a GeofenceEvent row behind: the event
// record is the audit trail, so validation and not-found outcomes are
// recorded in its status rather than thrown to the caller.
package intake

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hray3182/GeoNudge/internal/errs"
	"github.com/hray3182/GeoNudge/internal/models"
)

// timeNow is a package-level variable for testability.
var timeNow = time.Now

// CrossingReport is one raw boundary-crossing report from the client.
type CrossingReport struct {
	UserID     uuid.UUID        `json:"user_id"`
	GeofenceID uuid.UUID        `json:"geofence_id"`
	Type       models.EventType `json:"type"`
	Lat        float64          `json:"lat"`
	Lng        float64          `json:"lng"`
	Confidence float64          `json:"confidence"`
	ClientTime time.Time        `json:"client_time"`
}

type GeofenceStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Geofence, error)
}

type TaskStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error)
}

type EventStore interface {
	Create(ctx context.Context, ev *models.GeofenceEvent) error
	SetStatus(ctx context.Context, id uuid.UUID, status models.EventStatus, reason string) error
}

// MarkStore is the atomic check-and-set surface backing cooldown and dedup.
// Claim must be a single compare-and-set so two near-simultaneous reports
// cannot both win the same window.
type MarkStore interface {
	Claim(ctx context.Context, userID, taskID uuid.UUID, kind, scope string, until time.Time) (bool, error)
	Release(ctx context.Context, userID, taskID uuid.UUID, kind, scope string) error
}

// Suppressions is the live snooze/mute view from the suppress service.
type Suppressions interface {
	ActiveMute(ctx context.Context, taskID uuid.UUID) (*models.TaskMute, error)
	ActiveSnooze(ctx context.Context, userID, taskID uuid.UUID, tier models.TierKind) (*models.NotificationSnooze, error)
}

// Sink receives accepted events. The composer implements it.
type Sink interface {
	HandleAccepted(ctx context.Context, ev *models.GeofenceEvent, task *models.Task, gf *models.Geofence) error
}

const (
	markCooldown = "cooldown"
	markDedup    = "dedup"
)

type Config struct {
	ApproachCooldown time.Duration
	DedupWindow      time.Duration
	MinConfidence    float64
}

type Filter struct {
	geofences GeofenceStore
	tasks     TaskStore
	events    EventStore
	marks     MarkStore
	suppress  Suppressions
	sink      Sink
	cfg       Config
	logger    zerolog.Logger
}

func New(geofences GeofenceStore, tasks TaskStore, events EventStore, marks MarkStore,
	suppress Suppressions, sink Sink, cfg Config, logger zerolog.Logger) *Filter {
	return &Filter{
		geofences: geofences,
		tasks:     tasks,
		events:    events,
		marks:     marks,
		suppress:  suppress,
		sink:      sink,
		cfg:       cfg,
		logger:    logger.With().Str("component", "intake").Logger(),
	}
}

// Process runs one report through the filter chain and returns the recorded
// event. The returned error is non-nil only for validation failures and
// transient dependency failures; suppression is a normal outcome readable
// from the event status.
func (f *Filter) Process(ctx context.Context, report CrossingReport) (*models.GeofenceEvent, error) {
	if err := validate(report); err != nil {
		return nil, err
	}
	now := timeNow()

	ev := &models.GeofenceEvent{
		ID:         uuid.New(),
		UserID:     report.UserID,
		GeofenceID: report.GeofenceID,
		Type:       report.Type,
		Lat:        report.Lat,
		Lng:        report.Lng,
		Confidence: report.Confidence,
		Status:     models.EventPending,
		ClientTime: report.ClientTime,
		CreatedAt:  now,
	}

	// Resolve geofence -> task. Races with deletion are expected, so a
	// dangling reference is a suppressed audit row, not a failure.
	gf, err := f.geofences.GetByID(ctx, report.GeofenceID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return f.record(ctx, ev, models.SuppressGeofenceGone)
		}
		return nil, fmt.Errorf("resolve geofence: %w", errs.ErrTransient)
	}
	ev.Tier = gf.Tier

	task, err := f.tasks.GetByID(ctx, gf.TaskID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return f.record(ctx, ev, models.SuppressTaskGone)
		}
		return nil, fmt.Errorf("resolve task: %w", errs.ErrTransient)
	}
	ev.TaskID = task.ID
	if task.UserID != report.UserID {
		return nil, fmt.Errorf("geofence does not belong to reporting user: %w", errs.ErrValidation)
	}
	if task.Status == models.TaskCompleted {
		return f.record(ctx, ev, models.SuppressTaskInactive)
	}

	// An active mute stops everything before any cooldown/dedup
	// bookkeeping is touched, so un-muting restores full eligibility.
	mute, err := f.suppress.ActiveMute(ctx, task.ID)
	if err != nil {
		return nil, fmt.Errorf("check mute: %w", errs.ErrTransient)
	}
	if mute != nil || task.Status == models.TaskMuted {
		return f.record(ctx, ev, models.SuppressMuted)
	}

	snooze, err := f.suppress.ActiveSnooze(ctx, report.UserID, task.ID, gf.Tier)
	if err != nil {
		return nil, fmt.Errorf("check snooze: %w", errs.ErrTransient)
	}
	if snooze != nil {
		return f.record(ctx, ev, models.SuppressSnoozed)
	}

	// Low-confidence noise is dropped without consuming cooldown so a
	// confident report moments later still notifies.
	if report.Confidence < f.cfg.MinConfidence {
		return f.record(ctx, ev, models.SuppressLowConfidence)
	}

	// Cooldown only gates enter events on approach tiers; arrival has no
	// cooldown and exits never notify.
	cooldownClaimed := false
	if report.Type == models.EventEnter && gf.Tier.IsApproach() && f.cfg.ApproachCooldown > 0 {
		until := now.Add(f.cfg.ApproachCooldown)
		won, err := f.marks.Claim(ctx, report.UserID, task.ID, markCooldown, string(gf.Tier), until)
		if err != nil {
			return nil, fmt.Errorf("claim cooldown: %w", errs.ErrTransient)
		}
		if !won {
			return f.record(ctx, ev, models.SuppressCooldown)
		}
		cooldownClaimed = true
		ev.CooldownUntil = &until
	}

	// Dedup is scoped per (tier, type): crossing the next tier inward is an
	// escalation, not a duplicate, so each boundary claims its own window.
	won, err := f.marks.Claim(ctx, report.UserID, task.ID, markDedup, dedupScope(gf.Tier, report.Type), now.Add(f.cfg.DedupWindow))
	if err != nil {
		f.release(ctx, report, task.ID, gf.Tier, cooldownClaimed)
		return nil, fmt.Errorf("claim dedup: %w", errs.ErrTransient)
	}
	if !won {
		// Duplicates are recorded for audit but trigger nothing.
		return f.record(ctx, ev, models.SuppressDuplicate)
	}

	if err := f.events.Create(ctx, ev); err != nil {
		f.release(ctx, report, task.ID, gf.Tier, cooldownClaimed)
		return nil, fmt.Errorf("persist event: %w", errs.ErrTransient)
	}

	if err := f.sink.HandleAccepted(ctx, ev, task, gf); err != nil {
		// Give the windows back so the offline replay of this payload is
		// not suppressed by our own claims.
		f.release(ctx, report, task.ID, gf.Tier, cooldownClaimed)
		if serr := f.events.SetStatus(ctx, ev.ID, models.EventFailed, ""); serr != nil {
			f.logger.Error().Err(serr).Str("event_id", ev.ID.String()).Msg("failed to mark event failed")
		}
		ev.Status = models.EventFailed
		return ev, fmt.Errorf("compose: %w", errs.ErrTransient)
	}

	f.logger.Debug().
		Str("event_id", ev.ID.String()).
		Str("tier", string(gf.Tier)).
		Str("type", string(report.Type)).
		Msg("event accepted")
	return ev, nil
}

func (f *Filter) record(ctx context.Context, ev *models.GeofenceEvent, reason string) (*models.GeofenceEvent, error) {
	ev.Status = models.EventSuppressed
	ev.SuppressReason = reason
	if err := f.events.Create(ctx, ev); err != nil {
		return nil, fmt.Errorf("record suppressed event: %w", errs.ErrTransient)
	}
	return ev, nil
}

func (f *Filter) release(ctx context.Context, report CrossingReport, taskID uuid.UUID, tier models.TierKind, cooldownClaimed bool) {
	if cooldownClaimed {
		if err := f.marks.Release(ctx, report.UserID, taskID, markCooldown, string(tier)); err != nil {
			f.logger.Warn().Err(err).Msg("failed to release cooldown mark")
		}
	}
	if err := f.marks.Release(ctx, report.UserID, taskID, markDedup, dedupScope(tier, report.Type)); err != nil {
		f.logger.Warn().Err(err).Msg("failed to release dedup mark")
	}
}

func dedupScope(tier models.TierKind, typ models.EventType) string {
	return string(tier) + ":" + string(typ)
}

func validate(report CrossingReport) error {
	switch {
	case report.UserID == uuid.Nil:
		return fmt.Errorf("missing user id: %w", errs.ErrValidation)
	case report.GeofenceID == uuid.Nil:
		return fmt.Errorf("missing geofence id: %w", errs.ErrValidation)
	case !report.Type.Valid():
		return fmt.Errorf("unknown event type %q: %w", report.Type, errs.ErrValidation)
	case report.Confidence < 0 || report.Confidence > 1:
		return fmt.Errorf("confidence %f out of range: %w", report.Confidence, errs.ErrValidation)
	case report.Lat < -90 || report.Lat > 90 || report.Lng < -180 || report.Lng > 180:
		return fmt.Errorf("coordinates out of range: %w", errs.ErrValidation)
	case report.ClientTime.IsZero():
		return fmt.Errorf("missing client timestamp: %w", errs.ErrValidation)
	}
	return nil
}
