// Package suppress owns user-issued suppression windows: notification
// snoozes and task mutes. Repeat requests extend the existing window
// instead of stacking new ones, and a periodic sweep re-arms eligibility
// when windows lapse.
package suppress

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hray3182/GeoNudge/internal/models"
	"github.com/hray3182/GeoNudge/internal/rrule"
)

// timeNow is a package-level variable for testability.
var timeNow = time.Now

type SnoozeStore interface {
	ActiveForNotification(ctx context.Context, notificationID uuid.UUID) (*models.NotificationSnooze, error)
	ActiveForTaskTier(ctx context.Context, userID, taskID uuid.UUID, tier models.TierKind) (*models.NotificationSnooze, error)
	Create(ctx context.Context, s *models.NotificationSnooze) error
	// Extend overwrites the window, bumps the counter, and returns the
	// updated row. The store owns the count.
	Extend(ctx context.Context, id uuid.UUID, duration models.SnoozeDuration, until time.Time) (*models.NotificationSnooze, error)
	ExpireDue(ctx context.Context, now time.Time) ([]*models.NotificationSnooze, error)
}

type MuteStore interface {
	ActiveForTask(ctx context.Context, taskID uuid.UUID) (*models.TaskMute, error)
	Create(ctx context.Context, m *models.TaskMute) error
	Extend(ctx context.Context, id uuid.UUID, duration models.MuteDuration, until *time.Time) (*models.TaskMute, error)
	Cancel(ctx context.Context, taskID uuid.UUID) (bool, error)
	ExpireDue(ctx context.Context, now time.Time) ([]*models.TaskMute, error)
}

type Service struct {
	snoozes      SnoozeStore
	mutes        MuteStore
	tomorrowHour int
	loc          *time.Location
	logger       zerolog.Logger
}

func New(snoozes SnoozeStore, mutes MuteStore, tomorrowHour int, loc *time.Location, logger zerolog.Logger) *Service {
	return &Service{
		snoozes:      snoozes,
		mutes:        mutes,
		tomorrowHour: tomorrowHour,
		loc:          loc,
		logger:       logger.With().Str("component", "suppress").Logger(),
	}
}

// ResolveSnoozeUntil computes the end of a snooze window. 15m/1h are
// relative to now; "today" is the fixed next-morning target.
func (s *Service) ResolveSnoozeUntil(d models.SnoozeDuration, now time.Time) (time.Time, error) {
	switch d {
	case models.Snooze15m:
		return now.Add(15 * time.Minute), nil
	case models.Snooze1h:
		return now.Add(time.Hour), nil
	case models.SnoozeToday:
		return rrule.NextMorning(now, s.tomorrowHour, s.loc)
	default:
		return time.Time{}, fmt.Errorf("unknown snooze duration %q", d)
	}
}

// ResolveMuteUntil computes the end of a mute window. Permanent mutes have
// no until-time and only clear via explicit cancel.
func (s *Service) ResolveMuteUntil(d models.MuteDuration, now time.Time) (*time.Time, error) {
	var until time.Time
	switch d {
	case models.Mute1h:
		until = now.Add(time.Hour)
	case models.Mute4h:
		until = now.Add(4 * time.Hour)
	case models.Mute8h:
		until = now.Add(8 * time.Hour)
	case models.Mute24h:
		until = now.Add(24 * time.Hour)
	case models.MuteUntilTomorrow:
		t, err := rrule.NextMorning(now, s.tomorrowHour, s.loc)
		if err != nil {
			return nil, err
		}
		until = t
	case models.MutePermanent:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown mute duration %q", d)
	}
	return &until, nil
}

// Snooze suppresses a notification's (task, tier) until the window lapses.
// A second request against the same notification extends the existing
// active snooze: the counter increments and the until-time is overwritten.
func (s *Service) Snooze(ctx context.Context, n *models.Notification, d models.SnoozeDuration) (*models.NotificationSnooze, error) {
	now := timeNow()
	until, err := s.ResolveSnoozeUntil(d, now)
	if err != nil {
		return nil, err
	}

	existing, err := s.snoozes.ActiveForNotification(ctx, n.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		updated, err := s.snoozes.Extend(ctx, existing.ID, d, until)
		if err != nil {
			return nil, err
		}
		s.logger.Info().
			Str("notification_id", n.ID.String()).
			Time("until", until).
			Int("count", updated.Count).
			Msg("extended snooze")
		return updated, nil
	}

	snooze := &models.NotificationSnooze{
		ID:             uuid.New(),
		UserID:         n.UserID,
		TaskID:         n.TaskID,
		NotificationID: n.ID,
		Tier:           n.Tier,
		Duration:       d,
		Until:          until,
		OriginalAt:     n.ScheduledAt,
		Count:          1,
		Status:         models.SuppressionActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.snoozes.Create(ctx, snooze); err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("notification_id", n.ID.String()).
		Time("until", until).
		Msg("created snooze")
	return snooze, nil
}

// Mute suppresses all events for a task. A second request extends the
// existing active mute rather than creating another row.
func (s *Service) Mute(ctx context.Context, userID, taskID uuid.UUID, d models.MuteDuration) (*models.TaskMute, error) {
	now := timeNow()
	until, err := s.ResolveMuteUntil(d, now)
	if err != nil {
		return nil, err
	}

	existing, err := s.mutes.ActiveForTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return s.mutes.Extend(ctx, existing.ID, d, until)
	}

	mute := &models.TaskMute{
		ID:        uuid.New(),
		UserID:    userID,
		TaskID:    taskID,
		Duration:  d,
		Until:     until,
		Count:     1,
		Status:    models.SuppressionActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.mutes.Create(ctx, mute); err != nil {
		return nil, err
	}
	return mute, nil
}

// Unmute cancels the active mute for a task. Reports whether one existed,
// so the caller knows to re-optimize the geofence registry.
func (s *Service) Unmute(ctx context.Context, taskID uuid.UUID) (bool, error) {
	return s.mutes.Cancel(ctx, taskID)
}

// ActiveMute returns the mute covering a task right now, or nil.
func (s *Service) ActiveMute(ctx context.Context, taskID uuid.UUID) (*models.TaskMute, error) {
	m, err := s.mutes.ActiveForTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if m == nil || !m.Covers(timeNow()) {
		return nil, nil
	}
	return m, nil
}

// ActiveSnooze returns the snooze covering (user, task, tier) right now.
func (s *Service) ActiveSnooze(ctx context.Context, userID, taskID uuid.UUID, tier models.TierKind) (*models.NotificationSnooze, error) {
	sn, err := s.snoozes.ActiveForTaskTier(ctx, userID, taskID, tier)
	if err != nil {
		return nil, err
	}
	if sn == nil || !timeNow().Before(sn.Until) {
		return nil, nil
	}
	return sn, nil
}

// ExpireDue flips lapsed snoozes and mutes to expired. It does not resend
// anything: eligibility applies on the next qualifying event. Returns the
// users whose mutes lapsed so the registry can promote their geofences.
func (s *Service) ExpireDue(ctx context.Context) ([]uuid.UUID, error) {
	now := timeNow()

	expiredSnoozes, err := s.snoozes.ExpireDue(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("expire snoozes: %w", err)
	}
	expiredMutes, err := s.mutes.ExpireDue(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("expire mutes: %w", err)
	}

	if len(expiredSnoozes) > 0 || len(expiredMutes) > 0 {
		s.logger.Info().
			Int("snoozes", len(expiredSnoozes)).
			Int("mutes", len(expiredMutes)).
			Msg("expired suppression windows")
	}

	seen := make(map[uuid.UUID]bool)
	var users []uuid.UUID
	for _, m := range expiredMutes {
		if !seen[m.UserID] {
			seen[m.UserID] = true
			users = append(users, m.UserID)
		}
	}
	return users, nil
}
