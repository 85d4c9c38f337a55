package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Expirer flips lapsed suppression windows and reports whose mutes ended.
type Expirer interface {
	ExpireDue(ctx context.Context) ([]uuid.UUID, error)
}

// UserSource lists users that currently have geofences, for the periodic
// full registry recheck.
type UserSource interface {
	UsersWithGeofences(ctx context.Context) ([]uuid.UUID, error)
}

// EventPurger and NotificationPurger remove audit rows past the retention
// horizon.
type EventPurger interface {
	PurgeEventsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type NotificationPurger interface {
	PurgeNotificationsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type SweeperConfig struct {
	SweepInterval   time.Duration // suppression expiry cadence
	RecheckInterval time.Duration // full registry recheck cadence
	PurgeInterval   time.Duration // retention purge cadence
	RetentionDays   int
}

// Sweeper runs the periodic maintenance loops: expiring suppression
// windows, re-promoting geofences for users whose mutes lapsed, the hourly
// registry recheck, and the retention purge.
type Sweeper struct {
	expirer  Expirer
	registry Reoptimizer
	users    UserSource
	events   EventPurger
	notifs   NotificationPurger
	cfg      SweeperConfig
	logger   zerolog.Logger
}

func NewSweeper(expirer Expirer, registry Reoptimizer, users UserSource,
	events EventPurger, notifs NotificationPurger, cfg SweeperConfig, logger zerolog.Logger) *Sweeper {
	return &Sweeper{
		expirer:  expirer,
		registry: registry,
		users:    users,
		events:   events,
		notifs:   notifs,
		cfg:      cfg,
		logger:   logger.With().Str("component", "sweeper").Logger(),
	}
}

func (s *Sweeper) Start(ctx context.Context) {
	s.logger.Info().Msg("sweeper started")
	sweep := time.NewTicker(s.cfg.SweepInterval)
	recheck := time.NewTicker(s.cfg.RecheckInterval)
	purge := time.NewTicker(s.cfg.PurgeInterval)
	defer sweep.Stop()
	defer recheck.Stop()
	defer purge.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("sweeper stopped")
			return
		case <-sweep.C:
			s.expireSuppressions(ctx)
		case <-recheck.C:
			s.recheckAll(ctx)
		case <-purge.C:
			s.purgeExpired(ctx)
		}
	}
}

func (s *Sweeper) expireSuppressions(ctx context.Context) {
	users, err := s.expirer.ExpireDue(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("suppression expiry failed")
		return
	}
	// A lapsed mute restores the task's registry priority, so the user's
	// active set may change.
	for _, userID := range users {
		if _, err := s.registry.Reoptimize(ctx, userID); err != nil {
			s.logger.Error().Err(err).Str("user_id", userID.String()).Msg("post-unmute reoptimize failed")
		}
	}
}

func (s *Sweeper) recheckAll(ctx context.Context) {
	users, err := s.users.UsersWithGeofences(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("registry recheck: list users failed")
		return
	}
	for _, userID := range users {
		if _, err := s.registry.Reoptimize(ctx, userID); err != nil {
			s.logger.Error().Err(err).Str("user_id", userID.String()).Msg("registry recheck failed")
		}
	}
	s.logger.Debug().Int("users", len(users)).Msg("registry recheck done")
}

func (s *Sweeper) purgeExpired(ctx context.Context) {
	cutoff := timeNow().AddDate(0, 0, -s.cfg.RetentionDays)
	events, err := s.events.PurgeEventsBefore(ctx, cutoff)
	if err != nil {
		s.logger.Error().Err(err).Msg("event purge failed")
	}
	notifs, err := s.notifs.PurgeNotificationsBefore(ctx, cutoff)
	if err != nil {
		s.logger.Error().Err(err).Msg("notification purge failed")
	}
	if events > 0 || notifs > 0 {
		s.logger.Info().
			Int64("events", events).
			Int64("notifications", notifs).
			Time("cutoff", cutoff).
			Msg("purged expired audit rows")
	}
}
