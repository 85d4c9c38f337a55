package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hray3182/GeoNudge/internal/errs"
	"github.com/hray3182/GeoNudge/internal/models"
	"github.com/hray3182/GeoNudge/internal/push"
)

// DeviceStore resolves the push tokens a delivery fans out to.
type DeviceStore interface {
	TokensForUser(ctx context.Context, userID uuid.UUID) ([]string, error)
}

// MuteCheck lets the dispatch loop honor mutes created after a notification
// was composed but before it fired (post-arrival timers mostly).
type MuteCheck interface {
	ActiveMute(ctx context.Context, taskID uuid.UUID) (*models.TaskMute, error)
}

type SchedulerConfig struct {
	CheckInterval time.Duration
	ClaimLease    time.Duration
	BatchSize     int
	MaxAttempts   int
	BackoffSteps  []time.Duration
}

// Scheduler owns the dispatch sweep: it claims due pending notifications
// under a lease, hands them to the push dispatcher, and applies the retry
// ladder. Claims use row leases so several instances can sweep concurrently.
type Scheduler struct {
	notifs     NotificationStore
	devices    DeviceStore
	mutes      MuteCheck
	dispatcher push.Dispatcher
	cfg        SchedulerConfig
	notifyCh   chan struct{}
	logger     zerolog.Logger
}

func NewScheduler(notifs NotificationStore, devices DeviceStore, mutes MuteCheck,
	dispatcher push.Dispatcher, cfg SchedulerConfig, logger zerolog.Logger) *Scheduler {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Scheduler{
		notifs:     notifs,
		devices:    devices,
		mutes:      mutes,
		dispatcher: dispatcher,
		cfg:        cfg,
		notifyCh:   make(chan struct{}, 1),
		logger:     logger.With().Str("component", "scheduler").Logger(),
	}
}

// Notify triggers an immediate sweep. Non-blocking if one is already pending.
func (s *Scheduler) Notify() {
	select {
	case s.notifyCh <- struct{}{}:
	default:
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info().Dur("interval", s.cfg.CheckInterval).Msg("scheduler started")
	ticker := time.NewTicker(s.cfg.CheckInterval)
	defer ticker.Stop()

	s.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("scheduler stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		case <-s.notifyCh:
			s.sweep(ctx)
		}
	}
}

func (s *Scheduler) sweep(ctx context.Context) {
	now := timeNow()
	due, err := s.notifs.ClaimDue(ctx, now, now.Add(s.cfg.ClaimLease), s.cfg.BatchSize)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to claim due notifications")
		return
	}

	for _, n := range due {
		s.dispatchOne(ctx, n)
	}
}

func (s *Scheduler) dispatchOne(ctx context.Context, n *models.Notification) {
	now := timeNow()

	// A synchronous cancel (task completed, muted, deleted) can land between
	// the claim and this point; the claimed copy would still say pending.
	fresh, err := s.notifs.GetByID(ctx, n.ID)
	if err != nil {
		s.logger.Error().Err(err).Str("notification_id", n.ID.String()).Msg("reload before dispatch failed")
		return // lease expires, retried next sweep
	}
	if fresh.Status != models.NotifPending {
		s.logger.Debug().
			Str("notification_id", n.ID.String()).
			Str("status", string(fresh.Status)).
			Msg("claimed notification no longer pending, skipping")
		return
	}
	n = fresh

	// A mute raised between composition and fire time wins over delivery.
	if mute, err := s.mutes.ActiveMute(ctx, n.TaskID); err != nil {
		s.logger.Error().Err(err).Str("notification_id", n.ID.String()).Msg("mute lookup failed")
		return // lease expires, retried next sweep
	} else if mute != nil && mute.Covers(now) {
		if _, err := s.notifs.CancelPendingTier(ctx, n.TaskID, n.Tier); err != nil {
			s.logger.Error().Err(err).Str("notification_id", n.ID.String()).Msg("cancel muted notification failed")
		}
		return
	}

	tokens, err := s.devices.TokensForUser(ctx, n.UserID)
	if err != nil {
		s.logger.Error().Err(err).Str("notification_id", n.ID.String()).Msg("token lookup failed")
		return
	}

	err = s.dispatcher.Dispatch(ctx, push.Payload{
		NotificationID: n.ID.String(),
		UserID:         n.UserID.String(),
		Title:          n.Title,
		Body:           n.Body,
		Actions:        n.Actions,
		DeviceTokens:   tokens,
	})
	if err == nil {
		if err := s.notifs.MarkDelivered(ctx, n.ID, now); err != nil {
			s.logger.Error().Err(err).Str("notification_id", n.ID.String()).Msg("mark delivered failed")
		}
		s.logger.Info().
			Str("notification_id", n.ID.String()).
			Str("type", string(n.Type)).
			Int("attempt", n.Attempts+1).
			Msg("delivered notification")
		return
	}

	attempts := n.Attempts + 1
	if attempts >= s.cfg.MaxAttempts {
		lastErr := fmt.Errorf("%w: %s", errs.ErrTerminalDelivery, err.Error())
		if err := s.notifs.MarkFailed(ctx, n.ID, attempts, lastErr.Error(), now); err != nil {
			s.logger.Error().Err(err).Str("notification_id", n.ID.String()).Msg("mark failed failed")
		}
		s.logger.Warn().
			Str("notification_id", n.ID.String()).
			Int("attempts", attempts).
			Msg("notification exhausted retries")
		return
	}

	nextAt := now.Add(Backoff(s.cfg.BackoffSteps, attempts))
	if err := s.notifs.ScheduleRetry(ctx, n.ID, attempts, err.Error(), nextAt, now); err != nil {
		s.logger.Error().Err(err).Str("notification_id", n.ID.String()).Msg("schedule retry failed")
		return
	}
	s.logger.Warn().
		Str("notification_id", n.ID.String()).
		Int("attempt", attempts).
		Time("next_at", nextAt).
		Msg("dispatch failed, retry scheduled")
}

// Backoff returns the delay before the next attempt. attempt is 1-based
// (the number of attempts already made); past the last step the ladder
// stays at its final rung.
func Backoff(steps []time.Duration, attempt int) time.Duration {
	if len(steps) == 0 {
		return time.Minute
	}
	if attempt < 1 {
		attempt = 1
	}
	if attempt > len(steps) {
		attempt = len(steps)
	}
	return steps[attempt-1]
}
