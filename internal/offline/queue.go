// Package offline buffers crossing reports that could not be processed
// immediately and replays them in order once the pipeline is healthy again.
// Replay goes through the full intake filter, so stale reports are still
// suppressed on their merits rather than blindly delivered.
package offline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hray3182/GeoNudge/internal/errs"
	"github.com/hray3182/GeoNudge/internal/intake"
	"github.com/hray3182/GeoNudge/internal/models"
)

// timeNow is a package-level variable for testability.
var timeNow = time.Now

// Store is the persistence surface for the replay queue. ClaimBatch must
// return at most one queued row per user, oldest first, so a user's reports
// replay in the order they happened.
type Store interface {
	Enqueue(ctx context.Context, ev *models.OfflineEvent) error
	ClaimBatch(ctx context.Context, now, leaseUntil time.Time, limit int) ([]*models.OfflineEvent, error)
	MarkDone(ctx context.Context, id uuid.UUID) error
	MarkRetry(ctx context.Context, id uuid.UUID, retryCount int, lastError string) error
	MarkDead(ctx context.Context, id uuid.UUID, lastError string) error
}

// Processor replays one report through the intake pipeline.
type Processor interface {
	Process(ctx context.Context, report intake.CrossingReport) (*models.GeofenceEvent, error)
}

type Config struct {
	ReplayInterval time.Duration
	ClaimLease     time.Duration
	BatchSize      int
	MaxRetries     int
}

type Queue struct {
	store     Store
	processor Processor
	cfg       Config
	logger    zerolog.Logger
}

func NewQueue(store Store, processor Processor, cfg Config, logger zerolog.Logger) *Queue {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Queue{
		store:     store,
		processor: processor,
		cfg:       cfg,
		logger:    logger.With().Str("component", "offline").Logger(),
	}
}

// Enqueue buffers a report whose immediate processing failed.
func (q *Queue) Enqueue(ctx context.Context, report intake.CrossingReport) (*models.OfflineEvent, error) {
	payload, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}
	ev := &models.OfflineEvent{
		ID:         uuid.New(),
		UserID:     report.UserID,
		Payload:    payload,
		Status:     models.OfflineQueued,
		EnqueuedAt: timeNow(),
	}
	if err := q.store.Enqueue(ctx, ev); err != nil {
		return nil, fmt.Errorf("enqueue offline event: %w", err)
	}
	q.logger.Info().
		Str("offline_id", ev.ID.String()).
		Str("user_id", report.UserID.String()).
		Msg("buffered report for replay")
	return ev, nil
}

// Start runs the replay loop until the context is cancelled.
func (q *Queue) Start(ctx context.Context) {
	q.logger.Info().Dur("interval", q.cfg.ReplayInterval).Msg("offline replay worker started")
	ticker := time.NewTicker(q.cfg.ReplayInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			q.logger.Info().Msg("offline replay worker stopped")
			return
		case <-ticker.C:
			q.replayBatch(ctx)
		}
	}
}

func (q *Queue) replayBatch(ctx context.Context) {
	now := timeNow()
	batch, err := q.store.ClaimBatch(ctx, now, now.Add(q.cfg.ClaimLease), q.cfg.BatchSize)
	if err != nil {
		q.logger.Error().Err(err).Msg("failed to claim offline batch")
		return
	}
	for _, ev := range batch {
		q.replayOne(ctx, ev)
	}
}

func (q *Queue) replayOne(ctx context.Context, ev *models.OfflineEvent) {
	var report intake.CrossingReport
	if err := json.Unmarshal(ev.Payload, &report); err != nil {
		// Undecodable payloads can never succeed; bury them immediately.
		q.markDead(ctx, ev, fmt.Sprintf("corrupt payload: %v", err))
		return
	}

	_, err := q.processor.Process(ctx, report)
	switch {
	case err == nil:
		if err := q.store.MarkDone(ctx, ev.ID); err != nil {
			q.logger.Error().Err(err).Str("offline_id", ev.ID.String()).Msg("mark done failed")
		}
		q.logger.Info().
			Str("offline_id", ev.ID.String()).
			Int("retries", ev.RetryCount).
			Msg("replayed offline report")

	case errors.Is(err, errs.ErrValidation):
		// A payload that fails validation now will fail forever.
		q.markDead(ctx, ev, err.Error())

	default:
		retries := ev.RetryCount + 1
		if retries >= q.cfg.MaxRetries {
			q.markDead(ctx, ev, err.Error())
			return
		}
		if err := q.store.MarkRetry(ctx, ev.ID, retries, err.Error()); err != nil {
			q.logger.Error().Err(err).Str("offline_id", ev.ID.String()).Msg("mark retry failed")
			return
		}
		q.logger.Warn().
			Str("offline_id", ev.ID.String()).
			Int("retries", retries).
			Msg("offline replay failed, will retry")
	}
}

func (q *Queue) markDead(ctx context.Context, ev *models.OfflineEvent, reason string) {
	if err := q.store.MarkDead(ctx, ev.ID, reason); err != nil {
		q.logger.Error().Err(err).Str("offline_id", ev.ID.String()).Msg("mark dead failed")
		return
	}
	q.logger.Warn().
		Str("offline_id", ev.ID.String()).
		Str("reason", reason).
		Msg("offline report declared dead")
}
