package notify

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hray3182/GeoNudge/internal/errs"
	"github.com/hray3182/GeoNudge/internal/models"
	"github.com/hray3182/GeoNudge/internal/push"
)

type fakeDevices struct {
	tokens map[uuid.UUID][]string
}

func (s *fakeDevices) TokensForUser(ctx context.Context, userID uuid.UUID) ([]string, error) {
	return s.tokens[userID], nil
}

type fakeMutes struct {
	active map[uuid.UUID]*models.TaskMute
}

func (s *fakeMutes) ActiveMute(ctx context.Context, taskID uuid.UUID) (*models.TaskMute, error) {
	return s.active[taskID], nil
}

type fakeDispatcher struct {
	sent []push.Payload
	errs []error // consumed per call, nil past the end
}

func (d *fakeDispatcher) Dispatch(ctx context.Context, p push.Payload) error {
	d.sent = append(d.sent, p)
	if len(d.errs) > 0 {
		err := d.errs[0]
		d.errs = d.errs[1:]
		return err
	}
	return nil
}

type schedulerFixture struct {
	sched      *Scheduler
	notifs     *fakeNotifStore
	devices    *fakeDevices
	mutes      *fakeMutes
	dispatcher *fakeDispatcher
}

func newSchedulerFixture() *schedulerFixture {
	f := &schedulerFixture{
		notifs:     newFakeNotifStore(),
		devices:    &fakeDevices{tokens: make(map[uuid.UUID][]string)},
		mutes:      &fakeMutes{active: make(map[uuid.UUID]*models.TaskMute)},
		dispatcher: &fakeDispatcher{},
	}
	f.sched = NewScheduler(f.notifs, f.devices, f.mutes, f.dispatcher, SchedulerConfig{
		CheckInterval: 30 * time.Second,
		ClaimLease:    2 * time.Minute,
		MaxAttempts:   3,
		BackoffSteps:  []time.Duration{time.Minute, 5 * time.Minute, 15 * time.Minute},
	}, zerolog.Nop())
	return f
}

func (f *schedulerFixture) pendingNotification(scheduledAt time.Time) *models.Notification {
	n := &models.Notification{
		ID:          uuid.New(),
		TaskID:      uuid.New(),
		UserID:      uuid.New(),
		Type:        models.NotifApproach,
		Tier:        models.TierApproach1mi,
		Title:       "Nearby: Main St Pharmacy",
		Body:        "You're 1 mile from Main St Pharmacy — pick up prescription?",
		Actions:     models.DefaultActions(),
		ScheduledAt: scheduledAt,
		Status:      models.NotifPending,
		CreatedAt:   scheduledAt,
	}
	f.notifs.Create(context.Background(), n)
	return f.notifs.byID[n.ID]
}

func TestSweep_DeliversDueNotification(t *testing.T) {
	f := newSchedulerFixture()
	n := f.pendingNotification(clock.Add(-time.Second))
	f.devices.tokens[n.UserID] = []string{"tok-1", "tok-2"}

	f.sched.sweep(context.Background())

	if len(f.dispatcher.sent) != 1 {
		t.Fatalf("dispatched = %d, want 1", len(f.dispatcher.sent))
	}
	p := f.dispatcher.sent[0]
	if p.NotificationID != n.ID.String() || len(p.DeviceTokens) != 2 {
		t.Errorf("payload = %+v", p)
	}
	if n.Status != models.NotifDelivered || n.Attempts != 1 {
		t.Errorf("notification = %s attempts=%d, want delivered/1", n.Status, n.Attempts)
	}
}

func TestSweep_FutureNotificationNotClaimed(t *testing.T) {
	f := newSchedulerFixture()
	f.pendingNotification(clock.Add(5 * time.Minute))

	f.sched.sweep(context.Background())

	if len(f.dispatcher.sent) != 0 {
		t.Errorf("dispatched = %d, want 0 before scheduled time", len(f.dispatcher.sent))
	}
}

func TestSweep_TransientFailureSchedulesRetry(t *testing.T) {
	f := newSchedulerFixture()
	n := f.pendingNotification(clock.Add(-time.Second))
	f.dispatcher.errs = []error{errs.ErrTransient}

	f.sched.sweep(context.Background())

	if n.Status != models.NotifPending {
		t.Fatalf("status = %s, want still pending", n.Status)
	}
	if n.Attempts != 1 || n.LastError == "" {
		t.Errorf("attempts = %d lastError = %q", n.Attempts, n.LastError)
	}
	if want := clock.Add(time.Minute); !n.ScheduledAt.Equal(want) {
		t.Errorf("retry at %v, want %v (first backoff step)", n.ScheduledAt, want)
	}
}

func TestSweep_ExhaustedRetriesMarkFailed(t *testing.T) {
	f := newSchedulerFixture()
	n := f.pendingNotification(clock.Add(-time.Second))
	n.Attempts = 2 // two failed attempts already on record
	f.dispatcher.errs = []error{errs.ErrTransient}

	f.sched.sweep(context.Background())

	if n.Status != models.NotifFailed {
		t.Errorf("status = %s, want failed at max attempts", n.Status)
	}
	if n.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", n.Attempts)
	}
}

func TestSweep_LeaseBlocksSecondClaim(t *testing.T) {
	f := newSchedulerFixture()
	n := f.pendingNotification(clock.Add(-time.Second))
	lease := clock.Add(time.Minute)
	n.ClaimedUntil = &lease

	f.sched.sweep(context.Background())

	if len(f.dispatcher.sent) != 0 {
		t.Errorf("dispatched = %d, want 0 while another sweep holds the lease", len(f.dispatcher.sent))
	}
}

func TestSweep_MuteRaisedAfterComposeCancels(t *testing.T) {
	// Typical for post-arrival timers: mute arrives between arming and fire.
	f := newSchedulerFixture()
	n := f.pendingNotification(clock.Add(-time.Second))
	f.mutes.active[n.TaskID] = &models.TaskMute{
		TaskID: n.TaskID,
		Status: models.SuppressionActive,
	}

	f.sched.sweep(context.Background())

	if len(f.dispatcher.sent) != 0 {
		t.Fatalf("dispatched = %d, want 0 for muted task", len(f.dispatcher.sent))
	}
	if n.Status != models.NotifCancelled {
		t.Errorf("status = %s, want cancelled", n.Status)
	}
}

func TestDispatch_CancelledAfterClaimNotDelivered(t *testing.T) {
	// A task completed while the sweep held the claim: the stored row is
	// already cancelled, only the claimed copy still says pending.
	f := newSchedulerFixture()
	n := f.pendingNotification(clock.Add(-time.Second))
	f.devices.tokens[n.UserID] = []string{"tok-1"}

	stale := *n
	n.Status = models.NotifCancelled

	f.sched.dispatchOne(context.Background(), &stale)

	if len(f.dispatcher.sent) != 0 {
		t.Fatalf("dispatched = %d, want 0 for a cancelled row", len(f.dispatcher.sent))
	}
	if n.Status != models.NotifCancelled {
		t.Errorf("status = %s, want still cancelled", n.Status)
	}
}

func TestBackoff_LadderIsIncreasingAndClamped(t *testing.T) {
	steps := []time.Duration{time.Minute, 5 * time.Minute, 15 * time.Minute}

	prev := time.Duration(0)
	for attempt := 1; attempt <= len(steps); attempt++ {
		d := Backoff(steps, attempt)
		if d <= prev {
			t.Errorf("Backoff(%d) = %v, want > %v", attempt, d, prev)
		}
		prev = d
	}
	if d := Backoff(steps, 10); d != 15*time.Minute {
		t.Errorf("Backoff past ladder = %v, want final rung", d)
	}
	if d := Backoff(nil, 1); d != time.Minute {
		t.Errorf("Backoff with no steps = %v, want 1m default", d)
	}
}
