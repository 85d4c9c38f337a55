package notify

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hray3182/GeoNudge/internal/models"
	"github.com/hray3182/GeoNudge/internal/tier"
)

var clock = time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

func init() {
	timeNow = func() time.Time { return clock }
}

type fakeNotifStore struct {
	rows  []*models.Notification
	byID  map[uuid.UUID]*models.Notification
	marks struct {
		delivered []uuid.UUID
		failed    []uuid.UUID
		retried   []uuid.UUID
	}
}

func newFakeNotifStore() *fakeNotifStore {
	return &fakeNotifStore{byID: make(map[uuid.UUID]*models.Notification)}
}

func (s *fakeNotifStore) Create(ctx context.Context, n *models.Notification) error {
	cp := *n
	s.rows = append(s.rows, &cp)
	s.byID[n.ID] = &cp
	return nil
}

func (s *fakeNotifStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Notification, error) {
	return s.byID[id], nil
}

func (s *fakeNotifStore) HasOpen(ctx context.Context, taskID uuid.UUID, tierKind models.TierKind) (bool, error) {
	for _, n := range s.rows {
		if n.TaskID == taskID && n.Tier == tierKind && n.Status == models.NotifPending {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeNotifStore) OpenBundle(ctx context.Context, userID uuid.UUID, cutoff time.Time) (*models.Notification, error) {
	var newest *models.Notification
	for _, n := range s.rows {
		if n.UserID != userID || n.Status != models.NotifPending || n.Tier == models.TierPostArrival {
			continue
		}
		if n.CreatedAt.Before(cutoff) {
			continue
		}
		if newest == nil || n.CreatedAt.After(newest.CreatedAt) {
			newest = n
		}
	}
	return newest, nil
}

func (s *fakeNotifStore) UpdateBundleContent(ctx context.Context, id uuid.UUID, title, body string, sourceCount int) error {
	n := s.byID[id]
	n.Title = title
	n.Body = body
	n.SourceCount = sourceCount
	return nil
}

func (s *fakeNotifStore) ClaimDue(ctx context.Context, now, leaseUntil time.Time, limit int) ([]*models.Notification, error) {
	var due []*models.Notification
	for _, n := range s.rows {
		if len(due) >= limit {
			break
		}
		if n.Status != models.NotifPending || n.ScheduledAt.After(now) {
			continue
		}
		if n.ClaimedUntil != nil && now.Before(*n.ClaimedUntil) {
			continue
		}
		lease := leaseUntil
		n.ClaimedUntil = &lease
		due = append(due, n)
	}
	return due, nil
}

func (s *fakeNotifStore) MarkDelivered(ctx context.Context, id uuid.UUID, at time.Time) error {
	n := s.byID[id]
	if n.Status != models.NotifPending {
		return nil
	}
	n.Status = models.NotifDelivered
	n.Attempts++
	n.LastAttemptAt = &at
	s.marks.delivered = append(s.marks.delivered, id)
	return nil
}

func (s *fakeNotifStore) ScheduleRetry(ctx context.Context, id uuid.UUID, attempts int, lastError string, nextAt, at time.Time) error {
	n := s.byID[id]
	n.Attempts = attempts
	n.LastError = lastError
	n.LastAttemptAt = &at
	n.ScheduledAt = nextAt
	n.ClaimedUntil = nil
	s.marks.retried = append(s.marks.retried, id)
	return nil
}

func (s *fakeNotifStore) MarkFailed(ctx context.Context, id uuid.UUID, attempts int, lastError string, at time.Time) error {
	n := s.byID[id]
	n.Status = models.NotifFailed
	n.Attempts = attempts
	n.LastError = lastError
	n.LastAttemptAt = &at
	s.marks.failed = append(s.marks.failed, id)
	return nil
}

func (s *fakeNotifStore) MarkSnoozed(ctx context.Context, id uuid.UUID) error {
	s.byID[id].Status = models.NotifSnoozed
	return nil
}

func (s *fakeNotifStore) CancelOpenForTask(ctx context.Context, taskID uuid.UUID) (int, error) {
	cancelled := 0
	for _, n := range s.rows {
		if n.TaskID == taskID && n.Status == models.NotifPending {
			n.Status = models.NotifCancelled
			cancelled++
		}
	}
	return cancelled, nil
}

func (s *fakeNotifStore) CancelPendingTier(ctx context.Context, taskID uuid.UUID, tierKind models.TierKind) (bool, error) {
	for _, n := range s.rows {
		if n.TaskID == taskID && n.Tier == tierKind && n.Status == models.NotifPending {
			n.Status = models.NotifCancelled
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeNotifStore) pending() []*models.Notification {
	var out []*models.Notification
	for _, n := range s.rows {
		if n.Status == models.NotifPending {
			out = append(out, n)
		}
	}
	return out
}

type fakeEventStore struct {
	events map[uuid.UUID]*models.GeofenceEvent
	titles map[uuid.UUID]string // task -> title
	order  []uuid.UUID          // attach order
}

func newFakeEventStore() *fakeEventStore {
	return &fakeEventStore{
		events: make(map[uuid.UUID]*models.GeofenceEvent),
		titles: make(map[uuid.UUID]string),
	}
}

func (s *fakeEventStore) SetStatus(ctx context.Context, id uuid.UUID, status models.EventStatus, reason string) error {
	if ev, ok := s.events[id]; ok {
		ev.Status = status
		if reason != "" {
			ev.SuppressReason = reason
		}
	}
	return nil
}

func (s *fakeEventStore) AttachToBundle(ctx context.Context, eventID, bundleID uuid.UUID, status models.EventStatus) error {
	ev := s.events[eventID]
	ev.BundleID = &bundleID
	ev.Status = status
	s.order = append(s.order, eventID)
	return nil
}

func (s *fakeEventStore) BundleTaskTitles(ctx context.Context, bundleID uuid.UUID) ([]string, error) {
	var titles []string
	for _, id := range s.order {
		ev := s.events[id]
		if ev.BundleID != nil && *ev.BundleID == bundleID {
			titles = append(titles, s.titles[ev.TaskID])
		}
	}
	return titles, nil
}

type countWaker struct{ wakes int }

func (w *countWaker) Notify() { w.wakes++ }

type composerFixture struct {
	composer *Composer
	notifs   *fakeNotifStore
	events   *fakeEventStore
	waker    *countWaker
	userID   uuid.UUID
}

func newComposerFixture() *composerFixture {
	f := &composerFixture{
		notifs: newFakeNotifStore(),
		events: newFakeEventStore(),
		waker:  &countWaker{},
		userID: uuid.New(),
	}
	f.composer = NewComposer(f.notifs, f.events, nil, f.waker, ComposerConfig{
		BundleWindow:     2 * time.Minute,
		BundleRadiusM:    200,
		PostArrivalDwell: 5 * time.Minute,
	}, zerolog.Nop())
	return f
}

func (f *composerFixture) task(title string, class models.Classification) *models.Task {
	t := &models.Task{
		ID:             uuid.New(),
		UserID:         f.userID,
		Title:          title,
		PlaceName:      "Main St Pharmacy",
		Classification: class,
		Status:         models.TaskActive,
	}
	f.events.titles[t.ID] = title
	return t
}

func (f *composerFixture) accepted(task *models.Task, tierKind models.TierKind, typ models.EventType, lat, lng float64) (*models.GeofenceEvent, *models.Geofence) {
	gf := &models.Geofence{ID: uuid.New(), TaskID: task.ID, Tier: tierKind, Active: true}
	ev := &models.GeofenceEvent{
		ID:         uuid.New(),
		UserID:     f.userID,
		TaskID:     task.ID,
		GeofenceID: gf.ID,
		Type:       typ,
		Tier:       tierKind,
		Lat:        lat,
		Lng:        lng,
		Status:     models.EventPending,
		CreatedAt:  clock,
	}
	f.events.events[ev.ID] = ev
	return ev, gf
}

func TestHandleAccepted_ApproachEnterComposesNotification(t *testing.T) {
	f := newComposerFixture()
	task := f.task("pick up prescription", models.ClassCategory)
	ev, gf := f.accepted(task, models.TierApproach1mi, models.EventEnter, 25.03, 121.56)

	if err := f.composer.HandleAccepted(context.Background(), ev, task, gf); err != nil {
		t.Fatalf("HandleAccepted: %v", err)
	}

	pending := f.notifs.pending()
	if len(pending) != 1 {
		t.Fatalf("pending = %d, want 1", len(pending))
	}
	n := pending[0]
	if n.Type != models.NotifApproach || n.Tier != models.TierApproach1mi {
		t.Errorf("type/tier = %s/%s", n.Type, n.Tier)
	}
	if want := "You're 1 mile from Main St Pharmacy — pick up prescription?"; n.Body != want {
		t.Errorf("body = %q, want %q", n.Body, want)
	}
	if !n.ScheduledAt.Equal(clock) {
		t.Errorf("scheduled at %v, want now", n.ScheduledAt)
	}
	if ev.Status != models.EventProcessed || ev.BundleID == nil {
		t.Errorf("event = %s bundle=%v, want processed and linked", ev.Status, ev.BundleID)
	}
	if f.waker.wakes != 1 {
		t.Errorf("waker wakes = %d, want 1", f.waker.wakes)
	}
}

func TestHandleAccepted_SecondEventWhileOpenIsSuppressed(t *testing.T) {
	f := newComposerFixture()
	task := f.task("buy stamps", models.ClassCategory)

	// Same task far enough from the first anchor that bundling is off the
	// table; the open-notification rule must catch it.
	ev1, gf1 := f.accepted(task, models.TierApproach1mi, models.EventEnter, 25.03, 121.56)
	if err := f.composer.HandleAccepted(context.Background(), ev1, task, gf1); err != nil {
		t.Fatalf("first: %v", err)
	}
	ev2, gf2 := f.accepted(task, models.TierApproach1mi, models.EventEnter, 25.10, 121.70)
	if err := f.composer.HandleAccepted(context.Background(), ev2, task, gf2); err != nil {
		t.Fatalf("second: %v", err)
	}

	if len(f.notifs.pending()) != 1 {
		t.Fatalf("pending = %d, want 1", len(f.notifs.pending()))
	}
	if ev2.Status != models.EventSuppressed || ev2.SuppressReason != models.SuppressAlreadyOpen {
		t.Errorf("second event = %s/%s, want suppressed/notification_open", ev2.Status, ev2.SuppressReason)
	}
}

func TestHandleAccepted_NearbyEventsBundle(t *testing.T) {
	f := newComposerFixture()
	pharmacy := f.task("pick up prescription", models.ClassCategory)
	post := f.task("mail the package", models.ClassCategory)
	bank := f.task("deposit the check", models.ClassCategory)

	// Three tasks firing at nearly the same spot within the window.
	for _, task := range []*models.Task{pharmacy, post, bank} {
		ev, gf := f.accepted(task, models.TierApproach1mi, models.EventEnter, 25.0330, 121.5654)
		if err := f.composer.HandleAccepted(context.Background(), ev, task, gf); err != nil {
			t.Fatalf("%s: %v", task.Title, err)
		}
	}

	pending := f.notifs.pending()
	if len(pending) != 1 {
		t.Fatalf("pending = %d, want 1 bundle", len(pending))
	}
	n := pending[0]
	if n.SourceCount != 3 {
		t.Errorf("source count = %d, want 3", n.SourceCount)
	}
	if n.Title != "3 reminders nearby" {
		t.Errorf("title = %q", n.Title)
	}
	if !strings.Contains(n.Body, "1. pick up prescription") || !strings.Contains(n.Body, "3. deposit the check") {
		t.Errorf("body = %q, want numbered task list", n.Body)
	}
}

func TestHandleAccepted_DistantEventDoesNotBundle(t *testing.T) {
	f := newComposerFixture()
	a := f.task("pick up prescription", models.ClassCategory)
	b := f.task("return the library book", models.ClassCategory)

	ev1, gf1 := f.accepted(a, models.TierApproach1mi, models.EventEnter, 25.0330, 121.5654)
	if err := f.composer.HandleAccepted(context.Background(), ev1, a, gf1); err != nil {
		t.Fatalf("first: %v", err)
	}
	// ~5km away: inside the time window, outside the bundle radius.
	ev2, gf2 := f.accepted(b, models.TierApproach1mi, models.EventEnter, 25.0780, 121.5654)
	if err := f.composer.HandleAccepted(context.Background(), ev2, b, gf2); err != nil {
		t.Fatalf("second: %v", err)
	}

	if got := len(f.notifs.pending()); got != 2 {
		t.Errorf("pending = %d, want 2 separate notifications", got)
	}
}

func TestHandleAccepted_ArrivalArmsPostArrivalTimer(t *testing.T) {
	f := newComposerFixture()
	home := f.task("water the plants", models.ClassHomeWork)
	if !tier.HasPostArrival(home.Classification) {
		t.Fatal("home/work must carry a post-arrival stage")
	}

	ev, gf := f.accepted(home, models.TierArrival, models.EventEnter, 25.03, 121.56)
	if err := f.composer.HandleAccepted(context.Background(), ev, home, gf); err != nil {
		t.Fatalf("HandleAccepted: %v", err)
	}

	pending := f.notifs.pending()
	if len(pending) != 2 {
		t.Fatalf("pending = %d, want arrival + armed post-arrival", len(pending))
	}
	var timer *models.Notification
	for _, n := range pending {
		if n.Tier == models.TierPostArrival {
			timer = n
		}
	}
	if timer == nil {
		t.Fatal("no post-arrival notification armed")
	}
	if want := clock.Add(5 * time.Minute); !timer.ScheduledAt.Equal(want) {
		t.Errorf("post-arrival fires at %v, want %v", timer.ScheduledAt, want)
	}
	if want := "Still need to water the plants?"; timer.Body != want {
		t.Errorf("post-arrival body = %q, want %q", timer.Body, want)
	}
}

func TestHandleAccepted_ExitCancelsPostArrivalTimer(t *testing.T) {
	f := newComposerFixture()
	home := f.task("water the plants", models.ClassHomeWork)

	enter, gf := f.accepted(home, models.TierArrival, models.EventEnter, 25.03, 121.56)
	if err := f.composer.HandleAccepted(context.Background(), enter, home, gf); err != nil {
		t.Fatalf("enter: %v", err)
	}
	exit, gfExit := f.accepted(home, models.TierArrival, models.EventExit, 25.03, 121.56)
	if err := f.composer.HandleAccepted(context.Background(), exit, home, gfExit); err != nil {
		t.Fatalf("exit: %v", err)
	}

	for _, n := range f.notifs.rows {
		if n.Tier == models.TierPostArrival && n.Status != models.NotifCancelled {
			t.Errorf("post-arrival status = %s, want cancelled after exit", n.Status)
		}
	}
	if exit.Status != models.EventProcessed {
		t.Errorf("exit event status = %s, want processed", exit.Status)
	}
}

func TestHandleAccepted_ApproachExitProducesNothing(t *testing.T) {
	f := newComposerFixture()
	task := f.task("buy milk", models.ClassCategory)

	ev, gf := f.accepted(task, models.TierApproach3mi, models.EventExit, 25.03, 121.56)
	if err := f.composer.HandleAccepted(context.Background(), ev, task, gf); err != nil {
		t.Fatalf("HandleAccepted: %v", err)
	}
	if len(f.notifs.rows) != 0 {
		t.Errorf("notifications = %d, want 0 for approach exit", len(f.notifs.rows))
	}
	if ev.Status != models.EventProcessed {
		t.Errorf("event status = %s, want processed", ev.Status)
	}
}
