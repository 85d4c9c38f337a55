package intake

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hray3182/GeoNudge/internal/errs"
	"github.com/hray3182/GeoNudge/internal/models"
)

var clock = time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

func init() {
	timeNow = func() time.Time { return clock }
}

// advance moves the frozen clock forward for the remainder of the test.
func advance(t *testing.T, d time.Duration) {
	t.Helper()
	clock = clock.Add(d)
	t.Cleanup(func() { clock = clock.Add(-d) })
}

type fakeGeofences struct {
	byID map[uuid.UUID]*models.Geofence
}

func (s *fakeGeofences) GetByID(ctx context.Context, id uuid.UUID) (*models.Geofence, error) {
	if gf, ok := s.byID[id]; ok {
		return gf, nil
	}
	return nil, errs.ErrNotFound
}

type fakeTasks struct {
	byID map[uuid.UUID]*models.Task
}

func (s *fakeTasks) GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	if task, ok := s.byID[id]; ok {
		return task, nil
	}
	return nil, errs.ErrNotFound
}

type fakeEvents struct {
	rows []*models.GeofenceEvent
}

func (s *fakeEvents) Create(ctx context.Context, ev *models.GeofenceEvent) error {
	s.rows = append(s.rows, ev)
	return nil
}

func (s *fakeEvents) SetStatus(ctx context.Context, id uuid.UUID, status models.EventStatus, reason string) error {
	for _, r := range s.rows {
		if r.ID == id {
			r.Status = status
			if reason != "" {
				r.SuppressReason = reason
			}
		}
	}
	return nil
}

type markKey struct {
	user, task  uuid.UUID
	kind, scope string
}

type fakeMarks struct {
	held   map[markKey]time.Time
	claims int
}

func newFakeMarks() *fakeMarks {
	return &fakeMarks{held: make(map[markKey]time.Time)}
}

func (s *fakeMarks) Claim(ctx context.Context, userID, taskID uuid.UUID, kind, scope string, until time.Time) (bool, error) {
	s.claims++
	key := markKey{userID, taskID, kind, scope}
	if held, ok := s.held[key]; ok && timeNow().Before(held) {
		return false, nil
	}
	s.held[key] = until
	return true, nil
}

func (s *fakeMarks) Release(ctx context.Context, userID, taskID uuid.UUID, kind, scope string) error {
	delete(s.held, markKey{userID, taskID, kind, scope})
	return nil
}

type fakeSuppressions struct {
	mutes   map[uuid.UUID]*models.TaskMute
	snoozes map[uuid.UUID]*models.NotificationSnooze // by task
}

func (s *fakeSuppressions) ActiveMute(ctx context.Context, taskID uuid.UUID) (*models.TaskMute, error) {
	return s.mutes[taskID], nil
}

func (s *fakeSuppressions) ActiveSnooze(ctx context.Context, userID, taskID uuid.UUID, tier models.TierKind) (*models.NotificationSnooze, error) {
	if sn, ok := s.snoozes[taskID]; ok && sn.Tier == tier && timeNow().Before(sn.Until) {
		return sn, nil
	}
	return nil, nil
}

type fakeSink struct {
	accepted []*models.GeofenceEvent
	err      error
}

func (s *fakeSink) HandleAccepted(ctx context.Context, ev *models.GeofenceEvent, task *models.Task, gf *models.Geofence) error {
	if s.err != nil {
		return s.err
	}
	s.accepted = append(s.accepted, ev)
	return nil
}

type fixture struct {
	filter   *Filter
	geos     *fakeGeofences
	tasks    *fakeTasks
	events   *fakeEvents
	marks    *fakeMarks
	suppress *fakeSuppressions
	sink     *fakeSink

	userID uuid.UUID
	task   *models.Task
}

func newFixture(class models.Classification) *fixture {
	f := &fixture{
		geos:     &fakeGeofences{byID: make(map[uuid.UUID]*models.Geofence)},
		tasks:    &fakeTasks{byID: make(map[uuid.UUID]*models.Task)},
		events:   &fakeEvents{},
		marks:    newFakeMarks(),
		suppress: &fakeSuppressions{mutes: map[uuid.UUID]*models.TaskMute{}, snoozes: map[uuid.UUID]*models.NotificationSnooze{}},
		sink:     &fakeSink{},
		userID:   uuid.New(),
	}
	f.task = &models.Task{
		ID:             uuid.New(),
		UserID:         f.userID,
		Title:          "pick up prescription",
		Classification: class,
		Status:         models.TaskActive,
	}
	f.tasks.byID[f.task.ID] = f.task
	f.filter = New(f.geos, f.tasks, f.events, f.marks, f.suppress, f.sink, Config{
		ApproachCooldown: 15 * time.Minute,
		DedupWindow:      15 * time.Minute,
		MinConfidence:    0.5,
	}, zerolog.Nop())
	return f
}

func (f *fixture) addGeofence(tier models.TierKind) *models.Geofence {
	gf := &models.Geofence{
		ID:     uuid.New(),
		TaskID: f.task.ID,
		Tier:   tier,
		Active: true,
	}
	f.geos.byID[gf.ID] = gf
	return gf
}

func (f *fixture) report(gf *models.Geofence, typ models.EventType) CrossingReport {
	return CrossingReport{
		UserID:     f.userID,
		GeofenceID: gf.ID,
		Type:       typ,
		Lat:        25.03,
		Lng:        121.56,
		Confidence: 0.9,
		ClientTime: clock,
	}
}

func TestProcess_AcceptedReachesSink(t *testing.T) {
	f := newFixture(models.ClassCategory)
	gf := f.addGeofence(models.TierApproach1mi)

	ev, err := f.filter.Process(context.Background(), f.report(gf, models.EventEnter))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(f.sink.accepted) != 1 {
		t.Fatalf("sink got %d events, want 1", len(f.sink.accepted))
	}
	if ev.Tier != models.TierApproach1mi || ev.TaskID != f.task.ID {
		t.Errorf("event not enriched: tier=%s task=%s", ev.Tier, ev.TaskID)
	}
	if ev.CooldownUntil == nil || !ev.CooldownUntil.Equal(clock.Add(15*time.Minute)) {
		t.Errorf("cooldown until = %v, want clock+15m", ev.CooldownUntil)
	}
}

func TestProcess_ValidationRejectsImmediately(t *testing.T) {
	f := newFixture(models.ClassCategory)
	gf := f.addGeofence(models.TierApproach1mi)

	bad := f.report(gf, models.EventEnter)
	bad.Type = models.EventType("teleport")
	if _, err := f.filter.Process(context.Background(), bad); !errors.Is(err, errs.ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}
	if len(f.events.rows) != 0 {
		t.Error("validation failures must not leave event rows")
	}
}

func TestProcess_UnknownGeofenceRecordedAsSuppressed(t *testing.T) {
	f := newFixture(models.ClassCategory)
	report := CrossingReport{
		UserID:     f.userID,
		GeofenceID: uuid.New(),
		Type:       models.EventEnter,
		Confidence: 0.9,
		ClientTime: clock,
	}
	ev, err := f.filter.Process(context.Background(), report)
	if err != nil {
		t.Fatalf("Process: %v (deletion races are not failures)", err)
	}
	if ev.Status != models.EventSuppressed || ev.SuppressReason != models.SuppressGeofenceGone {
		t.Errorf("event = %s/%s, want suppressed/geofence_not_found", ev.Status, ev.SuppressReason)
	}
}

func TestProcess_CompletedTaskSuppressed(t *testing.T) {
	f := newFixture(models.ClassCategory)
	gf := f.addGeofence(models.TierApproach1mi)
	f.task.Status = models.TaskCompleted

	ev, err := f.filter.Process(context.Background(), f.report(gf, models.EventEnter))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if ev.SuppressReason != models.SuppressTaskInactive {
		t.Errorf("reason = %s, want task_inactive", ev.SuppressReason)
	}
}

func TestProcess_MuteSkipsAllBookkeeping(t *testing.T) {
	f := newFixture(models.ClassCategory)
	gf := f.addGeofence(models.TierApproach1mi)
	f.suppress.mutes[f.task.ID] = &models.TaskMute{Status: models.SuppressionActive}

	ev, err := f.filter.Process(context.Background(), f.report(gf, models.EventEnter))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if ev.SuppressReason != models.SuppressMuted {
		t.Errorf("reason = %s, want muted", ev.SuppressReason)
	}
	if f.marks.claims != 0 {
		t.Error("mute must stop before cooldown/dedup marks are touched")
	}
}

func TestProcess_MuteBeatsCooldownState(t *testing.T) {
	// Un-muting restores eligibility without a fresh crossing: the mute
	// path must not have consumed the cooldown window.
	f := newFixture(models.ClassCategory)
	gf := f.addGeofence(models.TierApproach1mi)

	f.suppress.mutes[f.task.ID] = &models.TaskMute{Status: models.SuppressionActive}
	if _, err := f.filter.Process(context.Background(), f.report(gf, models.EventEnter)); err != nil {
		t.Fatalf("muted process: %v", err)
	}

	delete(f.suppress.mutes, f.task.ID)
	ev, err := f.filter.Process(context.Background(), f.report(gf, models.EventEnter))
	if err != nil {
		t.Fatalf("unmuted process: %v", err)
	}
	if ev.Status == models.EventSuppressed {
		t.Errorf("event suppressed (%s) after unmute, want accepted", ev.SuppressReason)
	}
}

func TestProcess_SnoozedTierSuppressed(t *testing.T) {
	f := newFixture(models.ClassCategory)
	gf := f.addGeofence(models.TierApproach1mi)
	f.suppress.snoozes[f.task.ID] = &models.NotificationSnooze{
		Tier:   models.TierApproach1mi,
		Until:  clock.Add(time.Hour),
		Status: models.SuppressionActive,
	}

	ev, err := f.filter.Process(context.Background(), f.report(gf, models.EventEnter))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if ev.SuppressReason != models.SuppressSnoozed {
		t.Errorf("reason = %s, want snoozed", ev.SuppressReason)
	}
}

func TestProcess_LowConfidenceDoesNotConsumeCooldown(t *testing.T) {
	f := newFixture(models.ClassCategory)
	gf := f.addGeofence(models.TierApproach1mi)

	noisy := f.report(gf, models.EventEnter)
	noisy.Confidence = 0.2
	ev, err := f.filter.Process(context.Background(), noisy)
	if err != nil {
		t.Fatalf("noisy process: %v", err)
	}
	if ev.SuppressReason != models.SuppressLowConfidence {
		t.Errorf("reason = %s, want low_confidence", ev.SuppressReason)
	}

	ev, err = f.filter.Process(context.Background(), f.report(gf, models.EventEnter))
	if err != nil {
		t.Fatalf("confident process: %v", err)
	}
	if ev.Status == models.EventSuppressed {
		t.Error("confident report right after noise should still notify")
	}
}

func TestProcess_CooldownSuppressesSecondEnter(t *testing.T) {
	f := newFixture(models.ClassCategory)
	gf := f.addGeofence(models.TierApproach1mi)

	if _, err := f.filter.Process(context.Background(), f.report(gf, models.EventEnter)); err != nil {
		t.Fatalf("first: %v", err)
	}
	advance(t, 2*time.Minute)
	ev, err := f.filter.Process(context.Background(), f.report(gf, models.EventEnter))
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if ev.SuppressReason != models.SuppressCooldown {
		t.Errorf("reason = %s, want cooldown", ev.SuppressReason)
	}
	if len(f.sink.accepted) != 1 {
		t.Errorf("sink got %d events, want 1", len(f.sink.accepted))
	}
}

func TestProcess_CooldownExpiryRestoresEligibility(t *testing.T) {
	f := newFixture(models.ClassCategory)
	gf := f.addGeofence(models.TierApproach1mi)

	if _, err := f.filter.Process(context.Background(), f.report(gf, models.EventEnter)); err != nil {
		t.Fatalf("first: %v", err)
	}
	advance(t, 16*time.Minute)
	ev, err := f.filter.Process(context.Background(), f.report(gf, models.EventEnter))
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if ev.Status == models.EventSuppressed {
		t.Errorf("event suppressed (%s) after cooldown lapsed", ev.SuppressReason)
	}
}

func TestProcess_EscalatingTierInsideDedupWindow(t *testing.T) {
	// Crossing the next boundary inward minutes after the previous one is an
	// escalation, not a duplicate: each tier claims its own dedup window.
	f := newFixture(models.ClassCategory)
	g5 := f.addGeofence(models.TierApproach5mi)
	g3 := f.addGeofence(models.TierApproach3mi)

	if _, err := f.filter.Process(context.Background(), f.report(g5, models.EventEnter)); err != nil {
		t.Fatalf("5mi enter: %v", err)
	}
	advance(t, 4*time.Minute)
	ev, err := f.filter.Process(context.Background(), f.report(g3, models.EventEnter))
	if err != nil {
		t.Fatalf("3mi enter: %v", err)
	}
	if ev.Status == models.EventSuppressed {
		t.Fatalf("3mi enter suppressed (%s), want accepted", ev.SuppressReason)
	}
	if len(f.sink.accepted) != 2 {
		t.Errorf("sink got %d events, want both tiers", len(f.sink.accepted))
	}
}

func TestProcess_SnoozeBoundaryTimeline(t *testing.T) {
	// Snooze 1h at 14:00: a crossing at 14:10 produces nothing, and the first
	// qualifying crossing after the window produces a fresh notification.
	// Nothing is resent at the boundary itself.
	f := newFixture(models.ClassCategory)
	gf := f.addGeofence(models.TierApproach1mi)
	f.suppress.snoozes[f.task.ID] = &models.NotificationSnooze{
		Tier:   models.TierApproach1mi,
		Until:  clock.Add(time.Hour),
		Status: models.SuppressionActive,
	}

	advance(t, 10*time.Minute)
	ev, err := f.filter.Process(context.Background(), f.report(gf, models.EventEnter))
	if err != nil {
		t.Fatalf("crossing inside window: %v", err)
	}
	if ev.SuppressReason != models.SuppressSnoozed {
		t.Fatalf("reason = %s, want snoozed", ev.SuppressReason)
	}
	if len(f.sink.accepted) != 0 {
		t.Fatal("snoozed crossing must not reach the composer")
	}

	advance(t, 51*time.Minute) // 14:61 — one minute past the window
	ev, err = f.filter.Process(context.Background(), f.report(gf, models.EventEnter))
	if err != nil {
		t.Fatalf("crossing after window: %v", err)
	}
	if ev.Status == models.EventSuppressed {
		t.Fatalf("post-window crossing suppressed (%s), want accepted", ev.SuppressReason)
	}
	if len(f.sink.accepted) != 1 {
		t.Errorf("sink got %d events, want exactly the post-window crossing", len(f.sink.accepted))
	}
}

func TestProcess_ArrivalHasNoCooldownButDedups(t *testing.T) {
	f := newFixture(models.ClassOtherPlace)
	gf := f.addGeofence(models.TierArrival)

	if _, err := f.filter.Process(context.Background(), f.report(gf, models.EventEnter)); err != nil {
		t.Fatalf("first: %v", err)
	}
	advance(t, time.Minute)
	ev, err := f.filter.Process(context.Background(), f.report(gf, models.EventEnter))
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if ev.SuppressReason != models.SuppressDuplicate {
		t.Errorf("reason = %s, want duplicate (dedup window)", ev.SuppressReason)
	}
}

func TestProcess_SinkFailureReleasesMarks(t *testing.T) {
	f := newFixture(models.ClassCategory)
	gf := f.addGeofence(models.TierApproach1mi)
	f.sink.err = errors.New("composer store down")

	ev, err := f.filter.Process(context.Background(), f.report(gf, models.EventEnter))
	if !errors.Is(err, errs.ErrTransient) {
		t.Fatalf("err = %v, want ErrTransient", err)
	}
	if ev == nil || ev.Status != models.EventFailed {
		t.Fatalf("event = %+v, want failed", ev)
	}

	// The offline replay of the same payload must not be suppressed by
	// claims from the failed attempt.
	f.sink.err = nil
	replay, err := f.filter.Process(context.Background(), f.report(gf, models.EventEnter))
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if replay.Status == models.EventSuppressed {
		t.Errorf("replay suppressed (%s), want accepted", replay.SuppressReason)
	}
}

func TestProcess_PharmacyScenario(t *testing.T) {
	// Category task, crossing 5mi -> 3mi -> 1mi with the 1mi fence
	// re-firing enter/exit/enter within two minutes: exactly three
	// accepted notifications, no duplicates.
	f := newFixture(models.ClassCategory)
	g5 := f.addGeofence(models.TierApproach5mi)
	g3 := f.addGeofence(models.TierApproach3mi)
	g1 := f.addGeofence(models.TierApproach1mi)

	steps := []struct {
		gf    *models.Geofence
		typ   models.EventType
		after time.Duration
	}{
		{g5, models.EventEnter, 0},
		{g3, models.EventEnter, 4 * time.Minute},
		{g1, models.EventEnter, 8 * time.Minute},
		{g1, models.EventExit, 9 * time.Minute},
		{g1, models.EventEnter, 10 * time.Minute},
	}

	base := clock
	for _, step := range steps {
		at := base.Add(step.after)
		timeNow = func() time.Time { return at }
		if _, err := f.filter.Process(context.Background(), f.report(step.gf, step.typ)); err != nil {
			t.Fatalf("step %s/%s: %v", step.gf.Tier, step.typ, err)
		}
	}
	timeNow = func() time.Time { return clock }

	enters := 0
	for _, ev := range f.sink.accepted {
		if ev.Type == models.EventEnter {
			enters++
		}
	}
	if enters != 3 {
		t.Errorf("accepted enter events = %d, want exactly 3", enters)
	}
}
