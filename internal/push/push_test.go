package push

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/hray3182/GeoNudge/internal/errs"
)

func testPayload() Payload {
	return Payload{
		NotificationID: "n-1",
		UserID:         "u-1",
		Title:          "Arriving at Home",
		Body:           "Water the plants now?",
		Actions:        []string{"complete", "snooze_15m"},
		DeviceTokens:   []string{"tok-1"},
	}
}

func TestWebhookDispatch_Success(t *testing.T) {
	var got Payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewWebhook(srv.URL, 2*time.Second, zerolog.Nop())
	if err := d.Dispatch(context.Background(), testPayload()); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if got.NotificationID != "n-1" || got.Title != "Arriving at Home" {
		t.Errorf("server saw %+v", got)
	}
}

func TestWebhookDispatch_ServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	d := NewWebhook(srv.URL, 2*time.Second, zerolog.Nop())
	err := d.Dispatch(context.Background(), testPayload())
	if !errors.Is(err, errs.ErrTransient) {
		t.Errorf("err = %v, want ErrTransient", err)
	}
}

func TestWebhookDispatch_ClientErrorIsNotTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	d := NewWebhook(srv.URL, 2*time.Second, zerolog.Nop())
	err := d.Dispatch(context.Background(), testPayload())
	if err == nil || errors.Is(err, errs.ErrTransient) {
		t.Errorf("err = %v, want permanent rejection", err)
	}
}

func TestWebhookDispatch_TimeoutIsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	d := NewWebhook(srv.URL, 20*time.Millisecond, zerolog.Nop())
	err := d.Dispatch(context.Background(), testPayload())
	if !errors.Is(err, errs.ErrTransient) {
		t.Errorf("timeout err = %v, want ErrTransient (never left pending)", err)
	}
}

type stubDispatcher struct {
	calls int
	err   error
}

func (s *stubDispatcher) Dispatch(ctx context.Context, p Payload) error {
	s.calls++
	return s.err
}

func TestMulti_SecondaryFailureDoesNotFailDispatch(t *testing.T) {
	primary := &stubDispatcher{}
	secondary := &stubDispatcher{err: errors.New("telegram down")}

	m := NewMulti(zerolog.Nop(), primary, secondary)
	if err := m.Dispatch(context.Background(), testPayload()); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if primary.calls != 1 || secondary.calls != 1 {
		t.Errorf("calls = primary %d secondary %d, want 1/1", primary.calls, secondary.calls)
	}
}

func TestMulti_PrimaryFailurePropagates(t *testing.T) {
	primary := &stubDispatcher{err: errs.ErrTransient}
	m := NewMulti(zerolog.Nop(), primary)
	if err := m.Dispatch(context.Background(), testPayload()); !errors.Is(err, errs.ErrTransient) {
		t.Errorf("err = %v, want primary error", err)
	}
}
