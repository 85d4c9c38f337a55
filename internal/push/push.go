// Package push hands finished notifications to the delivery transports.
// The actual APNs/FCM fan-out lives in an external collaborator reached
// over a webhook; a Telegram channel is available as a secondary target
// for dev and ops delivery.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/hray3182/GeoNudge/internal/errs"
)

// Payload is one dispatch request to the push collaborator.
type Payload struct {
	NotificationID string   `json:"notification_id"`
	UserID         string   `json:"user_id"`
	Title          string   `json:"title"`
	Body           string   `json:"body"`
	Actions        []string `json:"actions"`
	DeviceTokens   []string `json:"device_tokens"`
}

// Dispatcher delivers one payload. A returned error means the delivery must
// be retried or eventually declared failed; it is never left pending.
type Dispatcher interface {
	Dispatch(ctx context.Context, p Payload) error
}

// WebhookDispatcher POSTs payloads to the push-transport collaborator with
// a bounded timeout. A timeout counts as a failure and is retried by the
// scheduler, never left hanging.
type WebhookDispatcher struct {
	url     string
	client  *http.Client
	timeout time.Duration
	logger  zerolog.Logger
}

func NewWebhook(url string, timeout time.Duration, logger zerolog.Logger) *WebhookDispatcher {
	return &WebhookDispatcher{
		url:     url,
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
		logger:  logger.With().Str("component", "push").Logger(),
	}
}

func (d *WebhookDispatcher) Dispatch(ctx context.Context, p Payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("push transport unreachable: %w", errs.ErrTransient)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("push transport returned %d: %w", resp.StatusCode, errs.ErrTransient)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("push transport rejected payload: %d", resp.StatusCode)
	}

	d.logger.Debug().
		Str("notification_id", p.NotificationID).
		Int("devices", len(p.DeviceTokens)).
		Msg("dispatched push")
	return nil
}

// TelegramDispatcher posts notifications to a fixed chat. Used as an
// ops/dev delivery channel when a bot token is configured.
type TelegramDispatcher struct {
	api    *tgbotapi.BotAPI
	chatID int64
}

func NewTelegram(token string, chatID int64) (*TelegramDispatcher, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram api: %w", err)
	}
	return &TelegramDispatcher{api: api, chatID: chatID}, nil
}

func (d *TelegramDispatcher) Dispatch(ctx context.Context, p Payload) error {
	msg := tgbotapi.NewMessage(d.chatID, p.Title+"\n\n"+p.Body)
	if _, err := d.api.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", errs.ErrTransient)
	}
	return nil
}

// Multi fans a payload out to several dispatchers. The first transport is
// authoritative: its error decides retry behavior, while secondary channel
// failures are only logged.
type Multi struct {
	primary   Dispatcher
	secondary []Dispatcher
	logger    zerolog.Logger
}

func NewMulti(logger zerolog.Logger, primary Dispatcher, secondary ...Dispatcher) *Multi {
	return &Multi{
		primary:   primary,
		secondary: secondary,
		logger:    logger.With().Str("component", "push").Logger(),
	}
}

func (m *Multi) Dispatch(ctx context.Context, p Payload) error {
	for _, d := range m.secondary {
		if err := d.Dispatch(ctx, p); err != nil {
			m.logger.Warn().Err(err).Msg("secondary dispatch failed")
		}
	}
	return m.primary.Dispatch(ctx, p)
}
