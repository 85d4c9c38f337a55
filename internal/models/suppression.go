package models

import (
	"time"

	"github.com/google/uuid"
)

type SnoozeDuration string

const (
	Snooze15m   SnoozeDuration = "15m"
	Snooze1h    SnoozeDuration = "1h"
	SnoozeToday SnoozeDuration = "today"
)

func (d SnoozeDuration) Valid() bool {
	return d == Snooze15m || d == Snooze1h || d == SnoozeToday
}

type MuteDuration string

const (
	Mute1h            MuteDuration = "1h"
	Mute4h            MuteDuration = "4h"
	Mute8h            MuteDuration = "8h"
	Mute24h           MuteDuration = "24h"
	MuteUntilTomorrow MuteDuration = "until_tomorrow"
	MutePermanent     MuteDuration = "permanent"
)

func (d MuteDuration) Valid() bool {
	switch d {
	case Mute1h, Mute4h, Mute8h, Mute24h, MuteUntilTomorrow, MutePermanent:
		return true
	}
	return false
}

type SuppressionStatus string

const (
	SuppressionActive    SuppressionStatus = "active"
	SuppressionExpired   SuppressionStatus = "expired"
	SuppressionCancelled SuppressionStatus = "cancelled"
)

// NotificationSnooze governs re-eligibility for one (task, tier) after the
// user snoozes a notification. At most one active snooze exists per
// notification; a repeat request extends the existing row.
type NotificationSnooze struct {
	ID             uuid.UUID         `json:"id"`
	UserID         uuid.UUID         `json:"user_id"`
	TaskID         uuid.UUID         `json:"task_id"`
	NotificationID uuid.UUID         `json:"notification_id"`
	Tier           TierKind          `json:"tier"`
	Duration       SnoozeDuration    `json:"duration"`
	Until          time.Time         `json:"until"`
	OriginalAt     time.Time         `json:"original_scheduled_at"`
	Count          int               `json:"count"`
	Status         SuppressionStatus `json:"status"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// TaskMute suppresses every event for a task. A nil Until means permanent:
// it only clears via explicit cancel, never by the expiry sweep.
type TaskMute struct {
	ID        uuid.UUID         `json:"id"`
	UserID    uuid.UUID         `json:"user_id"`
	TaskID    uuid.UUID         `json:"task_id"`
	Duration  MuteDuration      `json:"duration"`
	Until     *time.Time        `json:"until,omitempty"`
	Count     int               `json:"count"`
	Status    SuppressionStatus `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

func (m *TaskMute) Permanent() bool {
	return m.Until == nil
}

// Covers reports whether the mute suppresses events at the given instant.
func (m *TaskMute) Covers(now time.Time) bool {
	if m.Status != SuppressionActive {
		return false
	}
	return m.Until == nil || now.Before(*m.Until)
}
