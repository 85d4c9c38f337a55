package models

import (
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	NotifApproach    NotificationType = "approach"
	NotifArrival     NotificationType = "arrival"
	NotifPostArrival NotificationType = "post_arrival"
)

// TypeForTier maps a geofence tier to the notification type it produces.
func TypeForTier(tier TierKind) NotificationType {
	switch tier {
	case TierArrival:
		return NotifArrival
	case TierPostArrival:
		return NotifPostArrival
	default:
		return NotifApproach
	}
}

type NotificationStatus string

const (
	NotifPending   NotificationStatus = "pending"
	NotifDelivered NotificationStatus = "delivered"
	NotifCancelled NotificationStatus = "cancelled"
	NotifFailed    NotificationStatus = "failed"
	NotifSnoozed   NotificationStatus = "snoozed"
)

// Terminal reports whether the notification can no longer change state.
// Delivered rows stay actionable (snooze), snoozed rows are preserved for
// the snooze record but will never be dispatched again.
func (s NotificationStatus) Terminal() bool {
	return s == NotifCancelled || s == NotifFailed
}

type NotificationAction string

const (
	ActionComplete    NotificationAction = "complete"
	ActionSnooze15m   NotificationAction = "snooze_15m"
	ActionSnooze1h    NotificationAction = "snooze_1h"
	ActionSnoozeToday NotificationAction = "snooze_today"
	ActionMute        NotificationAction = "mute"
	ActionOpenMap     NotificationAction = "open_map"
)

func (a NotificationAction) Valid() bool {
	switch a {
	case ActionComplete, ActionSnooze15m, ActionSnooze1h, ActionSnoozeToday,
		ActionMute, ActionOpenMap:
		return true
	}
	return false
}

// DefaultActions is the action set attached to every composed notification.
func DefaultActions() []string {
	return []string{
		string(ActionComplete),
		string(ActionSnooze15m),
		string(ActionSnooze1h),
		string(ActionSnoozeToday),
		string(ActionMute),
		string(ActionOpenMap),
	}
}

type Notification struct {
	ID            uuid.UUID          `json:"id"`
	TaskID        uuid.UUID          `json:"task_id"`
	UserID        uuid.UUID          `json:"user_id"`
	Type          NotificationType   `json:"type"`
	Tier          TierKind           `json:"tier"`
	Title         string             `json:"title"`
	Body          string             `json:"body"`
	Actions       []string           `json:"actions"`
	Lat           float64            `json:"lat"` // bundle anchor, first source event
	Lng           float64            `json:"lng"`
	SourceCount   int                `json:"source_count"`
	ScheduledAt   time.Time          `json:"scheduled_at"`
	Status        NotificationStatus `json:"status"`
	Attempts      int                `json:"attempts"`
	LastAttemptAt *time.Time         `json:"last_attempt_at,omitempty"`
	LastError     string             `json:"last_error,omitempty"`
	ClaimedUntil  *time.Time         `json:"-"` // dispatch sweep lease
	CreatedAt     time.Time          `json:"created_at"`
}
