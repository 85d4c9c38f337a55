package models

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventEnter EventType = "enter"
	EventExit  EventType = "exit"
)

func (t EventType) Valid() bool {
	return t == EventEnter || t == EventExit
}

type EventStatus string

const (
	EventPending    EventStatus = "pending"
	EventProcessed  EventStatus = "processed"
	EventBundled    EventStatus = "bundled"
	EventSuppressed EventStatus = "suppressed"
	EventFailed     EventStatus = "failed"
)

// GeofenceEvent is the audit record for one raw crossing report. Rows are
// immutable except for status/bundle bookkeeping and are purged only by the
// retention sweep. Geofence and task are weak references: the event outlives
// both.
type GeofenceEvent struct {
	ID             uuid.UUID   `json:"id"`
	UserID         uuid.UUID   `json:"user_id"`
	TaskID         uuid.UUID   `json:"task_id"`
	GeofenceID     uuid.UUID   `json:"geofence_id"`
	Type           EventType   `json:"type"`
	Tier           TierKind    `json:"tier"`
	Lat            float64     `json:"lat"`
	Lng            float64     `json:"lng"`
	Confidence     float64     `json:"confidence"`
	Status         EventStatus `json:"status"`
	SuppressReason string      `json:"suppress_reason,omitempty"`
	BundleID       *uuid.UUID  `json:"bundle_id,omitempty"` // notification that bundled this event
	CooldownUntil  *time.Time  `json:"cooldown_until,omitempty"`
	ClientTime     time.Time   `json:"client_time"`
	CreatedAt      time.Time   `json:"created_at"`
}

// Suppression reasons recorded on events that never reached the composer.
const (
	SuppressGeofenceGone  = "geofence_not_found"
	SuppressTaskGone      = "task_not_found"
	SuppressTaskInactive  = "task_inactive"
	SuppressMuted         = "muted"
	SuppressSnoozed       = "snoozed"
	SuppressLowConfidence = "low_confidence"
	SuppressCooldown      = "cooldown"
	SuppressDuplicate     = "duplicate"
	SuppressAlreadyOpen   = "notification_open"
)
