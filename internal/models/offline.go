package models

import (
	"time"

	"github.com/google/uuid"
)

type OfflineStatus string

const (
	OfflineQueued OfflineStatus = "queued"
	OfflineDone   OfflineStatus = "done"
	OfflineDead   OfflineStatus = "dead"
)

// OfflineEvent buffers a crossing report that failed immediate intake so a
// worker can replay it later. Payload is the original report JSON, untouched.
type OfflineEvent struct {
	ID           uuid.UUID     `json:"id"`
	UserID       uuid.UUID     `json:"user_id"`
	Payload      []byte        `json:"payload"`
	RetryCount   int           `json:"retry_count"`
	LastError    string        `json:"last_error,omitempty"`
	Status       OfflineStatus `json:"status"`
	ClaimedUntil *time.Time    `json:"-"`
	EnqueuedAt   time.Time     `json:"enqueued_at"`
}
