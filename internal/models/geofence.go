package models

import (
	"time"

	"github.com/google/uuid"
)

// TierKind is one escalating proximity threshold for a task.
type TierKind string

const (
	TierApproach5mi TierKind = "approach_5mi"
	TierApproach3mi TierKind = "approach_3mi"
	TierApproach2mi TierKind = "approach_2mi"
	TierApproach1mi TierKind = "approach_1mi"
	TierArrival     TierKind = "arrival"
	TierPostArrival TierKind = "post_arrival"
)

func (t TierKind) Valid() bool {
	switch t {
	case TierApproach5mi, TierApproach3mi, TierApproach2mi, TierApproach1mi,
		TierArrival, TierPostArrival:
		return true
	}
	return false
}

// IsApproach reports whether the tier is one of the distance-based
// approach thresholds (as opposed to arrival/post-arrival).
func (t TierKind) IsApproach() bool {
	switch t {
	case TierApproach5mi, TierApproach3mi, TierApproach2mi, TierApproach1mi:
		return true
	}
	return false
}

type Geofence struct {
	ID        uuid.UUID `json:"id"`
	TaskID    uuid.UUID `json:"task_id"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	RadiusM   float64   `json:"radius_m"`
	Tier      TierKind  `json:"tier"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}
