package registry

import (
	"sort"
	"time"

	"github.com/hray3182/GeoNudge/internal/models"
)

// Candidate pairs a geofence with the task facts the priority criteria need.
type Candidate struct {
	Geofence      models.Geofence
	Muted         bool
	TaskCreatedAt time.Time
}

// tierRelevance orders tiers by how soon they are expected to matter:
// arrival and post-arrival beat any approach tier.
func tierRelevance(t models.TierKind) int {
	switch t {
	case models.TierArrival, models.TierPostArrival:
		return 0
	default:
		return 1
	}
}

// Compare returns a negative value when a outranks b. The criteria are
// applied in a fixed order so every eviction decision is auditable:
//
//	1. smaller radius (closer, more actionable tiers)
//	2. unmuted tasks over muted tasks
//	3. arrival/post-arrival over approach
//	4. newer task
func Compare(a, b Candidate) int {
	if a.Geofence.RadiusM != b.Geofence.RadiusM {
		if a.Geofence.RadiusM < b.Geofence.RadiusM {
			return -1
		}
		return 1
	}
	if a.Muted != b.Muted {
		if !a.Muted {
			return -1
		}
		return 1
	}
	if ra, rb := tierRelevance(a.Geofence.Tier), tierRelevance(b.Geofence.Tier); ra != rb {
		return ra - rb
	}
	if !a.TaskCreatedAt.Equal(b.TaskCreatedAt) {
		if a.TaskCreatedAt.After(b.TaskCreatedAt) {
			return -1
		}
		return 1
	}
	return 0
}

// Rank sorts candidates in place, highest priority first. The sort is
// stable so equal candidates keep their stored order.
func Rank(candidates []Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return Compare(candidates[i], candidates[j]) < 0
	})
}
