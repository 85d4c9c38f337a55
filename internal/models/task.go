package models

import (
	"time"

	"github.com/google/uuid"
)

type TaskStatus string

const (
	TaskActive    TaskStatus = "active"
	TaskCompleted TaskStatus = "completed"
	TaskMuted     TaskStatus = "muted"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskActive, TaskCompleted, TaskMuted:
		return true
	}
	return false
}

// Classification decides which geofence tiers a task gets.
type Classification string

const (
	// ClassCategory binds the task to a POI category ("pharmacy") rather
	// than one place, so only approach tiers apply.
	ClassCategory Classification = "category"
	// ClassHomeWork is a home or work place with a tight approach radius.
	ClassHomeWork Classification = "home_work"
	// ClassOtherPlace is any other saved place.
	ClassOtherPlace Classification = "other_place"
)

func (c Classification) Valid() bool {
	switch c {
	case ClassCategory, ClassHomeWork, ClassOtherPlace:
		return true
	}
	return false
}

type Task struct {
	ID             uuid.UUID      `json:"id"`
	UserID         uuid.UUID      `json:"user_id"`
	Title          string         `json:"title"`
	PlaceName      string         `json:"place_name"`
	CategoryTag    string         `json:"category_tag"` // set when Classification is category
	Classification Classification `json:"classification"`
	Lat            float64        `json:"lat"`
	Lng            float64        `json:"lng"`
	Status         TaskStatus     `json:"status"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

func (t *Task) IsActive() bool {
	return t.Status == TaskActive
}

// LocationName is what notification templates interpolate as {name}.
func (t *Task) LocationName() string {
	if t.PlaceName != "" {
		return t.PlaceName
	}
	return t.CategoryTag
}
