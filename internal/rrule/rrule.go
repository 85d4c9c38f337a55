// Package rrule wraps the recurrence library for the one schedule this
// service cares about: the fixed next-morning target that "snooze today"
// and "mute until tomorrow" resolve to.
package rrule

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"
)

// NextMorning returns the first daily occurrence of hour:00 strictly after
// the end of the day containing `after`, in the given location. Snoozing
// "today" at 08:00 still lands on tomorrow 09:00, never later today.
func NextMorning(after time.Time, hour int, loc *time.Location) (time.Time, error) {
	local := after.In(loc)
	startOfTomorrow := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc).
		AddDate(0, 0, 1)

	rule, err := rrule.NewRRule(rrule.ROption{
		Freq:     rrule.DAILY,
		Byhour:   []int{hour},
		Byminute: []int{0},
		Bysecond: []int{0},
		Dtstart:  startOfTomorrow,
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to build daily rule: %w", err)
	}

	next := rule.After(startOfTomorrow, true)
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("no next occurrence after %s", after)
	}
	return next, nil
}
