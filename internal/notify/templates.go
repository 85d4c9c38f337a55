package notify

import (
	"fmt"
	"strings"

	"github.com/hray3182/GeoNudge/internal/models"
)

func distanceLabel(tier models.TierKind) string {
	switch tier {
	case models.TierApproach5mi:
		return "5 miles"
	case models.TierApproach3mi:
		return "3 miles"
	case models.TierApproach2mi:
		return "2 miles"
	case models.TierApproach1mi:
		return "1 mile"
	default:
		return ""
	}
}

// content renders the tier-keyed template for a single-task notification.
func content(tier models.TierKind, task *models.Task) (title, body string) {
	name := task.LocationName()
	switch models.TypeForTier(tier) {
	case models.NotifArrival:
		title = "Arriving: " + name
		body = fmt.Sprintf("Arriving at %s — %s now?", name, task.Title)
	case models.NotifPostArrival:
		title = "Reminder"
		body = fmt.Sprintf("Still need to %s?", task.Title)
	default:
		title = "Nearby: " + name
		body = fmt.Sprintf("You're %s from %s — %s?", distanceLabel(tier), name, task.Title)
	}
	return title, body
}

// bundleContent renders the combined message for a multi-task bundle.
func bundleContent(titles []string) (title, body string) {
	title = fmt.Sprintf("%d reminders nearby", len(titles))
	var sb strings.Builder
	sb.WriteString("You're near several places:\n")
	for i, t := range titles {
		sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, t))
	}
	return title, strings.TrimRight(sb.String(), "\n")
}
