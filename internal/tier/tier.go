// Package tier maps a task's location classification to the geofence specs
// it should carry. The mapping is pure and idempotent: unchanged inputs
// always yield identical specs, and classification changes regenerate the
// whole set rather than patching it.
package tier

import (
	"github.com/hray3182/GeoNudge/internal/geo"
	"github.com/hray3182/GeoNudge/internal/models"
)

// ArrivalRadiusM is the boundary used for arrival detection. Platform
// location accuracy makes anything under ~50m unreliable.
const ArrivalRadiusM = 75.0

// Spec describes one geofence to register for a task. Post-arrival is not a
// separate geofence: it rides on the arrival boundary as a dwell timer, so
// it never appears in the returned specs.
type Spec struct {
	Tier    models.TierKind
	Center  geo.Point
	RadiusM float64
}

// Specs returns the geofence set for a classification, per the rule table:
//
//	category    -> 5mi, 3mi, 1mi approach only (no single arrival point)
//	home/work   -> 2mi approach + arrival
//	other place -> 5mi approach + arrival
func Specs(class models.Classification, center geo.Point) []Spec {
	switch class {
	case models.ClassCategory:
		return []Spec{
			{Tier: models.TierApproach5mi, Center: center, RadiusM: geo.MilesToMeters(5)},
			{Tier: models.TierApproach3mi, Center: center, RadiusM: geo.MilesToMeters(3)},
			{Tier: models.TierApproach1mi, Center: center, RadiusM: geo.MilesToMeters(1)},
		}
	case models.ClassHomeWork:
		return []Spec{
			{Tier: models.TierApproach2mi, Center: center, RadiusM: geo.MilesToMeters(2)},
			{Tier: models.TierArrival, Center: center, RadiusM: ArrivalRadiusM},
		}
	case models.ClassOtherPlace:
		return []Spec{
			{Tier: models.TierApproach5mi, Center: center, RadiusM: geo.MilesToMeters(5)},
			{Tier: models.TierArrival, Center: center, RadiusM: ArrivalRadiusM},
		}
	default:
		return nil
	}
}

// HasPostArrival reports whether tasks of this classification arm a dwell
// timer when the arrival boundary is entered.
func HasPostArrival(class models.Classification) bool {
	return class == models.ClassHomeWork || class == models.ClassOtherPlace
}
