// Package geo provides the small amount of spherical geometry the pipeline
// needs: distances between coordinates and mile/meter conversion for tier
// radii.
package geo

import "math"

const (
	earthRadiusM   = 6371000.0
	metersPerMile  = 1609.344
	degreesToRadia = math.Pi / 180.0
)

type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// DistanceMeters returns the haversine great-circle distance between two
// points in meters.
func DistanceMeters(a, b Point) float64 {
	lat1 := a.Lat * degreesToRadia
	lat2 := b.Lat * degreesToRadia
	dLat := (b.Lat - a.Lat) * degreesToRadia
	dLng := (b.Lng - a.Lng) * degreesToRadia

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusM * math.Asin(math.Sqrt(h))
}

// MilesToMeters converts statute miles to meters.
func MilesToMeters(miles float64) float64 {
	return miles * metersPerMile
}
