package aggregate

import "math"

// EarthRadiusM is the WGS84 mean radius.
const EarthRadiusM = 6_371_008.8

// DistanceMeters approximates the distance between two coordinates with the
// equirectangular projection. Monotone in separation, which is all the
// accuracy model needs.
func DistanceMeters(lat1, lon1, lat2, lon2 float64) float64 {
	latMid := (lat1 + lat2) / 2 * math.Pi / 180
	dx := (lon2 - lon1) * math.Pi / 180 * math.Cos(latMid) * EarthRadiusM
	dy := (lat2 - lat1) * math.Pi / 180 * EarthRadiusM
	return math.Sqrt(dx*dx + dy*dy)
}
