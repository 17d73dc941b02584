// Package aggregate holds the per-emitter location model: a weighted centroid
// with a bounding box and a signal-strength envelope, updated incrementally
// as observations arrive.
package aggregate

import "math"

// Weighting constants. Received power in dBm is logarithmic in the power
// ratio, so the linear weight corresponds to linear signal power and the
// centroid is a maximum-likelihood estimate under a signal-power-proportional
// observation model.
const (
	RefStrengthDBm = -100.0
	MinWeight      = 1e-4
	MaxWeight      = 1.0
)

// Weight maps a received power in dBm to an observation weight, clamped to
// [MinWeight, MaxWeight]. Strictly positive for every finite input.
func Weight(strengthDBm float64) float64 {
	w := math.Pow(10, (strengthDBm-RefStrengthDBm)/10)
	if w < MinWeight {
		return MinWeight
	}
	if w > MaxWeight {
		return MaxWeight
	}
	return w
}
