package aggregate

import "errors"

// ErrCorrupt flags an aggregate that violates its own invariants. The caller
// fails closed; the store never silently corrects.
var ErrCorrupt = errors.New("corrupt emitter aggregate")

// Aggregate is the shared payload of one emitter row: a minimum bounding
// rectangle around every truth position the emitter was reported at, the
// weighted centroid, and the dBm envelope seen so far. The box and envelope
// only ever grow.
type Aggregate struct {
	MinLat float64
	MinLon float64
	MaxLat float64
	MaxLon float64

	Lat         float64
	Lon         float64
	Accuracy    float64 // meters, half-diagonal of the box
	TotalWeight float64

	MinStrength float64
	MaxStrength float64
}

// New starts an aggregate from its first observation: a zero-sized box around
// the truth position.
func New(lat, lon, weight, strength float64) Aggregate {
	return Aggregate{
		MinLat:      lat,
		MinLon:      lon,
		MaxLat:      lat,
		MaxLon:      lon,
		Lat:         lat,
		Lon:         lon,
		Accuracy:    0,
		TotalWeight: weight,
		MinStrength: strength,
		MaxStrength: strength,
	}
}

// Observe folds one observation into the aggregate: extends the box, moves
// the centroid by weighted incremental mean, widens the strength envelope and
// recomputes the accuracy radius.
func (a *Aggregate) Observe(lat, lon, weight, strength float64) {
	if lat < a.MinLat {
		a.MinLat = lat
	} else if lat > a.MaxLat {
		a.MaxLat = lat
	}
	if lon < a.MinLon {
		a.MinLon = lon
	} else if lon > a.MaxLon {
		a.MaxLon = lon
	}

	total := a.TotalWeight + weight
	a.Lat = (a.Lat*a.TotalWeight + lat*weight) / total
	a.Lon = (a.Lon*a.TotalWeight + lon*weight) / total
	a.TotalWeight = total

	if strength < a.MinStrength {
		a.MinStrength = strength
	} else if strength > a.MaxStrength {
		a.MaxStrength = strength
	}

	a.Accuracy = DistanceMeters(a.MinLat, a.MinLon, a.MaxLat, a.MaxLon) / 2
}

// Check verifies the aggregate invariants: the box contains the centroid, the
// total weight is positive and the envelope is ordered.
func (a *Aggregate) Check() error {
	if a.Lat < a.MinLat || a.Lat > a.MaxLat || a.Lon < a.MinLon || a.Lon > a.MaxLon {
		return ErrCorrupt
	}
	if a.TotalWeight <= 0 {
		return ErrCorrupt
	}
	if a.MinStrength > a.MaxStrength {
		return ErrCorrupt
	}
	return nil
}
