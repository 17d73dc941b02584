package radio

import (
	"errors"
	"fmt"
	"time"
)

// Validation window for device-side timestamps relative to server time.
const (
	MaxTimestampAge  = 30 * 24 * time.Hour
	MaxTimestampSkew = 24 * time.Hour
)

var (
	ErrTimestampOutOfRange = errors.New("timestamp outside accepted window")
	ErrPositionOutOfRange  = errors.New("position outside valid range")
	ErrAccuracyTooCoarse   = errors.New("gnss accuracy above threshold")
	ErrNoEmitters          = errors.New("report lists no emitters")
	ErrNoValidEmitters     = errors.New("no emitter on the report survived validation")
)

// Time returns the device-side measurement time, falling back to now for
// reports submitted without one.
func (r *Report) Time(now time.Time) time.Time {
	if r.Timestamp == 0 {
		return now
	}
	return time.UnixMilli(r.Timestamp).UTC()
}

// Validate applies the report-level acceptance rules: timestamp within
// [now-30d, now+1d], coordinates in range, at least one emitter listed, and
// GNSS accuracy (when present) at or below maxAccuracyM. Failures are
// permanent; the report is marked failed and never retried.
func (r *Report) Validate(now time.Time, maxAccuracyM float64) error {
	if r.GNSS == nil {
		return ErrNoPosition
	}
	ts := r.Time(now)
	if ts.Before(now.Add(-MaxTimestampAge)) || ts.After(now.Add(MaxTimestampSkew)) {
		return fmt.Errorf("%w: %s", ErrTimestampOutOfRange, ts.Format(time.RFC3339))
	}
	if r.GNSS.Latitude < -90 || r.GNSS.Latitude > 90 || r.GNSS.Longitude < -180 || r.GNSS.Longitude > 180 {
		return fmt.Errorf("%w: (%f, %f)", ErrPositionOutOfRange, r.GNSS.Latitude, r.GNSS.Longitude)
	}
	if r.GNSS.Accuracy != nil && *r.GNSS.Accuracy > maxAccuracyM {
		return fmt.Errorf("%w: %.0fm > %.0fm", ErrAccuracyTooCoarse, *r.GNSS.Accuracy, maxAccuracyM)
	}
	if r.EmitterCount() == 0 {
		return ErrNoEmitters
	}
	return nil
}

// Emitters derives the (emitter, strength) pairs from a report without
// touching its position, which locate queries do not carry. Individually
// invalid emitters (bad MAC, bad cell identity) are skipped;
// ErrNoValidEmitters is returned only when none survive. Emitters without a
// strength measurement get defaultStrength so they never dominate.
func (r *Report) Emitters(defaultStrength float64) ([]Observation, error) {
	strength := func(s *float64) float64 {
		if s == nil {
			return defaultStrength
		}
		return *s
	}

	var obs []Observation
	for i := range r.Wifi {
		mac, err := NormalizeMAC(r.Wifi[i].MAC)
		if err != nil {
			continue
		}
		obs = append(obs, Observation{Kind: KindWifi, MAC: mac, Strength: strength(r.Wifi[i].RSSI)})
	}
	for i := range r.Bluetooth {
		mac, err := NormalizeMAC(r.Bluetooth[i].MAC)
		if err != nil {
			continue
		}
		obs = append(obs, Observation{Kind: KindBluetooth, MAC: mac, Strength: strength(r.Bluetooth[i].RSSI)})
	}
	if r.Cell != nil {
		for i := range r.Cell.GSM {
			if key, err := r.Cell.GSM[i].Key(); err == nil {
				obs = append(obs, Observation{Kind: KindCell, Cell: key, Strength: strength(r.Cell.GSM[i].RXLEV)})
			}
		}
		for i := range r.Cell.WCDMA {
			if key, err := r.Cell.WCDMA[i].Key(); err == nil {
				obs = append(obs, Observation{Kind: KindCell, Cell: key, Strength: strength(r.Cell.WCDMA[i].RSCP)})
			}
		}
		for i := range r.Cell.LTE {
			if key, err := r.Cell.LTE[i].Key(); err == nil {
				obs = append(obs, Observation{Kind: KindCell, Cell: key, Strength: strength(r.Cell.LTE[i].RSRP)})
			}
		}
		for i := range r.Cell.NR {
			if key, err := r.Cell.NR[i].Key(); err == nil {
				obs = append(obs, Observation{Kind: KindCell, Cell: key, Strength: strength(r.Cell.NR[i].SSRSRP)})
			}
		}
	}
	if len(obs) == 0 {
		return nil, ErrNoValidEmitters
	}
	return obs, nil
}

// Observations is Emitters plus the report's GNSS truth stamped on every
// pair. Callers must have validated the report first.
func (r *Report) Observations(defaultStrength float64) ([]Observation, error) {
	obs, err := r.Emitters(defaultStrength)
	if err != nil {
		return nil, err
	}
	for i := range obs {
		obs[i].Lat = r.GNSS.Latitude
		obs[i].Lon = r.GNSS.Longitude
	}
	return obs, nil
}
