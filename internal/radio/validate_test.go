package radio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func validReport() *Report {
	return &Report{
		Timestamp: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC).UnixMilli(),
		GNSS:      &GNSS{Latitude: 52.52, Longitude: 13.405, Accuracy: ptr(15.0)},
		Wifi:      []WifiAP{{MAC: "aa:bb:cc:dd:ee:ff", RSSI: ptr(-61.0)}},
	}
}

func TestReportValidate(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	t.Run("valid", func(t *testing.T) {
		require.NoError(t, validReport().Validate(now, 200))
	})

	t.Run("no position", func(t *testing.T) {
		r := validReport()
		r.GNSS = nil
		require.ErrorIs(t, r.Validate(now, 200), ErrNoPosition)
	})

	t.Run("too old", func(t *testing.T) {
		r := validReport()
		r.Timestamp = now.Add(-31 * 24 * time.Hour).UnixMilli()
		require.ErrorIs(t, r.Validate(now, 200), ErrTimestampOutOfRange)
	})

	t.Run("too far in the future", func(t *testing.T) {
		r := validReport()
		r.Timestamp = now.Add(25 * time.Hour).UnixMilli()
		require.ErrorIs(t, r.Validate(now, 200), ErrTimestampOutOfRange)
	})

	t.Run("zero timestamp falls back to server time", func(t *testing.T) {
		r := validReport()
		r.Timestamp = 0
		require.NoError(t, r.Validate(now, 200))
		require.Equal(t, now, r.Time(now))
	})

	t.Run("latitude out of range", func(t *testing.T) {
		r := validReport()
		r.GNSS.Latitude = 91
		require.ErrorIs(t, r.Validate(now, 200), ErrPositionOutOfRange)
	})

	t.Run("longitude out of range", func(t *testing.T) {
		r := validReport()
		r.GNSS.Longitude = -181
		require.ErrorIs(t, r.Validate(now, 200), ErrPositionOutOfRange)
	})

	t.Run("accuracy above threshold", func(t *testing.T) {
		r := validReport()
		r.GNSS.Accuracy = ptr(250.0)
		require.ErrorIs(t, r.Validate(now, 200), ErrAccuracyTooCoarse)
	})

	t.Run("no emitters", func(t *testing.T) {
		r := validReport()
		r.Wifi = nil
		require.ErrorIs(t, r.Validate(now, 200), ErrNoEmitters)
	})
}

func TestObservations(t *testing.T) {
	t.Parallel()

	r := validReport()
	r.Bluetooth = []BluetoothBeacon{{MAC: "112233445566"}} // no strength
	r.Cell = &CellBlock{
		LTE: []LTECell{{MCC: 262, MNC: 2, TAC: 4711, ECI: 1234567, RSRP: ptr(-95.0)}},
	}

	obs, err := r.Observations(-90)
	require.NoError(t, err)
	require.Len(t, obs, 3)

	byKind := map[Kind]Observation{}
	for _, o := range obs {
		byKind[o.Kind] = o
		require.Equal(t, 52.52, o.Lat)
		require.Equal(t, 13.405, o.Lon)
	}

	require.Equal(t, "aabbccddeeff", byKind[KindWifi].MAC)
	require.Equal(t, -61.0, byKind[KindWifi].Strength)
	require.Equal(t, -90.0, byKind[KindBluetooth].Strength, "missing strength gets the default")
	require.Equal(t, RadioLTE, byKind[KindCell].Cell.Radio)
}

func TestObservationsSkipsInvalidEmitters(t *testing.T) {
	t.Parallel()

	r := validReport()
	r.Wifi = append(r.Wifi, WifiAP{MAC: "not-a-mac"})
	r.Cell = &CellBlock{NR: []NRCell{{MCC: 262, MNC: 2, TAC: -1, NCI: 1}}}

	obs, err := r.Observations(-90)
	require.NoError(t, err)
	require.Len(t, obs, 1, "invalid mac and invalid cell dropped, valid wifi survives")

	r2 := &Report{
		GNSS: &GNSS{Latitude: 1, Longitude: 2},
		Wifi: []WifiAP{{MAC: "bogus"}},
	}
	_, err = r2.Observations(-90)
	require.ErrorIs(t, err, ErrNoValidEmitters)
}
