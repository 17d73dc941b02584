package locate

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/locator-project/locator/internal/aggregate"
	"github.com/locator-project/locator/internal/radio"
	"github.com/locator-project/locator/internal/store"
)

type mockStore struct {
	GetWifiFunc      func(ctx context.Context, macs []string) (map[string]aggregate.Aggregate, error)
	GetBluetoothFunc func(ctx context.Context, macs []string) (map[string]aggregate.Aggregate, error)
	GetCellsFunc     func(ctx context.Context, keys []radio.CellKey) (map[radio.CellKey]aggregate.Aggregate, error)
	LookupCoarseFunc func(ctx context.Context, keys []radio.CellKey) ([]store.CoarsePrior, error)
}

func (m *mockStore) GetWifi(ctx context.Context, q store.Querier, macs []string) (map[string]aggregate.Aggregate, error) {
	if m.GetWifiFunc != nil {
		return m.GetWifiFunc(ctx, macs)
	}
	return map[string]aggregate.Aggregate{}, nil
}

func (m *mockStore) GetBluetooth(ctx context.Context, q store.Querier, macs []string) (map[string]aggregate.Aggregate, error) {
	if m.GetBluetoothFunc != nil {
		return m.GetBluetoothFunc(ctx, macs)
	}
	return map[string]aggregate.Aggregate{}, nil
}

func (m *mockStore) GetCells(ctx context.Context, q store.Querier, keys []radio.CellKey) (map[radio.CellKey]aggregate.Aggregate, error) {
	if m.GetCellsFunc != nil {
		return m.GetCellsFunc(ctx, keys)
	}
	return map[radio.CellKey]aggregate.Aggregate{}, nil
}

func (m *mockStore) LookupCoarse(ctx context.Context, q store.Querier, keys []radio.CellKey) ([]store.CoarsePrior, error) {
	if m.LookupCoarseFunc != nil {
		return m.LookupCoarseFunc(ctx, keys)
	}
	return nil, nil
}

func newTestEngine(t *testing.T, ms *mockStore) *Engine {
	t.Helper()
	e, err := New(&Config{
		Logger: slog.Default(),
		Store:  ms,
	})
	require.NoError(t, err)
	return e
}

func ptr[T any](v T) *T { return &v }

// aggAt builds an emitter model centered on a point with a given accuracy
// radius, spreading the box symmetrically.
func aggAt(lat, lon, accuracy float64) aggregate.Aggregate {
	dLat := accuracy / 111195
	return aggregate.Aggregate{
		MinLat: lat - dLat, MaxLat: lat + dLat,
		MinLon: lon - dLat, MaxLon: lon + dLat,
		Lat: lat, Lon: lon,
		Accuracy:    accuracy,
		TotalWeight: 5,
		MinStrength: -90, MaxStrength: -55,
	}
}

func wifiQuery(macs ...string) *radio.Report {
	r := &radio.Report{}
	for _, mac := range macs {
		r.Wifi = append(r.Wifi, radio.WifiAP{MAC: mac, RSSI: ptr(-60.0)})
	}
	return r
}

func TestLocateGNSSWins(t *testing.T) {
	t.Parallel()

	ms := &mockStore{
		GetWifiFunc: func(ctx context.Context, macs []string) (map[string]aggregate.Aggregate, error) {
			t.Fatal("store must not be queried when the device has a fix")
			return nil, nil
		},
	}
	e := newTestEngine(t, ms)

	rep := wifiQuery("aabbccddeeff")
	rep.GNSS = &radio.GNSS{Latitude: 52.52, Longitude: 13.405, Accuracy: ptr(25.0), Altitude: ptr(34.0)}

	pos, err := e.Locate(context.Background(), rep)
	require.NoError(t, err)
	require.Equal(t, SourceGNSS, pos.Source)
	require.Equal(t, 52.52, pos.Lat)
	require.Equal(t, 13.405, pos.Lon)
	require.Equal(t, 25.0, pos.Accuracy)
	require.NotNil(t, pos.Altitude)
	require.Equal(t, 34.0, *pos.Altitude)
}

func TestLocateGNSSAccuracyFloor(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, &mockStore{})
	rep := &radio.Report{GNSS: &radio.GNSS{Latitude: 1.5, Longitude: 103.8}}

	pos, err := e.Locate(context.Background(), rep)
	require.NoError(t, err)
	require.Equal(t, 10.0, pos.Accuracy, "missing device accuracy defaults to the floor")

	rep.GNSS.Accuracy = ptr(3.0)
	pos, err = e.Locate(context.Background(), rep)
	require.NoError(t, err)
	require.Equal(t, 10.0, pos.Accuracy, "device accuracy below the floor rounds up")
}

func TestLocateInvalidGNSSFallsThrough(t *testing.T) {
	t.Parallel()

	known := map[string]aggregate.Aggregate{"aabbccddeeff": aggAt(52.52, 13.405, 30)}
	ms := &mockStore{
		GetWifiFunc: func(ctx context.Context, macs []string) (map[string]aggregate.Aggregate, error) {
			return known, nil
		},
	}
	e := newTestEngine(t, ms)

	rep := wifiQuery("aa:bb:cc:dd:ee:ff")
	rep.GNSS = &radio.GNSS{Latitude: 95, Longitude: 13.405}

	pos, err := e.Locate(context.Background(), rep)
	require.NoError(t, err)
	require.Equal(t, SourceFused, pos.Source)
}

func TestLocateFusesKnownEmitters(t *testing.T) {
	t.Parallel()

	known := map[string]aggregate.Aggregate{
		"aabbccddeeff": aggAt(52.5200, 13.4050, 15),
		"112233445566": aggAt(52.5202, 13.4052, 20),
	}
	ms := &mockStore{
		GetWifiFunc: func(ctx context.Context, macs []string) (map[string]aggregate.Aggregate, error) {
			require.ElementsMatch(t, []string{"aabbccddeeff", "112233445566"}, macs)
			return known, nil
		},
	}
	e := newTestEngine(t, ms)

	pos, err := e.Locate(context.Background(), wifiQuery("AA:BB:CC:DD:EE:FF", "11:22:33:44:55:66"))
	require.NoError(t, err)
	require.Equal(t, SourceFused, pos.Source)

	// The centroid lands between the two emitters.
	require.GreaterOrEqual(t, pos.Lat, 52.5200)
	require.LessOrEqual(t, pos.Lat, 52.5202)
	require.GreaterOrEqual(t, pos.Lon, 13.4050)
	require.LessOrEqual(t, pos.Lon, 13.4052)

	require.GreaterOrEqual(t, pos.Accuracy, 10.0)
	require.LessOrEqual(t, pos.Accuracy, 20.0, "never coarser than the worst emitter")
}

func TestLocateTrimsOutliers(t *testing.T) {
	t.Parallel()

	known := map[string]aggregate.Aggregate{}
	macs := []string{
		"000000000001", "000000000002", "000000000003", "000000000004", "000000000005",
		"000000000006", "000000000007", "000000000008", "000000000009",
	}
	for i, mac := range macs {
		known[mac] = aggAt(52.5200+float64(i)*0.00001, 13.4050, 15)
	}
	// A stale emitter that moved across town.
	known["00000000000a"] = aggAt(52.6200, 13.5050, 15)

	ms := &mockStore{
		GetWifiFunc: func(ctx context.Context, macs []string) (map[string]aggregate.Aggregate, error) {
			return known, nil
		},
	}
	e := newTestEngine(t, ms)

	query := wifiQuery(append(macs, "00000000000a")...)
	pos, err := e.Locate(context.Background(), query)
	require.NoError(t, err)
	require.Equal(t, SourceFused, pos.Source)

	// With ten resolved emitters one gets trimmed, and it is the outlier.
	require.InDelta(t, 52.5200, pos.Lat, 0.001)
	require.InDelta(t, 13.4050, pos.Lon, 0.001)
}

func TestLocateFewEmittersSkipTrim(t *testing.T) {
	t.Parallel()

	// Three resolved emitters, one of them far away: with three or fewer the
	// trim is skipped, so the far one still pulls the centroid.
	known := map[string]aggregate.Aggregate{
		"000000000001": aggAt(52.5200, 13.4050, 15),
		"000000000002": aggAt(52.5201, 13.4051, 15),
		"000000000003": aggAt(53.5200, 13.4050, 15),
	}
	ms := &mockStore{
		GetWifiFunc: func(ctx context.Context, macs []string) (map[string]aggregate.Aggregate, error) {
			return known, nil
		},
	}
	e := newTestEngine(t, ms)

	pos, err := e.Locate(context.Background(), wifiQuery("000000000001", "000000000002", "000000000003"))
	require.NoError(t, err)
	require.Greater(t, pos.Lat, 52.6, "outlier kept with three emitters")
}

func TestLocateCoarseFallback(t *testing.T) {
	t.Parallel()

	lookups := 0
	ms := &mockStore{
		LookupCoarseFunc: func(ctx context.Context, keys []radio.CellKey) ([]store.CoarsePrior, error) {
			lookups++
			var out []store.CoarsePrior
			for _, k := range keys {
				out = append(out, store.CoarsePrior{Key: k, Lat: 56.0, Lon: 37.5, Radius: 2000 + float64(k.Cell)})
			}
			return out, nil
		},
	}
	e := newTestEngine(t, ms)

	rep := &radio.Report{Cell: &radio.CellBlock{
		LTE: []radio.LTECell{
			{MCC: 250, MNC: 1, TAC: 100, ECI: 500, RSRP: ptr(-100.0)},
			{MCC: 250, MNC: 1, TAC: 100, ECI: 0, RSRP: ptr(-95.0)},
		},
	}}

	pos, err := e.Locate(context.Background(), rep)
	require.NoError(t, err)
	require.Equal(t, SourceCoarse, pos.Source)
	require.Equal(t, 56.0, pos.Lat)
	require.Equal(t, 37.5, pos.Lon)
	require.Equal(t, 2000.0, pos.Accuracy, "smallest coverage radius wins")
	require.Equal(t, 1, lookups)

	// The dataset is static between refreshes; the second query hits the cache.
	_, err = e.Locate(context.Background(), rep)
	require.NoError(t, err)
	require.Equal(t, 1, lookups)
}

func TestLocateNoCoverage(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, &mockStore{})

	_, err := e.Locate(context.Background(), wifiQuery("aabbccddeeff"))
	require.ErrorIs(t, err, ErrNoCoverage, "unknown wifi resolves nothing")

	_, err = e.Locate(context.Background(), &radio.Report{})
	require.ErrorIs(t, err, ErrNoCoverage, "empty query resolves nothing")
}
