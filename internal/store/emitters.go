package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/locator-project/locator/internal/aggregate"
	"github.com/locator-project/locator/internal/radio"
)

const aggregateColumns = `min_lat, min_lon, max_lat, max_lon, lat, lon, accuracy, total_weight, min_strength, max_strength`

// GetWifi returns the aggregates for the given normalized MACs. Missing keys
// are absent from the map.
func (s *Store) GetWifi(ctx context.Context, q Querier, macs []string) (map[string]aggregate.Aggregate, error) {
	return s.getMAC(ctx, q, "wifi", macs, false)
}

// GetBluetooth is GetWifi for the bluetooth table.
func (s *Store) GetBluetooth(ctx context.Context, q Querier, macs []string) (map[string]aggregate.Aggregate, error) {
	return s.getMAC(ctx, q, "bluetooth", macs, false)
}

func (s *Store) getMAC(ctx context.Context, q Querier, table string, macs []string, lock bool) (map[string]aggregate.Aggregate, error) {
	if len(macs) == 0 {
		return map[string]aggregate.Aggregate{}, nil
	}
	sql := fmt.Sprintf(`SELECT mac, %s FROM %s WHERE mac = ANY($1)`, aggregateColumns, table)
	if lock {
		sql += " FOR UPDATE"
	}
	rows, err := q.Query(ctx, sql, macs)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	out := make(map[string]aggregate.Aggregate, len(macs))
	for rows.Next() {
		var mac string
		var a aggregate.Aggregate
		if err := rows.Scan(&mac, &a.MinLat, &a.MinLon, &a.MaxLat, &a.MaxLon,
			&a.Lat, &a.Lon, &a.Accuracy, &a.TotalWeight, &a.MinStrength, &a.MaxStrength); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", table, err)
		}
		out[mac] = a
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s rows: %w", table, err)
	}
	return out, nil
}

// cellKeyJoin matches a cell-shaped table against a set of six-tuple keys in
// a single round trip via unnest.
const cellKeyJoin = `JOIN unnest($1::smallint[], $2::smallint[], $3::smallint[], $4::integer[], $5::bigint[], $6::smallint[])
	AS k(radio, country, network, area, cell, unit)
	ON c.radio = k.radio AND c.country = k.country AND c.network = k.network
	AND c.area = k.area AND c.cell = k.cell AND c.unit = k.unit`

func cellKeyArrays(keys []radio.CellKey) (radios, countries, networks []int16, areas []int32, cells []int64, units []int16) {
	for _, k := range keys {
		radios = append(radios, int16(k.Radio))
		countries = append(countries, k.Country)
		networks = append(networks, k.Network)
		areas = append(areas, k.Area)
		cells = append(cells, k.Cell)
		units = append(units, k.Unit)
	}
	return
}

// GetCells returns the learned aggregates for the given cell keys.
func (s *Store) GetCells(ctx context.Context, q Querier, keys []radio.CellKey) (map[radio.CellKey]aggregate.Aggregate, error) {
	return s.getCells(ctx, q, keys, false)
}

func (s *Store) getCells(ctx context.Context, q Querier, keys []radio.CellKey, lock bool) (map[radio.CellKey]aggregate.Aggregate, error) {
	if len(keys) == 0 {
		return map[radio.CellKey]aggregate.Aggregate{}, nil
	}
	sql := `SELECT c.radio, c.country, c.network, c.area, c.cell, c.unit,
		c.min_lat, c.min_lon, c.max_lat, c.max_lon, c.lat, c.lon,
		c.accuracy, c.total_weight, c.min_strength, c.max_strength
	FROM cell c ` + cellKeyJoin
	if lock {
		sql += " FOR UPDATE OF c"
	}
	radios, countries, networks, areas, cells, units := cellKeyArrays(keys)
	rows, err := q.Query(ctx, sql, radios, countries, networks, areas, cells, units)
	if err != nil {
		return nil, fmt.Errorf("failed to query cell: %w", err)
	}
	defer rows.Close()

	out := make(map[radio.CellKey]aggregate.Aggregate, len(keys))
	for rows.Next() {
		var k radio.CellKey
		var a aggregate.Aggregate
		if err := rows.Scan(&k.Radio, &k.Country, &k.Network, &k.Area, &k.Cell, &k.Unit,
			&a.MinLat, &a.MinLon, &a.MaxLat, &a.MaxLon,
			&a.Lat, &a.Lon, &a.Accuracy, &a.TotalWeight, &a.MinStrength, &a.MaxStrength); err != nil {
			return nil, fmt.Errorf("failed to scan cell row: %w", err)
		}
		out[k] = a
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read cell rows: %w", err)
	}
	return out, nil
}

// ApplyWifi folds the batched deltas into the wifi table: existing rows are
// locked, merged in memory and written back, one round trip per key. New keys
// start a fresh aggregate.
func (s *Store) ApplyWifi(ctx context.Context, q Querier, batch *aggregate.Batch[string]) error {
	return s.applyMAC(ctx, q, "wifi", batch)
}

// ApplyBluetooth is ApplyWifi for the bluetooth table.
func (s *Store) ApplyBluetooth(ctx context.Context, q Querier, batch *aggregate.Batch[string]) error {
	return s.applyMAC(ctx, q, "bluetooth", batch)
}

func (s *Store) applyMAC(ctx context.Context, q Querier, table string, batch *aggregate.Batch[string]) error {
	keys := batch.Keys()
	if len(keys) == 0 {
		return nil
	}
	existing, err := s.getMAC(ctx, q, table, keys, true)
	if err != nil {
		return err
	}

	upsert := fmt.Sprintf(`INSERT INTO %s (mac, %s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (mac) DO UPDATE SET
			min_lat = EXCLUDED.min_lat, min_lon = EXCLUDED.min_lon,
			max_lat = EXCLUDED.max_lat, max_lon = EXCLUDED.max_lon,
			lat = EXCLUDED.lat, lon = EXCLUDED.lon,
			accuracy = EXCLUDED.accuracy, total_weight = EXCLUDED.total_weight,
			min_strength = EXCLUDED.min_strength, max_strength = EXCLUDED.max_strength`,
		table, aggregateColumns)

	b := &pgx.Batch{}
	for _, mac := range keys {
		var base *aggregate.Aggregate
		if a, ok := existing[mac]; ok {
			base = &a
		}
		agg := batch.Fold(mac, base)
		if err := agg.Check(); err != nil {
			return fmt.Errorf("%s %s: %w", table, mac, err)
		}
		b.Queue(upsert, mac,
			agg.MinLat, agg.MinLon, agg.MaxLat, agg.MaxLon,
			agg.Lat, agg.Lon, agg.Accuracy, agg.TotalWeight,
			agg.MinStrength, agg.MaxStrength)
	}
	return runBatch(ctx, q, b, len(keys), table)
}

// ApplyCells folds the batched deltas into the cell table.
func (s *Store) ApplyCells(ctx context.Context, q Querier, batch *aggregate.Batch[radio.CellKey]) error {
	keys := batch.Keys()
	if len(keys) == 0 {
		return nil
	}
	existing, err := s.getCells(ctx, q, keys, true)
	if err != nil {
		return err
	}

	upsert := fmt.Sprintf(`INSERT INTO cell (radio, country, network, area, cell, unit, %s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (radio, country, network, area, cell, unit) DO UPDATE SET
			min_lat = EXCLUDED.min_lat, min_lon = EXCLUDED.min_lon,
			max_lat = EXCLUDED.max_lat, max_lon = EXCLUDED.max_lon,
			lat = EXCLUDED.lat, lon = EXCLUDED.lon,
			accuracy = EXCLUDED.accuracy, total_weight = EXCLUDED.total_weight,
			min_strength = EXCLUDED.min_strength, max_strength = EXCLUDED.max_strength`,
		aggregateColumns)

	b := &pgx.Batch{}
	for _, key := range keys {
		var base *aggregate.Aggregate
		if a, ok := existing[key]; ok {
			base = &a
		}
		agg := batch.Fold(key, base)
		if err := agg.Check(); err != nil {
			return fmt.Errorf("cell %s: %w", key, err)
		}
		b.Queue(upsert,
			int16(key.Radio), key.Country, key.Network, key.Area, key.Cell, key.Unit,
			agg.MinLat, agg.MinLon, agg.MaxLat, agg.MaxLon,
			agg.Lat, agg.Lon, agg.Accuracy, agg.TotalWeight,
			agg.MinStrength, agg.MaxStrength)
	}
	return runBatch(ctx, q, b, len(keys), "cell")
}

func runBatch(ctx context.Context, q Querier, b *pgx.Batch, n int, table string) error {
	br := q.SendBatch(ctx, b)
	for i := 0; i < n; i++ {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("failed to upsert %s: %w", table, err)
		}
	}
	return br.Close()
}
