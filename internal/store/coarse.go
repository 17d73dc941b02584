package store

import (
	"context"
	"fmt"

	"github.com/locator-project/locator/internal/radio"
)

// CoarsePrior is one row of the imported coarse-cell dataset: a tower
// position with a coverage radius in meters.
type CoarsePrior struct {
	Key    radio.CellKey
	Lat    float64
	Lon    float64
	Radius float64
}

// LookupCoarse returns the imported priors matching any of the given cell
// keys. Callers rank the result; the store does not order it.
func (s *Store) LookupCoarse(ctx context.Context, q Querier, keys []radio.CellKey) ([]CoarsePrior, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	sql := `SELECT c.radio, c.country, c.network, c.area, c.cell, c.unit, c.lat, c.lon, c.radius
	FROM cell_import c ` + cellKeyJoin
	radios, countries, networks, areas, cells, units := cellKeyArrays(keys)
	rows, err := q.Query(ctx, sql, radios, countries, networks, areas, cells, units)
	if err != nil {
		return nil, fmt.Errorf("failed to query cell_import: %w", err)
	}
	defer rows.Close()

	var out []CoarsePrior
	for rows.Next() {
		var p CoarsePrior
		if err := rows.Scan(&p.Key.Radio, &p.Key.Country, &p.Key.Network, &p.Key.Area, &p.Key.Cell, &p.Key.Unit,
			&p.Lat, &p.Lon, &p.Radius); err != nil {
			return nil, fmt.Errorf("failed to scan cell_import row: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read cell_import rows: %w", err)
	}
	return out, nil
}
