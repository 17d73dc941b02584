package store

import (
	"context"
	"fmt"
)

// The emitter tables are updated in place on every observation, so they get
// aggressive autovacuum settings. The report parent is partitioned by
// submitted_at on daily boundaries; partitions and their indexes are managed
// by the partition manager, not here.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS report (
		id bigint GENERATED ALWAYS AS IDENTITY,
		submitted_at timestamptz NOT NULL DEFAULT now(),
		timestamp timestamptz NOT NULL,
		latitude double precision NOT NULL,
		longitude double precision NOT NULL,
		user_agent text,
		raw bytea NOT NULL,
		processed_at timestamptz,
		processing_error text,
		PRIMARY KEY (id, submitted_at)
	) PARTITION BY RANGE (submitted_at)`,

	`CREATE TABLE IF NOT EXISTS wifi (
		mac text PRIMARY KEY,
		min_lat double precision NOT NULL,
		min_lon double precision NOT NULL,
		max_lat double precision NOT NULL,
		max_lon double precision NOT NULL,
		lat double precision NOT NULL,
		lon double precision NOT NULL,
		accuracy double precision NOT NULL,
		total_weight double precision NOT NULL,
		min_strength double precision NOT NULL,
		max_strength double precision NOT NULL
	) WITH (autovacuum_vacuum_scale_factor = 0.01, autovacuum_analyze_scale_factor = 0.01)`,

	`CREATE TABLE IF NOT EXISTS bluetooth (
		mac text PRIMARY KEY,
		min_lat double precision NOT NULL,
		min_lon double precision NOT NULL,
		max_lat double precision NOT NULL,
		max_lon double precision NOT NULL,
		lat double precision NOT NULL,
		lon double precision NOT NULL,
		accuracy double precision NOT NULL,
		total_weight double precision NOT NULL,
		min_strength double precision NOT NULL,
		max_strength double precision NOT NULL
	) WITH (autovacuum_vacuum_scale_factor = 0.01, autovacuum_analyze_scale_factor = 0.01)`,

	`CREATE TABLE IF NOT EXISTS cell (
		radio smallint NOT NULL,
		country smallint NOT NULL,
		network smallint NOT NULL,
		area integer NOT NULL,
		cell bigint NOT NULL,
		unit smallint NOT NULL,
		min_lat double precision NOT NULL,
		min_lon double precision NOT NULL,
		max_lat double precision NOT NULL,
		max_lon double precision NOT NULL,
		lat double precision NOT NULL,
		lon double precision NOT NULL,
		accuracy double precision NOT NULL,
		total_weight double precision NOT NULL,
		min_strength double precision NOT NULL,
		max_strength double precision NOT NULL,
		PRIMARY KEY (radio, country, network, area, cell, unit)
	) WITH (autovacuum_vacuum_scale_factor = 0.01, autovacuum_analyze_scale_factor = 0.01)`,

	// Imported reference dataset, populated out of band. Read-only here.
	`CREATE TABLE IF NOT EXISTS cell_import (
		radio smallint NOT NULL,
		country smallint NOT NULL,
		network smallint NOT NULL,
		area integer NOT NULL,
		cell bigint NOT NULL,
		unit smallint NOT NULL,
		lat double precision NOT NULL,
		lon double precision NOT NULL,
		radius double precision NOT NULL,
		PRIMARY KEY (radio, country, network, area, cell, unit)
	)`,
}

// Migrate creates the base tables if absent. Idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
