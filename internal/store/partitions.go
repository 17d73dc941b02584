package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// maintenanceLockKey serializes partition DDL across replicas. Any single
// instance winning the advisory lock does the work for that cycle.
const maintenanceLockKey = int64(0x6c6f6361746f72) // "locator"

const partitionDayFormat = "2006_01_02"

func partitionName(day time.Time) string {
	return "report_" + day.UTC().Format(partitionDayFormat)
}

// partitionDay inverts partitionName. Non-partition relations under the
// report parent are reported as an error and skipped by callers.
func partitionDay(name string) (time.Time, error) {
	const prefix = "report_"
	if len(name) <= len(prefix) || name[:len(prefix)] != prefix {
		return time.Time{}, fmt.Errorf("not a report partition: %s", name)
	}
	return time.ParseInLocation(partitionDayFormat, name[len(prefix):], time.UTC)
}

// WithMaintenanceLock runs fn in a transaction holding the partition
// maintenance advisory lock. Returns false without calling fn when another
// instance holds the lock.
func (s *Store) WithMaintenanceLock(ctx context.Context, fn func(tx pgx.Tx) error) (bool, error) {
	acquired := false
	err := s.InTx(ctx, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx,
			`SELECT pg_try_advisory_xact_lock($1)`, maintenanceLockKey,
		).Scan(&acquired); err != nil {
			return fmt.Errorf("failed to take maintenance lock: %w", err)
		}
		if !acquired {
			return nil
		}
		return fn(tx)
	})
	return acquired, err
}

// EnsureForward creates daily partitions covering from through
// from+horizonDays, each with the hot-path indexes: a partial index on the
// unprocessed tail for the worker's reservation scan and a submitted_at range
// index. Existing partitions are left untouched.
func (s *Store) EnsureForward(ctx context.Context, q Querier, from time.Time, horizonDays int) error {
	day := from.UTC().Truncate(24 * time.Hour)
	for offset := 0; offset <= horizonDays; offset++ {
		name := partitionName(day)
		stmts := []string{
			fmt.Sprintf(
				`CREATE TABLE IF NOT EXISTS %s PARTITION OF report
				 FOR VALUES FROM ('%s') TO ('%s')`,
				name,
				day.Format(time.RFC3339),
				day.AddDate(0, 0, 1).Format(time.RFC3339),
			),
			fmt.Sprintf(
				`CREATE INDEX IF NOT EXISTS %s_pending_idx ON %s (submitted_at)
				 WHERE processed_at IS NULL`,
				name, name,
			),
			fmt.Sprintf(
				`CREATE INDEX IF NOT EXISTS %s_submitted_at_idx ON %s (submitted_at)`,
				name, name,
			),
		}
		for _, stmt := range stmts {
			if _, err := q.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("failed to ensure partition %s: %w", name, err)
			}
		}
		day = day.AddDate(0, 0, 1)
	}
	return nil
}

// listPartitions returns the names of all partitions attached to the report
// parent.
func (s *Store) listPartitions(ctx context.Context, q Querier) ([]string, error) {
	rows, err := q.Query(ctx,
		`SELECT c.relname
		 FROM pg_inherits i
		 JOIN pg_class c ON c.oid = i.inhrelid
		 JOIN pg_class p ON p.oid = i.inhparent
		 WHERE p.relname = 'report'`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list partitions: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan partition name: %w", err)
		}
		out = append(out, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read partition names: %w", err)
	}
	return out, nil
}

// DropExpired detaches and drops partitions whose day is older than
// now-retainDays. A failure on one partition is logged and does not block the
// rest.
func (s *Store) DropExpired(ctx context.Context, q Querier, now time.Time, retainDays int) error {
	names, err := s.listPartitions(ctx, q)
	if err != nil {
		return err
	}
	cutoff := now.UTC().Truncate(24 * time.Hour).AddDate(0, 0, -retainDays)
	for _, name := range names {
		day, err := partitionDay(name)
		if err != nil {
			s.log.Warn("skipping unrecognized relation under report", "relation", name, "error", err)
			continue
		}
		if !day.Before(cutoff) {
			continue
		}
		if _, err := q.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, name)); err != nil {
			s.log.Error("failed to drop expired partition", "partition", name, "error", err)
			continue
		}
		s.log.Info("dropped expired report partition", "partition", name, "day", day.Format("2006-01-02"))
	}
	return nil
}

// DemoteCold swaps the hot btree range index for a BRIN one on partitions
// older than today. Cold partitions are only ever range-scanned, and BRIN is
// a fraction of the size.
func (s *Store) DemoteCold(ctx context.Context, q Querier, now time.Time) error {
	names, err := s.listPartitions(ctx, q)
	if err != nil {
		return err
	}
	today := now.UTC().Truncate(24 * time.Hour)
	for _, name := range names {
		day, err := partitionDay(name)
		if err != nil || !day.Before(today) {
			continue
		}
		stmts := []string{
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_brin ON %s USING brin (submitted_at)`, name, name),
			fmt.Sprintf(`DROP INDEX IF EXISTS %s_submitted_at_idx`, name),
		}
		for _, stmt := range stmts {
			if _, err := q.Exec(ctx, stmt); err != nil {
				s.log.Error("failed to demote cold partition", "partition", name, "error", err)
				break
			}
		}
	}
	return nil
}
