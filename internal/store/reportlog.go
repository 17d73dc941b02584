package store

import (
	"context"
	"fmt"
	"time"
)

// RawReport is one reserved row of the ingestion log.
type RawReport struct {
	ID          int64
	SubmittedAt time.Time
	Raw         []byte
}

// AppendParams carries everything the log stores alongside the raw bytes.
type AppendParams struct {
	Raw       []byte
	Timestamp time.Time // device-side measurement time
	Latitude  float64
	Longitude float64
	UserAgent string
}

// AppendReport inserts one raw submission into the partition covering the
// current instant. Durable once it returns.
func (s *Store) AppendReport(ctx context.Context, q Querier, p AppendParams) (int64, error) {
	var ua *string
	if p.UserAgent != "" {
		ua = &p.UserAgent
	}
	var id int64
	err := q.QueryRow(ctx,
		`INSERT INTO report (timestamp, latitude, longitude, user_agent, raw)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		p.Timestamp, p.Latitude, p.Longitude, ua, p.Raw,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to append report: %w", err)
	}
	return id, nil
}

// ReserveReports locks up to limit unprocessed rows in submitted_at order,
// skipping rows already locked by another worker. The reservation lasts for
// the caller's transaction; the partial index on the unprocessed tail keeps
// this scan cheap regardless of table history.
func (s *Store) ReserveReports(ctx context.Context, q Querier, limit int) ([]RawReport, error) {
	rows, err := q.Query(ctx,
		`SELECT id, submitted_at, raw
		 FROM report
		 WHERE processed_at IS NULL
		 ORDER BY submitted_at
		 LIMIT $1
		 FOR UPDATE SKIP LOCKED`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to reserve reports: %w", err)
	}
	defer rows.Close()

	var out []RawReport
	for rows.Next() {
		var r RawReport
		if err := rows.Scan(&r.ID, &r.SubmittedAt, &r.Raw); err != nil {
			return nil, fmt.Errorf("failed to scan reserved report: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read reserved reports: %w", err)
	}
	return out, nil
}

// MarkReportDone records a successful aggregation.
func (s *Store) MarkReportDone(ctx context.Context, q Querier, id int64, submittedAt time.Time) error {
	_, err := q.Exec(ctx,
		`UPDATE report SET processed_at = now() WHERE id = $1 AND submitted_at = $2`,
		id, submittedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to mark report %d done: %w", id, err)
	}
	return nil
}

// MarkReportFailed records a permanent per-report failure. Failed reports are
// never retried; the diagnostic stays on the row for inspection.
func (s *Store) MarkReportFailed(ctx context.Context, q Querier, id int64, submittedAt time.Time, reason string) error {
	_, err := q.Exec(ctx,
		`UPDATE report SET processed_at = now(), processing_error = $3 WHERE id = $1 AND submitted_at = $2`,
		id, submittedAt, reason,
	)
	if err != nil {
		return fmt.Errorf("failed to mark report %d failed: %w", id, err)
	}
	return nil
}
