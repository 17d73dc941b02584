// Package worker drains the report log and folds each report's observations
// into the per-emitter aggregates. Reservation, upserts and completion marks
// share one transaction, so a report is aggregated exactly once no matter how
// many workers run or how often they crash.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jonboulle/clockwork"

	"github.com/locator-project/locator/internal/aggregate"
	"github.com/locator-project/locator/internal/radio"
	"github.com/locator-project/locator/internal/store"
)

const (
	defaultBatchSize        = 256
	defaultConcurrency      = 2
	defaultPollInterval     = time.Second
	defaultMaxAttempts      = 5
	defaultGNSSMaxAccuracyM = 200
	defaultStrengthDBm      = -90
)

// Store is the storage surface the worker needs.
type Store interface {
	InTx(ctx context.Context, fn func(tx pgx.Tx) error) error
	ReserveReports(ctx context.Context, q store.Querier, limit int) ([]store.RawReport, error)
	MarkReportDone(ctx context.Context, q store.Querier, id int64, submittedAt time.Time) error
	MarkReportFailed(ctx context.Context, q store.Querier, id int64, submittedAt time.Time, reason string) error
	ApplyWifi(ctx context.Context, q store.Querier, batch *aggregate.Batch[string]) error
	ApplyBluetooth(ctx context.Context, q store.Querier, batch *aggregate.Batch[string]) error
	ApplyCells(ctx context.Context, q store.Querier, batch *aggregate.Batch[radio.CellKey]) error
}

type Config struct {
	Logger *slog.Logger
	Store  Store
	Clock  clockwork.Clock

	BatchSize    int
	Concurrency  int
	PollInterval time.Duration
	MaxAttempts  uint

	// GNSSMaxAccuracyM rejects reports whose fix is too coarse to teach the
	// aggregates anything.
	GNSSMaxAccuracyM float64

	// DefaultStrength substitutes for emitters reported without a signal
	// measurement. Weak on purpose.
	DefaultStrength float64
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.Store == nil {
		return errors.New("store is required")
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.BatchSize == 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.Concurrency == 0 {
		c.Concurrency = defaultConcurrency
	}
	if c.PollInterval == 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.GNSSMaxAccuracyM == 0 {
		c.GNSSMaxAccuracyM = defaultGNSSMaxAccuracyM
	}
	if c.DefaultStrength == 0 {
		c.DefaultStrength = defaultStrengthDBm
	}
	return nil
}

type Worker struct {
	log *slog.Logger
	cfg *Config
}

func New(cfg *Config) (*Worker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Worker{log: cfg.Logger, cfg: cfg}, nil
}

// Run drives Concurrency independent drain loops until ctx is canceled.
func (w *Worker) Run(ctx context.Context) error {
	pool := pond.NewPool(w.cfg.Concurrency)
	for i := 0; i < w.cfg.Concurrency; i++ {
		pool.Submit(func() { w.loop(ctx) })
	}
	pool.StopAndWait()
	return nil
}

func (w *Worker) loop(ctx context.Context) {
	for {
		n, err := w.processBatch(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			w.log.Error("batch aggregation failed", "error", err)
		}
		if err == nil && n > 0 {
			// More work is likely queued behind a full batch.
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-w.cfg.Clock.After(w.cfg.PollInterval):
		}
	}
}

// processBatch runs one aggregation transaction, retrying transient storage
// failures with exponential backoff. Permanent failures surface immediately.
func (w *Worker) processBatch(ctx context.Context) (int, error) {
	start := w.cfg.Clock.Now()
	n, err := backoff.Retry(ctx, func() (int, error) {
		n, err := w.runBatch(ctx)
		if err != nil && !store.IsTransient(err) {
			return 0, backoff.Permanent(err)
		}
		return n, err
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(w.cfg.MaxAttempts))
	if err == nil && n > 0 {
		metricBatchDuration.Observe(w.cfg.Clock.Since(start).Seconds())
	}
	return n, err
}

func (w *Worker) runBatch(ctx context.Context) (int, error) {
	total := 0
	err := w.cfg.Store.InTx(ctx, func(tx pgx.Tx) error {
		rows, err := w.cfg.Store.ReserveReports(ctx, tx, w.cfg.BatchSize)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		total = len(rows)
		now := w.cfg.Clock.Now().UTC()

		wifi := aggregate.NewBatch[string]()
		bluetooth := aggregate.NewBatch[string]()
		cells := aggregate.NewBatch[radio.CellKey]()
		var done []store.RawReport

		for _, row := range rows {
			obs, err := w.observations(row.Raw, now)
			if err != nil {
				if err := w.cfg.Store.MarkReportFailed(ctx, tx, row.ID, row.SubmittedAt, err.Error()); err != nil {
					return err
				}
				metricReportsProcessed.WithLabelValues("failed").Inc()
				continue
			}
			for _, o := range obs {
				d := aggregate.Delta{Lat: o.Lat, Lon: o.Lon, Strength: o.Strength}
				switch o.Kind {
				case radio.KindWifi:
					wifi.Add(o.MAC, d)
				case radio.KindBluetooth:
					bluetooth.Add(o.MAC, d)
				case radio.KindCell:
					cells.Add(o.Cell, d)
				}
			}
			done = append(done, row)
		}

		if err := w.cfg.Store.ApplyWifi(ctx, tx, wifi); err != nil {
			return err
		}
		if err := w.cfg.Store.ApplyBluetooth(ctx, tx, bluetooth); err != nil {
			return err
		}
		if err := w.cfg.Store.ApplyCells(ctx, tx, cells); err != nil {
			return err
		}
		for _, row := range done {
			if err := w.cfg.Store.MarkReportDone(ctx, tx, row.ID, row.SubmittedAt); err != nil {
				return err
			}
		}

		metricReportsProcessed.WithLabelValues("ok").Add(float64(len(done)))
		metricEmittersUpdated.WithLabelValues("wifi").Add(float64(wifi.Len()))
		metricEmittersUpdated.WithLabelValues("bluetooth").Add(float64(bluetooth.Len()))
		metricEmittersUpdated.WithLabelValues("cell").Add(float64(cells.Len()))
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

// observations parses and validates one raw report. Any error here is a
// permanent property of the stored bytes.
func (w *Worker) observations(raw []byte, now time.Time) ([]radio.Observation, error) {
	rep, err := radio.ParseReport(raw)
	if err != nil {
		return nil, err
	}
	if err := rep.Validate(now, w.cfg.GNSSMaxAccuracyM); err != nil {
		return nil, err
	}
	return rep.Observations(w.cfg.DefaultStrength)
}
