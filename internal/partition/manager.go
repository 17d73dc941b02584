// Package partition keeps the report log's daily partitions rolling: creating
// partitions ahead of the write head, dropping ones past retention, and
// demoting cold partitions to BRIN indexes.
package partition

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jonboulle/clockwork"

	"github.com/locator-project/locator/internal/store"
)

const defaultInterval = time.Hour

// Store is the maintenance surface of the storage layer.
type Store interface {
	WithMaintenanceLock(ctx context.Context, fn func(tx pgx.Tx) error) (bool, error)
	EnsureForward(ctx context.Context, q store.Querier, from time.Time, horizonDays int) error
	DropExpired(ctx context.Context, q store.Querier, now time.Time, retainDays int) error
	DemoteCold(ctx context.Context, q store.Querier, now time.Time) error
}

type Config struct {
	Logger *slog.Logger
	Store  Store
	Clock  clockwork.Clock

	RetainDays  int
	HorizonDays int
	Interval    time.Duration
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
	if c.RetainDays == 0 {
		c.RetainDays = 120
	}
	if c.HorizonDays == 0 {
		c.HorizonDays = 7
	}
	if c.Interval == 0 {
		c.Interval = defaultInterval
	}
	return nil
}

type Manager struct {
	log *slog.Logger
	cfg *Config
}

func New(cfg *Config) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Manager{log: cfg.Logger, cfg: cfg}, nil
}

// Run cycles once immediately, then on every tick until ctx is canceled. The
// first cycle runs before Run returns control to the caller's errgroup, so a
// fresh database has today's partition before the first report arrives.
func (m *Manager) Run(ctx context.Context) error {
	if err := m.cycle(ctx); err != nil {
		return err
	}
	ticker := m.cfg.Clock.NewTicker(m.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			if err := m.cycle(ctx); err != nil {
				m.log.Error("partition maintenance cycle failed", "error", err)
			}
		}
	}
}

func (m *Manager) cycle(ctx context.Context) error {
	now := m.cfg.Clock.Now().UTC()
	acquired, err := m.cfg.Store.WithMaintenanceLock(ctx, func(tx pgx.Tx) error {
		if err := m.cfg.Store.EnsureForward(ctx, tx, now, m.cfg.HorizonDays); err != nil {
			return err
		}
		if err := m.cfg.Store.DropExpired(ctx, tx, now, m.cfg.RetainDays); err != nil {
			return err
		}
		return m.cfg.Store.DemoteCold(ctx, tx, now)
	})
	if err != nil {
		return err
	}
	if !acquired {
		m.log.Debug("another instance holds the maintenance lock, skipping cycle")
	}
	return nil
}
