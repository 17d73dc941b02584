package partition

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/locator-project/locator/internal/store"
)

type mockStore struct {
	lockHeld bool

	mu    sync.Mutex
	calls []string
}

func (m *mockStore) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}

func (m *mockStore) callList() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *mockStore) WithMaintenanceLock(ctx context.Context, fn func(tx pgx.Tx) error) (bool, error) {
	if m.lockHeld {
		return false, nil
	}
	if err := fn(nil); err != nil {
		return true, err
	}
	return true, nil
}

func (m *mockStore) EnsureForward(ctx context.Context, q store.Querier, from time.Time, horizonDays int) error {
	m.record("ensure")
	return nil
}

func (m *mockStore) DropExpired(ctx context.Context, q store.Querier, now time.Time, retainDays int) error {
	m.record("drop")
	return nil
}

func (m *mockStore) DemoteCold(ctx context.Context, q store.Querier, now time.Time) error {
	m.record("demote")
	return nil
}

func newTestManager(t *testing.T, ms *mockStore, clock clockwork.Clock) *Manager {
	t.Helper()
	m, err := New(&Config{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Store:  ms,
		Clock:  clock,
	})
	require.NoError(t, err)
	return m
}

func TestManagerCycleOrder(t *testing.T) {
	t.Parallel()

	ms := &mockStore{}
	m := newTestManager(t, ms, clockwork.NewFakeClock())

	require.NoError(t, m.cycle(context.Background()))
	require.Equal(t, []string{"ensure", "drop", "demote"}, ms.callList(),
		"new partitions exist before old ones are dropped")
}

func TestManagerSkipsWhenLockHeldElsewhere(t *testing.T) {
	t.Parallel()

	ms := &mockStore{lockHeld: true}
	m := newTestManager(t, ms, clockwork.NewFakeClock())

	require.NoError(t, m.cycle(context.Background()))
	require.Empty(t, ms.callList())
}

func TestManagerRunTicks(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	ms := &mockStore{}
	m := newTestManager(t, ms, clock)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	// The first cycle runs before the ticker is armed.
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	require.Len(t, ms.callList(), 3)

	clock.Advance(time.Hour)
	require.Eventually(t, func() bool { return len(ms.callList()) == 6 }, time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
