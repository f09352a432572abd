package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dvloznov/pixtracker/internal/capture"
	"github.com/dvloznov/pixtracker/internal/domain"
	"github.com/dvloznov/pixtracker/internal/store"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, time.September, 15, 12, 0, 0, 0, time.UTC)

func testOptions() Options {
	return Options{Location: time.UTC, Now: func() time.Time { return testNow }}
}

// MockCaptureService wraps a real hub and lets tests override single calls.
type MockCaptureService struct {
	*capture.Hub
	IsEnabledFunc    func(ctx context.Context) (capture.Status, error)
	DrainBacklogFunc func(ctx context.Context) ([]domain.RawEvent, error)
}

func (m *MockCaptureService) IsEnabled(ctx context.Context) (capture.Status, error) {
	if m.IsEnabledFunc != nil {
		return m.IsEnabledFunc(ctx)
	}
	return m.Hub.IsEnabled(ctx)
}

func (m *MockCaptureService) DrainBacklog(ctx context.Context) ([]domain.RawEvent, error) {
	if m.DrainBacklogFunc != nil {
		return m.DrainBacklogFunc(ctx)
	}
	return m.Hub.DrainBacklog(ctx)
}

type failingKV struct {
	*store.MemoryKV
}

func (f failingKV) Set(ctx context.Context, key, value string) error {
	return errors.New("disk full")
}

func newHub(kv store.KV) *capture.Hub {
	return capture.NewHub(kv, capture.Config{NotificationEnabled: true, Buffer: 8}, zerolog.Nop())
}

func rawEvent(id string, at time.Time, typ domain.TxType, amount float64) domain.RawEvent {
	ms := at.UnixMilli()
	return domain.RawEvent{ID: id, Type: typ, Amount: &amount, Date: &ms, Source: domain.SourceNotification}
}

func newManager(t *testing.T, kv store.KV, svc capture.Service) *Manager {
	t.Helper()
	return New(context.Background(), store.NewTransactionStore(kv, zerolog.Nop()), svc, testOptions(), zerolog.Nop())
}

func TestNew_LoadsEagerly(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryKV()
	seed := newManager(t, kv, nil)
	seed.Ingest(ctx, []domain.RawEvent{rawEvent("a", testNow, domain.TxSent, 5)})

	m := newManager(t, kv, nil)
	assert.Equal(t, StateLoaded, m.State())
	require.Len(t, m.All(), 1)
	assert.Equal(t, "a", m.All()[0].ID)
}

func TestStart_BacklogThenLive(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryKV()
	hub := newHub(kv)
	eventA := rawEvent("x", testNow.Add(-time.Hour), domain.TxReceived, 50)

	require.NoError(t, hub.Publish(ctx, eventA))

	m := newManager(t, kv, hub)
	require.NoError(t, m.Start(ctx))
	defer m.Stop(ctx)

	assert.Equal(t, StateLive, m.State())
	require.Len(t, m.All(), 1)

	require.NoError(t, hub.Publish(ctx, eventA))
	require.NoError(t, hub.Publish(ctx, rawEvent("y", testNow, domain.TxSent, 10)))

	require.Eventually(t, func() bool { return len(m.All()) == 2 }, time.Second, 5*time.Millisecond)

	count := 0
	for _, tx := range m.All() {
		if tx.ID == "x" {
			count++
		}
	}
	assert.Equal(t, 1, count)

	pending, err := hub.Pending(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestLive_DrainsEventsBufferedWhileLive(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryKV()
	hub := newHub(kv)
	m := newManager(t, kv, hub)
	require.NoError(t, m.Start(ctx))
	defer m.Stop(ctx)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	for i := range 20 {
		ev := rawEvent(fmt.Sprintf("tx-%d", i), testNow.Add(-time.Duration(i)*time.Minute), domain.TxSent, 1)
		require.NoError(t, hub.Publish(cancelled, ev))
	}

	require.Eventually(t, func() bool { return len(m.All()) == 20 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, StateLive, m.State())
	require.Eventually(t, func() bool {
		pending, err := hub.Pending(ctx)
		return err == nil && pending == 0
	}, time.Second, 5*time.Millisecond)
}

func TestStart_DrainsAgainAfterSubscribing(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryKV()
	hub := newHub(kv)
	drains := 0
	svc := &MockCaptureService{
		Hub: hub,
		DrainBacklogFunc: func(ctx context.Context) ([]domain.RawEvent, error) {
			drains++
			events, err := hub.DrainBacklog(ctx)
			if drains == 1 {
				// Arrives after the first drain but before the subscription.
				require.NoError(t, hub.Publish(ctx, rawEvent("gap", testNow, domain.TxSent, 3)))
			}
			return events, err
		},
	}

	m := newManager(t, kv, svc)
	require.NoError(t, m.Start(ctx))
	defer m.Stop(ctx)

	require.Len(t, m.All(), 1)
	assert.Equal(t, "gap", m.All()[0].ID)
}

func TestStart_Twice(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryKV()
	m := newManager(t, kv, newHub(kv))

	require.NoError(t, m.Start(ctx))
	defer m.Stop(ctx)
	assert.ErrorIs(t, m.Start(ctx), ErrAlreadyStarted)
}

func TestStart_CaptureDisabled(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryKV()
	svc := &MockCaptureService{
		Hub: newHub(kv),
		IsEnabledFunc: func(ctx context.Context) (capture.Status, error) {
			return capture.Status{}, nil
		},
	}

	m := newManager(t, kv, svc)
	require.NoError(t, m.Start(ctx))
	assert.Equal(t, StateLoaded, m.State())
	assert.NoError(t, m.Stop(ctx))
}

func TestStart_DrainFailureStillSubscribes(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryKV()
	svc := &MockCaptureService{
		Hub: newHub(kv),
		DrainBacklogFunc: func(ctx context.Context) ([]domain.RawEvent, error) {
			return nil, errors.New("service busy")
		},
	}

	m := newManager(t, kv, svc)
	require.NoError(t, m.Start(ctx))
	defer m.Stop(ctx)
	assert.Equal(t, StateLive, m.State())

	require.NoError(t, svc.Publish(ctx, rawEvent("live", testNow, domain.TxSent, 1)))
	require.Eventually(t, func() bool { return len(m.All()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestStop_ReturnsToLoaded(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryKV()
	hub := newHub(kv)
	m := newManager(t, kv, hub)

	require.NoError(t, m.Start(ctx))
	require.NoError(t, m.Stop(ctx))
	assert.Equal(t, StateLoaded, m.State())

	// Events published after Stop are buffered for the next start.
	require.NoError(t, hub.Publish(ctx, rawEvent("later", testNow, domain.TxSent, 1)))
	require.NoError(t, m.Start(ctx))
	defer m.Stop(ctx)
	assert.Len(t, m.All(), 1)
}

func TestIngest_Idempotent(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, store.NewMemoryKV(), nil)
	batch := []domain.RawEvent{
		rawEvent("a", testNow, domain.TxSent, 12.005),
		rawEvent("b", testNow.Add(-time.Minute), domain.TxReceived, 3),
	}

	assert.Equal(t, 2, m.Ingest(ctx, batch))
	first := m.All()
	assert.Equal(t, 0, m.Ingest(ctx, batch))
	assert.Equal(t, first, m.All())
	assert.Equal(t, 12.01, first[0].Amount)
}

func TestIngest_SaveFailureKeepsMemory(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, failingKV{store.NewMemoryKV()}, nil)

	added := m.Ingest(ctx, []domain.RawEvent{rawEvent("a", testNow, domain.TxSent, 1)})
	assert.Equal(t, 1, added)
	assert.Len(t, m.All(), 1)
}

func TestDelete_PersistsAcrossRestart(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryKV()
	m := newManager(t, kv, nil)
	m.Ingest(ctx, []domain.RawEvent{
		rawEvent("keep", testNow, domain.TxSent, 1),
		rawEvent("drop", testNow.Add(-time.Hour), domain.TxSent, 2),
	})

	removed, err := m.Delete(ctx, "drop")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Len(t, m.All(), 1)

	restarted := newManager(t, kv, nil)
	require.Len(t, restarted.All(), 1)
	assert.Equal(t, "keep", restarted.All()[0].ID)

	_, err = restarted.Delete(ctx, "drop")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetCategory(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryKV()
	m := newManager(t, kv, nil)
	m.Ingest(ctx, []domain.RawEvent{rawEvent("a", testNow, domain.TxSent, 1)})

	require.NoError(t, m.SetCategory(ctx, "a", domain.CategoryTransport))
	assert.Equal(t, domain.CategoryTransport, newManager(t, kv, nil).All()[0].Category)

	assert.Error(t, m.SetCategory(ctx, "a", "Viagem"))
	assert.ErrorIs(t, m.SetCategory(ctx, "missing", domain.CategoryFood), ErrNotFound)

	require.NoError(t, m.SetCategory(ctx, "a", ""))
	assert.Empty(t, m.All()[0].Category)
}

func TestIngest_RedeliveryKeepsCategory(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryKV()
	m := newManager(t, kv, nil)
	a := rawEvent("a", testNow, domain.TxSent, 1)
	m.Ingest(ctx, []domain.RawEvent{a})
	require.NoError(t, m.SetCategory(ctx, "a", domain.CategoryFood))

	assert.Equal(t, 0, m.Ingest(ctx, []domain.RawEvent{a}))
	assert.Equal(t, 1, m.Ingest(ctx, []domain.RawEvent{a, rawEvent("b", testNow.Add(-time.Hour), domain.TxSent, 2)}))

	for _, mgr := range []*Manager{m, newManager(t, kv, nil)} {
		all := mgr.All()
		require.Len(t, all, 2)
		assert.Equal(t, "a", all[0].ID)
		assert.Equal(t, domain.CategoryFood, all[0].Category)
	}
}

func TestIngest_RedeliveryWithNewContentIsCommitted(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryKV()
	m := newManager(t, kv, nil)
	m.Ingest(ctx, []domain.RawEvent{rawEvent("a", testNow, domain.TxSent, 1)})

	assert.Equal(t, 0, m.Ingest(ctx, []domain.RawEvent{rawEvent("a", testNow, domain.TxSent, 7.5)}))
	assert.Equal(t, 7.5, m.All()[0].Amount)
	assert.Equal(t, 7.5, newManager(t, kv, nil).All()[0].Amount)
}

func TestIngest_FarFutureDateSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryKV()
	m := newManager(t, kv, nil)

	far := rawEvent("b", testNow, domain.TxSent, 2)
	farMs := int64(1e15)
	far.Date = &farMs
	require.Equal(t, 2, m.Ingest(ctx, []domain.RawEvent{rawEvent("a", testNow, domain.TxSent, 1), far}))

	before := m.All()
	after := newManager(t, kv, nil).All()
	require.Len(t, after, 2)
	for i := range before {
		assert.Equal(t, before[i].ID, after[i].ID)
		assert.True(t, before[i].Date.Equal(after[i].Date), "%s: %v != %v", before[i].ID, before[i].Date, after[i].Date)
		assert.LessOrEqual(t, after[i].Date.Year(), 9999)
	}
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryKV()
	m := newManager(t, kv, nil)
	m.Ingest(ctx, []domain.RawEvent{rawEvent("a", testNow, domain.TxSent, 1)})

	m.Clear(ctx)
	assert.Empty(t, m.All())

	_, err := kv.Get(ctx, store.KeyTransactions)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestOnChange(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, store.NewMemoryKV(), nil)

	var mu sync.Mutex
	var changes []Change
	m.OnChange(func(ctx context.Context, ch Change) {
		mu.Lock()
		defer mu.Unlock()
		changes = append(changes, ch)
	})

	m.Ingest(ctx, []domain.RawEvent{rawEvent("a", testNow, domain.TxSent, 1)})
	m.Ingest(ctx, []domain.RawEvent{rawEvent("a", testNow, domain.TxSent, 1)})
	_, _ = m.Delete(ctx, "a")

	require.Len(t, changes, 2)
	assert.Equal(t, ChangeIngest, changes[0].Kind)
	assert.Equal(t, 1, changes[0].Added)
	assert.Equal(t, ChangeDelete, changes[1].Kind)
	assert.Empty(t, changes[1].Snapshot)
}

func testLogger() zerolog.Logger { return zerolog.Nop() }
