package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dvloznov/pixtracker/internal/capture"
	"github.com/dvloznov/pixtracker/internal/domain"
	"github.com/dvloznov/pixtracker/internal/logger"
	"github.com/dvloznov/pixtracker/internal/pipeline"
	"github.com/dvloznov/pixtracker/internal/store"
	"github.com/rs/zerolog"
)

var (
	// ErrNotFound is returned by mutations addressing an unknown id.
	ErrNotFound = errors.New("transaction not found")
	// ErrAlreadyStarted is returned by Start when the manager is not in StateLoaded.
	ErrAlreadyStarted = errors.New("transaction log already started")
)

// Options configure a Manager.
type Options struct {
	// Location decides calendar-month boundaries and notification dates.
	Location *time.Location
	// Now defaults to time.Now.
	Now pipeline.Clock
	// Parser defaults to a *pipeline.Parser in Location.
	Parser pipeline.TextParser
}

// Manager owns the in-memory transaction log. All reads and writes of the
// log go through it; it is the only writer of the persisted log.
type Manager struct {
	store    *store.TransactionStore
	capture  capture.Service
	pipeline *pipeline.Pipeline
	loc      *time.Location
	now      pipeline.Clock
	log      zerolog.Logger

	writeMu sync.Mutex // serializes merge-then-persist sequences

	mu        sync.RWMutex // guards txs and listeners
	txs       []domain.Transaction
	listeners []Listener

	state atomic.Int32

	subMu sync.Mutex
	sub   *capture.Subscription
	done  chan struct{}
}

// New loads the persisted log eagerly and returns a manager in StateLoaded.
// capture may be nil, in which case Start leaves the manager in StateLoaded.
func New(ctx context.Context, st *store.TransactionStore, svc capture.Service, opts Options, log zerolog.Logger) *Manager {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Parser == nil {
		opts.Parser = pipeline.NewParser(opts.Location)
	}

	m := &Manager{
		store:    st,
		capture:  svc,
		pipeline: pipeline.NewIngestionPipeline(opts.Parser, opts.Now),
		loc:      opts.Location,
		now:      opts.Now,
		log:      logger.WithComponent(log, "ledger"),
	}

	m.txs = st.Load(ctx)
	m.state.Store(int32(StateLoaded))
	m.log.Info().Int("transactions", len(m.txs)).Msg("Transaction log loaded")
	return m
}

// State returns the current lifecycle phase.
func (m *Manager) State() State {
	return State(m.state.Load())
}

// Start drains the capture backlog, merges and persists it, then subscribes
// to live events. The drain always completes before the subscription so a
// live event never lands before its backlog sibling. Events buffered while
// the subscription was being attached are drained once more right after it.
// While live, every backlog append is drained and merged by the consumer.
//
// Capture problems are logged and leave the manager usable on the persisted
// log; only calling Start twice is an error.
func (m *Manager) Start(ctx context.Context) error {
	if !m.state.CompareAndSwap(int32(StateLoaded), int32(StateSyncing)) {
		return fmt.Errorf("Start: %w (state %s)", ErrAlreadyStarted, m.State())
	}

	if m.capture == nil {
		m.log.Info().Msg("No capture service configured, serving persisted log only")
		m.state.Store(int32(StateLoaded))
		return nil
	}

	status, err := m.capture.IsEnabled(ctx)
	if err != nil || !status.Enabled {
		m.log.Warn().Err(err).
			Bool("notification_enabled", status.NotificationEnabled).
			Bool("accessibility_enabled", status.AccessibilityEnabled).
			Msg("Capture unavailable, sync skipped")
		m.state.Store(int32(StateLoaded))
		return nil
	}

	backlog := m.drain(ctx)

	sub, err := m.capture.Subscribe(ctx)
	if err != nil {
		m.log.Warn().Err(err).Msg("Failed to subscribe to live capture events")
		m.state.Store(int32(StateLoaded))
		return nil
	}
	backlog += m.drain(ctx)

	done := make(chan struct{})
	m.subMu.Lock()
	m.sub = sub
	m.done = done
	m.subMu.Unlock()

	m.state.Store(int32(StateLive))
	go m.consume(context.WithoutCancel(ctx), sub, done)
	m.log.Info().Int("backlog", backlog).Msg("Transaction log live")
	return nil
}

// drain merges the buffered capture events and returns how many were drained.
func (m *Manager) drain(ctx context.Context) int {
	backlog, err := m.capture.DrainBacklog(ctx)
	if err != nil {
		m.log.Warn().Err(err).Msg("Failed to drain capture backlog")
		return 0
	}
	if len(backlog) > 0 {
		m.ingest(ctx, backlog, "backlog")
	}
	return len(backlog)
}

// consume merges live events one at a time until the subscription ends, and
// drains the backlog whenever the capture service reports it grew.
func (m *Manager) consume(ctx context.Context, sub *capture.Subscription, done chan struct{}) {
	defer close(done)
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			m.ingest(ctx, []domain.RawEvent{ev}, "live")
		case <-sub.Backlogged():
			m.drain(ctx)
		}
	}
}

// Stop removes the live subscription and waits for the consumer to finish.
// It is safe to call on a manager that never went live.
func (m *Manager) Stop(ctx context.Context) error {
	m.subMu.Lock()
	sub, done := m.sub, m.done
	m.sub, m.done = nil, nil
	m.subMu.Unlock()

	if sub == nil {
		return nil
	}
	sub.Remove()

	select {
	case <-done:
	case <-ctx.Done():
		m.log.Warn().Err(ctx.Err()).Msg("Live consumer did not stop in time")
		return ctx.Err()
	}
	m.state.Store(int32(StateLoaded))
	m.log.Info().Msg("Transaction log stopped")
	return nil
}

// Ingest normalizes and merges events directly, bypassing the capture
// service. It returns how many new transactions were added.
func (m *Manager) Ingest(ctx context.Context, events []domain.RawEvent) int {
	return m.ingest(ctx, events, "direct")
}

func (m *Manager) ingest(ctx context.Context, events []domain.RawEvent, origin string) int {
	m.writeMu.Lock()

	current := m.snapshot()
	ctx = logger.WithContext(ctx, m.log)
	state, err := m.pipeline.Ingest(ctx, current, events)
	if err != nil {
		m.writeMu.Unlock()
		m.log.Error().Err(err).Str("origin", origin).Msg("Failed to ingest events")
		return 0
	}
	if state.Added == 0 && state.Updated == 0 {
		m.writeMu.Unlock()
		m.log.Debug().Str("origin", origin).Int("events", len(events)).Msg("No new transactions")
		return 0
	}

	m.replace(state.Merged)
	m.persist(ctx, state.Merged)
	m.writeMu.Unlock()

	m.log.Info().
		Str("origin", origin).
		Int("events", len(events)).
		Int("added", state.Added).
		Int("updated", state.Updated).
		Int("rejected", state.Rejected).
		Msg("Merged capture events")
	m.notify(ctx, Change{Kind: ChangeIngest, Added: state.Added, Snapshot: state.Merged})
	return state.Added
}

// persist writes the log. Failures are logged; memory stays authoritative
// and the next successful write resynchronizes storage.
func (m *Manager) persist(ctx context.Context, txs []domain.Transaction) {
	if err := m.store.Save(ctx, txs); err != nil {
		m.log.Error().Err(err).Int("transactions", len(txs)).Msg("Failed to persist transaction log")
	}
}

func (m *Manager) snapshot() []domain.Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Transaction, len(m.txs))
	copy(out, m.txs)
	return out
}

func (m *Manager) replace(txs []domain.Transaction) {
	m.mu.Lock()
	m.txs = txs
	m.mu.Unlock()
}
