package ledger

import (
	"context"

	"github.com/dvloznov/pixtracker/internal/domain"
)

// ChangeKind says what modified the log.
type ChangeKind string

const (
	ChangeIngest   ChangeKind = "ingest"
	ChangeDelete   ChangeKind = "delete"
	ChangeCategory ChangeKind = "category"
	ChangeClear    ChangeKind = "clear"
)

// Change describes one committed modification of the log.
type Change struct {
	Kind  ChangeKind
	Added int
	IDs   []string
	// Snapshot is the log after the change. It is shared and must not be modified.
	Snapshot []domain.Transaction
}

// Listener is called after a change has been applied and persisted.
type Listener func(ctx context.Context, ch Change)

// OnChange registers l. Listeners run synchronously on the mutating goroutine
// and should hand off slow work.
func (m *Manager) OnChange(l Listener) {
	m.mu.Lock()
	m.listeners = append(m.listeners, l)
	m.mu.Unlock()
}

func (m *Manager) notify(ctx context.Context, ch Change) {
	m.mu.RLock()
	listeners := append([]Listener(nil), m.listeners...)
	m.mu.RUnlock()

	for _, l := range listeners {
		l(ctx, ch)
	}
}
