package ledger

import (
	"time"

	"github.com/dvloznov/pixtracker/internal/domain"
)

// All returns a copy of the log, newest first.
func (m *Manager) All() []domain.Transaction {
	return m.snapshot()
}

// Recent returns the n newest transactions. n <= 0 returns the whole log.
func (m *Manager) Recent(n int) []domain.Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if n <= 0 || n > len(m.txs) {
		n = len(m.txs)
	}
	out := make([]domain.Transaction, n)
	copy(out, m.txs[:n])
	return out
}

// CurrentMonth returns the transactions dated in the current calendar month.
// An empty typ matches both directions.
func (m *Manager) CurrentMonth(typ domain.TxType) []domain.Transaction {
	now := m.now().In(m.loc)
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, m.loc)
	return m.Between(start, start.AddDate(0, 1, 0), typ)
}

// Received returns this month's received transactions.
func (m *Manager) Received() []domain.Transaction {
	return m.CurrentMonth(domain.TxReceived)
}

// Sent returns this month's sent transactions.
func (m *Manager) Sent() []domain.Transaction {
	return m.CurrentMonth(domain.TxSent)
}

// Between returns transactions with from <= date < to, newest first.
func (m *Manager) Between(from, to time.Time, typ domain.TxType) []domain.Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []domain.Transaction{}
	for _, tx := range m.txs {
		if typ != "" && tx.Type != typ {
			continue
		}
		if tx.Date.Before(from) || !tx.Date.Before(to) {
			continue
		}
		out = append(out, tx)
	}
	return out
}

// Location returns the zone calendar months are computed in.
func (m *Manager) Location() *time.Location {
	return m.loc
}

// Now returns the manager's clock reading.
func (m *Manager) Now() time.Time {
	return m.now()
}
