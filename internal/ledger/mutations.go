package ledger

import (
	"context"
	"fmt"

	"github.com/dvloznov/pixtracker/internal/domain"
	"github.com/dvloznov/pixtracker/internal/pipeline"
)

// Delete removes every entry with id and persists the log. Ids are not unique
// across dates, so all matching entries go.
func (m *Manager) Delete(ctx context.Context, id string) (int, error) {
	m.writeMu.Lock()

	current := m.snapshot()
	kept := make([]domain.Transaction, 0, len(current))
	for _, tx := range current {
		if tx.ID != id {
			kept = append(kept, tx)
		}
	}
	removed := len(current) - len(kept)
	if removed == 0 {
		m.writeMu.Unlock()
		return 0, fmt.Errorf("Delete: %w: %s", ErrNotFound, id)
	}

	m.replace(kept)
	m.persist(ctx, kept)
	m.writeMu.Unlock()

	m.log.Info().Str("tx_id", id).Int("removed", removed).Msg("Deleted transaction")
	m.notify(ctx, Change{Kind: ChangeDelete, IDs: []string{id}, Snapshot: kept})
	return removed, nil
}

// SetCategory assigns category to every entry with id and persists the log.
// An empty category clears the assignment.
func (m *Manager) SetCategory(ctx context.Context, id string, category domain.Category) error {
	if category != "" {
		if err := pipeline.ValidateCategory(category); err != nil {
			return fmt.Errorf("SetCategory: %w", err)
		}
	}

	m.writeMu.Lock()

	updated := m.snapshot()
	matched := 0
	for i := range updated {
		if updated[i].ID == id {
			updated[i].Category = category
			matched++
		}
	}
	if matched == 0 {
		m.writeMu.Unlock()
		return fmt.Errorf("SetCategory: %w: %s", ErrNotFound, id)
	}

	m.replace(updated)
	m.persist(ctx, updated)
	m.writeMu.Unlock()

	m.log.Info().Str("tx_id", id).Str("category", string(category)).Msg("Updated transaction category")
	m.notify(ctx, Change{Kind: ChangeCategory, IDs: []string{id}, Snapshot: updated})
	return nil
}

// Clear empties the log and removes the persisted copy.
func (m *Manager) Clear(ctx context.Context) {
	m.writeMu.Lock()

	m.replace([]domain.Transaction{})
	if err := m.store.Clear(ctx); err != nil {
		m.log.Error().Err(err).Msg("Failed to clear persisted transaction log")
	}
	m.writeMu.Unlock()

	m.log.Info().Msg("Cleared transaction log")
	m.notify(ctx, Change{Kind: ChangeClear, Snapshot: []domain.Transaction{}})
}
