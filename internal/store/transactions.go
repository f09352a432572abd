package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/pixtracker/internal/domain"
	"github.com/dvloznov/pixtracker/internal/pipeline"
	"github.com/rs/zerolog"
)

// DateLayout is the ISO-8601 form dates are persisted in.
const DateLayout = "2006-01-02T15:04:05.000Z07:00"

// transactionRecord is the persisted shape of a transaction.
type transactionRecord struct {
	ID          string  `json:"id"`
	Type        string  `json:"type"`
	Amount      float64 `json:"amount"`
	Date        string  `json:"date"`
	Contact     string  `json:"contact"`
	Description string  `json:"description,omitempty"`
	Category    string  `json:"category,omitempty"`
}

// TransactionStore persists the canonical log under KeyTransactions.
type TransactionStore struct {
	kv  KV
	log zerolog.Logger
}

// NewTransactionStore creates a store over kv.
func NewTransactionStore(kv KV, log zerolog.Logger) *TransactionStore {
	return &TransactionStore{kv: kv, log: log.With().Str("component", "store").Logger()}
}

// Load returns the persisted log sorted newest first. Missing or unreadable
// data yields an empty log; the failure is logged, never returned.
func (s *TransactionStore) Load(ctx context.Context) []domain.Transaction {
	raw, err := s.kv.Get(ctx, KeyTransactions)
	if errors.Is(err, ErrNotFound) {
		return []domain.Transaction{}
	}
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to read transaction log, starting empty")
		return []domain.Transaction{}
	}

	txs, skipped, err := DecodeTransactions(raw)
	if err != nil {
		s.log.Error().Err(err).Msg("Stored transaction log is corrupt, starting empty")
		return []domain.Transaction{}
	}
	for _, err := range skipped {
		s.log.Warn().Err(err).Msg("Skipped unreadable transaction record")
	}
	pipeline.SortByDateDesc(txs)
	return txs
}

// Save replaces the persisted log with txs.
func (s *TransactionStore) Save(ctx context.Context, txs []domain.Transaction) error {
	raw, err := EncodeTransactions(txs)
	if err != nil {
		return fmt.Errorf("Save: %w", err)
	}
	if err := s.kv.Set(ctx, KeyTransactions, raw); err != nil {
		return fmt.Errorf("Save: writing %s: %w", KeyTransactions, err)
	}
	return nil
}

// Clear removes the persisted log.
func (s *TransactionStore) Clear(ctx context.Context) error {
	if err := s.kv.Delete(ctx, KeyTransactions); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("Clear: deleting %s: %w", KeyTransactions, err)
	}
	return nil
}

// EncodeTransactions serializes txs as a JSON array with ISO-8601 dates.
func EncodeTransactions(txs []domain.Transaction) (string, error) {
	records := make([]transactionRecord, len(txs))
	for i, tx := range txs {
		records[i] = transactionRecord{
			ID:          tx.ID,
			Type:        string(tx.Type),
			Amount:      tx.Amount,
			Date:        tx.Date.UTC().Format(DateLayout),
			Contact:     tx.Contact,
			Description: tx.Description,
			Category:    string(tx.Category),
		}
	}
	b, err := json.Marshal(records)
	if err != nil {
		return "", fmt.Errorf("EncodeTransactions: %w", err)
	}
	return string(b), nil
}

// DecodeTransactions parses the persisted JSON array. Records with an
// unreadable date are left out and reported in skipped; only a document that
// is not a JSON array of records fails the decode.
func DecodeTransactions(raw string) (txs []domain.Transaction, skipped []error, err error) {
	var records []transactionRecord
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		return nil, nil, fmt.Errorf("DecodeTransactions: unmarshal: %w", err)
	}

	txs = make([]domain.Transaction, 0, len(records))
	for i, r := range records {
		date, err := time.Parse(time.RFC3339Nano, r.Date)
		if err != nil {
			skipped = append(skipped, fmt.Errorf("DecodeTransactions: record %d (id %q): invalid date %q: %w", i, r.ID, r.Date, err))
			continue
		}
		txs = append(txs, domain.Transaction{
			ID:          r.ID,
			Type:        domain.TxType(r.Type),
			Amount:      r.Amount,
			Date:        pipeline.TruncateMillis(date),
			Contact:     r.Contact,
			Description: r.Description,
			Category:    domain.Category(r.Category),
		})
	}
	return txs, skipped, nil
}
