package bigquery

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/pixtracker/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockWarehouse is a mock implementation of Warehouse for testing.
type MockWarehouse struct {
	ExportedKeysFunc       func(ctx context.Context, since time.Time) (map[domain.Key]bool, error)
	InsertTransactionsFunc func(ctx context.Context, rows []*TransactionRow) error
}

func (m *MockWarehouse) ExportedKeys(ctx context.Context, since time.Time) (map[domain.Key]bool, error) {
	if m.ExportedKeysFunc != nil {
		return m.ExportedKeysFunc(ctx, since)
	}
	return map[domain.Key]bool{}, nil
}

func (m *MockWarehouse) InsertTransactions(ctx context.Context, rows []*TransactionRow) error {
	if m.InsertTransactionsFunc != nil {
		return m.InsertTransactionsFunc(ctx, rows)
	}
	return nil
}

func TestNewTransactionRow(t *testing.T) {
	brt := time.FixedZone("BRT", -3*60*60)
	date := time.Date(2025, time.September, 1, 1, 30, 0, 0, time.UTC) // still Aug 31 in BRT
	tx := domain.Transaction{ID: "a", Type: domain.TxSent, Amount: 12.01, Date: date, Contact: "X", Category: domain.CategoryFood}

	row := NewTransactionRow(tx, brt, "run", date)

	assert.Equal(t, civil.Date{Year: 2025, Month: time.August, Day: 31}, row.TransactionDate)
	assert.Equal(t, 0, row.Amount.Cmp(big.NewRat(1201, 100)))
	assert.Equal(t, "sent", row.Direction)
	assert.False(t, row.RawDescription.Valid)
	assert.True(t, row.CategoryName.Valid)
	assert.Equal(t, domain.Key{ID: "a", DateMs: date.UnixMilli()}, row.Key())
}

func TestExporter_SkipsExportedKeys(t *testing.T) {
	base := time.Date(2025, time.August, 1, 0, 0, 0, 0, time.UTC)
	txs := []domain.Transaction{
		{ID: "new", Type: domain.TxSent, Date: base.Add(time.Hour), Contact: "A"},
		{ID: "old", Type: domain.TxSent, Date: base, Contact: "B"},
	}

	var since time.Time
	var inserted []*TransactionRow
	w := &MockWarehouse{
		ExportedKeysFunc: func(ctx context.Context, s time.Time) (map[domain.Key]bool, error) {
			since = s
			return map[domain.Key]bool{txs[1].Key(): true}, nil
		},
		InsertTransactionsFunc: func(ctx context.Context, rows []*TransactionRow) error {
			inserted = rows
			return nil
		},
	}

	n, err := NewExporter(w, time.UTC, zerolog.Nop()).Export(context.Background(), txs)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, since.Equal(base))
	require.Len(t, inserted, 1)
	assert.Equal(t, "new", inserted[0].TransactionID)
	assert.NotEmpty(t, inserted[0].ExportRunID)
}

func TestExporter_Errors(t *testing.T) {
	txs := []domain.Transaction{{ID: "a", Type: domain.TxSent, Date: time.Now(), Contact: "A"}}

	_, err := NewExporter(&MockWarehouse{
		ExportedKeysFunc: func(ctx context.Context, since time.Time) (map[domain.Key]bool, error) {
			return nil, errors.New("quota")
		},
	}, nil, zerolog.Nop()).Export(context.Background(), txs)
	assert.ErrorContains(t, err, "quota")

	_, err = NewExporter(&MockWarehouse{
		InsertTransactionsFunc: func(ctx context.Context, rows []*TransactionRow) error {
			return errors.New("insert failed")
		},
	}, nil, zerolog.Nop()).Export(context.Background(), txs)
	assert.ErrorContains(t, err, "insert failed")
}

func TestExporter_EmptyLog(t *testing.T) {
	called := false
	w := &MockWarehouse{ExportedKeysFunc: func(ctx context.Context, since time.Time) (map[domain.Key]bool, error) {
		called = true
		return nil, nil
	}}

	n, err := NewExporter(w, nil, zerolog.Nop()).Export(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.False(t, called)
}
