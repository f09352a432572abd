package store

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dvloznov/pixtracker/internal/domain"
	"github.com/dvloznov/pixtracker/internal/pipeline"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingKV fails every write.
type failingKV struct {
	*MemoryKV
}

func (f failingKV) Set(ctx context.Context, key, value string) error {
	return errors.New("quota exceeded")
}

func sampleLog() []domain.Transaction {
	return []domain.Transaction{
		{
			ID:          "2",
			Type:        domain.TxReceived,
			Amount:      1234.56,
			Date:        pipeline.TruncateMillis(time.Date(2025, time.August, 30, 10, 15, 30, 987654321, time.UTC)),
			Contact:     "MARIA SILVA",
			Description: "Pix recebido de MARIA SILVA",
			Category:    domain.CategoryOther,
		},
		{
			ID:      "1",
			Type:    domain.TxSent,
			Amount:  12,
			Date:    pipeline.TruncateMillis(time.Date(2025, time.August, 29, 22, 5, 0, 0, time.UTC)),
			Contact: domain.UnknownContact,
		},
	}
}

func TestTransactionStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewTransactionStore(NewMemoryKV(), zerolog.Nop())

	require.NoError(t, s.Save(ctx, sampleLog()))
	assert.Equal(t, sampleLog(), s.Load(ctx))
}

func TestTransactionStore_LoadSortsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewTransactionStore(NewMemoryKV(), zerolog.Nop())

	log := sampleLog()
	log[0], log[1] = log[1], log[0]
	require.NoError(t, s.Save(ctx, log))

	loaded := s.Load(ctx)
	require.Len(t, loaded, 2)
	assert.Equal(t, "2", loaded[0].ID)
}

func TestTransactionStore_DateFormat(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	s := NewTransactionStore(kv, zerolog.Nop())

	require.NoError(t, s.Save(ctx, sampleLog()))
	raw, err := kv.Get(ctx, KeyTransactions)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(raw, "["))
	assert.Contains(t, raw, `"date":"2025-08-30T10:15:30.987Z"`)
	assert.NotContains(t, raw, `"category":""`)
}

func TestTransactionStore_LoadFallsBackToEmpty(t *testing.T) {
	tests := []struct {
		name string
		raw  *string
	}{
		{name: "missing key"},
		{name: "not json", raw: strPtr("{oops")},
		{name: "wrong shape", raw: strPtr(`{"id":"1"}`)},
		{name: "bad date", raw: strPtr(`[{"id":"1","type":"sent","amount":1,"date":"yesterday","contact":"x"}]`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			kv := NewMemoryKV()
			if tt.raw != nil {
				require.NoError(t, kv.Set(ctx, KeyTransactions, *tt.raw))
			}

			loaded := NewTransactionStore(kv, zerolog.Nop()).Load(ctx)
			assert.NotNil(t, loaded)
			assert.Empty(t, loaded)
		})
	}
}

func TestTransactionStore_AcceptsForeignISODates(t *testing.T) {
	raw := `[{"id":"1","type":"sent","amount":5,"date":"2025-08-29T22:05:00Z","contact":"A"},
	         {"id":"2","type":"sent","amount":5,"date":"2025-08-29T19:05:00.250-03:00","contact":"B"}]`

	txs, skipped, err := DecodeTransactions(raw)
	require.NoError(t, err)
	assert.Empty(t, skipped)
	require.Len(t, txs, 2)
	assert.True(t, txs[1].Date.Equal(time.Date(2025, time.August, 29, 22, 5, 0, 250000000, time.UTC)))
}

func TestTransactionStore_LoadSkipsBadRecord(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	raw := `[{"id":"far","type":"sent","amount":1,"date":"+33658-09-27T01:46:40.000Z","contact":"x"},
	         {"id":"ok","type":"sent","amount":2,"date":"2025-08-29T22:05:00.000Z","contact":"y"},
	         {"id":"junk","type":"sent","amount":3,"date":"yesterday","contact":"z"}]`
	require.NoError(t, kv.Set(ctx, KeyTransactions, raw))

	loaded := NewTransactionStore(kv, zerolog.Nop()).Load(ctx)
	require.Len(t, loaded, 1)
	assert.Equal(t, "ok", loaded[0].ID)

	_, skipped, err := DecodeTransactions(raw)
	require.NoError(t, err)
	assert.Len(t, skipped, 2)
}

func TestTransactionStore_RoundTripDateBounds(t *testing.T) {
	ctx := context.Background()
	s := NewTransactionStore(NewMemoryKV(), zerolog.Nop())
	log := []domain.Transaction{
		{ID: "late", Type: domain.TxSent, Amount: 1, Date: time.UnixMilli(pipeline.MaxEventDateMs).UTC(), Contact: "A"},
		{ID: "epoch", Type: domain.TxSent, Amount: 1, Date: time.UnixMilli(1).UTC(), Contact: "B"},
	}
	require.NoError(t, s.Save(ctx, log))

	loaded := s.Load(ctx)
	require.Len(t, loaded, 2)
	for i := range log {
		assert.True(t, loaded[i].Date.Equal(log[i].Date), "entry %s: got %v", log[i].ID, loaded[i].Date)
	}
}

func TestTransactionStore_SaveError(t *testing.T) {
	s := NewTransactionStore(failingKV{NewMemoryKV()}, zerolog.Nop())
	err := s.Save(context.Background(), sampleLog())
	assert.ErrorContains(t, err, "quota exceeded")
}

func TestTransactionStore_Clear(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	s := NewTransactionStore(kv, zerolog.Nop())

	require.NoError(t, s.Save(ctx, sampleLog()))
	require.NoError(t, s.Clear(ctx))

	_, err := kv.Get(ctx, KeyTransactions)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, s.Load(ctx))
}

func TestSettingsStore_IncomeSources(t *testing.T) {
	ctx := context.Background()
	s := NewSettingsStore(NewMemoryKV())

	sources, err := s.IncomeSources(ctx)
	require.NoError(t, err)
	assert.Empty(t, sources)

	salary, err := s.SaveIncomeSource(ctx, domain.IncomeSource{
		Name: "Salário", Type: domain.IncomeWork, ContactPattern: "ACME LTDA",
		Frequency: domain.FrequencyMonthly, IsActive: true,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, salary.ID)

	salary.Name = "Salário ACME"
	_, err = s.SaveIncomeSource(ctx, salary)
	require.NoError(t, err)

	sources, err = s.IncomeSources(ctx)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, "Salário ACME", sources[0].Name)

	require.NoError(t, s.DeleteIncomeSource(ctx, salary.ID))
	assert.ErrorIs(t, s.DeleteIncomeSource(ctx, salary.ID), ErrSourceNotFound)
}

func TestSettingsStore_SaveIncomeSourceValidation(t *testing.T) {
	s := NewSettingsStore(NewMemoryKV())

	_, err := s.SaveIncomeSource(context.Background(), domain.IncomeSource{Name: "x", ContactPattern: "y", Frequency: domain.FrequencyCustom})
	assert.Error(t, err)

	_, err = s.SaveIncomeSource(context.Background(), domain.IncomeSource{Name: " ", ContactPattern: "y"})
	assert.Error(t, err)
}

func TestSettingsStore_MonthlyIncome(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	s := NewSettingsStore(kv)

	_, ok, err := s.MonthlyIncome(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetMonthlyIncome(ctx, decimal.RequireFromString("4500.50")))
	raw, _ := kv.Get(ctx, KeyMonthlyIncome)
	assert.Equal(t, "4500.5", raw)

	got, ok, err := s.MonthlyIncome(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, got.Equal(decimal.RequireFromString("4500.5")))

	require.NoError(t, kv.Set(ctx, KeyMonthlyIncome, "abc"))
	_, ok, err = s.MonthlyIncome(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Error(t, s.SetMonthlyIncome(ctx, decimal.NewFromInt(-1)))
}

func strPtr(s string) *string { return &s }
