package store

import (
	"context"
	"errors"
	"sync"
)

// Keys of the persisted state layout.
const (
	KeyTransactions  = "transactions_v1"
	KeyIncomeSources = "income_sources"
	KeyMonthlyIncome = "monthly_income"
	KeyCaptureQueue  = "bank_events_queue"
)

// ErrNotFound is returned by KV.Get for a key that was never set or was deleted.
var ErrNotFound = errors.New("key not found")

// KV is the device key-value storage the persisted state lives in.
// Values are opaque strings; Set replaces the whole value atomically.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// MemoryKV is an in-process KV. Data is lost on restart.
type MemoryKV struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMemoryKV creates an empty in-memory KV.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string]string)}
}

func (m *MemoryKV) Get(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.data[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *MemoryKV) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[key] = value
	return nil
}

func (m *MemoryKV) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data, key)
	return nil
}

var _ KV = (*MemoryKV)(nil)
