package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dvloznov/pixtracker/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrSourceNotFound is returned when an income source id is unknown.
	ErrSourceNotFound = errors.New("income source not found")
	// ErrInvalidSource is returned when an income source fails validation.
	ErrInvalidSource = errors.New("invalid income source")
)

// SettingsStore persists user settings that sit beside the log.
type SettingsStore struct {
	kv KV
}

// NewSettingsStore creates a settings store over kv.
func NewSettingsStore(kv KV) *SettingsStore {
	return &SettingsStore{kv: kv}
}

// IncomeSources returns the stored rules, or none if nothing was saved.
func (s *SettingsStore) IncomeSources(ctx context.Context) ([]domain.IncomeSource, error) {
	raw, err := s.kv.Get(ctx, KeyIncomeSources)
	if errors.Is(err, ErrNotFound) {
		return []domain.IncomeSource{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("IncomeSources: reading %s: %w", KeyIncomeSources, err)
	}

	var sources []domain.IncomeSource
	if err := json.Unmarshal([]byte(raw), &sources); err != nil {
		return nil, fmt.Errorf("IncomeSources: unmarshal: %w", err)
	}
	return sources, nil
}

// SaveIncomeSource inserts src, or replaces the source with the same id.
// An empty id is assigned a new one.
func (s *SettingsStore) SaveIncomeSource(ctx context.Context, src domain.IncomeSource) (domain.IncomeSource, error) {
	if strings.TrimSpace(src.Name) == "" {
		return src, fmt.Errorf("SaveIncomeSource: %w: name is required", ErrInvalidSource)
	}
	if strings.TrimSpace(src.ContactPattern) == "" {
		return src, fmt.Errorf("SaveIncomeSource: %w: contact pattern is required", ErrInvalidSource)
	}
	if src.Frequency == "" {
		src.Frequency = domain.FrequencyMonthly
	}
	if src.Frequency == domain.FrequencyCustom && (src.CustomFrequencyDays == nil || *src.CustomFrequencyDays <= 0) {
		return src, fmt.Errorf("SaveIncomeSource: %w: custom frequency needs a positive day count", ErrInvalidSource)
	}

	sources, err := s.IncomeSources(ctx)
	if err != nil {
		return src, fmt.Errorf("SaveIncomeSource: %w", err)
	}

	if src.ID == "" {
		src.ID = uuid.New().String()
		sources = append(sources, src)
	} else {
		replaced := false
		for i := range sources {
			if sources[i].ID == src.ID {
				sources[i] = src
				replaced = true
				break
			}
		}
		if !replaced {
			sources = append(sources, src)
		}
	}

	if err := s.writeSources(ctx, sources); err != nil {
		return src, fmt.Errorf("SaveIncomeSource: %w", err)
	}
	return src, nil
}

// DeleteIncomeSource removes the source with id.
func (s *SettingsStore) DeleteIncomeSource(ctx context.Context, id string) error {
	sources, err := s.IncomeSources(ctx)
	if err != nil {
		return fmt.Errorf("DeleteIncomeSource: %w", err)
	}

	kept := sources[:0]
	for _, src := range sources {
		if src.ID != id {
			kept = append(kept, src)
		}
	}
	if len(kept) == len(sources) {
		return fmt.Errorf("DeleteIncomeSource: %w: %s", ErrSourceNotFound, id)
	}

	if err := s.writeSources(ctx, kept); err != nil {
		return fmt.Errorf("DeleteIncomeSource: %w", err)
	}
	return nil
}

func (s *SettingsStore) writeSources(ctx context.Context, sources []domain.IncomeSource) error {
	b, err := json.Marshal(sources)
	if err != nil {
		return fmt.Errorf("marshal income sources: %w", err)
	}
	if err := s.kv.Set(ctx, KeyIncomeSources, string(b)); err != nil {
		return fmt.Errorf("writing %s: %w", KeyIncomeSources, err)
	}
	return nil
}

// MonthlyIncome returns the manual income override. ok is false when unset
// or unparsable.
func (s *SettingsStore) MonthlyIncome(ctx context.Context) (decimal.Decimal, bool, error) {
	raw, err := s.kv.Get(ctx, KeyMonthlyIncome)
	if errors.Is(err, ErrNotFound) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("MonthlyIncome: reading %s: %w", KeyMonthlyIncome, err)
	}

	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, false, nil
	}
	return d, true, nil
}

// SetMonthlyIncome stores the override as a plain decimal string.
func (s *SettingsStore) SetMonthlyIncome(ctx context.Context, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("SetMonthlyIncome: amount must not be negative")
	}
	if err := s.kv.Set(ctx, KeyMonthlyIncome, amount.String()); err != nil {
		return fmt.Errorf("SetMonthlyIncome: writing %s: %w", KeyMonthlyIncome, err)
	}
	return nil
}
