package pipeline

import (
	"math"
	"strings"
	"time"

	"github.com/dvloznov/pixtracker/internal/domain"
	"github.com/shopspring/decimal"
)

// Clock returns the current wall-clock time.
type Clock func() time.Time

// Normalizer turns raw capture events into canonical transactions.
type Normalizer struct {
	parser TextParser
	now    Clock
}

// NewNormalizer builds a normalizer. A nil clock means time.Now.
func NewNormalizer(parser TextParser, now Clock) *Normalizer {
	if now == nil {
		now = time.Now
	}
	return &Normalizer{parser: parser, now: now}
}

// Normalize parses the event description and resolves every field.
// It returns a valid transaction for any input.
func (n *Normalizer) Normalize(ev domain.RawEvent) domain.Transaction {
	var ext Extraction
	if ev.Description != nil && n.parser != nil {
		ext = n.parser.Parse(*ev.Description)
	}
	return n.NormalizeWith(ev, ext)
}

// NormalizeWith resolves fields from an extraction already computed for ev.
// Parsed values win over the capture service's fields, which win over defaults.
func (n *Normalizer) NormalizeWith(ev domain.RawEvent, ext Extraction) domain.Transaction {
	tx := domain.Transaction{
		ID:      ev.ID,
		Type:    ev.Type,
		Amount:  RoundAmount(resolveAmount(ev, ext)),
		Date:    n.resolveDate(ev, ext),
		Contact: resolveContact(ev, ext),
	}
	if ev.Description != nil {
		tx.Description = *ev.Description
	}
	return tx
}

func resolveAmount(ev domain.RawEvent, ext Extraction) float64 {
	if ext.Amount != nil {
		return *ext.Amount
	}
	if ev.Amount != nil {
		return *ev.Amount
	}
	return 0
}

func (n *Normalizer) resolveDate(ev domain.RawEvent, ext Extraction) time.Time {
	switch {
	case ext.Date != nil:
		return TruncateMillis(*ext.Date)
	case ev.Date != nil:
		return time.UnixMilli(*ev.Date).UTC()
	default:
		return TruncateMillis(n.now())
	}
}

func resolveContact(ev domain.RawEvent, ext Extraction) string {
	if ext.Merchant != nil {
		if s := strings.TrimSpace(*ext.Merchant); s != "" {
			return s
		}
	}
	if ev.Contact != nil {
		if s := strings.TrimSpace(*ev.Contact); s != "" {
			return s
		}
	}
	return domain.UnknownContact
}

// RoundAmount returns |x| rounded half-up to cents. Non-finite input is 0.
func RoundAmount(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	f, _ := decimal.NewFromFloat(math.Abs(x)).Round(2).Float64()
	return f
}

// TruncateMillis drops sub-millisecond precision and converts to UTC, the
// resolution and zone the log is persisted at.
func TruncateMillis(t time.Time) time.Time {
	return time.UnixMilli(t.UnixMilli()).UTC()
}
