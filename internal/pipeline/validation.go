package pipeline

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dvloznov/pixtracker/internal/domain"
)

var (
	// ErrInvalidEvent is returned for events rejected at the ingestion boundary.
	ErrInvalidEvent = errors.New("invalid event")
	ErrMissingID    = fmt.Errorf("%w: missing id", ErrInvalidEvent)
	ErrInvalidType  = fmt.Errorf("%w: unknown type", ErrInvalidEvent)

	// ErrInvalidCategory is returned when a category is outside the fixed set.
	ErrInvalidCategory = errors.New("invalid category")
)

// MaxEventDateMs is the last millisecond of year 9999, the latest date the
// persisted ISO-8601 format can represent.
var MaxEventDateMs = time.Date(9999, time.December, 31, 23, 59, 59, 999_000_000, time.UTC).UnixMilli()

// ValidateEvent rejects events that cannot become a transaction and defaults
// malformed optional fields deterministically. The returned event is a copy.
func ValidateEvent(ev domain.RawEvent) (domain.RawEvent, error) {
	ev.ID = strings.TrimSpace(ev.ID)
	if ev.ID == "" {
		return ev, ErrMissingID
	}

	ev.Type = domain.TxType(strings.ToLower(strings.TrimSpace(string(ev.Type))))
	if !ev.Type.Valid() {
		return ev, fmt.Errorf("%w: %q", ErrInvalidType, ev.Type)
	}

	if ev.Amount != nil {
		a := *ev.Amount
		switch {
		case math.IsNaN(a) || math.IsInf(a, 0):
			ev.Amount = nil
		case a < 0:
			abs := -a
			ev.Amount = &abs
		}
	}

	if ev.Date != nil && (*ev.Date <= 0 || *ev.Date > MaxEventDateMs) {
		ev.Date = nil
	}

	if ev.Contact != nil && strings.TrimSpace(*ev.Contact) == "" {
		ev.Contact = nil
	}

	return ev, nil
}

// ValidateCategory checks a user-supplied category against the fixed set.
func ValidateCategory(c domain.Category) error {
	if !c.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidCategory, c)
	}
	return nil
}
