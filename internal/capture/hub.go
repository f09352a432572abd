package capture

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/dvloznov/pixtracker/internal/domain"
	"github.com/dvloznov/pixtracker/internal/store"
	"github.com/rs/zerolog"
)

// DefaultBuffer is the live channel capacity when none is configured.
const DefaultBuffer = 64

// Config controls the hub.
type Config struct {
	NotificationEnabled  bool
	AccessibilityEnabled bool
	Buffer               int
}

// Hub is the in-process capture service. Events published while nobody is
// subscribed go to a backlog persisted in the KV, so they survive restarts.
type Hub struct {
	kv  store.KV
	cfg Config
	log zerolog.Logger

	mu     sync.Mutex // guards sub, closed and the persisted backlog
	sub    *Subscription
	closed bool
}

// NewHub creates a hub persisting its backlog in kv.
func NewHub(kv store.KV, cfg Config, log zerolog.Logger) *Hub {
	if cfg.Buffer <= 0 {
		cfg.Buffer = DefaultBuffer
	}
	return &Hub{
		kv:  kv,
		cfg: cfg,
		log: log.With().Str("component", "capture").Logger(),
	}
}

// IsEnabled implements Service.
func (h *Hub) IsEnabled(ctx context.Context) (Status, error) {
	return Status{
		Enabled:              h.cfg.NotificationEnabled || h.cfg.AccessibilityEnabled,
		NotificationEnabled:  h.cfg.NotificationEnabled,
		AccessibilityEnabled: h.cfg.AccessibilityEnabled,
	}, nil
}

// DrainBacklog implements Service.
func (h *Hub) DrainBacklog(ctx context.Context) ([]domain.RawEvent, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrClosed
	}

	events, err := h.readBacklog(ctx)
	if err != nil {
		return nil, fmt.Errorf("DrainBacklog: %w", err)
	}
	if len(events) == 0 {
		return []domain.RawEvent{}, nil
	}
	if err := h.kv.Set(ctx, store.KeyCaptureQueue, "[]"); err != nil {
		return nil, fmt.Errorf("DrainBacklog: clearing backlog: %w", err)
	}

	h.log.Info().Int("events", len(events)).Msg("Drained capture backlog")
	return events, nil
}

// Subscribe implements Service. Only one subscriber may be attached at a time.
func (h *Hub) Subscribe(ctx context.Context) (*Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrClosed
	}
	if h.sub != nil {
		return nil, ErrAlreadySubscribed
	}

	sub := newSubscription(h.cfg.Buffer, h.detach)
	h.sub = sub
	h.log.Debug().Msg("Live subscriber attached")
	return sub, nil
}

// detach is the subscription's remove callback.
func (h *Hub) detach(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sub == sub {
		h.sub = nil
		h.log.Debug().Msg("Live subscriber removed")
	}
}

// Publish delivers ev to the live subscriber, waiting while its channel is
// full. If nobody is subscribed, or ctx ends before delivery, the event is
// appended to the backlog instead and an attached subscriber is signalled
// through Backlogged.
func (h *Hub) Publish(ctx context.Context, ev domain.RawEvent) error {
	if !h.sourceEnabled(ev.Source) {
		return fmt.Errorf("Publish: %w: %s", ErrSourceDisabled, ev.Source)
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrClosed
	}
	sub := h.sub
	h.mu.Unlock()

	if sub != nil {
		if sub.deliver(ctx, ev) {
			return nil
		}
		h.log.Warn().Str("event_id", ev.ID).Msg("Live delivery did not complete, buffering event")
	}

	// Backlog writes must survive a cancelled request.
	return h.appendBacklog(context.WithoutCancel(ctx), ev)
}

func (h *Hub) sourceEnabled(source string) bool {
	switch source {
	case domain.SourceNotification:
		return h.cfg.NotificationEnabled
	case domain.SourceAccessibility:
		return h.cfg.AccessibilityEnabled
	default:
		return h.cfg.NotificationEnabled || h.cfg.AccessibilityEnabled
	}
}

// Pending returns the number of buffered backlog events.
func (h *Hub) Pending(ctx context.Context) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	events, err := h.readBacklog(ctx)
	if err != nil {
		return 0, fmt.Errorf("Pending: %w", err)
	}
	return len(events), nil
}

// Close detaches any subscriber. Buffered events stay persisted.
func (h *Hub) Close() error {
	h.mu.Lock()
	sub := h.sub
	h.sub = nil
	h.closed = true
	h.mu.Unlock()

	if sub != nil {
		sub.close()
	}
	return nil
}

func (h *Hub) appendBacklog(ctx context.Context, ev domain.RawEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	events, err := h.readBacklog(ctx)
	if err != nil {
		return fmt.Errorf("appendBacklog: %w", err)
	}

	key := eventKey(ev)
	for _, queued := range events {
		if eventKey(queued) == key {
			h.log.Debug().Str("event_key", key).Msg("Event already buffered")
			if h.sub != nil {
				h.sub.signalBacklog()
			}
			return nil
		}
	}
	events = append(events, ev)

	b, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("appendBacklog: marshal: %w", err)
	}
	if err := h.kv.Set(ctx, store.KeyCaptureQueue, string(b)); err != nil {
		return fmt.Errorf("appendBacklog: writing %s: %w", store.KeyCaptureQueue, err)
	}
	if h.sub != nil {
		h.sub.signalBacklog()
	}
	return nil
}

// readBacklog must be called with h.mu held. A corrupt backlog is discarded.
func (h *Hub) readBacklog(ctx context.Context) ([]domain.RawEvent, error) {
	raw, err := h.kv.Get(ctx, store.KeyCaptureQueue)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", store.KeyCaptureQueue, err)
	}

	var events []domain.RawEvent
	if err := json.Unmarshal([]byte(raw), &events); err != nil {
		h.log.Error().Err(err).Msg("Capture backlog is corrupt, discarding")
		return nil, nil
	}
	return events, nil
}

// eventKey identifies a buffered event as source:id:date.
func eventKey(ev domain.RawEvent) string {
	date := ""
	if ev.Date != nil {
		date = strconv.FormatInt(*ev.Date, 10)
	}
	return ev.Source + ":" + ev.ID + ":" + date
}

var _ Service = (*Hub)(nil)
