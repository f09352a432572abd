package capture

import (
	"context"
	"sync"

	"github.com/dvloznov/pixtracker/internal/domain"
)

// Subscription is a live event stream. Events arrive in publish order on a
// bounded channel. Remove detaches it; it is safe to call more than once.
type Subscription struct {
	events  chan domain.RawEvent
	backlog chan struct{}
	done    chan struct{}
	once   sync.Once
	mu     sync.RWMutex // held for reading while sending on events
	onDone func(*Subscription)
}

func newSubscription(buffer int, onDone func(*Subscription)) *Subscription {
	return &Subscription{
		events:  make(chan domain.RawEvent, buffer),
		backlog: make(chan struct{}, 1),
		done:    make(chan struct{}),
		onDone:  onDone,
	}
}

// Events is closed after Remove.
func (s *Subscription) Events() <-chan domain.RawEvent {
	return s.events
}

// Backlogged receives a value after an event meant for this subscriber was
// buffered in the backlog instead. Consumers should drain the backlog then.
// Signals coalesce: one receive may stand for several buffered events.
func (s *Subscription) Backlogged() <-chan struct{} {
	return s.backlog
}

func (s *Subscription) signalBacklog() {
	select {
	case s.backlog <- struct{}{}:
	default:
	}
}

// Done is closed after Remove.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Remove detaches the subscription and closes its channel.
func (s *Subscription) Remove() {
	if s.onDone != nil {
		s.onDone(s)
	}
	s.close()
}

func (s *Subscription) close() {
	s.once.Do(func() {
		close(s.done)
		// Wait for in-flight sends before closing the channel.
		s.mu.Lock()
		close(s.events)
		s.mu.Unlock()
	})
}

// deliver reports whether ev was handed to the channel.
func (s *Subscription) deliver(ctx context.Context, ev domain.RawEvent) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	select {
	case <-s.done:
		return false
	default:
	}
	// select picks randomly among ready cases; a dead ctx must never win a send.
	if ctx.Err() != nil {
		return false
	}

	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	case <-ctx.Done():
		return false
	}
}
