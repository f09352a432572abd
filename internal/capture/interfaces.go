package capture

import (
	"context"
	"errors"

	"github.com/dvloznov/pixtracker/internal/domain"
)

var (
	// ErrClosed is returned once the service has been closed.
	ErrClosed = errors.New("capture service closed")
	// ErrAlreadySubscribed is returned when a live subscriber is already attached.
	ErrAlreadySubscribed = errors.New("capture service already has a subscriber")
	// ErrSourceDisabled is returned when publishing from a source without permission.
	ErrSourceDisabled = errors.New("capture source disabled")
)

// Status is the result of the permission probe.
type Status struct {
	Enabled              bool `json:"enabled"`
	NotificationEnabled  bool `json:"notificationEnabled"`
	AccessibilityEnabled bool `json:"accessibilityEnabled"`
}

// Service is the capture layer as seen by the transaction log.
type Service interface {
	// IsEnabled reports which capture permissions are granted.
	IsEnabled(ctx context.Context) (Status, error)

	// DrainBacklog returns the buffered events and clears the buffer.
	// Calling it with an empty buffer returns no events and no error.
	DrainBacklog(ctx context.Context) ([]domain.RawEvent, error)

	// Subscribe attaches the live-event stream.
	Subscribe(ctx context.Context) (*Subscription, error)
}
