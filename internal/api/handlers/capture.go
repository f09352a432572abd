package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/dvloznov/pixtracker/internal/api/middleware"
	"github.com/dvloznov/pixtracker/internal/capture"
	"github.com/dvloznov/pixtracker/internal/domain"
	"github.com/dvloznov/pixtracker/internal/pipeline"
	"github.com/rs/zerolog"
)

const (
	maxEventsPerRequest = 500
	maxEventBodyBytes   = 1 << 20
)

// CaptureHandler receives raw events from capture devices.
type CaptureHandler struct {
	inbox  CaptureInbox
	ledger Ledger
	log    zerolog.Logger
}

// NewCaptureHandler creates a new capture handler.
func NewCaptureHandler(inbox CaptureInbox, l Ledger, log zerolog.Logger) *CaptureHandler {
	return &CaptureHandler{inbox: inbox, ledger: l, log: log}
}

// PostEvents handles POST /api/capture/events. The body is one event or an
// array of events. Events are validated, then handed to the capture inbox,
// which delivers them live or buffers them for the next sync.
func (h *CaptureHandler) PostEvents(w http.ResponseWriter, r *http.Request) {
	events, err := decodeEvents(http.MaxBytesReader(w, r.Body, maxEventBodyBytes))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(events) == 0 {
		middleware.WriteError(w, http.StatusBadRequest, "no events")
		return
	}
	if len(events) > maxEventsPerRequest {
		middleware.WriteError(w, http.StatusRequestEntityTooLarge, "too many events in one request")
		return
	}

	device, _ := middleware.DeviceIDFromContext(r.Context())
	log := h.log.With().Str("device_id", device).Logger()

	accepted := 0
	rejected := []map[string]string{}
	for _, ev := range events {
		valid, err := pipeline.ValidateEvent(ev)
		if err != nil {
			rejected = append(rejected, map[string]string{"id": ev.ID, "error": err.Error()})
			continue
		}

		err = h.inbox.Publish(r.Context(), valid)
		switch {
		case errors.Is(err, capture.ErrSourceDisabled):
			middleware.WriteError(w, http.StatusForbidden, err.Error())
			return
		case errors.Is(err, capture.ErrClosed):
			middleware.WriteError(w, http.StatusServiceUnavailable, "capture service is shutting down")
			return
		case err != nil:
			log.Error().Err(err).Str("event_id", valid.ID).Msg("Failed to publish capture event")
			middleware.WriteError(w, http.StatusInternalServerError, "Failed to accept events")
			return
		}
		accepted++
	}

	log.Info().Int("accepted", accepted).Int("rejected", len(rejected)).Msg("Capture events received")
	middleware.WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"accepted": accepted,
		"rejected": rejected,
	})
}

// Status handles GET /api/capture/status
func (h *CaptureHandler) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status, err := h.inbox.IsEnabled(ctx)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to probe capture permissions")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to read capture status")
		return
	}
	pending, err := h.inbox.Pending(ctx)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to read capture backlog")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to read capture status")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"permissions":  status,
		"pending":      pending,
		"ledger_state": h.ledger.State().String(),
	})
}

func decodeEvents(body io.Reader) ([]domain.RawEvent, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, errors.New("request body too large")
	}
	raw = bytes.TrimSpace(raw)

	if len(raw) > 0 && raw[0] == '[' {
		var events []domain.RawEvent
		if err := json.Unmarshal(raw, &events); err != nil {
			return nil, errors.New("invalid event array")
		}
		return events, nil
	}

	var ev domain.RawEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, errors.New("invalid event")
	}
	return []domain.RawEvent{ev}, nil
}
