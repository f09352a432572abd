package handlers

import (
	"net/http"
	"time"

	"github.com/dvloznov/pixtracker/internal/api/middleware"
)

// HealthHandler reports liveness and the log's lifecycle phase.
type HealthHandler struct {
	ledger Ledger
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(l Ledger) *HealthHandler {
	return &HealthHandler{ledger: l}
}

// GetHealth handles GET /health
func (h *HealthHandler) GetHealth(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":       "healthy",
		"time":         time.Now().Format(time.RFC3339),
		"ledger_state": h.ledger.State().String(),
	})
}
