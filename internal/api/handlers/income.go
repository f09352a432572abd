package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dvloznov/pixtracker/internal/api/middleware"
	"github.com/dvloznov/pixtracker/internal/domain"
	"github.com/dvloznov/pixtracker/internal/income"
	"github.com/dvloznov/pixtracker/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// IncomeHandler serves income sources and the income analysis.
type IncomeHandler struct {
	settings Settings
	ledger   Ledger
	log      zerolog.Logger
}

// NewIncomeHandler creates a new income handler.
func NewIncomeHandler(settings Settings, l Ledger, log zerolog.Logger) *IncomeHandler {
	return &IncomeHandler{settings: settings, ledger: l, log: log}
}

// Analysis handles GET /api/income/analysis
func (h *IncomeHandler) Analysis(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sources, err := h.settings.IncomeSources(ctx)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load income sources")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to load income sources")
		return
	}

	analysis := income.Analyze(sources, h.ledger.All(), h.ledger.Now(), h.ledger.Location())
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"analysis":       analysis,
		"expectedIncome": income.TotalExpected(sources),
	})
}

// ListSources handles GET /api/income/sources
func (h *IncomeHandler) ListSources(w http.ResponseWriter, r *http.Request) {
	sources, err := h.settings.IncomeSources(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load income sources")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to load income sources")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"sources": sources,
		"count":   len(sources),
	})
}

// SaveSource handles POST /api/income/sources. A body with an id replaces
// that source.
func (h *IncomeHandler) SaveSource(w http.ResponseWriter, r *http.Request) {
	var src domain.IncomeSource
	if err := json.NewDecoder(r.Body).Decode(&src); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	saved, err := h.settings.SaveIncomeSource(r.Context(), src)
	if errors.Is(err, store.ErrInvalidSource) {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to save income source")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to save income source")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, saved)
}

// DeleteSource handles DELETE /api/income/sources/{id}
func (h *IncomeHandler) DeleteSource(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	err := h.settings.DeleteIncomeSource(r.Context(), id)
	if errors.Is(err, store.ErrSourceNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "Income source not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("source_id", id).Msg("Failed to delete income source")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to delete income source")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetMonthly handles GET /api/income/monthly
func (h *IncomeHandler) GetMonthly(w http.ResponseWriter, r *http.Request) {
	amount, ok, err := h.settings.MonthlyIncome(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to read monthly income")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to read monthly income")
		return
	}

	resp := map[string]interface{}{"set": ok, "amount": nil}
	if ok {
		resp["amount"] = amount.StringFixed(2)
	}
	middleware.WriteJSON(w, http.StatusOK, resp)
}

// PutMonthly handles PUT /api/income/monthly with {"amount": "1234.56"}.
// The amount may also be a JSON number.
func (h *IncomeHandler) PutMonthly(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount decimal.Decimal `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "amount must be a decimal number")
		return
	}
	if req.Amount.IsNegative() {
		middleware.WriteError(w, http.StatusBadRequest, "amount must not be negative")
		return
	}

	if err := h.settings.SetMonthlyIncome(r.Context(), req.Amount.Round(2)); err != nil {
		h.log.Error().Err(err).Msg("Failed to save monthly income")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to save monthly income")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
