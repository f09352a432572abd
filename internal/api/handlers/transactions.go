package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/dvloznov/pixtracker/internal/api/middleware"
	"github.com/dvloznov/pixtracker/internal/domain"
	"github.com/dvloznov/pixtracker/internal/ledger"
	"github.com/dvloznov/pixtracker/internal/pipeline"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// TransactionsHandler serves the transaction log.
type TransactionsHandler struct {
	ledger Ledger
	log    zerolog.Logger
}

// NewTransactionsHandler creates a new transactions handler.
func NewTransactionsHandler(l Ledger, log zerolog.Logger) *TransactionsHandler {
	return &TransactionsHandler{ledger: l, log: log}
}

// ListTransactions handles GET /api/transactions?limit=N
func (h *TransactionsHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil || n <= 0 {
			middleware.WriteError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxListLimit)
	}

	txs := h.ledger.Recent(limit)
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": txs,
		"count":        len(txs),
	})
}

// CurrentMonth handles GET /api/transactions/current-month?type=received|sent
func (h *TransactionsHandler) CurrentMonth(w http.ResponseWriter, r *http.Request) {
	typ := domain.TxType(r.URL.Query().Get("type"))
	if typ != "" && !typ.Valid() {
		middleware.WriteError(w, http.StatusBadRequest, "type must be received or sent")
		return
	}

	txs := h.ledger.CurrentMonth(typ)
	received, sent := decimal.Zero, decimal.Zero
	for _, tx := range txs {
		if tx.Type == domain.TxReceived {
			received = received.Add(decimal.NewFromFloat(tx.Amount))
		} else {
			sent = sent.Add(decimal.NewFromFloat(tx.Amount))
		}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"month":        h.ledger.Now().In(h.ledger.Location()).Format("2006-01"),
		"transactions": txs,
		"count":        len(txs),
		"received":     received.Round(2).InexactFloat64(),
		"sent":         sent.Round(2).InexactFloat64(),
		"balance":      received.Sub(sent).Round(2).InexactFloat64(),
	})
}

// MonthlySummary handles GET /api/summary/monthly
func (h *TransactionsHandler) MonthlySummary(w http.ResponseWriter, r *http.Request) {
	months := h.ledger.MonthlySummary()
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"months": months,
	})
}

// DeleteTransaction handles DELETE /api/transactions/{id}
func (h *TransactionsHandler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	removed, err := h.ledger.Delete(r.Context(), id)
	if errors.Is(err, ledger.ErrNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "Transaction not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("tx_id", id).Msg("Failed to delete transaction")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to delete transaction")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{"removed": removed})
}

// SetCategory handles PUT /api/transactions/{id}/category
func (h *TransactionsHandler) SetCategory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		Category domain.Category `json:"category"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	err := h.ledger.SetCategory(r.Context(), id, req.Category)
	switch {
	case errors.Is(err, pipeline.ErrInvalidCategory):
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrNotFound):
		middleware.WriteError(w, http.StatusNotFound, "Transaction not found")
	case err != nil:
		h.log.Error().Err(err).Str("tx_id", id).Msg("Failed to set category")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to set category")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

// ListCategories handles GET /api/categories
func (h *TransactionsHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"categories": domain.Categories,
	})
}

// ClearTransactions handles DELETE /api/transactions
func (h *TransactionsHandler) ClearTransactions(w http.ResponseWriter, r *http.Request) {
	h.ledger.Clear(r.Context())
	w.WriteHeader(http.StatusNoContent)
}
