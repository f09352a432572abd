package handlers

import (
	"net/http"

	"github.com/dvloznov/pixtracker/internal/api/middleware"
	"github.com/rs/zerolog"
)

// InsightsHandler serves spending categories and saving advice.
type InsightsHandler struct {
	advisor Advisor
	ledger  Ledger
	log     zerolog.Logger
}

// NewInsightsHandler creates a new insights handler.
func NewInsightsHandler(a Advisor, l Ledger, log zerolog.Logger) *InsightsHandler {
	return &InsightsHandler{advisor: a, ledger: l, log: log}
}

// Categories handles GET /api/insights/categories?scope=month|all
func (h *InsightsHandler) Categories(w http.ResponseWriter, r *http.Request) {
	scope := r.URL.Query().Get("scope")
	txs := h.ledger.All()
	switch scope {
	case "", "all":
		scope = "all"
	case "month":
		txs = h.ledger.CurrentMonth("")
	default:
		middleware.WriteError(w, http.StatusBadRequest, "scope must be month or all")
		return
	}

	categories := h.advisor.CategorizeSpending(r.Context(), txs)
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"scope":      scope,
		"categories": categories,
	})
}

// Investment handles GET /api/insights/investment
func (h *InsightsHandler) Investment(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, h.advisor.InvestmentInsight(r.Context(), h.ledger.All()))
}
