package api

import (
	"net/http"

	"github.com/dvloznov/pixtracker/internal/api/handlers"
	"github.com/dvloznov/pixtracker/internal/api/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Config holds router configuration. Optional handlers left nil are not
// routed.
type Config struct {
	Logger         zerolog.Logger
	AllowedOrigins []string

	Health       *handlers.HealthHandler
	Transactions *handlers.TransactionsHandler
	Capture      *handlers.CaptureHandler
	Income       *handlers.IncomeHandler
	Insights     *handlers.InsightsHandler
	Jobs         *handlers.JobsHandler

	// CaptureTokens guards the capture endpoints; nil disables auth.
	CaptureTokens *middleware.CaptureTokens
	// CaptureLimiter throttles event submission; nil disables it.
	CaptureLimiter *middleware.RateLimiter
}

// NewRouter creates the HTTP router.
func NewRouter(cfg Config) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	if cfg.Health != nil {
		r.Get("/health", cfg.Health.GetHealth)
	}

	r.Route("/api", func(r chi.Router) {
		if h := cfg.Transactions; h != nil {
			r.Get("/transactions", h.ListTransactions)
			r.Delete("/transactions", h.ClearTransactions)
			r.Get("/transactions/current-month", h.CurrentMonth)
			r.Delete("/transactions/{id}", h.DeleteTransaction)
			r.Put("/transactions/{id}/category", h.SetCategory)
			r.Get("/summary/monthly", h.MonthlySummary)
			r.Get("/categories", h.ListCategories)
		}

		if h := cfg.Capture; h != nil {
			r.Group(func(r chi.Router) {
				r.Use(middleware.CaptureAuth(cfg.CaptureTokens))
				if cfg.CaptureLimiter != nil {
					r.Use(cfg.CaptureLimiter.Middleware)
				}
				r.Post("/capture/events", h.PostEvents)
			})
			r.Get("/capture/status", h.Status)
		}

		if h := cfg.Income; h != nil {
			r.Get("/income/analysis", h.Analysis)
			r.Get("/income/sources", h.ListSources)
			r.Post("/income/sources", h.SaveSource)
			r.Delete("/income/sources/{id}", h.DeleteSource)
			r.Get("/income/monthly", h.GetMonthly)
			r.Put("/income/monthly", h.PutMonthly)
		}

		if h := cfg.Insights; h != nil {
			r.Get("/insights/categories", h.Categories)
			r.Get("/insights/investment", h.Investment)
		}

		if h := cfg.Jobs; h != nil {
			r.Get("/jobs", h.ListJobs)
			r.Get("/jobs/{id}", h.GetJob)
		}
	})

	return r
}
