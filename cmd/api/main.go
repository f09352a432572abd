package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/pixtracker/internal/advisor"
	"github.com/dvloznov/pixtracker/internal/api"
	"github.com/dvloznov/pixtracker/internal/api/handlers"
	"github.com/dvloznov/pixtracker/internal/api/middleware"
	"github.com/dvloznov/pixtracker/internal/capture"
	"github.com/dvloznov/pixtracker/internal/config"
	"github.com/dvloznov/pixtracker/internal/infra/backend"
	"github.com/dvloznov/pixtracker/internal/jobs"
	"github.com/dvloznov/pixtracker/internal/jobs/inmemory"
	"github.com/dvloznov/pixtracker/internal/ledger"
	"github.com/dvloznov/pixtracker/internal/logger"
	"github.com/dvloznov/pixtracker/internal/sinks"
	"github.com/dvloznov/pixtracker/internal/store"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewWithOptions(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	loc := cfg.Location()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	kv, closeKV, err := backend.OpenKV(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.StoreBackend).Msg("Failed to open store")
	}
	defer closeKV()

	settings := store.NewSettingsStore(kv)
	hub := capture.NewHub(kv, capture.Config{
		NotificationEnabled:  cfg.CaptureNotificationsEnabled,
		AccessibilityEnabled: cfg.CaptureAccessibilityEnabled,
		Buffer:               cfg.CaptureBuffer,
	}, log)

	mgr := ledger.New(ctx, store.NewTransactionStore(kv, log), hub, ledger.Options{Location: loc}, log)

	var model advisor.Model
	if cfg.AdvisorEnabled {
		gemini, err := advisor.NewGeminiModel(ctx, cfg.GeminiModel)
		if err != nil {
			log.Warn().Err(err).Msg("Advisor model unavailable, using rule-based insights")
		} else {
			model = gemini
		}
	}
	adv := advisor.NewService(model, loc, time.Now, log)

	// Downstream sinks
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(inmemory.Options{BufferSize: 100, Coalesce: true}, jobStore, log)
	dispatcher := jobs.NewDispatcher()

	closeSinks, err := sinks.Register(ctx, cfg, dispatcher, mgr, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up downstream sinks")
	}
	defer closeSinks()

	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	if types := dispatcher.Types(); len(types) > 0 {
		if err := jobQueue.Start(workerCtx, dispatcher.Handle); err != nil {
			log.Fatal().Err(err).Msg("Failed to start job queue")
		}
		mgr.OnChange(jobs.OnLedgerChange(jobQueue, types, log))
		log.Info().Interface("job_types", types).Msg("Downstream sync enabled")
	}

	if err := mgr.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start transaction log")
	}

	// Capture endpoint protection
	var tokens *middleware.CaptureTokens
	if cfg.CaptureTokenSecret != "" {
		tokens = middleware.NewCaptureTokens(cfg.CaptureTokenSecret)
	} else {
		log.Warn().Msg("CAPTURE_TOKEN_SECRET not set - capture endpoint is unauthenticated")
	}
	limiter := middleware.NewRateLimiter(rate.Limit(cfg.CaptureRate), cfg.CaptureBurst)
	go limiter.Cleanup(ctx)

	router := api.NewRouter(api.Config{
		Logger:         log,
		AllowedOrigins: cfg.AllowedOrigins,
		Health:         handlers.NewHealthHandler(mgr),
		Transactions:   handlers.NewTransactionsHandler(mgr, log),
		Capture:        handlers.NewCaptureHandler(hub, mgr, log),
		Income:         handlers.NewIncomeHandler(settings, mgr, log),
		Insights:       handlers.NewInsightsHandler(adv, mgr, log),
		Jobs:           handlers.NewJobsHandler(jobStore, log),
		CaptureTokens:  tokens,
		CaptureLimiter: limiter,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("port", cfg.Port).
			Str("backend", cfg.StoreBackend).
			Str("tz", cfg.TZName).
			Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	shutdown(shutdownCtx, log, mgr, hub, jobQueue)
	cancelWorkers()

	log.Info().Msg("Server exited")
}

// shutdown stops intake before draining the job queue.
func shutdown(ctx context.Context, log zerolog.Logger, mgr *ledger.Manager, hub *capture.Hub, queue *inmemory.Queue) {
	if err := mgr.Stop(ctx); err != nil {
		log.Error().Err(err).Msg("Error stopping transaction log")
	}
	if err := hub.Close(); err != nil {
		log.Error().Err(err).Msg("Error closing capture hub")
	}
	if err := queue.Stop(ctx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	if err := queue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job queue")
	}
}
