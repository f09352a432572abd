package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/pixtracker/internal/config"
	"github.com/dvloznov/pixtracker/internal/domain"
	"github.com/dvloznov/pixtracker/internal/infra/backend"
	"github.com/dvloznov/pixtracker/internal/jobs"
	"github.com/dvloznov/pixtracker/internal/jobs/inmemory"
	"github.com/dvloznov/pixtracker/internal/logger"
	"github.com/dvloznov/pixtracker/internal/sinks"
	"github.com/dvloznov/pixtracker/internal/store"
	"github.com/rs/zerolog"
)

// storeSource reads the persisted log on every call, so each job sees the
// latest state written by the API process.
type storeSource struct {
	ctx context.Context
	st  *store.TransactionStore
}

func (s storeSource) All() []domain.Transaction {
	return s.st.Load(s.ctx)
}

func main() {
	interval := flag.Duration("interval", 15*time.Minute, "Time between sync rounds")
	once := flag.Bool("once", false, "Run a single sync round and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New()
		bootLog.Fatal().Err(err).Msg("Invalid configuration")
	}
	log := logger.NewWithOptions(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})

	// Create context that cancels on interrupt
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	kv, closeKV, err := backend.OpenKV(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.StoreBackend).Msg("Failed to open store")
	}
	defer closeKV()

	src := storeSource{ctx: context.WithoutCancel(ctx), st: store.NewTransactionStore(kv, log)}

	dispatcher := jobs.NewDispatcher()
	closeSinks, err := sinks.Register(ctx, cfg, dispatcher, src, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up downstream sinks")
	}
	defer closeSinks()

	types := dispatcher.Types()
	if len(types) == 0 {
		log.Warn().Msg("No sinks configured, nothing to do")
		return
	}

	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(inmemory.Options{BufferSize: len(types) * 4, Workers: len(types), Coalesce: true}, jobStore, log)

	// Workers keep running through shutdown so queued rounds can finish.
	workerCtx, cancelWorkers := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWorkers()
	if err := jobQueue.Start(workerCtx, dispatcher.Handle); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	log.Info().
		Interface("job_types", types).
		Dur("interval", *interval).
		Bool("once", *once).
		Msg("Worker service started")

	publishRound(ctx, jobQueue, types, log)
	if !*once {
		ticker := time.NewTicker(*interval)
		defer ticker.Stop()
	loop:
		for {
			select {
			case <-ctx.Done():
				break loop
			case <-ticker.C:
				publishRound(ctx, jobQueue, types, log)
			}
		}
		log.Info().Msg("Shutting down worker service...")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer shutdownCancel()

	if *once {
		waitIdle(shutdownCtx, jobStore)
	}

	// Stop the queue and wait for in-flight jobs
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}

	failed, _ := jobStore.ListJobs(shutdownCtx, jobs.JobFilter{Status: jobs.JobStatusFailed})
	log.Info().Int("failed_jobs", len(failed)).Msg("Worker service exited")
	if len(failed) > 0 {
		os.Exit(1)
	}
}

func publishRound(ctx context.Context, pub jobs.Publisher, types []jobs.JobType, log zerolog.Logger) {
	for _, typ := range types {
		if err := pub.Publish(ctx, &jobs.SyncJob{Type: typ, Trigger: "schedule"}); err != nil {
			log.Warn().Err(err).Str("job_type", string(typ)).Msg("Failed to publish job")
		}
	}
}

// waitIdle blocks until every job is done.
func waitIdle(ctx context.Context, store jobs.JobStore) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		list, err := store.ListJobs(ctx, jobs.JobFilter{})
		busy := err != nil
		for _, job := range list {
			if !job.Status.Done() {
				busy = true
				break
			}
		}
		if !busy {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
