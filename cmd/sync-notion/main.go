package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dvloznov/pixtracker/internal/config"
	"github.com/dvloznov/pixtracker/internal/infra/backend"
	"github.com/dvloznov/pixtracker/internal/logger"
	"github.com/dvloznov/pixtracker/internal/notionsync"
	"github.com/dvloznov/pixtracker/internal/store"
	"golang.org/x/time/rate"
)

// sync-notion mirrors the whole persisted log into a Notion database once.
// Pages for transactions no longer in the log are archived.
func main() {
	token := flag.String("notion-token", os.Getenv("NOTION_TOKEN"), "Notion integration token (or NOTION_TOKEN)")
	dbID := flag.String("notion-db-id", os.Getenv("NOTION_DB_ID"), "Notion database ID (or NOTION_DB_ID)")
	dryRun := flag.Bool("dry-run", false, "Log the changes without writing to Notion")
	rps := flag.Float64("rps", 3, "Maximum Notion requests per second")
	timeout := flag.Duration("timeout", 10*time.Minute, "Give up after this long")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New()
		bootLog.Fatal().Err(err).Msg("Invalid configuration")
	}
	log := logger.NewWithOptions(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})

	switch {
	case *token == "":
		log.Fatal().Msg("Error: --notion-token is required")
	case *dbID == "":
		log.Fatal().Msg("Error: --notion-db-id is required")
	case *rps <= 0:
		log.Fatal().Float64("rps", *rps).Msg("Error: --rps must be positive")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	kv, closeKV, err := backend.OpenKV(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.StoreBackend).Msg("Failed to open store")
	}
	defer closeKV()

	txs := store.NewTransactionStore(kv, log).Load(ctx)
	log.Info().
		Str("backend", cfg.StoreBackend).
		Int("transactions", len(txs)).
		Bool("dry_run", *dryRun).
		Msg("Starting Notion sync")

	client := notionsync.NewNotionClientWithLimit(*token, rate.Limit(*rps), max(1, int(*rps)))
	res, err := notionsync.NewSyncer(client, *dbID, cfg.Location(), *dryRun, log).Sync(ctx, txs)
	if err != nil {
		log.Fatal().Err(err).Msg("Sync failed")
	}

	fmt.Printf("Sync completed: %s\n", res)
}
