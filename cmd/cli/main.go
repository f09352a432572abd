package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dvloznov/pixtracker/internal/api/middleware"
	"github.com/dvloznov/pixtracker/internal/config"
	"github.com/dvloznov/pixtracker/internal/domain"
	"github.com/dvloznov/pixtracker/internal/infra/backend"
	infraBQ "github.com/dvloznov/pixtracker/internal/infra/bigquery"
	"github.com/dvloznov/pixtracker/internal/infra/gcs"
	"github.com/dvloznov/pixtracker/internal/ledger"
	"github.com/dvloznov/pixtracker/internal/logger"
	"github.com/dvloznov/pixtracker/internal/pipeline"
	"github.com/dvloznov/pixtracker/internal/store"
	"github.com/rs/zerolog"
)

func main() {
	log := logger.New()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "parse":
		runParse(log)
	case "ingest":
		runIngest(log)
	case "list":
		runList(log)
	case "clear":
		runClear(log)
	case "export":
		runExport(log)
	case "backup":
		runBackup(log)
	case "restore":
		runRestore(log)
	case "issue-token":
		runIssueToken(log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("PIX Tracker CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  parse        Extract amount, merchant and date from a notification text")
	fmt.Println("  ingest       Merge raw events from a JSON file into the transaction log")
	fmt.Println("  list         Print the most recent transactions")
	fmt.Println("  clear        Remove the persisted transaction log")
	fmt.Println("  export       Append unexported transactions to BigQuery")
	fmt.Println("  backup       Write a snapshot of the log to Cloud Storage")
	fmt.Println("  restore      Replace or merge the log with a Cloud Storage snapshot")
	fmt.Println("  issue-token  Issue a bearer token for a capture device")
	fmt.Println("  help         Show this help message")
	fmt.Println("\nStorage and sinks are configured through the same environment as the API server.")
	fmt.Println("Run 'cli <command> -h' for more information on a command.")
}

// openLedger loads the persisted log without a capture service.
func openLedger(ctx context.Context, log zerolog.Logger) (*config.Config, *ledger.Manager, func()) {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	kv, closeKV, err := backend.OpenKV(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.StoreBackend).Msg("Failed to open store")
	}

	mgr := ledger.New(ctx, store.NewTransactionStore(kv, log), nil, ledger.Options{Location: cfg.Location()}, log)
	return cfg, mgr, closeKV
}

func runParse(log zerolog.Logger) {
	fs := flag.NewFlagSet("parse", flag.ExitOnError)
	text := fs.String("text", "", "Notification text to parse")
	tz := fs.String("tz", "America/Sao_Paulo", "Time zone for dates in the text")
	fs.Parse(os.Args[2:])

	if *text == "" {
		log.Fatal().Msg("Error: --text is required")
	}
	loc, err := time.LoadLocation(*tz)
	if err != nil {
		log.Fatal().Err(err).Str("tz", *tz).Msg("Error: unknown time zone")
	}

	ext := pipeline.NewParser(loc).Parse(*text)
	if ext.Empty() {
		fmt.Println("Nothing recognized.")
		return
	}
	if ext.Amount != nil {
		fmt.Printf("Amount:   %.2f\n", *ext.Amount)
	}
	if ext.Merchant != nil {
		fmt.Printf("Merchant: %s\n", *ext.Merchant)
	}
	if ext.Date != nil {
		fmt.Printf("Date:     %s\n", ext.Date.Format(time.RFC3339))
	}
}

func runIngest(log zerolog.Logger) {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	file := fs.String("file", "", "Path to a JSON array of raw events")
	fs.Parse(os.Args[2:])

	if *file == "" {
		log.Fatal().Msg("Error: --file is required")
	}

	data, err := os.ReadFile(*file)
	if err != nil {
		log.Fatal().Err(err).Str("file", *file).Msg("Failed to read events file")
	}
	var events []domain.RawEvent
	if err := json.Unmarshal(data, &events); err != nil {
		log.Fatal().Err(err).Msg("Events file is not a JSON array of events")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	_, mgr, closeKV := openLedger(ctx, log)
	defer closeKV()

	valid := make([]domain.RawEvent, 0, len(events))
	for _, ev := range events {
		v, err := pipeline.ValidateEvent(ev)
		if err != nil {
			log.Warn().Err(err).Str("event_id", ev.ID).Msg("Skipping invalid event")
			continue
		}
		valid = append(valid, v)
	}

	added := mgr.Ingest(ctx, valid)
	fmt.Printf("Read %d events, %d valid, %d new transactions. Log now has %d entries.\n",
		len(events), len(valid), added, len(mgr.All()))
}

func runList(log zerolog.Logger) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	limit := fs.Int("limit", 20, "Number of transactions to show")
	month := fs.Bool("month", false, "Only show the current calendar month")
	fs.Parse(os.Args[2:])

	ctx := logger.WithContext(context.Background(), log)
	_, mgr, closeKV := openLedger(ctx, log)
	defer closeKV()

	txs := mgr.Recent(*limit)
	if *month {
		txs = mgr.CurrentMonth("")
	}

	if len(txs) == 0 {
		fmt.Println("No transactions.")
		return
	}

	loc := mgr.Location()
	fmt.Printf("%-16s  %-8s  %12s  %-30s  %s\n", "DATE", "TYPE", "AMOUNT", "CONTACT", "CATEGORY")
	for _, tx := range txs {
		fmt.Printf("%-16s  %-8s  %12.2f  %-30s  %s\n",
			tx.Date.In(loc).Format("2006-01-02 15:04"),
			tx.Type,
			tx.Amount,
			truncate(tx.Contact, 30),
			tx.Category,
		)
	}
	fmt.Printf("\n%d of %d transactions\n", len(txs), len(mgr.All()))
}

func runClear(log zerolog.Logger) {
	fs := flag.NewFlagSet("clear", flag.ExitOnError)
	yes := fs.Bool("yes", false, "Confirm removing the whole transaction log")
	fs.Parse(os.Args[2:])

	if !*yes {
		log.Fatal().Msg("Refusing to clear the log without --yes")
	}

	ctx := logger.WithContext(context.Background(), log)
	_, mgr, closeKV := openLedger(ctx, log)
	defer closeKV()

	n := len(mgr.All())
	mgr.Clear(ctx)
	fmt.Printf("Removed %d transactions.\n", n)
}

func runExport(log zerolog.Logger) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	fs.Parse(os.Args[2:])

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	cfg, mgr, closeKV := openLedger(ctx, log)
	defer closeKV()

	if !cfg.ExportEnabled() {
		log.Fatal().Msg("Error: BQ_PROJECT is required for export")
	}

	warehouse, err := infraBQ.NewBigQueryWarehouse(ctx, cfg.BQProject, cfg.BQDataset, cfg.BQTable)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create BigQuery warehouse")
	}
	defer warehouse.Close()

	n, err := infraBQ.NewExporter(warehouse, cfg.Location(), log).Export(ctx, mgr.All())
	if err != nil {
		log.Fatal().Err(err).Msg("Export failed")
	}
	fmt.Printf("Exported %d transactions to %s.%s.%s\n", n, cfg.BQProject, cfg.BQDataset, cfg.BQTable)
}

func runBackup(log zerolog.Logger) {
	fs := flag.NewFlagSet("backup", flag.ExitOnError)
	fs.Parse(os.Args[2:])

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	cfg, mgr, closeKV := openLedger(ctx, log)
	defer closeKV()

	if cfg.GCSBucket == "" {
		log.Fatal().Msg("Error: GCS_BUCKET is required for backup")
	}

	bucket, err := gcs.NewBucket(ctx, cfg.GCSBucket)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create storage client")
	}
	defer bucket.Close()

	name, err := gcs.NewBackup(bucket, cfg.GCSPrefix).Snapshot(ctx, mgr.All(), time.Now())
	if err != nil {
		log.Fatal().Err(err).Msg("Backup failed")
	}
	fmt.Printf("Wrote gs://%s/%s\n", cfg.GCSBucket, name)
}

func runRestore(log zerolog.Logger) {
	fs := flag.NewFlagSet("restore", flag.ExitOnError)
	object := fs.String("object", "", "Snapshot object name, or a file name in the backups folder")
	merge := fs.Bool("merge", false, "Merge into the current log instead of replacing it")
	fs.Parse(os.Args[2:])

	if *object == "" {
		log.Fatal().Msg("Error: --object is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	if cfg.GCSBucket == "" {
		log.Fatal().Msg("Error: GCS_BUCKET is required for restore")
	}

	bucket, err := gcs.NewBucket(ctx, cfg.GCSBucket)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create storage client")
	}
	defer bucket.Close()

	restored, err := gcs.NewBackup(bucket, cfg.GCSPrefix).Restore(ctx, *object)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read snapshot")
	}

	kv, closeKV, err := backend.OpenKV(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.StoreBackend).Msg("Failed to open store")
	}
	defer closeKV()

	st := store.NewTransactionStore(kv, log)
	txs := restored
	if *merge {
		// Current entries win over the snapshot's copies.
		txs = pipeline.Merge(st.Load(ctx), restored)
	} else {
		pipeline.SortByDateDesc(txs)
	}

	if err := st.Save(ctx, txs); err != nil {
		log.Fatal().Err(err).Msg("Failed to save restored log")
	}
	fmt.Printf("Restored %d transactions from %s (log now has %d).\n", len(restored), *object, len(txs))
}

func runIssueToken(log zerolog.Logger) {
	fs := flag.NewFlagSet("issue-token", flag.ExitOnError)
	device := fs.String("device", "", "Capture device identifier")
	ttl := fs.Duration("ttl", 365*24*time.Hour, "Token lifetime")
	fs.Parse(os.Args[2:])

	if *device == "" {
		log.Fatal().Msg("Error: --device is required")
	}

	secret := os.Getenv("CAPTURE_TOKEN_SECRET")
	if len(secret) < 32 {
		log.Fatal().Msg("Error: CAPTURE_TOKEN_SECRET must be set and at least 32 characters long")
	}

	token, err := middleware.NewCaptureTokens(secret).Issue(*device, *ttl)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to issue token")
	}
	fmt.Println(token)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
