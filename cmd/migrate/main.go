package main

import (
	"context"
	"flag"
	"os"
	"time"

	infraBQ "github.com/dvloznov/pixtracker/internal/infra/bigquery"
	"github.com/dvloznov/pixtracker/internal/logger"
)

func main() {
	log := logger.New()

	projectID := flag.String("project", os.Getenv("BQ_PROJECT"), "GCP project ID (or set BQ_PROJECT)")
	datasetID := flag.String("dataset", envOr("BQ_DATASET", "finance"), "BigQuery dataset ID")
	tableID := flag.String("table", envOr("BQ_TABLE", "pix_transactions"), "BigQuery table ID")
	location := flag.String("location", "US", "Location for a newly created dataset")
	printSchema := flag.Bool("print-schema", false, "Print the table schema and exit")
	flag.Parse()

	if *printSchema {
		schema, err := infraBQ.TransactionSchema()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to infer schema")
		}
		for _, f := range schema {
			mode := "NULLABLE"
			if f.Required {
				mode = "REQUIRED"
			}
			os.Stdout.WriteString(f.Name + "\t" + string(f.Type) + "\t" + mode + "\n")
		}
		return
	}

	if *projectID == "" {
		log.Fatal().Msg("Error: -project flag is required. Please specify your GCP project ID.")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	warehouse, err := infraBQ.NewBigQueryWarehouse(ctx, *projectID, *datasetID, *tableID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create BigQuery client")
	}
	defer warehouse.Close()

	log.Info().
		Str("project", *projectID).
		Str("dataset", *datasetID).
		Str("table", *tableID).
		Msg("Connected to BigQuery")

	created, err := warehouse.EnsureTable(ctx, *location)
	if err != nil {
		log.Fatal().Err(err).Msg("Migration failed")
	}

	if created {
		log.Info().Msg("Created missing dataset or table")
	} else {
		log.Info().Msg("No changes needed. Warehouse is up to date.")
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
