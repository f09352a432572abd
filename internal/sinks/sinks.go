// Package sinks registers the configured downstream destinations of the
// transaction log as job handlers.
package sinks

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/pixtracker/internal/config"
	"github.com/dvloznov/pixtracker/internal/domain"
	infraBQ "github.com/dvloznov/pixtracker/internal/infra/bigquery"
	"github.com/dvloznov/pixtracker/internal/infra/gcs"
	"github.com/dvloznov/pixtracker/internal/jobs"
	"github.com/dvloznov/pixtracker/internal/notionsync"
	"github.com/rs/zerolog"
)

// Register adds a handler to d for every sink cfg enables. The returned func
// closes the sink clients.
func Register(ctx context.Context, cfg *config.Config, d *jobs.Dispatcher, src jobs.Source, log zerolog.Logger) (func(), error) {
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	loc := cfg.Location()

	if cfg.ExportEnabled() {
		warehouse, err := infraBQ.NewBigQueryWarehouse(ctx, cfg.BQProject, cfg.BQDataset, cfg.BQTable)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("Register: %w", err)
		}
		closers = append(closers, func() { warehouse.Close() })
		d.Register(jobs.JobTypeExportBigQuery, jobs.ExportHandler(src, infraBQ.NewExporter(warehouse, loc, log)))
	}

	if cfg.BackupEnabled {
		bucket, err := gcs.NewBucket(ctx, cfg.GCSBucket)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("Register: %w", err)
		}
		closers = append(closers, func() { bucket.Close() })
		d.Register(jobs.JobTypeBackupGCS, jobs.BackupHandler(src, gcs.NewBackup(bucket, cfg.GCSPrefix), time.Now))
	}

	if cfg.NotionEnabled() {
		syncer := notionsync.NewSyncer(notionsync.NewNotionClient(cfg.NotionToken), cfg.NotionDBID, loc, false, log)
		d.Register(jobs.JobTypeSyncNotion, NotionHandler(src, syncer))
	}

	return closeAll, nil
}

// Mirror copies the whole log somewhere and reports what it did.
type Mirror interface {
	Sync(ctx context.Context, txs []domain.Transaction) (notionsync.Result, error)
}

// NotionHandler mirrors src through m.
func NotionHandler(src jobs.Source, m Mirror) jobs.JobHandler {
	return func(ctx context.Context, job *jobs.SyncJob) (string, error) {
		res, err := m.Sync(ctx, src.All())
		if err != nil {
			return "", fmt.Errorf("NotionHandler: %w", err)
		}
		return res.String(), nil
	}
}
