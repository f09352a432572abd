package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/pixtracker/internal/domain"
	"github.com/dvloznov/pixtracker/internal/ledger"
	"github.com/dvloznov/pixtracker/internal/logger"
	"github.com/rs/zerolog"
)

// Source supplies the transaction log a job works on.
type Source interface {
	All() []domain.Transaction
}

// Exporter appends transactions to the warehouse.
type Exporter interface {
	Export(ctx context.Context, txs []domain.Transaction) (int, error)
}

// Snapshotter writes a point-in-time copy of the log.
type Snapshotter interface {
	Snapshot(ctx context.Context, txs []domain.Transaction, at time.Time) (string, error)
}

// Dispatcher routes jobs to the handler registered for their type.
type Dispatcher struct {
	handlers map[JobType]JobHandler
}

// NewDispatcher returns an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: map[JobType]JobHandler{}}
}

// Register sets the handler for typ.
func (d *Dispatcher) Register(typ JobType, h JobHandler) {
	d.handlers[typ] = h
}

// Types lists the registered job types.
func (d *Dispatcher) Types() []JobType {
	out := make([]JobType, 0, len(d.handlers))
	for _, typ := range []JobType{JobTypeExportBigQuery, JobTypeBackupGCS, JobTypeSyncNotion} {
		if _, ok := d.handlers[typ]; ok {
			out = append(out, typ)
		}
	}
	return out
}

// Handle is a JobHandler.
func (d *Dispatcher) Handle(ctx context.Context, job *SyncJob) (string, error) {
	h, ok := d.handlers[job.Type]
	if !ok {
		return "", fmt.Errorf("Handle: no handler for job type %q", job.Type)
	}
	return h(ctx, job)
}

// ExportHandler exports the current log; the exporter skips rows already in
// the warehouse.
func ExportHandler(src Source, exp Exporter) JobHandler {
	return func(ctx context.Context, job *SyncJob) (string, error) {
		n, err := exp.Export(ctx, src.All())
		if err != nil {
			return "", fmt.Errorf("ExportHandler: %w", err)
		}
		return fmt.Sprintf("exported %d", n), nil
	}
}

// BackupHandler writes a snapshot of the current log.
func BackupHandler(src Source, snap Snapshotter, now func() time.Time) JobHandler {
	if now == nil {
		now = time.Now
	}
	return func(ctx context.Context, job *SyncJob) (string, error) {
		name, err := snap.Snapshot(ctx, src.All(), now())
		if err != nil {
			return "", fmt.Errorf("BackupHandler: %w", err)
		}
		return name, nil
	}
}

// OnLedgerChange returns a ledger listener publishing one job per type for
// each committed change. Publishing happens off the mutating goroutine.
func OnLedgerChange(pub Publisher, types []JobType, log zerolog.Logger) ledger.Listener {
	log = logger.WithComponent(log, "jobs")
	return func(ctx context.Context, ch ledger.Change) {
		if len(types) == 0 {
			return
		}
		ctx = context.WithoutCancel(ctx)
		go func() {
			for _, typ := range types {
				job := &SyncJob{Type: typ, Trigger: string(ch.Kind)}
				if err := pub.Publish(ctx, job); err != nil {
					log.Warn().Err(err).Str("job_type", string(typ)).Msg("Failed to publish job")
				}
			}
		}()
	}
}
