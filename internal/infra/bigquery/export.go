package bigquery

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/pixtracker/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Exporter appends log entries that are not yet in the warehouse.
type Exporter struct {
	warehouse Warehouse
	loc       *time.Location
	now       func() time.Time
	log       zerolog.Logger
}

// NewExporter creates an exporter. loc decides the calendar day of each row.
func NewExporter(w Warehouse, loc *time.Location, log zerolog.Logger) *Exporter {
	return &Exporter{
		warehouse: w,
		loc:       loc,
		now:       time.Now,
		log:       log.With().Str("component", "bigquery_export").Logger(),
	}
}

// Export inserts every transaction whose (id, date) key is not exported yet
// and returns how many rows were written.
func (e *Exporter) Export(ctx context.Context, txs []domain.Transaction) (int, error) {
	if len(txs) == 0 {
		return 0, nil
	}

	oldest := txs[0].Date
	for _, tx := range txs[1:] {
		if tx.Date.Before(oldest) {
			oldest = tx.Date
		}
	}

	exported, err := e.warehouse.ExportedKeys(ctx, oldest)
	if err != nil {
		return 0, fmt.Errorf("Export: %w", err)
	}

	runID := uuid.New().String()
	exportedAt := e.now()
	var rows []*TransactionRow
	for _, tx := range txs {
		if exported[tx.Key()] {
			continue
		}
		rows = append(rows, NewTransactionRow(tx, e.loc, runID, exportedAt))
	}

	if err := e.warehouse.InsertTransactions(ctx, rows); err != nil {
		return 0, fmt.Errorf("Export: %w", err)
	}

	e.log.Info().
		Str("export_run_id", runID).
		Int("exported", len(rows)).
		Int("skipped", len(txs)-len(rows)).
		Msg("Exported transactions to BigQuery")
	return len(rows), nil
}
