package bigquery

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/pixtracker/internal/domain"
	"google.golang.org/api/iterator"
)

const (
	defaultDatasetID = "finance"
	defaultTableID   = "pix_transactions"
)

// Warehouse is the table the exporter appends to.
type Warehouse interface {
	// ExportedKeys returns the keys already present for rows booked at or after since.
	ExportedKeys(ctx context.Context, since time.Time) (map[domain.Key]bool, error)
	// InsertTransactions appends rows.
	InsertTransactions(ctx context.Context, rows []*TransactionRow) error
}

// BigQueryWarehouse is the concrete Warehouse backed by a BigQuery table.
// It holds a shared client to avoid creating a connection per operation.
type BigQueryWarehouse struct {
	client    *bigquery.Client
	projectID string
	datasetID string
	tableID   string
}

// NewBigQueryWarehouse creates a client for projectID. Empty dataset or table
// names fall back to finance.pix_transactions.
func NewBigQueryWarehouse(ctx context.Context, projectID, datasetID, tableID string) (*BigQueryWarehouse, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewBigQueryWarehouse: creating client: %w", err)
	}
	if datasetID == "" {
		datasetID = defaultDatasetID
	}
	if tableID == "" {
		tableID = defaultTableID
	}
	return &BigQueryWarehouse{client: client, projectID: projectID, datasetID: datasetID, tableID: tableID}, nil
}

// Close closes the BigQuery client connection.
func (w *BigQueryWarehouse) Close() error {
	if w.client != nil {
		return w.client.Close()
	}
	return nil
}

// InsertTransactions streams rows into the table. Each row carries its dedup
// key as insert id so retried inserts are collapsed by BigQuery.
func (w *BigQueryWarehouse) InsertTransactions(ctx context.Context, rows []*TransactionRow) error {
	if len(rows) == 0 {
		return nil
	}

	savers := make([]*bigquery.StructSaver, len(rows))
	for i, r := range rows {
		savers[i] = &bigquery.StructSaver{
			Struct:   r,
			InsertID: r.TransactionID + ":" + strconv.FormatInt(r.BookingMs, 10),
		}
	}

	table := w.client.DatasetInProject(w.projectID, w.datasetID).Table(w.tableID)
	if err := table.Inserter().Put(ctx, savers); err != nil {
		return fmt.Errorf("InsertTransactions: inserting rows: %w", err)
	}
	return nil
}

// ExportedKeys reads back the dedup keys of already exported rows.
func (w *BigQueryWarehouse) ExportedKeys(ctx context.Context, since time.Time) (map[domain.Key]bool, error) {
	q := w.client.Query(fmt.Sprintf(`
		SELECT transaction_id, booking_ms
		FROM `+"`%s.%s.%s`"+`
		WHERE booking_ts >= @since`, w.projectID, w.datasetID, w.tableID))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "since", Value: since.UTC()},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ExportedKeys: query read: %w", err)
	}

	keys := make(map[domain.Key]bool)
	for {
		var r struct {
			TransactionID string `bigquery:"transaction_id"`
			BookingMs     int64  `bigquery:"booking_ms"`
		}
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ExportedKeys: iter next: %w", err)
		}
		keys[domain.Key{ID: r.TransactionID, DateMs: r.BookingMs}] = true
	}
	return keys, nil
}

var _ Warehouse = (*BigQueryWarehouse)(nil)
