package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
)

// TransactionSchema is the table schema inferred from TransactionRow.
func TransactionSchema() (bigquery.Schema, error) {
	schema, err := bigquery.InferSchema(TransactionRow{})
	if err != nil {
		return nil, fmt.Errorf("TransactionSchema: %w", err)
	}
	return schema, nil
}

// EnsureTable creates the dataset and the transactions table when missing.
// The table is partitioned by transaction_date. It reports whether anything
// was created.
func (w *BigQueryWarehouse) EnsureTable(ctx context.Context, location string) (bool, error) {
	created := false

	dataset := w.client.DatasetInProject(w.projectID, w.datasetID)
	if _, err := dataset.Metadata(ctx); err != nil {
		if !isNotFound(err) {
			return false, fmt.Errorf("EnsureTable: reading dataset %s: %w", w.datasetID, err)
		}
		if err := dataset.Create(ctx, &bigquery.DatasetMetadata{Location: location}); err != nil {
			return false, fmt.Errorf("EnsureTable: creating dataset %s: %w", w.datasetID, err)
		}
		created = true
	}

	table := dataset.Table(w.tableID)
	if _, err := table.Metadata(ctx); err == nil {
		return created, nil
	} else if !isNotFound(err) {
		return false, fmt.Errorf("EnsureTable: reading table %s: %w", w.tableID, err)
	}

	schema, err := TransactionSchema()
	if err != nil {
		return false, fmt.Errorf("EnsureTable: %w", err)
	}
	meta := &bigquery.TableMetadata{
		Schema:           schema,
		Description:      "PIX transactions exported from the transaction log",
		TimePartitioning: &bigquery.TimePartitioning{Type: bigquery.DayPartitioningType, Field: "transaction_date"},
		Clustering:       &bigquery.Clustering{Fields: []string{"direction", "category_name"}},
	}
	if err := table.Create(ctx, meta); err != nil {
		return false, fmt.Errorf("EnsureTable: creating table %s: %w", w.tableID, err)
	}
	return true, nil
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}
