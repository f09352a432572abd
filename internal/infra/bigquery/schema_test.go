package bigquery

import (
	"fmt"
	"net/http"
	"testing"

	"cloud.google.com/go/bigquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
)

func TestTransactionSchema(t *testing.T) {
	schema, err := TransactionSchema()
	require.NoError(t, err)

	fields := map[string]*bigquery.FieldSchema{}
	for _, f := range schema {
		fields[f.Name] = f
	}

	for name, typ := range map[string]bigquery.FieldType{
		"transaction_id":   bigquery.StringFieldType,
		"booking_ms":       bigquery.IntegerFieldType,
		"transaction_date": bigquery.DateFieldType,
		"booking_ts":       bigquery.TimestampFieldType,
		"direction":        bigquery.StringFieldType,
		"amount":           bigquery.NumericFieldType,
		"currency":         bigquery.StringFieldType,
		"contact":          bigquery.StringFieldType,
		"raw_description":  bigquery.StringFieldType,
		"category_name":    bigquery.StringFieldType,
		"export_run_id":    bigquery.StringFieldType,
		"exported_ts":      bigquery.TimestampFieldType,
	} {
		f, ok := fields[name]
		require.True(t, ok, "missing column %s", name)
		assert.Equal(t, typ, f.Type, name)
	}

	assert.False(t, fields["raw_description"].Required)
	assert.False(t, fields["category_name"].Required)
	assert.True(t, fields["transaction_id"].Required)
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(fmt.Errorf("wrapped: %w", &googleapi.Error{Code: http.StatusNotFound})))
	assert.False(t, isNotFound(&googleapi.Error{Code: http.StatusForbidden}))
	assert.False(t, isNotFound(fmt.Errorf("plain")))
}
