package bigquery

import (
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/pixtracker/internal/domain"
	"github.com/shopspring/decimal"
)

// Currency of every captured transaction.
const Currency = "BRL"

// TransactionRow is one exported transaction in the analytics table.
type TransactionRow struct {
	TransactionID string `bigquery:"transaction_id"` // REQUIRED
	BookingMs     int64  `bigquery:"booking_ms"`     // REQUIRED, with transaction_id forms the dedup key

	TransactionDate civil.Date `bigquery:"transaction_date"` // REQUIRED, local calendar day
	BookingTS       time.Time  `bigquery:"booking_ts"`       // REQUIRED

	Direction string   `bigquery:"direction"` // REQUIRED received|sent
	Amount    *big.Rat `bigquery:"amount"`    // REQUIRED NUMERIC
	Currency  string   `bigquery:"currency"`  // REQUIRED

	Contact        string              `bigquery:"contact"`         // REQUIRED
	RawDescription bigquery.NullString `bigquery:"raw_description"` // NULLABLE
	CategoryName   bigquery.NullString `bigquery:"category_name"`   // NULLABLE

	ExportRunID string    `bigquery:"export_run_id"` // REQUIRED
	ExportedTS  time.Time `bigquery:"exported_ts"`   // REQUIRED
}

// NewTransactionRow maps a log entry into a row. loc decides the calendar day.
func NewTransactionRow(tx domain.Transaction, loc *time.Location, runID string, exportedAt time.Time) *TransactionRow {
	if loc == nil {
		loc = time.UTC
	}
	return &TransactionRow{
		TransactionID:   tx.ID,
		BookingMs:       tx.Date.UnixMilli(),
		TransactionDate: civil.DateOf(tx.Date.In(loc)),
		BookingTS:       tx.Date.UTC(),
		Direction:       string(tx.Type),
		Amount:          decimal.NewFromFloat(tx.Amount).Round(2).Rat(),
		Currency:        Currency,
		Contact:         tx.Contact,
		RawDescription:  bigquery.NullString{StringVal: tx.Description, Valid: tx.Description != ""},
		CategoryName:    bigquery.NullString{StringVal: string(tx.Category), Valid: tx.Category != ""},
		ExportRunID:     runID,
		ExportedTS:      exportedAt.UTC(),
	}
}

// Key returns the dedup key of the exported transaction.
func (r *TransactionRow) Key() domain.Key {
	return domain.Key{ID: r.TransactionID, DateMs: r.BookingMs}
}
