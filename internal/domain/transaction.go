package domain

import (
	"time"
)

// TxType is the direction of a transaction. The sign of money lives here,
// never in Amount.
type TxType string

const (
	TxReceived TxType = "received"
	TxSent     TxType = "sent"
)

// Valid reports whether t is one of the known directions.
func (t TxType) Valid() bool {
	return t == TxReceived || t == TxSent
}

// UnknownContact is used when no counterparty can be resolved.
const UnknownContact = "Unknown"

// Category is a user-assigned spending bucket.
type Category string

const (
	CategoryFood      Category = "Alimentação"
	CategoryLeisure   Category = "Laser" // stored spelling, existing logs depend on it
	CategoryBills     Category = "Contas"
	CategoryTransport Category = "Transporte"
	CategoryOther     Category = "Outros"
)

// Categories lists every assignable category in display order.
var Categories = []Category{
	CategoryFood,
	CategoryLeisure,
	CategoryBills,
	CategoryTransport,
	CategoryOther,
}

// Valid reports whether c belongs to the fixed category set.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Capture sources reported by the platform layer.
const (
	SourceNotification  = "notification"
	SourceAccessibility = "accessibility"
)

// RawEvent is a transaction notification as delivered by the capture layer.
// Every field except ID and Type may be absent.
type RawEvent struct {
	ID          string   `json:"id"`
	Type        TxType   `json:"type"`
	Amount      *float64 `json:"amount,omitempty"`
	Date        *int64   `json:"date,omitempty"` // epoch milliseconds
	Contact     *string  `json:"contact,omitempty"`
	Description *string  `json:"description,omitempty"`
	Source      string   `json:"source,omitempty"`
}

// Transaction is one canonical entry of the transaction log.
type Transaction struct {
	ID          string    `json:"id"`
	Type        TxType    `json:"type"`
	Amount      float64   `json:"amount"`
	Date        time.Time `json:"date"`
	Contact     string    `json:"contact"`
	Description string    `json:"description,omitempty"`
	Category    Category  `json:"category,omitempty"`
}

// Key identifies a transaction for deduplication.
type Key struct {
	ID     string
	DateMs int64
}

// Key returns the (id, date) dedup key of tx.
func (tx Transaction) Key() Key {
	return Key{ID: tx.ID, DateMs: tx.Date.UnixMilli()}
}
