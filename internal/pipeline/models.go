package pipeline

import (
	"time"
)

// Extraction is what the parser could recover from a notification body.
// Each field is independent; nil means the pattern did not match.
type Extraction struct {
	Amount   *float64
	Merchant *string
	Date     *time.Time
}

// Empty reports whether nothing was extracted.
func (e Extraction) Empty() bool {
	return e.Amount == nil && e.Merchant == nil && e.Date == nil
}
