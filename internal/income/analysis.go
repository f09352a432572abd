package income

import (
	"regexp"
	"strings"
	"time"

	"github.com/dvloznov/pixtracker/internal/domain"
	"github.com/shopspring/decimal"
)

// UnmatchedSourceID identifies the bucket of received transactions no source claimed.
const UnmatchedSourceID = "unmatched"

const unmatchedSourceName = "Outras receitas não categorizadas"

var (
	whitespace   = regexp.MustCompile(`\s+`)
	nonWordChars = regexp.MustCompile(`[^\w\s]`)
)

// Breakdown is the amount attributed to one income source.
type Breakdown struct {
	SourceID   string            `json:"sourceId"`
	SourceName string            `json:"sourceName"`
	Type       domain.IncomeType `json:"type"`
	Amount     float64           `json:"amount"`
}

// Analysis splits the current month's received transactions into work and
// other income.
type Analysis struct {
	WorkIncome      float64     `json:"workIncome"`
	OtherIncome     float64     `json:"otherIncome"`
	TotalIncome     float64     `json:"totalIncome"`
	IncomeBreakdown []Breakdown `json:"incomeBreakdown"`
}

// Analyze attributes received transactions dated in now's calendar month (in
// loc) to the active sources whose contact pattern matches. Sources are tried
// in order and each transaction is counted at most once.
func Analyze(sources []domain.IncomeSource, txs []domain.Transaction, now time.Time, loc *time.Location) Analysis {
	if loc == nil {
		loc = time.UTC
	}
	now = now.In(loc)
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)
	end := start.AddDate(0, 1, 0)

	var received []domain.Transaction
	for _, tx := range txs {
		if tx.Type != domain.TxReceived || tx.Date.Before(start) || !tx.Date.Before(end) {
			continue
		}
		received = append(received, tx)
	}

	matched := make(map[domain.Key]bool, len(received))
	work, other := decimal.Zero, decimal.Zero
	breakdown := []Breakdown{}

	for _, src := range sources {
		if !src.IsActive {
			continue
		}
		pattern := normalize(src.ContactPattern)
		if pattern == "" {
			continue
		}

		sum, hits := decimal.Zero, 0
		for _, tx := range received {
			if matched[tx.Key()] || !contactMatches(normalize(tx.Contact), pattern) {
				continue
			}
			matched[tx.Key()] = true
			sum = sum.Add(decimal.NewFromFloat(tx.Amount))
			hits++
		}
		if hits == 0 {
			continue
		}

		breakdown = append(breakdown, Breakdown{
			SourceID:   src.ID,
			SourceName: src.Name,
			Type:       src.Type,
			Amount:     toFloat(sum),
		})
		if src.IsWork() {
			work = work.Add(sum)
		} else {
			other = other.Add(sum)
		}
	}

	unmatched, hits := decimal.Zero, 0
	for _, tx := range received {
		if !matched[tx.Key()] {
			unmatched = unmatched.Add(decimal.NewFromFloat(tx.Amount))
			hits++
		}
	}
	if hits > 0 {
		other = other.Add(unmatched)
		breakdown = append(breakdown, Breakdown{
			SourceID:   UnmatchedSourceID,
			SourceName: unmatchedSourceName,
			Type:       domain.IncomeOther,
			Amount:     toFloat(unmatched),
		})
	}

	return Analysis{
		WorkIncome:      toFloat(work),
		OtherIncome:     toFloat(other),
		TotalIncome:     toFloat(work.Add(other)),
		IncomeBreakdown: breakdown,
	}
}

// contactMatches reports whether either normalized string contains the other.
// An empty contact never matches.
func contactMatches(contact, pattern string) bool {
	if contact == "" {
		return false
	}
	return strings.Contains(contact, pattern) || strings.Contains(pattern, contact)
}

func normalize(s string) string {
	s = whitespace.ReplaceAllString(strings.ToLower(s), " ")
	s = nonWordChars.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Round(2).Float64()
	return f
}
