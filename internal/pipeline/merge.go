package pipeline

import (
	"sort"

	"github.com/dvloznov/pixtracker/internal/domain"
)

// Merge folds incoming into existing and returns a new log with no two
// entries sharing an (id, date) key, sorted by date descending.
//
// Incoming entries are scanned first, so on a key collision the incoming copy
// is kept, except that an uncategorized incoming copy inherits the stored
// entry's category. Neither input slice is modified.
func Merge(incoming, existing []domain.Transaction) []domain.Transaction {
	stored := make(map[domain.Key]domain.Category, len(existing))
	for _, tx := range existing {
		if _, ok := stored[tx.Key()]; !ok {
			stored[tx.Key()] = tx.Category
		}
	}

	seen := make(map[domain.Key]struct{}, len(incoming)+len(existing))
	out := make([]domain.Transaction, 0, len(incoming)+len(existing))

	for _, batch := range [][]domain.Transaction{incoming, existing} {
		for _, tx := range batch {
			k := tx.Key()
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			if c, ok := stored[k]; ok && tx.Category == "" {
				tx.Category = c
			}
			out = append(out, tx)
		}
	}

	SortByDateDesc(out)
	return out
}

// SortByDateDesc orders txs newest first. Equal dates keep their relative order.
func SortByDateDesc(txs []domain.Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].Date.After(txs[j].Date)
	})
}

// CountNew reports how many entries of merged are absent from existing.
func CountNew(merged, existing []domain.Transaction) int {
	known := make(map[domain.Key]struct{}, len(existing))
	for _, tx := range existing {
		known[tx.Key()] = struct{}{}
	}
	n := 0
	for _, tx := range merged {
		if _, ok := known[tx.Key()]; !ok {
			n++
		}
	}
	return n
}

// CountChanged reports how many entries of merged replace an entry of existing
// with the same key but different contents.
func CountChanged(merged, existing []domain.Transaction) int {
	prev := make(map[domain.Key]domain.Transaction, len(existing))
	for _, tx := range existing {
		if _, ok := prev[tx.Key()]; !ok {
			prev[tx.Key()] = tx
		}
	}
	n := 0
	for _, tx := range merged {
		old, ok := prev[tx.Key()]
		if ok && !sameTransaction(old, tx) {
			n++
		}
	}
	return n
}

func sameTransaction(a, b domain.Transaction) bool {
	return a.ID == b.ID &&
		a.Type == b.Type &&
		a.Amount == b.Amount &&
		a.Date.Equal(b.Date) &&
		a.Contact == b.Contact &&
		a.Description == b.Description &&
		a.Category == b.Category
}
