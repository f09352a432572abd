package notionsync

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dvloznov/pixtracker/internal/domain"
	"github.com/jomei/notionapi"
)

// Property names of the transactions database.
const (
	PropContact     = "Contact"
	PropKey         = "Transaction Key"
	PropType        = "Type"
	PropAmount      = "Amount"
	PropDate        = "Date"
	PropCategory    = "Category"
	PropDescription = "Description"
	PropCurrency    = "Currency"
)

// PageKey is the value stored in the Transaction Key property: "id@unixMillis".
func PageKey(k domain.Key) string {
	return k.ID + "@" + strconv.FormatInt(k.DateMs, 10)
}

// ParseKey reverses PageKey. Ids may themselves contain '@'.
func ParseKey(s string) (domain.Key, error) {
	i := strings.LastIndex(s, "@")
	if i <= 0 {
		return domain.Key{}, fmt.Errorf("ParseKey: malformed key %q", s)
	}
	ms, err := strconv.ParseInt(s[i+1:], 10, 64)
	if err != nil {
		return domain.Key{}, fmt.Errorf("ParseKey: malformed date in %q: %w", s, err)
	}
	return domain.Key{ID: s[:i], DateMs: ms}, nil
}

func richText(content string) []notionapi.RichText {
	return []notionapi.RichText{
		{
			Type: notionapi.ObjectTypeText,
			Text: &notionapi.Text{Content: content},
		},
	}
}

// TransactionToNotionProperties maps a transaction onto the database schema:
// Contact (title), Transaction Key, Type, Amount, Date, Currency, and the
// optional Category and Description.
func TransactionToNotionProperties(tx domain.Transaction, loc *time.Location) notionapi.Properties {
	if loc == nil {
		loc = time.UTC
	}
	date := notionapi.Date(tx.Date.In(loc))

	props := notionapi.Properties{
		PropContact: notionapi.TitleProperty{Title: richText(tx.Contact)},
		PropKey:     notionapi.RichTextProperty{RichText: richText(PageKey(tx.Key()))},
		PropType: notionapi.SelectProperty{
			Select: notionapi.Option{Name: string(tx.Type)},
		},
		PropAmount: notionapi.NumberProperty{Number: tx.Amount},
		PropDate: notionapi.DateProperty{
			Date: &notionapi.DateObject{Start: &date},
		},
		PropCurrency: notionapi.SelectProperty{
			Select: notionapi.Option{Name: "BRL"},
		},
	}

	if tx.Description != "" {
		props[PropDescription] = notionapi.RichTextProperty{RichText: richText(tx.Description)}
	}
	if tx.Category != "" {
		props[PropCategory] = categoryProperty(tx.Category)
	}
	return props
}

func categoryProperty(c domain.Category) notionapi.SelectProperty {
	return notionapi.SelectProperty{Select: notionapi.Option{Name: string(c)}}
}

// extractKey returns the page's Transaction Key, or "" when absent.
func extractKey(page notionapi.Page) string {
	if prop, ok := page.Properties[PropKey]; ok {
		if rt, ok := prop.(*notionapi.RichTextProperty); ok && len(rt.RichText) > 0 {
			return rt.RichText[0].PlainText
		}
	}
	return ""
}

// extractCategory returns the page's Category select, or "" when unset.
func extractCategory(page notionapi.Page) domain.Category {
	if prop, ok := page.Properties[PropCategory]; ok {
		if sel, ok := prop.(*notionapi.SelectProperty); ok {
			return domain.Category(sel.Select.Name)
		}
	}
	return ""
}
