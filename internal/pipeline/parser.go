package pipeline

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// R$ 12,00 or R$ 1.234,56
	amountPattern = regexp.MustCompile(`R\$\s*([0-9]{1,3}(?:\.[0-9]{3})+,[0-9]{2}|[0-9]+,[0-9]{2})`)

	// "..., em <merchant>, foi aprovada". The merchant is the last comma
	// separated "em" clause; an earlier "em 2x" does not start it.
	cardMerchantPattern = regexp.MustCompile(`(?i)(?:^|,)\s*em\s+([^,]+?),?\s+foi\s+aprovad[ao]`)

	// PIX phrasing: "recebido de <name>", "recebida de <name>", "para <name>".
	receivedFromPattern = regexp.MustCompile(`(?i)\brecebid[oa]\s+de\s+([^,.\n]+)`)
	sentToPattern       = regexp.MustCompile(`(?i)\bpara\s+([^,.\n]+)`)
	merchantTail        = regexp.MustCompile(`(?i)\s+(?:no\s+valor|R\$|em\s+\d|dia\s+\d).*$`)

	datePattern = regexp.MustCompile(`\b(\d{2})/(\d{2})/(\d{4})\b`)
	timePattern = regexp.MustCompile(`\b(\d{2}):(\d{2})\b`)
)

// Parser extracts structured fields from free-text bank notifications.
type Parser struct {
	loc *time.Location
}

// NewParser returns a parser interpreting notification dates in loc.
// A nil loc means UTC.
func NewParser(loc *time.Location) *Parser {
	if loc == nil {
		loc = time.UTC
	}
	return &Parser{loc: loc}
}

// Parse never fails. Fields whose pattern does not match are left nil.
func (p *Parser) Parse(text string) Extraction {
	var out Extraction
	if strings.TrimSpace(text) == "" {
		return out
	}

	if amount, ok := parseAmount(text); ok {
		out.Amount = &amount
	}
	if merchant, ok := parseMerchant(text); ok {
		out.Merchant = &merchant
	}
	if date, ok := p.parseDate(text); ok {
		out.Date = &date
	}
	return out
}

// parseAmount decodes the first currency-prefixed amount, turning the
// comma-decimal source format into a number.
func parseAmount(text string) (float64, bool) {
	m := amountPattern.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	normalized := strings.ReplaceAll(m[1], ".", "")
	normalized = strings.Replace(normalized, ",", ".", 1)

	d, err := decimal.NewFromString(normalized)
	if err != nil {
		return 0, false
	}
	f, _ := d.Float64()
	return f, true
}

func parseMerchant(text string) (string, bool) {
	if m := cardMerchantPattern.FindStringSubmatch(text); m != nil {
		if name := strings.TrimSpace(m[1]); name != "" {
			return name, true
		}
	}

	for _, re := range []*regexp.Regexp{receivedFromPattern, sentToPattern} {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		name := strings.TrimSpace(merchantTail.ReplaceAllString(m[1], ""))
		if name != "" {
			return name, true
		}
	}
	return "", false
}

// parseDate needs both a DD/MM/YYYY date and an HH:MM time. A date alone is
// too coarse to beat the capture timestamp.
func (p *Parser) parseDate(text string) (time.Time, bool) {
	dm := datePattern.FindStringSubmatch(text)
	tm := timePattern.FindStringSubmatch(text)
	if dm == nil || tm == nil {
		return time.Time{}, false
	}

	day, _ := strconv.Atoi(dm[1])
	month, _ := strconv.Atoi(dm[2])
	year, _ := strconv.Atoi(dm[3])
	hour, _ := strconv.Atoi(tm[1])
	minute, _ := strconv.Atoi(tm[2])

	if month < 1 || month > 12 || day < 1 || hour > 23 || minute > 59 {
		return time.Time{}, false
	}

	t := time.Date(year, time.Month(month), day, hour, minute, 0, 0, p.loc)
	// time.Date normalizes 31/02 into March; reject instead.
	if t.Day() != day || int(t.Month()) != month {
		return time.Time{}, false
	}
	if y := t.UTC().Year(); y < 1 || y > 9999 {
		return time.Time{}, false
	}
	return t, true
}
