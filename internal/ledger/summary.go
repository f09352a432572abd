package ledger

import (
	"time"

	"github.com/dvloznov/pixtracker/internal/domain"
	"github.com/shopspring/decimal"
)

const (
	historyMonths  = 3 // two prior months plus the current one
	forecastMonths = 2
)

// Placeholder forecast used when there is no history to project from.
var (
	placeholderReceived = [forecastMonths]float64{3000, 3200}
	placeholderSent     = [forecastMonths]float64{2200, 2400}
)

var monthAbbrev = [...]string{"jan", "fev", "mar", "abr", "mai", "jun", "jul", "ago", "set", "out", "nov", "dez"}

// MonthlyData is the received and sent total of one calendar month.
type MonthlyData struct {
	Month    string  `json:"month"` // YYYY-MM
	Label    string  `json:"label"` // e.g. "ago 2025"
	Received float64 `json:"received"`
	Sent     float64 `json:"sent"`
	// IsForecast marks projected months.
	IsForecast bool `json:"isForecast"`
	// Placeholder marks forecast months filled with illustrative values
	// because every historical month was empty.
	Placeholder bool `json:"placeholder"`
}

// MonthlySummary returns five months: two prior, the current one and two
// projected. Projections follow a least-squares line through the three
// historical totals, clamped at zero.
func (m *Manager) MonthlySummary() []MonthlyData {
	now := m.now().In(m.loc)
	current := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, m.loc)

	out := make([]MonthlyData, 0, historyMonths+forecastMonths)
	var received, sent [historyMonths]decimal.Decimal
	hasHistory := false

	for i := 0; i < historyMonths; i++ {
		start := current.AddDate(0, i-(historyMonths-1), 0)
		end := start.AddDate(0, 1, 0)

		for _, tx := range m.Between(start, end, "") {
			amount := decimal.NewFromFloat(tx.Amount)
			if tx.Type == domain.TxReceived {
				received[i] = received[i].Add(amount)
			} else {
				sent[i] = sent[i].Add(amount)
			}
		}
		if !received[i].IsZero() || !sent[i].IsZero() {
			hasHistory = true
		}

		out = append(out, newMonth(start, received[i], sent[i]))
	}

	for j := 0; j < forecastMonths; j++ {
		start := current.AddDate(0, j+1, 0)
		month := MonthlyData{
			Month:      start.Format("2006-01"),
			Label:      label(start),
			IsForecast: true,
		}
		if hasHistory {
			x := historyMonths + j
			month.Received = round2(project(received, x))
			month.Sent = round2(project(sent, x))
		} else {
			month.Received = placeholderReceived[j]
			month.Sent = placeholderSent[j]
			month.Placeholder = true
		}
		out = append(out, month)
	}
	return out
}

func newMonth(start time.Time, received, sent decimal.Decimal) MonthlyData {
	r, _ := received.Round(2).Float64()
	s, _ := sent.Round(2).Float64()
	return MonthlyData{
		Month:    start.Format("2006-01"),
		Label:    label(start),
		Received: r,
		Sent:     s,
	}
}

// project evaluates the least-squares line through (i, ys[i]) at x.
func project(ys [historyMonths]decimal.Decimal, x int) decimal.Decimal {
	n := decimal.NewFromInt(historyMonths)
	meanX := decimal.NewFromInt(historyMonths - 1).Div(decimal.NewFromInt(2))

	sumY := decimal.Zero
	for _, y := range ys {
		sumY = sumY.Add(y)
	}
	meanY := sumY.Div(n)

	num, den := decimal.Zero, decimal.Zero
	for i, y := range ys {
		dx := decimal.NewFromInt(int64(i)).Sub(meanX)
		num = num.Add(dx.Mul(y.Sub(meanY)))
		den = den.Add(dx.Mul(dx))
	}
	slope := num.Div(den)

	v := meanY.Add(slope.Mul(decimal.NewFromInt(int64(x)).Sub(meanX)))
	if v.IsNegative() {
		return decimal.Zero
	}
	return v
}

func round2(d decimal.Decimal) float64 {
	f, _ := d.Round(2).Float64()
	return f
}

func label(t time.Time) string {
	return monthAbbrev[t.Month()-1] + " " + t.Format("2006")
}
