package income

import (
	"github.com/dvloznov/pixtracker/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	weeksPerMonth       = decimal.RequireFromString("4.33")
	workingDaysPerMonth = decimal.NewFromInt(22)
	daysPerMonth        = decimal.NewFromInt(30)
)

// MonthlyAmount converts a source's expected payment into a monthly figure.
// Sources without an expected amount contribute zero.
func MonthlyAmount(src domain.IncomeSource) float64 {
	if src.ExpectedAmount == nil || *src.ExpectedAmount == 0 {
		return 0
	}
	amount := decimal.NewFromFloat(*src.ExpectedAmount)

	switch src.Frequency {
	case domain.FrequencyBiweekly:
		amount = amount.Mul(decimal.NewFromInt(2))
	case domain.FrequencyWeekly:
		amount = amount.Mul(weeksPerMonth)
	case domain.FrequencyDaily:
		amount = amount.Mul(workingDaysPerMonth)
	case domain.FrequencyCustom:
		if src.CustomFrequencyDays != nil && *src.CustomFrequencyDays > 0 {
			amount = amount.Mul(daysPerMonth).Div(decimal.NewFromInt(int64(*src.CustomFrequencyDays)))
		}
	}
	return toFloat(amount)
}

// TotalExpected sums MonthlyAmount over the active sources.
func TotalExpected(sources []domain.IncomeSource) float64 {
	total := 0.0
	for _, src := range sources {
		if src.IsActive {
			total += MonthlyAmount(src)
		}
	}
	return toFloat(decimal.NewFromFloat(total))
}
