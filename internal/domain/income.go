package domain

// IncomeType classifies an income source.
type IncomeType string

const (
	IncomeWork       IncomeType = "work"
	IncomeFreelance  IncomeType = "freelance"
	IncomeInvestment IncomeType = "investment"
	IncomePension    IncomeType = "pension"
	IncomeBenefits   IncomeType = "benefits"
	IncomeOther      IncomeType = "other"
)

// Frequency is how often an income source pays.
type Frequency string

const (
	FrequencyMonthly  Frequency = "monthly"
	FrequencyBiweekly Frequency = "biweekly"
	FrequencyWeekly   Frequency = "weekly"
	FrequencyDaily    Frequency = "daily"
	FrequencyCustom   Frequency = "custom"
)

// IncomeSource is a user rule that attributes received transactions to a
// named source by matching the counterparty.
type IncomeSource struct {
	ID                  string     `json:"id"`
	Name                string     `json:"name"`
	Type                IncomeType `json:"type"`
	ContactPattern      string     `json:"contactPattern"`
	ExpectedAmount      *float64   `json:"expectedAmount,omitempty"`
	Frequency           Frequency  `json:"frequency"`
	CustomFrequencyDays *int       `json:"customFrequencyDays,omitempty"`
	IsActive            bool       `json:"isActive"`
}

// IsWork reports whether the source counts towards work income.
func (s IncomeSource) IsWork() bool {
	return s.Type == IncomeWork || s.Type == IncomeFreelance
}
