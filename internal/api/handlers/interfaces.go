package handlers

import (
	"context"
	"time"

	"github.com/dvloznov/pixtracker/internal/advisor"
	"github.com/dvloznov/pixtracker/internal/capture"
	"github.com/dvloznov/pixtracker/internal/domain"
	"github.com/dvloznov/pixtracker/internal/ledger"
	"github.com/shopspring/decimal"
)

// Ledger is the transaction log as used by the HTTP layer.
type Ledger interface {
	State() ledger.State
	All() []domain.Transaction
	Recent(n int) []domain.Transaction
	CurrentMonth(typ domain.TxType) []domain.Transaction
	MonthlySummary() []ledger.MonthlyData
	Delete(ctx context.Context, id string) (int, error)
	SetCategory(ctx context.Context, id string, category domain.Category) error
	Clear(ctx context.Context)
	Location() *time.Location
	Now() time.Time
}

// CaptureInbox accepts events from capture devices.
type CaptureInbox interface {
	IsEnabled(ctx context.Context) (capture.Status, error)
	Publish(ctx context.Context, ev domain.RawEvent) error
	Pending(ctx context.Context) (int, error)
}

// Settings stores income sources and the manual income override.
type Settings interface {
	IncomeSources(ctx context.Context) ([]domain.IncomeSource, error)
	SaveIncomeSource(ctx context.Context, src domain.IncomeSource) (domain.IncomeSource, error)
	DeleteIncomeSource(ctx context.Context, id string) error
	MonthlyIncome(ctx context.Context) (decimal.Decimal, bool, error)
	SetMonthlyIncome(ctx context.Context, amount decimal.Decimal) error
}

// Advisor produces spending and saving insights.
type Advisor interface {
	CategorizeSpending(ctx context.Context, txs []domain.Transaction) []advisor.SpendingCategory
	InvestmentInsight(ctx context.Context, txs []domain.Transaction) advisor.InvestmentInsight
}
