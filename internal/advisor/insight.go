package advisor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dvloznov/pixtracker/internal/domain"
	"github.com/shopspring/decimal"
)

const insightPrompt = `Como consultor financeiro, analise o perfil financeiro e forneça recomendações:

Renda mensal: R$ %s
Gastos mensais: R$ %s
Saldo mensal: R$ %s

Com base nestes dados, recomende:
1. Quanto poupar por mês (valor absoluto e percentual da renda)
2. Tipo de investimento mais adequado
3. Justificativa da recomendação

Considere:
- Regra 50-30-20 (50%% necessidades, 30%% desejos, 20%% poupança)
- Reserva de emergência como prioridade
- Perfil conservador para iniciantes

Responda APENAS no formato JSON, sem Markdown:
{
  "recommendedSavings": valor_numerico,
  "savingsPercentage": percentual_numerico,
  "investmentType": "tipo_do_investimento",
  "recommendation": "explicacao_detalhada"
}`

const (
	defaultSavingsPercentage = 20.0
	defaultInvestmentType    = "Reserva de Emergência"
	defaultRecommendation    = "Mantenha disciplina financeira e comece poupando regularmente."
	emptyLogRecommendation   = "Comece a rastrear suas transações para receber insights personalizados."

	minFallbackPercentage = 5.0
	maxFallbackPercentage = 20.0
	// Below this monthly amount the fallback suggests Poupança over CDB.
	poupancaThreshold = 1000.0
)

// InvestmentInsight is a savings recommendation for the current month.
type InvestmentInsight struct {
	RecommendedSavings float64 `json:"recommendedSavings"`
	SavingsPercentage  float64 `json:"savingsPercentage"`
	InvestmentType     string  `json:"investmentType"`
	Recommendation     string  `json:"recommendation"`
	MonthlyExpenses    float64 `json:"monthlyExpenses"`
	MonthlyIncome      float64 `json:"monthlyIncome"`
	// Fallback is set when the recommendation was computed without the model.
	Fallback bool `json:"fallback"`
}

type insightResponse struct {
	RecommendedSavings *float64 `json:"recommendedSavings"`
	SavingsPercentage  *float64 `json:"savingsPercentage"`
	InvestmentType     string   `json:"investmentType"`
	Recommendation     string   `json:"recommendation"`
}

// InvestmentInsight recommends how much of this month's income to save.
func (s *Service) InvestmentInsight(ctx context.Context, txs []domain.Transaction) InvestmentInsight {
	if len(txs) == 0 {
		return InvestmentInsight{
			SavingsPercentage: defaultSavingsPercentage,
			InvestmentType:    defaultInvestmentType,
			Recommendation:    emptyLogRecommendation,
		}
	}

	start := monthStart(s.now(), s.loc)
	end := start.AddDate(0, 1, 0)
	income, expenses := decimal.Zero, decimal.Zero
	for _, tx := range txs {
		if tx.Date.Before(start) || !tx.Date.Before(end) {
			continue
		}
		if tx.Type == domain.TxReceived {
			income = income.Add(decimal.NewFromFloat(tx.Amount))
		} else {
			expenses = expenses.Add(decimal.NewFromFloat(tx.Amount))
		}
	}

	insight, err := s.modelInsight(ctx, income, expenses)
	if err != nil {
		s.log.Warn().Err(err).Msg("Model insight failed, using fallback")
		insight = fallbackInsight(income, expenses)
	}
	insight.MonthlyIncome = toFloat(income)
	insight.MonthlyExpenses = toFloat(expenses)
	return insight
}

func (s *Service) modelInsight(ctx context.Context, income, expenses decimal.Decimal) (InvestmentInsight, error) {
	if s.model == nil {
		return InvestmentInsight{}, fmt.Errorf("modelInsight: no model configured")
	}

	prompt := fmt.Sprintf(insightPrompt, income.StringFixed(2), expenses.StringFixed(2), income.Sub(expenses).StringFixed(2))
	raw, err := s.model.Generate(ctx, prompt)
	if err != nil {
		return InvestmentInsight{}, fmt.Errorf("modelInsight: %w", err)
	}

	var resp insightResponse
	if err := json.Unmarshal([]byte(cleanModelJSON(raw)), &resp); err != nil {
		return InvestmentInsight{}, fmt.Errorf("modelInsight: unmarshal JSON: %w", err)
	}

	out := InvestmentInsight{
		SavingsPercentage: defaultSavingsPercentage,
		InvestmentType:    defaultInvestmentType,
		Recommendation:    defaultRecommendation,
	}
	if resp.RecommendedSavings != nil {
		out.RecommendedSavings = *resp.RecommendedSavings
	}
	if resp.SavingsPercentage != nil && *resp.SavingsPercentage > 0 {
		out.SavingsPercentage = *resp.SavingsPercentage
	}
	if resp.InvestmentType != "" {
		out.InvestmentType = resp.InvestmentType
	}
	if resp.Recommendation != "" {
		out.Recommendation = resp.Recommendation
	}
	return out, nil
}

// fallbackInsight saves the month's surplus share of income, clamped to
// 5..20 percent. Without income it suggests the default 20 percent.
func fallbackInsight(income, expenses decimal.Decimal) InvestmentInsight {
	pct := decimal.NewFromFloat(defaultSavingsPercentage)
	if income.IsPositive() {
		pct = income.Sub(expenses).Mul(decimal.NewFromInt(100)).Div(income)
		pct = decimal.Max(decimal.NewFromFloat(minFallbackPercentage), decimal.Min(decimal.NewFromFloat(maxFallbackPercentage), pct))
	}
	savings := income.Mul(pct).Div(decimal.NewFromInt(100))

	investment := "CDB"
	if savings.LessThan(decimal.NewFromFloat(poupancaThreshold)) {
		investment = "Poupança"
	}

	return InvestmentInsight{
		RecommendedSavings: toFloat(savings),
		SavingsPercentage:  toFloat(pct),
		InvestmentType:     investment,
		Recommendation: fmt.Sprintf(
			"Com base em sua renda de R$ %s e gastos de R$ %s, recomendo poupar %s%% da renda mensal. "+
				"Foque primeiro em construir uma reserva de emergência de 6 meses de gastos.",
			income.StringFixed(2), expenses.StringFixed(2), pct.StringFixed(1)),
		Fallback: true,
	}
}
