package advisor

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dvloznov/pixtracker/internal/domain"
	"github.com/shopspring/decimal"
)

const categorizePrompt = `Analise os seguintes contatos e categorize-os em setores de gastos. Para cada contato, forneça apenas uma categoria principal baseada no nome/tipo de estabelecimento:

Contatos: %s

Categorias possíveis:
- Alimentação (restaurantes, delivery, mercados)
- Transporte (uber, 99, combustível, estacionamento)
- Entretenimento (cinema, streaming, jogos, bares)
- Saúde (farmácias, médicos, exames)
- Educação (cursos, livros, universidade)
- Roupas (lojas de vestuário, calçados)
- Casa (móveis, decoração, limpeza)
- Serviços (cabelereiro, academia, manutenção)
- Outros

Responda APENAS no formato JSON, sem Markdown:
{
  "categories": {
    "nome_do_contato": "categoria"
  }
}`

const fallbackCategory = "Outros"

// keywordRules are tried in order against the lowercased contact.
var keywordRules = []struct {
	category string
	keywords []string
}{
	{"Alimentação", []string{"ifood", "mercado", "restaurante", "food", "lanche", "pizza", "burger", "padaria"}},
	{"Transporte", []string{"uber", "99", "taxi", "posto", "combust"}},
	{"Entretenimento", []string{"cinema", "netflix", "spotify"}},
	{"Saúde", []string{"farmácia", "farmacia", "médico", "medico", "hospital"}},
}

// SpendingCategory aggregates sent transactions of one category.
type SpendingCategory struct {
	Category       string               `json:"category"`
	Amount         float64              `json:"amount"`
	Percentage     float64              `json:"percentage"`
	MonthlyAverage float64              `json:"monthlyAverage"`
	Transactions   []domain.Transaction `json:"transactions"`
}

type categorizeResponse struct {
	Categories map[string]string `json:"categories"`
}

// CategorizeSpending groups sent transactions into spending categories,
// largest first. Received transactions are ignored.
func (s *Service) CategorizeSpending(ctx context.Context, txs []domain.Transaction) []SpendingCategory {
	byContact := map[string][]domain.Transaction{}
	var contacts []string
	for _, tx := range txs {
		if tx.Type != domain.TxSent {
			continue
		}
		if _, ok := byContact[tx.Contact]; !ok {
			contacts = append(contacts, tx.Contact)
		}
		byContact[tx.Contact] = append(byContact[tx.Contact], tx)
	}
	if len(contacts) == 0 {
		return []SpendingCategory{}
	}

	assigned, err := s.modelCategories(ctx, contacts)
	if err != nil {
		s.log.Warn().Err(err).Int("contacts", len(contacts)).Msg("Model categorization failed, using keyword rules")
		assigned = make(map[string]string, len(contacts))
		for _, c := range contacts {
			assigned[c] = keywordCategory(c)
		}
	}

	groups := map[string][]domain.Transaction{}
	for _, c := range contacts {
		category := strings.TrimSpace(assigned[c])
		if category == "" {
			category = fallbackCategory
		}
		groups[category] = append(groups[category], byContact[c]...)
	}
	return summarize(groups)
}

func (s *Service) modelCategories(ctx context.Context, contacts []string) (map[string]string, error) {
	if s.model == nil {
		return nil, fmt.Errorf("modelCategories: no model configured")
	}

	raw, err := s.model.Generate(ctx, fmt.Sprintf(categorizePrompt, strings.Join(contacts, ", ")))
	if err != nil {
		return nil, fmt.Errorf("modelCategories: %w", err)
	}

	var resp categorizeResponse
	if err := json.Unmarshal([]byte(cleanModelJSON(raw)), &resp); err != nil {
		return nil, fmt.Errorf("modelCategories: unmarshal JSON: %w", err)
	}
	if len(resp.Categories) == 0 {
		return nil, fmt.Errorf("modelCategories: no categories in response")
	}
	return resp.Categories, nil
}

func keywordCategory(contact string) string {
	c := strings.ToLower(contact)
	for _, rule := range keywordRules {
		for _, kw := range rule.keywords {
			if strings.Contains(c, kw) {
				return rule.category
			}
		}
	}
	return fallbackCategory
}

func summarize(groups map[string][]domain.Transaction) []SpendingCategory {
	total := decimal.Zero
	amounts := make(map[string]decimal.Decimal, len(groups))
	for category, txs := range groups {
		sum := decimal.Zero
		for _, tx := range txs {
			sum = sum.Add(decimal.NewFromFloat(tx.Amount))
		}
		amounts[category] = sum
		total = total.Add(sum)
	}

	out := make([]SpendingCategory, 0, len(groups))
	for category, txs := range groups {
		amount := amounts[category]
		pct := decimal.Zero
		if !total.IsZero() {
			pct = amount.Mul(decimal.NewFromInt(100)).Div(total)
		}
		out = append(out, SpendingCategory{
			Category:       category,
			Amount:         toFloat(amount),
			Percentage:     toFloat(pct),
			MonthlyAverage: toFloat(amount.Div(decimal.NewFromInt(int64(monthsSpan(txs))))),
			Transactions:   txs,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Amount != out[j].Amount {
			return out[i].Amount > out[j].Amount
		}
		return out[i].Category < out[j].Category
	})
	return out
}

// monthsSpan counts calendar months from the oldest to the newest
// transaction, inclusive.
func monthsSpan(txs []domain.Transaction) int {
	if len(txs) == 0 {
		return 1
	}
	first, last := txs[0].Date, txs[0].Date
	for _, tx := range txs[1:] {
		if tx.Date.Before(first) {
			first = tx.Date
		}
		if tx.Date.After(last) {
			last = tx.Date
		}
	}
	n := (last.Year()-first.Year())*12 + int(last.Month()) - int(first.Month()) + 1
	return max(1, n)
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Round(2).Float64()
	return f
}

func monthStart(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc)
}
