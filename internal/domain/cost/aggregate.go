package cost

import (
	"cmp"
	"slices"

	"github.com/Strob0t/forgetop/internal/domain/agent"
)

// unknownModel groups records that carry no model identifier.
const unknownModel = "unknown"

// ByModel groups agent spend and tokens per model, most expensive first.
func ByModel(records []agent.Record) []ModelSummary {
	idx := make(map[string]int)
	var out []ModelSummary
	for i := range records {
		r := &records[i]
		model := r.Model
		if model == "" {
			model = unknownModel
		}
		j, ok := idx[model]
		if !ok {
			j = len(out)
			idx[model] = j
			out = append(out, ModelSummary{Model: model})
		}
		out[j].TotalCostUSD += r.CostUSD
		out[j].TotalTokensIn += r.Tokens.Input
		out[j].TotalTokensOut += r.Tokens.Output
		out[j].RunCount++
	}
	slices.SortFunc(out, func(a, b ModelSummary) int {
		if c := cmp.Compare(b.TotalCostUSD, a.TotalCostUSD); c != 0 {
			return c
		}
		return cmp.Compare(a.Model, b.Model)
	})
	return out
}

// Total sums a set of agent records.
func Total(records []agent.Record) Summary {
	var s Summary
	for i := range records {
		s.TotalCostUSD += records[i].CostUSD
		s.TotalTokensIn += records[i].Tokens.Input
		s.TotalTokensOut += records[i].Tokens.Output
		s.RunCount++
	}
	return s
}

// Aggregate builds a Budget from the agents currently present. Spent is
// summed from the per-model totals so it matches the breakdown exactly.
func Aggregate(records []agent.Record, budget float64, period Period) Budget {
	b := Budget{Budget: budget, Period: period}
	models := ByModel(records)
	if len(models) == 0 {
		return b
	}
	b.Breakdown = make(map[string]float64, len(models))
	for _, m := range models {
		b.Breakdown[m.Model] = m.TotalCostUSD
		b.Spent += m.TotalCostUSD
	}
	return b
}

// AgentUsage reports one agent's spend against a per-agent budget using the
// agent budget policy.
func AgentUsage(r *agent.Record, perAgentBudget float64) Report {
	return Evaluate(Budget{Spent: r.CostUSD, Budget: perAgentBudget, Period: PeriodDaily}, PolicyAgentBudget)
}
