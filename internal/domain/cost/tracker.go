package cost

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"github.com/Strob0t/forgetop/internal/domain"
)

// Policy selects one of the two threshold schemes. They are kept apart on
// purpose: per-agent budgets and the aggregate meter band differently.
type Policy string

const (
	// PolicyAgentBudget bands a single agent's daily usage: >=100 red, >=80 yellow.
	PolicyAgentBudget Policy = "agent_budget"
	// PolicyCostMeter bands the aggregate cost meter: >=80 red, >=50 yellow.
	PolicyCostMeter Policy = "cost_meter"
)

// ParsePolicy converts a config string into a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyAgentBudget, PolicyCostMeter:
		return Policy(s), nil
	}
	return "", fmt.Errorf("unknown cost policy %q: %w", s, domain.ErrValidation)
}

// Color bands a display percentage. A budget of zero or less is neutral gray.
func (p Policy) Color(pct, budget float64) Color {
	if budget <= 0 {
		return ColorGray
	}
	red, yellow := 80.0, 50.0
	if p == PolicyAgentBudget {
		red, yellow = 100, 80
	}
	switch {
	case pct >= red:
		return ColorRed
	case pct >= yellow:
		return ColorYellow
	default:
		return ColorGreen
	}
}

// Percentage returns spent as a share of budget, capped at 100. Over-budget
// is reported by OverBudget, never by an out-of-range percentage.
func Percentage(spent, budget float64) float64 {
	if budget <= 0 {
		return 0
	}
	return min(spent/budget*100, 100)
}

// Remaining returns the unspent budget, floored at zero.
func Remaining(spent, budget float64) float64 {
	return max(budget-spent, 0)
}

// OverBudget reports whether spend strictly exceeds the budget.
func OverBudget(spent, budget float64) bool {
	return spent > budget
}

// Projection is a linear extrapolation of spend to the end of the period.
type Projection struct {
	DailyRate float64 `json:"daily_rate"`
	Projected float64 `json:"projected"`
}

// Project extrapolates spend. It returns false unless both daysElapsed and
// totalDays are positive. Whether the projection exceeds the budget is left
// to the caller.
func Project(spent, daysElapsed, totalDays float64) (Projection, bool) {
	if daysElapsed <= 0 || totalDays <= 0 {
		return Projection{}, false
	}
	rate := spent / daysElapsed
	return Projection{DailyRate: rate, Projected: rate * totalDays}, true
}

// SortBreakdown returns breakdown entries by spend descending, ties by model.
func SortBreakdown(breakdown map[string]float64) []ModelSummary {
	out := make([]ModelSummary, 0, len(breakdown))
	for model, spent := range breakdown {
		out = append(out, ModelSummary{Model: model, Summary: Summary{TotalCostUSD: spent}})
	}
	slices.SortFunc(out, func(a, b ModelSummary) int {
		if c := cmp.Compare(b.TotalCostUSD, a.TotalCostUSD); c != 0 {
			return c
		}
		return cmp.Compare(a.Model, b.Model)
	})
	return out
}

// Report is everything a cost view renders.
type Report struct {
	Spent      float64        `json:"spent"`
	Budget     float64        `json:"budget"`
	Period     Period         `json:"period"`
	Percentage float64        `json:"percentage"`
	Remaining  float64        `json:"remaining"`
	OverBudget bool           `json:"over_budget"`
	Color      Color          `json:"color"`
	Policy     Policy         `json:"policy"`
	Projection *Projection    `json:"projection,omitempty"`
	Breakdown  []ModelSummary `json:"breakdown,omitempty"`
}

// Option customises Evaluate.
type Option func(*evalOptions)

type evalOptions struct {
	daysElapsed float64
	totalDays   float64
}

// WithDays supplies the period position used for the projection.
func WithDays(elapsed, total float64) Option {
	return func(o *evalOptions) {
		o.daysElapsed = elapsed
		o.totalDays = total
	}
}

// Evaluate derives the full report for b under policy.
func Evaluate(b Budget, policy Policy, opts ...Option) Report {
	var o evalOptions
	for _, fn := range opts {
		fn(&o)
	}

	pct := Percentage(b.Spent, b.Budget)
	r := Report{
		Spent:      b.Spent,
		Budget:     b.Budget,
		Period:     b.Period,
		Percentage: pct,
		Remaining:  Remaining(b.Spent, b.Budget),
		OverBudget: OverBudget(b.Spent, b.Budget),
		Color:      policy.Color(pct, b.Budget),
		Policy:     policy,
	}
	if p, ok := Project(b.Spent, o.daysElapsed, o.totalDays); ok {
		r.Projection = &p
	}
	if len(b.Breakdown) > 0 {
		r.Breakdown = SortBreakdown(b.Breakdown)
	}
	return r
}

// PeriodDays returns how far into the period now is and the period length,
// both in days. Daily periods report the elapsed fraction of the day.
func PeriodDays(p Period, now time.Time) (elapsed, total float64) {
	switch p {
	case PeriodMonthly:
		firstOfNext := time.Date(now.Year(), now.Month()+1, 1, 0, 0, 0, 0, now.Location())
		total = float64(firstOfNext.AddDate(0, 0, -1).Day())
		startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		elapsed = float64(now.Day()-1) + now.Sub(startOfDay).Hours()/24
	default:
		startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		total = 1
		elapsed = now.Sub(startOfDay).Hours() / 24
	}
	return elapsed, total
}
