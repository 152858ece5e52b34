// Package cost defines domain types for cost and token aggregation and the
// budget tracker that thresholds and projects spend.
package cost

// Summary holds aggregate cost and token metrics.
type Summary struct {
	TotalCostUSD   float64 `json:"total_cost_usd"`
	TotalTokensIn  int64   `json:"total_tokens_in"`
	TotalTokensOut int64   `json:"total_tokens_out"`
	RunCount       int     `json:"run_count"`
}

// ModelSummary breaks down cost by LLM model.
type ModelSummary struct {
	Model string `json:"model"`
	Summary
}

// Period is the budget window.
type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodMonthly Period = "monthly"
)

// IsValid reports whether p is a known period.
func (p Period) IsValid() bool {
	return p == PeriodDaily || p == PeriodMonthly
}

// Budget is the cost summary a collaborator hands to the tracker. When
// Breakdown is present, Spent must equal the sum of its values; the tracker
// does not re-derive or check that.
type Budget struct {
	Spent     float64            `json:"spent"`
	Budget    float64            `json:"budget"`
	Period    Period             `json:"period"`
	Breakdown map[string]float64 `json:"breakdown,omitempty"`
}

// Color is the threshold band used by the views.
type Color string

const (
	ColorGreen  Color = "green"
	ColorYellow Color = "yellow"
	ColorRed    Color = "red"
	ColorGray   Color = "gray"
)
