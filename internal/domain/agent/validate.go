package agent

import (
	"fmt"

	"github.com/Strob0t/forgetop/internal/domain"
)

// Validate checks a record delivered by the status feed. The dashboard core
// never calls it on its own; ingestion runs it only in strict mode.
func (r *Record) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("id is required: %w", domain.ErrValidation)
	}
	if !r.Status.IsValid() {
		return fmt.Errorf("invalid status %q: %w", r.Status, domain.ErrValidation)
	}
	if r.Tokens.Input < 0 || r.Tokens.Output < 0 {
		return fmt.Errorf("tokens must be non-negative: %w", domain.ErrValidation)
	}
	if r.CostUSD < 0 {
		return fmt.Errorf("cost_usd must be non-negative: %w", domain.ErrValidation)
	}
	if r.Status.IsTerminal() != (r.EndTime != nil) {
		return fmt.Errorf("end_time must be set iff status is terminal (status %q): %w", r.Status, domain.ErrValidation)
	}
	if r.Error != nil && r.Status != StatusFailed {
		return fmt.Errorf("error is only allowed on failed agents: %w", domain.ErrValidation)
	}
	if r.Quality != nil && (r.Quality.Score < 0 || r.Quality.Score > 100) {
		return fmt.Errorf("quality score %.2f out of range 0-100: %w", r.Quality.Score, domain.ErrValidation)
	}
	return nil
}
