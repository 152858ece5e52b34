// Package summary defines the port through which billing and evaluation
// collaborators hand cost and quality summaries to the dashboard.
package summary

import (
	"context"
	"errors"

	"github.com/Strob0t/forgetop/internal/domain/cost"
	"github.com/Strob0t/forgetop/internal/domain/quality"
)

// ErrUnavailable is returned when no summary has been published yet.
var ErrUnavailable = errors.New("summary unavailable")

// Source provides the latest published summaries.
type Source interface {
	// Cost returns the cost summary for the given budget period.
	Cost(ctx context.Context, period cost.Period) (*cost.Budget, error)
	// Quality returns the latest quality summary.
	Quality(ctx context.Context) (*quality.Summary, error)
}
