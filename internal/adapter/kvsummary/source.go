// Package kvsummary reads the cost and quality summaries that billing and
// evaluation collaborators publish as JSON documents in a cache.
package kvsummary

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Strob0t/forgetop/internal/domain/cost"
	"github.com/Strob0t/forgetop/internal/domain/quality"
	"github.com/Strob0t/forgetop/internal/port/cache"
	"github.com/Strob0t/forgetop/internal/port/summary"
)

// QualityKey holds the latest quality summary.
const QualityKey = "quality"

// CostKey returns the key holding the cost summary for period.
func CostKey(period cost.Period) string {
	return "cost." + string(period)
}

// Source implements summary.Source over a cache.
type Source struct {
	c cache.Cache
}

// New creates a Source reading from c.
func New(c cache.Cache) *Source {
	return &Source{c: c}
}

// Cost returns the published cost summary for period. A summary without a
// period is taken to be for the requested one.
func (s *Source) Cost(ctx context.Context, period cost.Period) (*cost.Budget, error) {
	var b cost.Budget
	if err := s.load(ctx, CostKey(period), &b); err != nil {
		return nil, err
	}
	if b.Period == "" {
		b.Period = period
	}
	if b.Spent < 0 || b.Budget < 0 {
		return nil, fmt.Errorf("cost summary %s: negative amounts: %w", period, summary.ErrUnavailable)
	}
	return &b, nil
}

// Quality returns the published quality summary.
func (s *Source) Quality(ctx context.Context) (*quality.Summary, error) {
	var q quality.Summary
	if err := s.load(ctx, QualityKey, &q); err != nil {
		return nil, err
	}
	return &q, nil
}

func (s *Source) load(ctx context.Context, key string, v any) error {
	data, found, err := s.c.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("read summary %s: %w", key, err)
	}
	if !found {
		return fmt.Errorf("summary %s: %w", key, summary.ErrUnavailable)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode summary %s: %w", key, err)
	}
	return nil
}

var _ summary.Source = (*Source)(nil)
