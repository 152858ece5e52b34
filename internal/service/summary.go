package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	cfotel "github.com/Strob0t/forgetop/internal/adapter/otel"
	"github.com/Strob0t/forgetop/internal/domain/cost"
	"github.com/Strob0t/forgetop/internal/domain/quality"
	"github.com/Strob0t/forgetop/internal/port/summary"
)

// SummaryService reads cost and quality summaries published by the billing
// and evaluation collaborators.
type SummaryService struct {
	source summary.Source
	log    *slog.Logger

	mu      sync.Mutex
	lastErr map[string]string // kind -> last warned error
}

// NewSummaryService creates a SummaryService. A nil source always reports
// summary.ErrUnavailable.
func NewSummaryService(source summary.Source, log *slog.Logger) *SummaryService {
	if log == nil {
		log = slog.Default()
	}
	return &SummaryService{
		source:  source,
		log:     log.With("component", "summary"),
		lastErr: make(map[string]string),
	}
}

// Cost returns the published cost summary for period.
func (s *SummaryService) Cost(ctx context.Context, period cost.Period) (*cost.Budget, error) {
	if s.source == nil {
		return nil, summary.ErrUnavailable
	}
	ctx, span := cfotel.StartSummarySpan(ctx, "cost")
	defer span.End()

	b, err := s.source.Cost(ctx, period)
	if err != nil {
		s.logErr(ctx, "cost", err)
		return nil, err
	}
	s.recovered(ctx, "cost")
	return b, nil
}

// Quality returns the published quality summary.
func (s *SummaryService) Quality(ctx context.Context) (*quality.Summary, error) {
	if s.source == nil {
		return nil, summary.ErrUnavailable
	}
	ctx, span := cfotel.StartSummarySpan(ctx, "quality")
	defer span.End()

	q, err := s.source.Quality(ctx)
	if err != nil {
		s.logErr(ctx, "quality", err)
		return nil, err
	}
	s.recovered(ctx, "quality")
	return q, nil
}

// logErr warns once per kind until the error changes or a fetch succeeds;
// refresh ticks would repeat it otherwise.
func (s *SummaryService) logErr(ctx context.Context, kind string, err error) {
	if errors.Is(err, summary.ErrUnavailable) {
		s.log.DebugContext(ctx, "summary not published yet", "kind", kind)
		return
	}
	s.mu.Lock()
	repeated := s.lastErr[kind] == err.Error()
	s.lastErr[kind] = err.Error()
	s.mu.Unlock()
	if repeated {
		s.log.DebugContext(ctx, "fetch summary", "kind", kind, "error", err)
		return
	}
	s.log.WarnContext(ctx, "fetch summary", "kind", kind, "error", err)
}

func (s *SummaryService) recovered(ctx context.Context, kind string) {
	s.mu.Lock()
	_, failing := s.lastErr[kind]
	delete(s.lastErr, kind)
	s.mu.Unlock()
	if failing {
		s.log.InfoContext(ctx, "summary fetch recovered", "kind", kind)
	}
}
