package resilience

import (
	"context"
	"fmt"
	"time"

	"github.com/Strob0t/forgetop/internal/port/control"
)

// GuardedSink protects a control.Sink with a Breaker and a per-call timeout,
// so a stalled platform fails control requests quickly instead of piling
// them up.
type GuardedSink struct {
	next    control.Sink
	breaker *Breaker
	timeout time.Duration
}

var _ control.Sink = (*GuardedSink)(nil)

// NewGuardedSink wraps next. A zero timeout leaves the caller's deadline alone.
func NewGuardedSink(next control.Sink, b *Breaker, timeout time.Duration) *GuardedSink {
	return &GuardedSink{next: next, breaker: b, timeout: timeout}
}

// Send forwards the intent through the breaker.
func (s *GuardedSink) Send(ctx context.Context, in control.Intent) error {
	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		if s.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.timeout)
			defer cancel()
		}
		return s.next.Send(ctx, in)
	})
	if err != nil {
		return fmt.Errorf("send control %s for agent %s: %w", in.Control, in.AgentID, err)
	}
	return nil
}

// Breaker exposes the underlying breaker for status reporting.
func (s *GuardedSink) Breaker() *Breaker { return s.breaker }
