// Package feed defines the inbound agent-status port. A transport delivers
// full record snapshots or incremental deltas; delivery cadence, retry and
// reconnection are the transport's concern.
package feed

import (
	"context"
	"fmt"

	"github.com/Strob0t/forgetop/internal/domain"
	"github.com/Strob0t/forgetop/internal/domain/agent"
)

// Kind tells the registry how to apply an update.
type Kind string

const (
	KindSnapshot Kind = "snapshot"
	KindDelta    Kind = "delta"
	KindRemove   Kind = "remove"
)

// Delta carries the fields that changed since the last update. Nil fields
// are left untouched.
type Delta struct {
	Status  *agent.Status  `json:"status,omitempty"`
	Tokens  *agent.Tokens  `json:"tokens,omitempty"`
	CostUSD *float64       `json:"cost_usd,omitempty"`
	Quality *agent.Quality `json:"quality,omitempty"`
	Error   *agent.Failure `json:"error,omitempty"`
}

// Update is one message from the status feed.
type Update struct {
	Kind   Kind          `json:"kind"`
	ID     string        `json:"id"`
	Record *agent.Record `json:"record,omitempty"`
	Delta  *Delta        `json:"delta,omitempty"`
}

// AgentID returns the id the update applies to.
func (u *Update) AgentID() string {
	if u.ID != "" {
		return u.ID
	}
	if u.Record != nil {
		return u.Record.ID
	}
	return ""
}

// Validate checks the envelope shape. Record contents are only checked by
// the registry in strict mode.
func (u *Update) Validate() error {
	if u.AgentID() == "" {
		return fmt.Errorf("update without agent id: %w", domain.ErrValidation)
	}
	switch u.Kind {
	case KindSnapshot:
		if u.Record == nil {
			return fmt.Errorf("snapshot without record: %w", domain.ErrValidation)
		}
	case KindDelta:
		if u.Delta == nil {
			return fmt.Errorf("delta without changes: %w", domain.ErrValidation)
		}
	case KindRemove:
	default:
		return fmt.Errorf("unknown update kind %q: %w", u.Kind, domain.ErrValidation)
	}
	return nil
}

// Handler processes one update.
type Handler func(ctx context.Context, u Update) error

// Feed is the port implemented by status transports.
type Feed interface {
	// Subscribe starts delivering updates to h until ctx ends or cancel is called.
	Subscribe(ctx context.Context, h Handler) (cancel func(), err error)
}
