// Package control defines the outbound control-request port. The dashboard
// emits an intent when a user invokes an enabled control; a collaborator
// carries it out against the real process and may acknowledge it.
package control

import (
	"context"
	"time"

	"github.com/Strob0t/forgetop/internal/domain/agent"
)

// Intent asks the collaborator to move an agent to Target.
type Intent struct {
	ID          string        `json:"id"`
	AgentID     string        `json:"agent_id"`
	Control     agent.Control `json:"control"`
	Target      agent.Status  `json:"target"`
	RequestedAt time.Time     `json:"requested_at"`
}

// Ack is the collaborator's answer to an intent.
type Ack struct {
	IntentID string `json:"intent_id"`
	AgentID  string `json:"agent_id"`
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

// Sink delivers intents to the collaborator.
type Sink interface {
	Send(ctx context.Context, in Intent) error
}

// AckHandler processes one acknowledgement.
type AckHandler func(ctx context.Context, ack Ack) error

// AckSource delivers acknowledgements back to the dashboard.
type AckSource interface {
	SubscribeAcks(ctx context.Context, h AckHandler) (cancel func(), err error)
}
