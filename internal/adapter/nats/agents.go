package nats

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Strob0t/forgetop/internal/logger"
	"github.com/Strob0t/forgetop/internal/port/control"
	"github.com/Strob0t/forgetop/internal/port/feed"
	"github.com/Strob0t/forgetop/internal/port/messagequeue"
)

// Agents carries the agent protocol over a message queue: status updates
// arrive on agents.status, intents leave on agents.control and answers come
// back on agents.control.ack.
type Agents struct {
	q messagequeue.Queue
}

// NewAgents binds the agent protocol to q.
func NewAgents(q messagequeue.Queue) *Agents {
	return &Agents{q: q}
}

// Subscribe implements feed.Feed. Payloads that fail to decode are rejected
// by the queue's validator before they reach h.
func (a *Agents) Subscribe(ctx context.Context, h feed.Handler) (func(), error) {
	return a.q.Subscribe(ctx, messagequeue.SubjectAgentStatus, func(ctx context.Context, _ string, data []byte) error {
		var u messagequeue.AgentStatusPayload
		if err := json.Unmarshal(data, &u); err != nil {
			return fmt.Errorf("decode status update: %w", err)
		}
		return h(logger.WithAgentID(ctx, u.AgentID()), u)
	})
}

// Send implements control.Sink.
func (a *Agents) Send(ctx context.Context, in control.Intent) error {
	data, err := json.Marshal(messagequeue.ControlIntentPayload(in))
	if err != nil {
		return fmt.Errorf("encode intent: %w", err)
	}
	if logger.RequestID(ctx) == "" {
		ctx = logger.WithRequestID(ctx, in.ID)
	}
	return a.q.Publish(ctx, messagequeue.SubjectAgentControl, data)
}

// SubscribeAcks implements control.AckSource.
func (a *Agents) SubscribeAcks(ctx context.Context, h control.AckHandler) (func(), error) {
	return a.q.Subscribe(ctx, messagequeue.SubjectAgentControlAck, func(ctx context.Context, _ string, data []byte) error {
		var ack messagequeue.ControlAckPayload
		if err := json.Unmarshal(data, &ack); err != nil {
			return fmt.Errorf("decode control ack: %w", err)
		}
		return h(logger.WithIntentID(ctx, ack.IntentID), ack)
	})
}

var (
	_ feed.Feed         = (*Agents)(nil)
	_ control.Sink      = (*Agents)(nil)
	_ control.AckSource = (*Agents)(nil)
)
