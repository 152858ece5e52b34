package ws

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Strob0t/forgetop/internal/domain"
	"github.com/Strob0t/forgetop/internal/domain/agent"
	"github.com/Strob0t/forgetop/internal/port/control"
	"github.com/Strob0t/forgetop/internal/port/feed"
)

// Event type constants for WebSocket messages.
//
// Platform -> dashboard: agent.status, agent.delta, agent.removed, agent.control.ack.
// Dashboard -> platform: agent.control.
// Dashboard -> watchers: agent.updated, agent.removed, agent.control.pending, dashboard.snapshot.
const (
	EventAgentStatus    = "agent.status"
	EventAgentDelta     = "agent.delta"
	EventAgentRemoved   = "agent.removed"
	EventControlAck     = "agent.control.ack"
	EventControl        = "agent.control"
	EventAgentUpdated   = "agent.updated"
	EventControlPending = "agent.control.pending"
	EventSnapshot       = "dashboard.snapshot"
)

// AgentDeltaEvent carries an incremental change for one agent.
type AgentDeltaEvent struct {
	AgentID string     `json:"agent_id"`
	Delta   feed.Delta `json:"delta"`
}

// AgentRemovedEvent announces that an agent left the platform.
type AgentRemovedEvent struct {
	AgentID string `json:"agent_id"`
}

// ControlPendingEvent tells watchers an agent has a control request in flight.
type ControlPendingEvent struct {
	AgentID  string        `json:"agent_id"`
	IntentID string        `json:"intent_id"`
	Control  agent.Control `json:"control"`
	Pending  bool          `json:"pending"`
}

// BroadcastEvent is a convenience method that marshals a typed event and broadcasts it.
func (h *Hub) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	msg, err := NewMessage(eventType, payload)
	if err != nil {
		h.log.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}
	h.Broadcast(ctx, msg)
}

// NewMessage wraps payload in the {type, payload} envelope.
func NewMessage(eventType string, payload any) (Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("marshal %s: %w", eventType, err)
	}
	return Message{Type: eventType, Payload: json.RawMessage(data)}, nil
}

// decodeUpdate turns a platform status message into a feed update. ok is
// false for message types that are not status updates.
func decodeUpdate(msg Message) (u feed.Update, ok bool, err error) {
	switch msg.Type {
	case EventAgentStatus:
		var rec agent.Record
		if err := json.Unmarshal(msg.Payload, &rec); err != nil {
			return feed.Update{}, true, fmt.Errorf("decode %s: %w", msg.Type, err)
		}
		u = feed.Update{Kind: feed.KindSnapshot, ID: rec.ID, Record: &rec}
	case EventAgentDelta:
		var ev AgentDeltaEvent
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			return feed.Update{}, true, fmt.Errorf("decode %s: %w", msg.Type, err)
		}
		u = feed.Update{Kind: feed.KindDelta, ID: ev.AgentID, Delta: &ev.Delta}
	case EventAgentRemoved:
		var ev AgentRemovedEvent
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			return feed.Update{}, true, fmt.Errorf("decode %s: %w", msg.Type, err)
		}
		u = feed.Update{Kind: feed.KindRemove, ID: ev.AgentID}
	default:
		return feed.Update{}, false, nil
	}
	if err := u.Validate(); err != nil {
		return feed.Update{}, true, err
	}
	return u, true, nil
}

func decodeAck(msg Message) (control.Ack, error) {
	var ack control.Ack
	if err := json.Unmarshal(msg.Payload, &ack); err != nil {
		return control.Ack{}, fmt.Errorf("decode %s: %w", msg.Type, err)
	}
	if ack.IntentID == "" {
		return control.Ack{}, fmt.Errorf("ack without intent id: %w", domain.ErrValidation)
	}
	return ack, nil
}
