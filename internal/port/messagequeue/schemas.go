package messagequeue

import (
	"github.com/Strob0t/forgetop/internal/port/control"
	"github.com/Strob0t/forgetop/internal/port/feed"
)

// AgentStatusPayload is the schema for agents.status messages.
type AgentStatusPayload = feed.Update

// ControlIntentPayload is the schema for agents.control messages.
type ControlIntentPayload = control.Intent

// ControlAckPayload is the schema for agents.control.ack messages.
type ControlAckPayload = control.Ack
