package nats

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/Strob0t/forgetop/internal/domain/agent"
	"github.com/Strob0t/forgetop/internal/logger"
	"github.com/Strob0t/forgetop/internal/port/control"
	"github.com/Strob0t/forgetop/internal/port/feed"
	"github.com/Strob0t/forgetop/internal/port/messagequeue"
)

// memQueue delivers published messages synchronously to subscribers of the
// same subject.
type memQueue struct {
	mu        sync.Mutex
	handlers  map[string][]messagequeue.Handler
	published []publishedMsg
	failWith  error
}

type publishedMsg struct {
	subject   string
	data      []byte
	requestID string
}

func newMemQueue() *memQueue {
	return &memQueue{handlers: make(map[string][]messagequeue.Handler)}
}

func (m *memQueue) Publish(ctx context.Context, subject string, data []byte) error {
	m.mu.Lock()
	if m.failWith != nil {
		m.mu.Unlock()
		return m.failWith
	}
	m.published = append(m.published, publishedMsg{subject: subject, data: data, requestID: logger.RequestID(ctx)})
	hs := append([]messagequeue.Handler(nil), m.handlers[subject]...)
	m.mu.Unlock()

	for _, h := range hs {
		if err := h(ctx, subject, data); err != nil {
			return err
		}
	}
	return nil
}

func (m *memQueue) Subscribe(_ context.Context, subject string, handler messagequeue.Handler) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[subject] = append(m.handlers[subject], handler)
	return func() {}, nil
}

func (m *memQueue) Drain() error      { return nil }
func (m *memQueue) Close() error      { return nil }
func (m *memQueue) IsConnected() bool { return true }

func TestAgentsDeliversStatusUpdates(t *testing.T) {
	q := newMemQueue()
	a := NewAgents(q)

	var (
		got     []feed.Update
		agentID string
	)
	if _, err := a.Subscribe(context.Background(), func(ctx context.Context, u feed.Update) error {
		got = append(got, u)
		agentID = logger.AgentID(ctx)
		return nil
	}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	data := []byte(`{"kind":"snapshot","record":{"id":"a1","model":"gpt-4","status":"running"}}`)
	if err := q.Publish(context.Background(), messagequeue.SubjectAgentStatus, data); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if len(got) != 1 {
		t.Fatalf("expected 1 update, got %d", len(got))
	}
	if got[0].Kind != feed.KindSnapshot || got[0].Record == nil || got[0].Record.Status != agent.StatusRunning {
		t.Fatalf("unexpected update %+v", got[0])
	}
	if agentID != "a1" {
		t.Fatalf("expected agent id a1 in context, got %q", agentID)
	}
}

func TestAgentsRejectsUndecodableStatus(t *testing.T) {
	q := newMemQueue()
	a := NewAgents(q)

	called := false
	if _, err := a.Subscribe(context.Background(), func(context.Context, feed.Update) error {
		called = true
		return nil
	}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	err := q.Publish(context.Background(), messagequeue.SubjectAgentStatus, []byte(`{"kind":"delta","id":"a1","delta":{"cost_usd":"lots"}}`))
	if err == nil {
		t.Fatal("expected decode error")
	}
	if called {
		t.Fatal("handler ran for undecodable payload")
	}
}

func TestAgentsSendPublishesIntent(t *testing.T) {
	q := newMemQueue()
	a := NewAgents(q)

	in := control.Intent{ID: "i1", AgentID: "a1", Control: agent.ControlPause, Target: agent.StatusPaused}
	if err := a.Send(context.Background(), in); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if len(q.published) != 1 {
		t.Fatalf("expected 1 message, got %d", len(q.published))
	}
	msg := q.published[0]
	if msg.subject != messagequeue.SubjectAgentControl {
		t.Fatalf("unexpected subject %q", msg.subject)
	}
	if err := messagequeue.Validate(msg.subject, msg.data); err != nil {
		t.Fatalf("published intent fails validation: %v", err)
	}
	var decoded control.Intent
	if err := json.Unmarshal(msg.data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.ID != "i1" || decoded.Target != agent.StatusPaused {
		t.Fatalf("unexpected intent %+v", decoded)
	}
	if msg.requestID != "i1" {
		t.Fatalf("expected intent id as request id, got %q", msg.requestID)
	}
}

func TestAgentsSendKeepsCallerRequestID(t *testing.T) {
	q := newMemQueue()
	a := NewAgents(q)

	ctx := logger.WithRequestID(context.Background(), "req-1")
	if err := a.Send(ctx, control.Intent{ID: "i1", AgentID: "a1"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if q.published[0].requestID != "req-1" {
		t.Fatalf("expected req-1, got %q", q.published[0].requestID)
	}
}

func TestAgentsSendPropagatesPublishError(t *testing.T) {
	q := newMemQueue()
	q.failWith = errors.New("no responders")
	a := NewAgents(q)

	if err := a.Send(context.Background(), control.Intent{ID: "i1", AgentID: "a1"}); !errors.Is(err, q.failWith) {
		t.Fatalf("expected publish error, got %v", err)
	}
}

func TestAgentsDeliversAcks(t *testing.T) {
	q := newMemQueue()
	a := NewAgents(q)

	var (
		got      control.Ack
		intentID string
	)
	if _, err := a.SubscribeAcks(context.Background(), func(ctx context.Context, ack control.Ack) error {
		got = ack
		intentID = logger.IntentID(ctx)
		return nil
	}); err != nil {
		t.Fatalf("SubscribeAcks: %v", err)
	}

	data := []byte(`{"intent_id":"i1","agent_id":"a1","accepted":false,"reason":"busy"}`)
	if err := q.Publish(context.Background(), messagequeue.SubjectAgentControlAck, data); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if got.IntentID != "i1" || got.Accepted || got.Reason != "busy" {
		t.Fatalf("unexpected ack %+v", got)
	}
	if intentID != "i1" {
		t.Fatalf("expected intent id in context, got %q", intentID)
	}
}
