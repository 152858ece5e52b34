package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"

	cfotel "github.com/Strob0t/forgetop/internal/adapter/otel"
	"github.com/Strob0t/forgetop/internal/adapter/ws"
	"github.com/Strob0t/forgetop/internal/domain"
	"github.com/Strob0t/forgetop/internal/domain/agent"
	"github.com/Strob0t/forgetop/internal/logger"
	"github.com/Strob0t/forgetop/internal/port/broadcast"
	"github.com/Strob0t/forgetop/internal/port/control"
	"github.com/Strob0t/forgetop/internal/port/feed"
	"github.com/Strob0t/forgetop/internal/store"
)

// AgentState is the agent registry snapshot. Maps are copied on write, so a
// snapshot handed to a listener never changes underneath it.
type AgentState struct {
	Agents   map[string]agent.Record
	Order    []string // arrival order
	Selected string
	Pending  map[string]control.Intent // in-flight control requests by agent id

	undo map[string]agent.Record // pre-control records for optimistic rollback
}

// Records returns the agents in arrival order.
func (s AgentState) Records() []agent.Record {
	out := make([]agent.Record, 0, len(s.Order))
	for _, id := range s.Order {
		out = append(out, s.Agents[id])
	}
	return out
}

// Get returns the agent with the given id.
func (s AgentState) Get(id string) (agent.Record, bool) {
	r, ok := s.Agents[id]
	return r, ok
}

// Selection returns the selected agent, or nil when nothing is selected.
func (s AgentState) Selection() *agent.Record {
	r, ok := s.Agents[s.Selected]
	if !ok {
		return nil
	}
	return &r
}

// Transitioning reports whether a control request for id is still in flight.
func (s AgentState) Transitioning(id string) bool {
	_, ok := s.Pending[id]
	return ok
}

func (s AgentState) clone() AgentState {
	return AgentState{
		Agents:   maps.Clone(s.Agents),
		Order:    slices.Clone(s.Order),
		Selected: s.Selected,
		Pending:  maps.Clone(s.Pending),
		undo:     maps.Clone(s.undo),
	}
}

func (s *AgentState) put(r agent.Record) {
	if _, ok := s.Agents[r.ID]; !ok {
		s.Order = append(s.Order, r.ID)
	}
	s.Agents[r.ID] = r
}

func (s *AgentState) drop(id string) {
	delete(s.Agents, id)
	delete(s.Pending, id)
	delete(s.undo, id)
	s.Order = slices.DeleteFunc(s.Order, func(v string) bool { return v == id })
	if s.Selected == id {
		s.Selected = ""
	}
}

func emptyAgentState() AgentState {
	return AgentState{
		Agents:  map[string]agent.Record{},
		Pending: map[string]control.Intent{},
		undo:    map[string]agent.Record{},
	}
}

// AgentActions is the bound action set of the agent store. Each action
// notifies at most once and never fails; unknown ids are no-ops.
type AgentActions struct {
	Upsert func(r agent.Record)
	Remove func(id string)
	Select func(id string)
	Clear  func()
}

// AgentStore is the reactive container behind the registry.
type AgentStore = store.Store[AgentState, AgentActions]

// RegistryConfig selects ingestion and control policies.
type RegistryConfig struct {
	// Optimistic applies a control locally when it is requested. Otherwise
	// the agent stays transitioning until the platform confirms.
	Optimistic bool
	// Strict validates incoming records and rejects illegal status deltas.
	Strict bool
	// ControlTimeout releases unanswered requests on Expire.
	ControlTimeout time.Duration
}

// ErrControlRejected is returned when a control request is refused by the
// platform.
var ErrControlRejected = errors.New("control rejected")

// AgentRegistry owns the agent store and is its only writer: feed updates,
// user controls and platform acknowledgements all enter here.
type AgentRegistry struct {
	store   *AgentStore
	sink    control.Sink
	cfg     RegistryConfig
	hub     broadcast.Broadcaster
	metrics *cfotel.Metrics
	log     *slog.Logger
	now     func() time.Time
	newID   func() string
}

// NewAgentRegistry creates a registry sending control intents to sink.
func NewAgentRegistry(sink control.Sink, cfg RegistryConfig, log *slog.Logger) *AgentRegistry {
	if log == nil {
		log = slog.Default()
	}
	r := &AgentRegistry{
		sink:  sink,
		cfg:   cfg,
		log:   log.With("component", "agent_registry"),
		now:   time.Now,
		newID: uuid.NewString,
	}
	r.store = store.New(emptyAgentState(), r.bind)
	return r
}

// SetBroadcaster attaches a broadcaster for watcher notifications.
func (r *AgentRegistry) SetBroadcaster(b broadcast.Broadcaster) { r.hub = b }

// SetMetrics attaches metric instruments.
func (r *AgentRegistry) SetMetrics(m *cfotel.Metrics) { r.metrics = m }

// Store exposes the underlying store for subscribers.
func (r *AgentRegistry) Store() *AgentStore { return r.store }

// State returns the current snapshot.
func (r *AgentRegistry) State() AgentState { return r.store.State() }

// Actions returns the bound action set.
func (r *AgentRegistry) Actions() AgentActions { return r.store.Actions() }

func (r *AgentRegistry) bind(s *AgentStore) AgentActions {
	return AgentActions{
		Upsert: func(rec agent.Record) {
			if rec.ID == "" {
				return
			}
			s.Update(func(prev AgentState) AgentState {
				next := prev.clone()
				next.put(rec.Clone())
				return next
			})
		},
		Remove: func(id string) {
			s.UpdateIf(func(prev AgentState) (AgentState, bool) {
				if _, ok := prev.Agents[id]; !ok {
					return prev, false
				}
				next := prev.clone()
				next.drop(id)
				return next, true
			})
		},
		Select: func(id string) {
			s.UpdateIf(func(prev AgentState) (AgentState, bool) {
				if _, ok := prev.Agents[id]; !ok {
					id = ""
				}
				if prev.Selected == id {
					return prev, false
				}
				next := prev.clone()
				next.Selected = id
				return next, true
			})
		},
		Clear: func() {
			s.Set(emptyAgentState())
		},
	}
}

// ApplyUpdate merges one feed update into the registry. It reports whether
// anything changed. Errors are returned only for updates rejected in strict
// mode; the registry is left untouched in that case.
func (r *AgentRegistry) ApplyUpdate(ctx context.Context, u feed.Update) (bool, error) {
	ctx, span := cfotel.StartIngestSpan(ctx, u.AgentID(), string(u.Kind))
	defer span.End()

	if err := u.Validate(); err != nil {
		r.metrics.Dropped(ctx, "envelope")
		return false, err
	}
	if r.cfg.Strict && u.Kind == feed.KindSnapshot {
		if err := u.Record.Validate(); err != nil {
			r.metrics.Dropped(ctx, "record")
			return false, fmt.Errorf("agent %s: %w", u.AgentID(), err)
		}
	}

	id := u.AgentID()
	now := r.now()
	var (
		before, after agent.Record
		hadBefore     bool
		applyErr      error
	)

	changed := r.store.UpdateIf(func(prev AgentState) (AgentState, bool) {
		before, hadBefore = prev.Agents[id]
		next := prev.clone()

		switch u.Kind {
		case feed.KindSnapshot:
			rec := u.Record.Clone()
			rec.ID = id
			next.put(rec)
			after = rec
		case feed.KindDelta:
			if !hadBefore {
				applyErr = fmt.Errorf("delta for unknown agent %s: %w", id, domain.ErrNotFound)
				return prev, false
			}
			rec, err := mergeDelta(before, u.Delta, now, r.cfg.Strict)
			if err != nil {
				applyErr = err
				return prev, false
			}
			next.put(rec)
			after = rec
		case feed.KindRemove:
			if !hadBefore {
				return prev, false
			}
			next.drop(id)
			return next, true
		}

		if in, ok := next.Pending[id]; ok && settles(in, after.Status) {
			delete(next.Pending, id)
			delete(next.undo, id)
		}
		return next, true
	})

	if applyErr != nil {
		if errors.Is(applyErr, domain.ErrValidation) {
			r.metrics.Dropped(ctx, "transition")
			return false, applyErr
		}
		r.log.DebugContext(logger.WithAgentID(ctx, id), "ignoring update", "error", applyErr)
		return false, nil
	}
	if !changed {
		return false, nil
	}

	r.metrics.Ingested(ctx, string(u.Kind))
	r.metrics.Notified(ctx, "agents")
	if u.Kind == feed.KindRemove {
		r.broadcast(ctx, ws.EventAgentRemoved, ws.AgentRemovedEvent{AgentID: id})
		return true, nil
	}
	if after.Status.IsTerminal() && (!hadBefore || before.Status != after.Status) {
		r.metrics.Finished(ctx, string(after.Status), after.CostUSD)
	}
	r.broadcast(ctx, ws.EventAgentUpdated, after)
	return true, nil
}

// settles reports whether an observed status resolves a pending intent.
func settles(in control.Intent, observed agent.Status) bool {
	return observed == in.Target || observed.IsTerminal()
}

// mergeDelta applies d to rec. Token and cost counters never move backwards
// while an agent is active. Illegal status changes are forced through in
// lenient mode and rejected in strict mode.
func mergeDelta(rec agent.Record, d *feed.Delta, now time.Time, strict bool) (agent.Record, error) {
	next := rec.Clone()

	if d.Status != nil && *d.Status != next.Status {
		moved, ok := agent.Transition(next, *d.Status, now)
		if !ok {
			if strict {
				return rec, fmt.Errorf("agent %s: illegal transition %s -> %s: %w",
					rec.ID, rec.Status, *d.Status, domain.ErrValidation)
			}
			if moved, ok = agent.Force(next, *d.Status, now); !ok {
				return rec, fmt.Errorf("agent %s: unknown status %q: %w", rec.ID, *d.Status, domain.ErrValidation)
			}
		}
		next = moved
	}

	active := next.Status == agent.StatusRunning || next.Status == agent.StatusPaused
	if d.Tokens != nil {
		if active {
			next.Tokens.Input = max(next.Tokens.Input, d.Tokens.Input)
			next.Tokens.Output = max(next.Tokens.Output, d.Tokens.Output)
		} else {
			next.Tokens = *d.Tokens
		}
	}
	if d.CostUSD != nil {
		if active {
			next.CostUSD = max(next.CostUSD, *d.CostUSD)
		} else {
			next.CostUSD = *d.CostUSD
		}
	}
	if d.Quality != nil {
		q := *d.Quality
		next.Quality = &q
	}
	if d.Error != nil && next.Status == agent.StatusFailed {
		f := *d.Error
		next.Error = &f
	}
	return next, nil
}

// RequestControl invokes control c on agent id. It returns false without
// error when the control is disabled, the agent is unknown or a request is
// already in flight. Otherwise an intent is sent to the platform; in
// optimistic mode the transition is applied locally right away.
func (r *AgentRegistry) RequestControl(ctx context.Context, id string, c agent.Control) (bool, error) {
	ctx, span := cfotel.StartControlSpan(ctx, id, string(c))
	defer span.End()

	in := control.Intent{
		ID:          r.newID(),
		AgentID:     id,
		Control:     c,
		Target:      c.Target(),
		RequestedAt: r.now(),
	}
	ctx = logger.WithIntentID(logger.WithAgentID(ctx, id), in.ID)

	var (
		applied agent.Record
		reason  = "disabled"
	)
	accepted := r.store.UpdateIf(func(prev AgentState) (AgentState, bool) {
		rec, ok := prev.Agents[id]
		if !ok {
			reason = "unknown_agent"
			return prev, false
		}
		if prev.Transitioning(id) {
			reason = "in_flight"
			return prev, false
		}
		if !agent.Controls(rec.Status).Enabled(c) {
			return prev, false
		}
		next := prev.clone()
		next.Pending[id] = in
		if r.cfg.Optimistic {
			applied, _ = agent.Apply(rec, c, in.RequestedAt)
			next.Agents[id] = applied
			next.undo[id] = rec
		}
		return next, true
	})
	if !accepted {
		r.metrics.ControlRejected(ctx, string(c), reason)
		r.log.DebugContext(ctx, "control ignored", "control", c, "reason", reason)
		return false, nil
	}
	r.metrics.Notified(ctx, "agents")
	r.broadcastPending(ctx, in, true)
	if r.cfg.Optimistic {
		r.broadcast(ctx, ws.EventAgentUpdated, applied)
	}

	if err := r.sink.Send(ctx, in); err != nil {
		r.rollback(ctx, in)
		r.metrics.ControlRejected(ctx, string(c), "send_failed")
		r.log.WarnContext(ctx, "control request failed", "control", c, "error", err)
		return false, fmt.Errorf("request %s: %w", c, err)
	}

	r.metrics.ControlSent(ctx, string(c))
	r.log.InfoContext(ctx, "control requested", "control", c, "target", in.Target, "optimistic", r.cfg.Optimistic)
	return true, nil
}

// Confirm resolves a pending intent with the platform's answer. Acks for
// unknown or superseded intents are ignored.
func (r *AgentRegistry) Confirm(ctx context.Context, ack control.Ack) error {
	ctx = logger.WithIntentID(logger.WithAgentID(ctx, ack.AgentID), ack.IntentID)

	var in control.Intent
	for _, p := range r.store.State().Pending {
		if p.ID == ack.IntentID {
			in = p
			break
		}
	}
	if in.ID == "" {
		r.log.DebugContext(ctx, "ack for unknown intent")
		return nil
	}

	if !ack.Accepted {
		r.rollback(ctx, in)
		r.metrics.ControlRejected(ctx, string(in.Control), "refused")
		r.log.WarnContext(ctx, "control refused by platform", "control", in.Control, "reason", ack.Reason)
		return fmt.Errorf("%s on agent %s: %s: %w", in.Control, in.AgentID, ack.Reason, ErrControlRejected)
	}

	var updated agent.Record
	changed := r.store.UpdateIf(func(prev AgentState) (AgentState, bool) {
		cur, ok := prev.Pending[in.AgentID]
		if !ok || cur.ID != in.ID {
			return prev, false
		}
		next := prev.clone()
		delete(next.Pending, in.AgentID)
		delete(next.undo, in.AgentID)
		if !r.cfg.Optimistic {
			if rec, ok := next.Agents[in.AgentID]; ok {
				if moved, ok := agent.Apply(rec, in.Control, r.now()); ok {
					next.Agents[in.AgentID] = moved
					updated = moved
				}
			}
		}
		return next, true
	})
	if changed {
		r.metrics.Notified(ctx, "agents")
		r.broadcastPending(ctx, in, false)
		if updated.ID != "" {
			r.broadcast(ctx, ws.EventAgentUpdated, updated)
		}
		r.log.InfoContext(ctx, "control confirmed", "control", in.Control)
	}
	return nil
}

// Expire releases requests older than the control timeout so the agent's
// controls become usable again. Local optimistic state is kept; the feed is
// the authority from here on.
func (r *AgentRegistry) Expire(ctx context.Context) int {
	if r.cfg.ControlTimeout <= 0 {
		return 0
	}
	cutoff := r.now().Add(-r.cfg.ControlTimeout)
	var expired []control.Intent
	r.store.UpdateIf(func(prev AgentState) (AgentState, bool) {
		expired = expired[:0]
		for _, in := range prev.Pending {
			if in.RequestedAt.Before(cutoff) {
				expired = append(expired, in)
			}
		}
		if len(expired) == 0 {
			return prev, false
		}
		next := prev.clone()
		for _, in := range expired {
			delete(next.Pending, in.AgentID)
			delete(next.undo, in.AgentID)
		}
		return next, true
	})
	for _, in := range expired {
		r.log.WarnContext(ctx, "control request timed out", "agent_id", in.AgentID, "intent_id", in.ID, "control", in.Control)
		r.broadcastPending(ctx, in, false)
	}
	return len(expired)
}

// rollback clears the pending mark for in and, when the agent still shows
// the optimistic result and nothing newer, restores the pre-control record.
func (r *AgentRegistry) rollback(ctx context.Context, in control.Intent) {
	var restored agent.Record
	changed := r.store.UpdateIf(func(prev AgentState) (AgentState, bool) {
		cur, ok := prev.Pending[in.AgentID]
		if !ok || cur.ID != in.ID {
			return prev, false
		}
		next := prev.clone()
		delete(next.Pending, in.AgentID)
		before, hasUndo := next.undo[in.AgentID]
		delete(next.undo, in.AgentID)
		if rec, ok := next.Agents[in.AgentID]; ok && hasUndo &&
			rec.Status == in.Target && len(rec.Timeline) == len(before.Timeline)+1 {
			next.Agents[in.AgentID] = before
			restored = before
		}
		return next, true
	})
	if !changed {
		return
	}
	r.broadcastPending(ctx, in, false)
	if restored.ID != "" {
		r.broadcast(ctx, ws.EventAgentUpdated, restored)
	}
}

func (r *AgentRegistry) broadcast(ctx context.Context, eventType string, payload any) {
	if r.hub != nil {
		r.hub.BroadcastEvent(ctx, eventType, payload)
	}
}

func (r *AgentRegistry) broadcastPending(ctx context.Context, in control.Intent, pending bool) {
	r.broadcast(ctx, ws.EventControlPending, ws.ControlPendingEvent{
		AgentID:  in.AgentID,
		IntentID: in.ID,
		Control:  in.Control,
		Pending:  pending,
	})
}
