package service

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/Strob0t/forgetop/internal/domain/agent"
	"github.com/Strob0t/forgetop/internal/domain/cost"
	"github.com/Strob0t/forgetop/internal/domain/quality"
	"github.com/Strob0t/forgetop/internal/port/control"
	"github.com/Strob0t/forgetop/internal/port/feed"
)

// DashboardConfig holds the budget and gate settings the views derive from.
type DashboardConfig struct {
	Budget          float64
	Period          cost.Period
	Policy          cost.Policy // aggregate meter policy
	AgentBudget     float64     // per-agent budget for the usage view
	Threshold       float64     // quality threshold when the summary carries none
	RefreshInterval time.Duration
}

// AgentPage is one rendered page of the agent list.
type AgentPage struct {
	agent.Page
	Counts agent.StatusCounts `json:"counts"`
	Params agent.QueryParams  `json:"params"`
}

// AgentDetail is the selected-agent pane.
type AgentDetail struct {
	Record        agent.Record     `json:"record"`
	Controls      agent.ControlSet `json:"controls"`
	Transitioning bool             `json:"transitioning"`
	Usage         cost.Report      `json:"usage"`
	Duration      time.Duration    `json:"duration_ns"`
}

// CostView is the cost pane. Estimated is set when no billing summary was
// available and the figures were summed from the agents on screen.
type CostView struct {
	cost.Report
	Estimated bool `json:"estimated"`
}

// Dashboard composes the session's stores with the summary source and owns
// the event loop that feeds them.
type Dashboard struct {
	Agents   *AgentRegistry
	View     *ViewState
	Projects *ProjectCatalog

	summaries *SummaryService
	cfg       DashboardConfig
	log       *slog.Logger
	now       func() time.Time

	mu   sync.RWMutex
	cost CostView
	gate quality.Gate
}

// NewDashboard wires the three stores and the summary service together.
func NewDashboard(agents *AgentRegistry, view *ViewState, projects *ProjectCatalog, summaries *SummaryService, cfg DashboardConfig, log *slog.Logger) *Dashboard {
	if log == nil {
		log = slog.Default()
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 5 * time.Second
	}
	return &Dashboard{
		Agents:    agents,
		View:      view,
		Projects:  projects,
		summaries: summaries,
		cfg:       cfg,
		log:       log.With("component", "dashboard"),
		now:       time.Now,
		gate:      quality.Unavailable(),
	}
}

// AgentPage runs the current view's query over the registry. Counts cover
// the unfiltered set.
func (d *Dashboard) AgentPage() AgentPage {
	return d.Query(d.View.State().Params())
}

// Query runs an explicit query over the registry.
func (d *Dashboard) Query(p agent.QueryParams) AgentPage {
	records := d.Agents.State().Records()
	page := agent.Query(records, p)
	p.Page, p.PageSize = page.Page, page.PageSize
	return AgentPage{Page: page, Counts: agent.CountByStatus(records), Params: p}
}

// Detail returns the detail pane for one agent.
func (d *Dashboard) Detail(id string) (AgentDetail, bool) {
	st := d.Agents.State()
	rec, ok := st.Get(id)
	if !ok {
		return AgentDetail{}, false
	}
	return AgentDetail{
		Record:        rec,
		Controls:      agent.Controls(rec.Status),
		Transitioning: st.Transitioning(id),
		Usage:         cost.AgentUsage(&rec, d.cfg.AgentBudget),
		Duration:      rec.Duration(d.now()),
	}, true
}

// CostReport evaluates the budget meter from the published summary, or from
// the agents in the registry when none is available.
func (d *Dashboard) CostReport(ctx context.Context) CostView {
	var (
		b         cost.Budget
		estimated bool
	)
	published, err := d.summaries.Cost(ctx, d.cfg.Period)
	if err != nil || published == nil {
		b = cost.Aggregate(d.Agents.State().Records(), d.cfg.Budget, d.cfg.Period)
		estimated = true
	} else {
		b = *published
		if b.Budget <= 0 {
			b.Budget = d.cfg.Budget
		}
		if !b.Period.IsValid() {
			b.Period = d.cfg.Period
		}
	}
	elapsed, total := cost.PeriodDays(b.Period, d.now())
	return CostView{
		Report:    cost.Evaluate(b, d.cfg.Policy, cost.WithDays(elapsed, total)),
		Estimated: estimated,
	}
}

// QualityGate evaluates the published quality summary. Without one, the
// gate is derived from agent quality results, or neutral when there are none.
func (d *Dashboard) QualityGate(ctx context.Context) quality.Gate {
	s, err := d.summaries.Quality(ctx)
	if err != nil || s == nil {
		return d.fallbackGate()
	}
	sum := *s
	if sum.Threshold == nil {
		t := d.cfg.Threshold
		sum.Threshold = &t
	}
	return quality.Report(sum)
}

// fallbackGate averages the quality scores of finished agents; history is
// their scores in completion order.
func (d *Dashboard) fallbackGate() quality.Gate {
	records := d.Agents.State().Records()
	scored := slices.DeleteFunc(records, func(r agent.Record) bool { return r.Quality == nil })
	if len(scored) == 0 {
		g := quality.Unavailable()
		g.Threshold = d.cfg.Threshold
		return g
	}
	slices.SortStableFunc(scored, func(a, b agent.Record) int {
		return finishedAt(&a).Compare(finishedAt(&b))
	})
	var sum float64
	history := make([]float64, len(scored))
	for i := range scored {
		history[i] = scored[i].Quality.Score
		sum += history[i]
	}
	t := d.cfg.Threshold
	return quality.Report(quality.Summary{
		Score:     sum / float64(len(scored)),
		Threshold: &t,
		History:   history,
	})
}

func finishedAt(r *agent.Record) time.Time {
	if r.EndTime != nil {
		return *r.EndTime
	}
	return r.StartTime
}

// Summaries returns the cost and quality views computed by the last Refresh.
func (d *Dashboard) Summaries() (CostView, quality.Gate) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cost, d.gate
}

// Refresh recomputes the cost and quality views.
func (d *Dashboard) Refresh(ctx context.Context) {
	c := d.CostReport(ctx)
	g := d.QualityGate(ctx)
	d.mu.Lock()
	d.cost, d.gate = c, g
	d.mu.Unlock()
}

type loopEvent struct {
	update *feed.Update
	ack    *control.Ack
}

// Run subscribes to the feed (and ack source, when given) and applies
// everything on this goroutine until ctx ends: the registry has exactly one
// writer for transport traffic. Summaries refresh on every tick.
func (d *Dashboard) Run(ctx context.Context, f feed.Feed, acks control.AckSource) error {
	events := make(chan loopEvent, 256)
	push := func(ctx context.Context, ev loopEvent) error {
		select {
		case events <- ev:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	cancelFeed, err := f.Subscribe(ctx, func(ctx context.Context, u feed.Update) error {
		return push(ctx, loopEvent{update: &u})
	})
	if err != nil {
		return err
	}
	defer cancelFeed()

	if acks != nil {
		cancelAcks, err := acks.SubscribeAcks(ctx, func(ctx context.Context, a control.Ack) error {
			return push(ctx, loopEvent{ack: &a})
		})
		if err != nil {
			return err
		}
		defer cancelAcks()
	}

	d.Refresh(ctx)
	ticker := time.NewTicker(d.cfg.RefreshInterval)
	defer ticker.Stop()

	d.log.Info("dashboard loop started", "refresh", d.cfg.RefreshInterval)
	for {
		select {
		case <-ctx.Done():
			d.log.Info("dashboard loop stopped")
			return nil
		case ev := <-events:
			d.handle(ctx, ev)
		case <-ticker.C:
			d.Agents.Expire(ctx)
			d.Refresh(ctx)
		}
	}
}

func (d *Dashboard) handle(ctx context.Context, ev loopEvent) {
	switch {
	case ev.update != nil:
		if _, err := d.Agents.ApplyUpdate(ctx, *ev.update); err != nil {
			d.log.Warn("dropping feed update", "agent_id", ev.update.AgentID(), "kind", ev.update.Kind, "error", err)
		}
	case ev.ack != nil:
		if err := d.Agents.Confirm(ctx, *ev.ack); err != nil && !errors.Is(err, ErrControlRejected) {
			d.log.Warn("apply control ack", "intent_id", ev.ack.IntentID, "error", err)
		}
	}
}
