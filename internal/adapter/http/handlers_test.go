package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	cfhttp "github.com/Strob0t/forgetop/internal/adapter/http"
	"github.com/Strob0t/forgetop/internal/adapter/ws"
	"github.com/Strob0t/forgetop/internal/domain/agent"
	"github.com/Strob0t/forgetop/internal/domain/cost"
	"github.com/Strob0t/forgetop/internal/domain/project"
	"github.com/Strob0t/forgetop/internal/domain/quality"
	"github.com/Strob0t/forgetop/internal/port/control"
	"github.com/Strob0t/forgetop/internal/service"
)

var t0 = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

// fakeSink records intents and optionally fails.
type fakeSink struct {
	mu      sync.Mutex
	intents []control.Intent
	err     error
}

func (s *fakeSink) Send(_ context.Context, in control.Intent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.intents = append(s.intents, in)
	return nil
}

type testEnv struct {
	handler http.Handler
	dash    *service.Dashboard
	sink    *fakeSink
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	sink := &fakeSink{}
	reg := service.NewAgentRegistry(sink, service.RegistryConfig{Optimistic: true, ControlTimeout: time.Minute}, log)

	a1 := agent.NewRecord("a1", "refactor", "claude", t0)
	a1, _ = agent.Transition(a1, agent.StatusRunning, t0.Add(time.Second))
	a1.CostUSD = 2

	a2 := agent.NewRecord("a2", "tests", "gpt-4", t0.Add(time.Minute))
	a2, _ = agent.Transition(a2, agent.StatusRunning, t0.Add(2*time.Minute))
	a2, _ = agent.Transition(a2, agent.StatusCompleted, t0.Add(3*time.Minute))
	a2.CostUSD = 30
	a2.Quality = &agent.Quality{Score: 90, Pass: true}

	reg.Actions().Upsert(a1)
	reg.Actions().Upsert(a2)

	catalog := service.NewProjectCatalog(log)
	catalog.Actions().SetProjects([]project.Project{
		{ID: "p1", Name: "api"},
		{ID: "p2", Name: "web"},
	})

	dash := service.NewDashboard(reg,
		service.NewViewState(service.DefaultView(10)),
		catalog,
		service.NewSummaryService(nil, log),
		service.DashboardConfig{
			Budget:      100,
			Period:      cost.PeriodMonthly,
			Policy:      cost.PolicyCostMeter,
			AgentBudget: 5,
			Threshold:   70,
		},
		log,
	)

	h := &cfhttp.Handlers{Dashboard: dash, Hub: ws.NewHub(log)}
	return &testEnv{handler: cfhttp.NewRouter(h, log, "forgetop-test"), dash: dash, sink: sink}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

type pageResponse struct {
	Items  []agent.Record     `json:"items"`
	Total  int                `json:"total"`
	Page   int                `json:"page"`
	Counts agent.StatusCounts `json:"counts"`
}

type detailResponse struct {
	Record        agent.Record     `json:"record"`
	Controls      agent.ControlSet `json:"controls"`
	Transitioning bool             `json:"transitioning"`
}

type errorBody struct {
	Error string `json:"error"`
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decode[map[string]any](t, rec)
	if body["status"] != "ok" || body["agents"] != float64(2) {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	e := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != "req-42" {
		t.Fatalf("expected req-42, got %q", got)
	}

	rec = e.do(t, http.MethodGet, "/health", "")
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected a generated request id")
	}
}

func TestListAgentsFollowsView(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodGet, "/api/v1/agents", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	page := decode[pageResponse](t, rec)
	if page.Total != 2 || len(page.Items) != 2 {
		t.Fatalf("expected 2 agents, got %+v", page)
	}
	// Default view: newest first.
	if page.Items[0].ID != "a2" {
		t.Fatalf("expected a2 first, got %s", page.Items[0].ID)
	}
	if page.Counts.Running != 1 || page.Counts.Completed != 1 {
		t.Fatalf("unexpected counts %+v", page.Counts)
	}
}

func TestListAgentsQueryParameters(t *testing.T) {
	e := newTestEnv(t)

	page := decode[pageResponse](t, e.do(t, http.MethodGet, "/api/v1/agents?filter=running", ""))
	if page.Total != 1 || page.Items[0].ID != "a1" {
		t.Fatalf("unexpected filtered page %+v", page)
	}
	if page.Counts.Total != 2 {
		t.Fatalf("counts must cover the unfiltered set, got %+v", page.Counts)
	}

	page = decode[pageResponse](t, e.do(t, http.MethodGet, "/api/v1/agents?sort_by=cost&order=asc", ""))
	if page.Items[0].ID != "a1" || page.Items[1].ID != "a2" {
		t.Fatalf("unexpected cost order %s, %s", page.Items[0].ID, page.Items[1].ID)
	}

	page = decode[pageResponse](t, e.do(t, http.MethodGet, "/api/v1/agents?page=5&page_size=1", ""))
	if page.Page != 5 || len(page.Items) != 0 || page.Total != 2 {
		t.Fatalf("expected an empty page past the end, got %+v", page)
	}
}

func TestListAgentsHugePageValues(t *testing.T) {
	e := newTestEnv(t)

	for _, query := range []string{
		"page=4611686018427387905&page_size=3",
		"page=1&page_size=9223372036854775807",
		"page=9223372036854775807&page_size=9223372036854775807",
	} {
		rec := e.do(t, http.MethodGet, "/api/v1/agents?"+query, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", query, rec.Code)
		}
		if page := decode[pageResponse](t, rec); page.Total != 2 {
			t.Fatalf("%s: unexpected page %+v", query, page)
		}
	}
}

func TestListAgentsRejectsBadParameters(t *testing.T) {
	e := newTestEnv(t)

	tests := []struct {
		name  string
		query string
	}{
		{"filter", "filter=sleeping"},
		{"sort", "sort_by=name"},
		{"order", "order=up"},
		{"page", "page=two"},
		{"page size", "page_size=lots"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := e.do(t, http.MethodGet, "/api/v1/agents?"+tt.query, "")
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
			if body := decode[errorBody](t, rec); body.Error == "" {
				t.Fatal("expected an error message")
			}
		})
	}
}

func TestGetAgent(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodGet, "/api/v1/agents/a1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	d := decode[detailResponse](t, rec)
	if d.Record.ID != "a1" || !d.Controls.Pause || !d.Controls.Cancel || d.Controls.Resume {
		t.Fatalf("unexpected detail %+v", d)
	}

	if rec := e.do(t, http.MethodGet, "/api/v1/agents/nope", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestSelectAgent(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPut, "/api/v1/agents/selected", `{"id":"a2"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if d := decode[detailResponse](t, rec); d.Record.ID != "a2" || len(d.Controls.List()) != 0 {
		t.Fatalf("unexpected detail %+v", d)
	}
	if sel := e.dash.Agents.State().Selection(); sel == nil || sel.ID != "a2" {
		t.Fatalf("expected a2 selected, got %+v", sel)
	}

	if rec := e.do(t, http.MethodPut, "/api/v1/agents/selected", `{"id":"ghost"}`); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if sel := e.dash.Agents.State().Selection(); sel != nil {
		t.Fatalf("unknown id must clear the selection, got %+v", sel)
	}

	if rec := e.do(t, http.MethodPut, "/api/v1/agents/selected", `{}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestRequestControlAppliesOptimistically(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/api/v1/agents/a1/controls/pause", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body)
	}
	d := decode[detailResponse](t, rec)
	if d.Record.Status != agent.StatusPaused || !d.Transitioning {
		t.Fatalf("expected paused and transitioning, got %s %v", d.Record.Status, d.Transitioning)
	}
	if len(e.sink.intents) != 1 || e.sink.intents[0].Target != agent.StatusPaused {
		t.Fatalf("unexpected intents %+v", e.sink.intents)
	}

	rec = e.do(t, http.MethodPost, "/api/v1/agents/a1/controls/resume", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 while a request is pending, got %d", rec.Code)
	}
	if body := decode[errorBody](t, rec); !strings.Contains(body.Error, "pending") {
		t.Fatalf("unexpected message %q", body.Error)
	}
}

func TestRequestControlErrors(t *testing.T) {
	e := newTestEnv(t)

	tests := []struct {
		name string
		path string
		want int
	}{
		{"unknown control", "/api/v1/agents/a1/controls/restart", http.StatusBadRequest},
		{"unknown agent", "/api/v1/agents/nope/controls/pause", http.StatusNotFound},
		{"disabled control", "/api/v1/agents/a1/controls/resume", http.StatusConflict},
		{"completed agent", "/api/v1/agents/a2/controls/cancel", http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := e.do(t, http.MethodPost, tt.path, ""); rec.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, rec.Code)
			}
		})
	}
	if len(e.sink.intents) != 0 {
		t.Fatalf("no intent should have been sent, got %+v", e.sink.intents)
	}
}

func TestRequestControlSinkFailureRollsBack(t *testing.T) {
	e := newTestEnv(t)
	e.sink.err = errors.New("platform unreachable")

	rec := e.do(t, http.MethodPost, "/api/v1/agents/a1/controls/pause", "")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}

	st := e.dash.Agents.State()
	got, _ := st.Get("a1")
	if got.Status != agent.StatusRunning || st.Transitioning("a1") {
		t.Fatalf("expected rollback to running, got %s transitioning=%v", got.Status, st.Transitioning("a1"))
	}
}

type costBody struct {
	Spent     float64    `json:"spent"`
	Budget    float64    `json:"budget"`
	Color     cost.Color `json:"color"`
	Estimated bool       `json:"estimated"`
}

type gateBody struct {
	Score     float64       `json:"score"`
	Threshold float64       `json:"threshold"`
	Pass      bool          `json:"pass"`
	Color     quality.Color `json:"color"`
}

func TestCostFallsBackToAgents(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodGet, "/api/v1/cost", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decode[costBody](t, rec)
	if body.Spent != 32 || body.Budget != 100 || !body.Estimated || body.Color != cost.ColorGreen {
		t.Fatalf("unexpected cost view %+v", body)
	}
}

func TestQualityFallsBackToAgents(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodGet, "/api/v1/quality", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decode[gateBody](t, rec)
	if body.Score != 90 || body.Threshold != 70 || !body.Pass || body.Color != quality.ColorGreen {
		t.Fatalf("unexpected gate %+v", body)
	}
}

type projectsBody struct {
	Projects []project.Project `json:"projects"`
	Selected string            `json:"selected"`
}

func TestProjects(t *testing.T) {
	e := newTestEnv(t)

	list := decode[projectsBody](t, e.do(t, http.MethodGet, "/api/v1/projects", ""))
	if len(list.Projects) != 2 || list.Selected != "" {
		t.Fatalf("unexpected projects %+v", list)
	}

	rec := e.do(t, http.MethodPut, "/api/v1/projects/selected", `{"id":"p2"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := decode[projectsBody](t, rec); got.Selected != "p2" {
		t.Fatalf("expected p2 selected, got %q", got.Selected)
	}
	if active := e.dash.Projects.State().Active(); active == nil || active.Name != "web" {
		t.Fatalf("unexpected active project %+v", active)
	}
}

func TestSelectProjectErrors(t *testing.T) {
	e := newTestEnv(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"malformed", `{"id":`, http.StatusBadRequest},
		{"missing id", `{}`, http.StatusBadRequest},
		{"unknown", `{"id":"p9"}`, http.StatusNotFound},
		{"too large", `{"id":"` + strings.Repeat("x", 70<<10) + `"}`, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := e.do(t, http.MethodPut, "/api/v1/projects/selected", tt.body); rec.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, rec.Code)
			}
		})
	}
}
