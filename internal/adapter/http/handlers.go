package http

import (
	"fmt"
	"net/http"

	"github.com/Strob0t/forgetop/internal/adapter/ws"
	"github.com/Strob0t/forgetop/internal/domain"
	"github.com/Strob0t/forgetop/internal/domain/agent"
	"github.com/Strob0t/forgetop/internal/domain/project"
	"github.com/Strob0t/forgetop/internal/service"
)

// Handlers holds the services the API reads from.
type Handlers struct {
	Dashboard *service.Dashboard
	Hub       *ws.Hub
	Limiter   *ControlLimiter // optional
}

// Health handles GET /health
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"agents":   len(h.Dashboard.Agents.State().Agents),
		"watchers": h.Hub.ConnectionCount(),
	})
}

// ListAgents handles GET /api/v1/agents
//
// Query parameters default to the terminal's current view.
func (h *Handlers) ListAgents(w http.ResponseWriter, r *http.Request) {
	p, err := h.queryParams(r)
	if err != nil {
		writeDomainError(w, err, "invalid query")
		return
	}
	writeJSON(w, http.StatusOK, h.Dashboard.Query(p))
}

func (h *Handlers) queryParams(r *http.Request) (agent.QueryParams, error) {
	p := h.Dashboard.View.State().Params()
	q := r.URL.Query()
	var err error

	if q.Has("filter") {
		if p.Filter, err = agent.ParseFilter(q.Get("filter")); err != nil {
			return p, err
		}
	}
	if q.Has("sort_by") {
		if p.SortBy, err = agent.ParseSortField(q.Get("sort_by")); err != nil {
			return p, err
		}
	}
	if q.Has("order") {
		if p.Order, err = agent.ParseOrder(q.Get("order")); err != nil {
			return p, err
		}
	}
	if p.Page, err = queryInt(r, "page", p.Page); err != nil {
		return p, err
	}
	if p.PageSize, err = queryInt(r, "page_size", p.PageSize); err != nil {
		return p, err
	}
	return p, nil
}

// GetAgent handles GET /api/v1/agents/{id}
func (h *Handlers) GetAgent(w http.ResponseWriter, r *http.Request) {
	d, ok := h.Dashboard.Detail(urlParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// SelectAgent handles PUT /api/v1/agents/selected. An unknown id clears
// the selection and answers 404.
func (h *Handlers) SelectAgent(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[selectRequest](w, r, maxRequestBodySize)
	if !ok {
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}
	h.Dashboard.Agents.Actions().Select(req.ID)
	d, ok := h.Dashboard.Detail(h.Dashboard.Agents.State().Selected)
	if !ok {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// RequestControl handles POST /api/v1/agents/{id}/controls/{control}
func (h *Handlers) RequestControl(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	c, err := agent.ParseControl(urlParam(r, "control"))
	if err != nil {
		writeDomainError(w, err, "invalid control")
		return
	}

	st := h.Dashboard.Agents.State()
	rec, ok := st.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}

	accepted, err := h.Dashboard.Agents.RequestControl(r.Context(), id, c)
	if err != nil {
		writeError(w, http.StatusBadGateway, "control request could not be delivered")
		return
	}
	if !accepted {
		msg := fmt.Sprintf("%s is not available for a %s agent", c, rec.Status)
		if st.Transitioning(id) {
			msg = "a control request for this agent is still pending"
		}
		writeDomainError(w, fmt.Errorf("%s: %w", msg, domain.ErrConflict), msg)
		return
	}

	d, _ := h.Dashboard.Detail(id)
	writeJSON(w, http.StatusAccepted, d)
}

// Cost handles GET /api/v1/cost
func (h *Handlers) Cost(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Dashboard.CostReport(r.Context()))
}

// Quality handles GET /api/v1/quality
func (h *Handlers) Quality(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Dashboard.QualityGate(r.Context()))
}

type projectsResponse struct {
	Projects []project.Project `json:"projects"`
	Selected string            `json:"selected,omitempty"`
}

// ListProjects handles GET /api/v1/projects
func (h *Handlers) ListProjects(w http.ResponseWriter, _ *http.Request) {
	c := h.Dashboard.Projects.State()
	projects := c.Projects
	if projects == nil {
		projects = []project.Project{}
	}
	writeJSON(w, http.StatusOK, projectsResponse{Projects: projects, Selected: c.Selected})
}

type selectRequest struct {
	ID string `json:"id"`
}

// SelectProject handles PUT /api/v1/projects/selected
func (h *Handlers) SelectProject(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[selectRequest](w, r, maxRequestBodySize)
	if !ok {
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}
	h.Dashboard.Projects.Actions().Select(req.ID)
	c := h.Dashboard.Projects.State()
	if c.Selected != req.ID {
		writeError(w, http.StatusNotFound, "project not found")
		return
	}
	writeJSON(w, http.StatusOK, projectsResponse{Projects: c.Projects, Selected: c.Selected})
}
