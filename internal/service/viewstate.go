package service

import (
	"github.com/Strob0t/forgetop/internal/domain/agent"
	"github.com/Strob0t/forgetop/internal/store"
)

// Pane identifies the focused dashboard section.
type Pane string

const (
	PaneAgents   Pane = "agents"
	PaneCost     Pane = "cost"
	PaneQuality  Pane = "quality"
	PaneProjects Pane = "projects"
)

// View is the UI state: how the agent list is filtered, sorted and paged,
// and what has focus. The selected agent lives in the agent registry.
type View struct {
	Filter   string
	SortBy   agent.SortField
	Order    agent.Order
	Page     int
	PageSize int
	Focus    Pane
}

// Params converts the view into query parameters.
func (v View) Params() agent.QueryParams {
	return agent.QueryParams{
		Filter:   v.Filter,
		SortBy:   v.SortBy,
		Order:    v.Order,
		Page:     v.Page,
		PageSize: v.PageSize,
	}
}

// ViewActions is the bound action set of the view store.
type ViewActions struct {
	SetFilter   func(filter string)
	SetSort     func(field agent.SortField)
	ToggleOrder func()
	NextPage    func(totalPages int)
	PrevPage    func()
	SetPageSize func(n int)
	Focus       func(p Pane)
}

// ViewState is the UI state store.
type ViewState = store.Store[View, ViewActions]

// DefaultView is the initial view: every agent, newest first.
func DefaultView(pageSize int) View {
	if pageSize < 1 {
		pageSize = agent.DefaultPageSize
	}
	return View{
		Filter:   agent.FilterAll,
		SortBy:   agent.SortStartTime,
		Order:    agent.OrderDesc,
		Page:     1,
		PageSize: pageSize,
		Focus:    PaneAgents,
	}
}

// NewViewState creates the UI store.
func NewViewState(initial View) *ViewState {
	return store.New(initial, bindView)
}

func bindView(s *ViewState) ViewActions {
	return ViewActions{
		SetFilter: func(filter string) {
			if filter == "" {
				filter = agent.FilterAll
			}
			s.UpdateIf(func(prev View) (View, bool) {
				if prev.Filter == filter {
					return prev, false
				}
				prev.Filter = filter
				prev.Page = 1
				return prev, true
			})
		},
		SetSort: func(field agent.SortField) {
			s.UpdateIf(func(prev View) (View, bool) {
				if prev.SortBy == field {
					return prev, false
				}
				prev.SortBy = field
				return prev, true
			})
		},
		ToggleOrder: func() {
			s.Update(func(prev View) View {
				if prev.Order == agent.OrderDesc {
					prev.Order = agent.OrderAsc
				} else {
					prev.Order = agent.OrderDesc
				}
				return prev
			})
		},
		NextPage: func(totalPages int) {
			s.UpdateIf(func(prev View) (View, bool) {
				if prev.Page >= totalPages {
					return prev, false
				}
				prev.Page++
				return prev, true
			})
		},
		PrevPage: func() {
			s.UpdateIf(func(prev View) (View, bool) {
				if prev.Page <= 1 {
					return prev, false
				}
				prev.Page--
				return prev, true
			})
		},
		SetPageSize: func(n int) {
			if n < 1 {
				n = agent.DefaultPageSize
			}
			s.UpdateIf(func(prev View) (View, bool) {
				if prev.PageSize == n {
					return prev, false
				}
				prev.PageSize = n
				prev.Page = 1
				return prev, true
			})
		},
		Focus: func(p Pane) {
			s.UpdateIf(func(prev View) (View, bool) {
				if prev.Focus == p {
					return prev, false
				}
				prev.Focus = p
				return prev, true
			})
		},
	}
}
