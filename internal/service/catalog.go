package service

import (
	"log/slog"
	"slices"

	"github.com/Strob0t/forgetop/internal/domain/project"
	"github.com/Strob0t/forgetop/internal/store"
)

// Catalog is the project list state.
type Catalog struct {
	Projects []project.Project
	Selected string
}

// Active returns the selected project, or nil.
func (c Catalog) Active() *project.Project {
	i := slices.IndexFunc(c.Projects, func(p project.Project) bool { return p.ID == c.Selected })
	if i < 0 {
		return nil
	}
	p := c.Projects[i]
	return &p
}

// CatalogActions is the bound action set of the project store.
type CatalogActions struct {
	SetProjects func(ps []project.Project)
	Select      func(id string)
}

// ProjectCatalog is the project list store.
type ProjectCatalog = store.Store[Catalog, CatalogActions]

// NewProjectCatalog creates the project store. Invalid projects are skipped
// with a warning.
func NewProjectCatalog(log *slog.Logger) *ProjectCatalog {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "project_catalog")
	return store.New(Catalog{}, func(s *ProjectCatalog) CatalogActions {
		return CatalogActions{
			SetProjects: func(ps []project.Project) {
				valid := make([]project.Project, 0, len(ps))
				for i := range ps {
					if err := ps[i].Validate(); err != nil {
						log.Warn("skipping project", "id", ps[i].ID, "error", err)
						continue
					}
					valid = append(valid, ps[i])
				}
				s.Update(func(prev Catalog) Catalog {
					next := Catalog{Projects: valid, Selected: prev.Selected}
					if next.Active() == nil {
						next.Selected = ""
					}
					return next
				})
			},
			Select: func(id string) {
				s.UpdateIf(func(prev Catalog) (Catalog, bool) {
					if !slices.ContainsFunc(prev.Projects, func(p project.Project) bool { return p.ID == id }) {
						id = ""
					}
					if prev.Selected == id {
						return prev, false
					}
					prev.Selected = id
					return prev, true
				})
			},
		}
	})
}
