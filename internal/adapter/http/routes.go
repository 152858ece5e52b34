package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	cfotel "github.com/Strob0t/forgetop/internal/adapter/otel"
)

// NewRouter builds the API router. The watcher socket is mounted outside the
// request timeout.
func NewRouter(h *Handlers, log *slog.Logger, serviceName string) http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger(log))
	r.Use(chimw.Recoverer)
	r.Use(cfotel.HTTPMiddleware(serviceName))

	r.Get("/health", h.Health)
	r.Get("/ws", h.Hub.HandleWS)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(chimw.Timeout(10 * time.Second))

		r.Get("/agents", h.ListAgents)
		r.Put("/agents/selected", h.SelectAgent)
		r.Get("/agents/{id}", h.GetAgent)
		control := http.Handler(http.HandlerFunc(h.RequestControl))
		if h.Limiter != nil {
			control = h.Limiter.Handler(control)
		}
		r.Method(http.MethodPost, "/agents/{id}/controls/{control}", control)

		r.Get("/cost", h.Cost)
		r.Get("/quality", h.Quality)

		r.Get("/projects", h.ListProjects)
		r.Put("/projects/selected", h.SelectProject)
	})
	return r
}
