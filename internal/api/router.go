package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/zettel/internal/noteservice"
)

// NewRouter creates a chi router with all API routes mounted behind the auth
// middleware. sseHandler, if non-nil, is mounted at GET /events.
func NewRouter(svc *noteservice.Service, auth Auth, sseHandler http.Handler, logger *slog.Logger) chi.Router {
	h := NewHandler(svc, logger)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(auth))

	r.Route("/captures", func(r chi.Router) {
		r.Get("/", h.ListCaptures)
		r.Post("/", h.CreateCapture)

		r.Get("/graph", h.Graph)
		r.Get("/types", h.Types)
		r.Get("/statuses", h.Statuses)
		r.Get("/tags", h.Tags)

		r.Post("/links", h.CreateLink)
		r.Delete("/links/{linkId}", h.DeleteLink)

		r.Get("/{id}", h.GetCapture)
		r.Put("/{id}", h.UpdateCapture)
		r.Delete("/{id}", h.DeleteCapture)
		r.Get("/{id}/links", h.Links)
		r.Put("/{id}/position", h.SetPosition)
		r.Put("/{id}/project-position", h.SetProjectPosition)
	})

	r.Route("/projects", func(r chi.Router) {
		r.Get("/", h.ListProjects)
		r.Post("/", h.CreateProject)
		r.Get("/{id}", h.GetProject)
		r.Put("/{id}", h.UpdateProject)
		r.Delete("/{id}", h.DeleteProject)
		r.Put("/{id}/layout", h.UpdateProjectLayout)
	})

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
