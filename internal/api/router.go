package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/starford/gridedit/internal/gridservice"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	// Prefix every client path must start with, e.g. "content/".
	Prefix string
	// AllowedOrigins for CORS; empty allows any origin.
	AllowedOrigins []string
	// Events, if non-nil, is mounted at GET /api/events.
	Events http.Handler
	// Quiet disables the request logger.
	Quiet bool
}

// NewRouter creates a chi router with the status page, health checks and
// all API routes mounted.
func NewRouter(svc *gridservice.Service, opts RouterOptions) chi.Router {
	h := NewHandler(svc, opts.Prefix)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	if !opts.Quiet {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	r.Use(CORSMiddleware(opts.AllowedOrigins))

	r.Get("/", h.Status)

	// Health check endpoints.
	r.Get("/health/live", health)
	r.Get("/health/ready", health)

	r.Route("/api", func(r chi.Router) {
		r.Post("/insert-cell", h.InsertCell)
		r.Post("/delete-cell", h.DeleteCell)
		r.Post("/insert-row", h.InsertRow)
		r.Post("/delete-row", h.DeleteRow)
		r.Post("/save-cell", h.SaveCell)
		r.Post("/normalize", h.Normalize)
		r.Get("/tabs/*", h.Tab)
		r.Get("/search", h.Search)

		if opts.Events != nil {
			r.Get("/events", opts.Events.ServeHTTP)
		}
	})

	return r
}

func health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
