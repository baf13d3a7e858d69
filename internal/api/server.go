package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	corslib "github.com/rs/cors"

	"github.com/obsidianstack/pitchwatch/internal/alerts"
	"github.com/obsidianstack/pitchwatch/internal/store"
)

// Options wires the router to the running service.
type Options struct {
	Fixtures  *store.Fixtures
	Alerts    *store.Alerts
	Engine    *alerts.Engine // optional
	Scheduler Trigger

	// Metrics and Stream are mounted at /metrics and /ws/stream when set.
	Metrics http.Handler
	Stream  http.Handler

	CORSOrigins []string
}

// New builds the HTTP router.
func New(opts Options) http.Handler {
	h := &Handler{
		fixtures:  opts.Fixtures,
		history:   opts.Alerts,
		engine:    opts.Engine,
		scheduler: opts.Scheduler,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(AccessLog)

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(corslib.New(corslib.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}).Handler)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		jsonErr(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", h.health)
		r.Get("/status", h.status)
		r.Get("/snapshot", h.snapshot)

		r.Get("/fixtures", h.listFixtures)
		r.Get("/fixtures/{id}", h.getFixture)

		r.Get("/alerts", h.recentAlerts)
		r.Get("/alerts/active", h.activeAlerts)
		r.Get("/rules", h.rules)

		r.Post("/scan", h.triggerScan)
	})

	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}
	if opts.Stream != nil {
		r.Method(http.MethodGet, "/ws/stream", opts.Stream)
	}
	return r
}
