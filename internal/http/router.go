package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"kortex/internal/handlers"
	"kortex/internal/service"
)

// Deps holds dependencies for the HTTP router.
type Deps struct {
	Conversations  service.ConversationService
	Health         *handlers.HealthHandler
	Gatherer       prometheus.Gatherer // Serves /metrics when set
	MaxUploadBytes int64
}

// NewRouter creates a new HTTP router with the provided dependencies.
func NewRouter(deps *Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(LoggerMiddleware)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(CORS)

	conversations := handlers.NewConversationHandler(deps.Conversations)

	r.Route("/api", func(r chi.Router) {
		r.Post("/conversations", conversations.Create)
		r.Get("/conversations", conversations.List)
		r.Get("/conversations/{id}", conversations.Get)

		r.Method(http.MethodPost, "/upload", handlers.NewUploadHandler(deps.Conversations, deps.MaxUploadBytes))
		r.Method(http.MethodPost, "/chat", handlers.NewTurnHandler(deps.Conversations, service.ModeChat))
		r.Method(http.MethodPost, "/tutor", handlers.NewTurnHandler(deps.Conversations, service.ModeTutor))
		r.Method(http.MethodPost, "/deep_dive", handlers.NewTurnHandler(deps.Conversations, service.ModeDeepDive))

		if deps.Health != nil {
			r.Method(http.MethodGet, "/health", deps.Health)
		}
	})

	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	return r
}
