package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dogkeeper886/mem0/internal/memory"
	"github.com/dogkeeper886/mem0/internal/project"
)

// NewRouter creates the Chi router with all routes and middleware. base is
// the project environment used when a request does not name a work_dir.
// A nil registry disables request metrics and /metrics.
func NewRouter(
	svc *memory.Service,
	base project.Env,
	registry *prometheus.Registry,
	apiKey string,
	logger *slog.Logger,
) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware (runs on ALL routes including /health)
	r.Use(CORS)
	r.Use(RequestID)
	r.Use(Logger(logger))
	r.Use(Recovery(logger))
	if registry != nil {
		r.Use(NewHTTPMetrics(registry).Middleware)
	}

	// Handlers
	healthH := NewHealthHandler(svc)
	memoryH := NewMemoryHandler(svc, base)
	envelopeH := NewEnvelopeHandler(memoryH, logger)

	// Unauthenticated routes
	r.Get("/health", healthH.Health)
	if registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(apiKey))

		r.Post("/mcp", envelopeH.Handle)
		r.Post("/memory/add", envelopeH.LegacyAdd)
		r.Get("/memory/search", envelopeH.LegacySearch)

		r.Route("/memories", func(r chi.Router) {
			r.Get("/", memoryH.List)
			r.Post("/", memoryH.Add)
			r.Delete("/", memoryH.Reset)
			r.Post("/search", memoryH.Search)
			r.Delete("/{id}", memoryH.Delete)
		})

		r.Post("/project", memoryH.Project)
	})

	return r
}
