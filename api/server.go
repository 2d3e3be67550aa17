/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the admin frontend

ROUTE GROUPS:
  /api/sessions/*               Session lifecycle and hour tracking
  /api/contracts/*              Allocations and budget summaries
  /api/consultants/*            Earnings reports
  /api/admin/*                  Rate administration
  /api/fx/*                     Exchange rate cache
  /health                       Liveness probe
  /metrics                      Prometheus (flag-gated)

SECURITY NOTE:
  No authentication middleware currently; the service sits behind the
  platform gateway which authenticates and injects X-Actor-ID.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, exposeMetrics bool) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Actor-ID"},
		AllowCredentials: true,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	if exposeMetrics {
		r.Handle("/metrics", promhttp.Handler())
	}

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Session routes
		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", h.CreateSession)
			r.Get("/{id}", h.GetSession)
			r.Post("/{id}/schedule", h.ScheduleSession)
			r.Post("/{id}/finalize", h.FinalizeSession)
			r.Post("/{id}/cancel", h.CancelSession)
		})

		// Catalog routes
		r.Get("/hour-types", h.ListHourTypes)

		// Contract routes
		r.Route("/contracts/{id}", func(r chi.Router) {
			r.Get("/buckets", h.GetBuckets)
			r.Get("/allocations", h.ListAllocations)
			r.Post("/allocations", h.CreateAllocations)
			r.Delete("/allocations", h.DeleteAllocations)
		})

		// Consultant routes
		r.Get("/consultants/{id}/earnings", h.GetEarnings)

		// Admin routes
		r.Route("/admin/consultant-rates", func(r chi.Router) {
			r.Get("/", h.ListRates)
			r.Post("/", h.CreateRate)
			r.Patch("/{id}", h.RepriceRate)
			r.Delete("/{id}", h.CloseRate)
		})

		// FX routes
		r.Route("/fx", func(r chi.Router) {
			r.Get("/latest", h.GetLatestFx)
			r.Post("/refresh", h.RefreshFx)
		})
	})

	return r
}
