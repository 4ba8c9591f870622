package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	corslib "github.com/rs/cors"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/ovaria/pcos-tracker/internal/api/handler"
	"github.com/ovaria/pcos-tracker/internal/config"

	_ "github.com/ovaria/pcos-tracker/docs"
)

// NewRouter creates and configures the Chi router with all middleware and routes.
func NewRouter(deps handler.Deps, cfg *config.Config) *chi.Mux {
	r := chi.NewRouter()

	// --- Middleware stack ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(TimingMiddleware)
	r.Use(MetricsMiddleware)
	r.Use(middleware.Compress(5)) // gzip

	// CORS
	c := corslib.New(corslib.Options{
		AllowedOrigins:   cfg.CORSAllowOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Accept-Encoding", "Content-Type", "If-None-Match", "Cache-Control"},
		ExposedHeaders:   []string{"X-Process-Time", "X-Cache", "ETag", "X-Request-Id"},
		AllowCredentials: false,
	})
	r.Use(c.Handler)

	// Rate limiting
	if cfg.RateLimitEnabled {
		r.Use(RateLimitMiddleware(cfg.RateLimitRequests, cfg.RateLimitWindow))
	}

	h := handler.New(deps)

	// --- Routes ---

	r.Get("/", h.Root)

	r.Route("/health", func(r chi.Router) {
		r.Get("/", h.HealthCheck)
		r.Get("/db", h.HealthCheckDB)
		r.Get("/cache", h.HealthCheckCache)
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL("/docs/doc.json")))

	r.Route("/api/v1/users/{userID}", func(r chi.Router) {
		r.Get("/predictions/next-cycle", h.GetNextCyclePrediction)

		r.Route("/cycles", func(r chi.Router) {
			r.Get("/", h.ListCycles)
			r.Post("/", h.CreateCycle)
			r.Delete("/{entryID}", h.DeleteCycle)
		})

		r.Get("/notification-preferences", h.GetPreferences)
		r.Put("/notification-preferences", h.UpdatePreferences)

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", h.ListNotifications)
			r.Post("/", h.CreateNotification)
			r.Get("/unread-count", h.UnreadCount)
			r.Post("/eligibility", h.CheckEligibility)
			r.Post("/read-all", h.MarkAllNotificationsRead)
			r.Patch("/{id}/read", h.MarkNotificationRead)
			r.Delete("/{id}", h.DeleteNotification)
		})
	})

	return r
}
