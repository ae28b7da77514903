package routes

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/upb/signalops/app"
	"github.com/upb/signalops/handlers"
	"github.com/upb/signalops/utils"
)

// OperatorRole is the JWT role required for the admin endpoints
const OperatorRole = "operator"

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	requestTimeout := 60 * time.Second
	allowedOrigins := []string{"http://localhost:*", "https://*"}
	if deps.Config != nil {
		if deps.Config.Server.RequestTimeout > 0 {
			requestTimeout = deps.Config.Server.RequestTimeout
		}
		if len(deps.Config.Server.AllowedOrigins) > 0 {
			allowedOrigins = deps.Config.Server.AllowedOrigins
		}
	}

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "Idempotency-Key"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoints
	health := newHealthHandler(deps)
	r.Get("/healthz", health.HandleHealth)
	r.Get("/readyz", health.HandleReadiness)

	// Metrics
	r.Handle("/metrics", metricsHandler(deps.Registry))

	// Event ingestion (tenant API key)
	events := handlers.NewEventHandler(deps.Ingestion, deps.Logger)
	ingest := func(r chi.Router) {
		r.Use(deps.APIKeyMiddleware.RequireAPIKey)
		r.Post("/", events.HandleIngest)
	}
	r.Route("/events", ingest)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/events", ingest)

		// Operator endpoints (require operator role)
		admin := handlers.NewAdminHandler(deps.Ingestion, deps.DeadLetters, deps.Usage, deps.Logger)
		r.Route("/admin", func(r chi.Router) {
			r.Use(deps.AuthMiddleware.RequireAuth)
			r.Use(deps.AuthMiddleware.RequireRole(OperatorRole))
			r.Post("/tenants/{tenantID}/events/{eventID}/requeue", admin.HandleRequeue)
			r.Get("/tenants/{tenantID}/usage", admin.HandleGetUsage)
			r.Get("/dead-letters", admin.HandleListDeadLetters)
		})
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "endpoint not found")
	})

	return r
}

// newHealthHandler keeps unset infrastructure as untyped nils so readiness reports it as not configured
func newHealthHandler(deps *app.Dependencies) *handlers.HealthHandler {
	var db *sql.DB
	if deps.DB != nil {
		db = deps.DB.DB
	}
	var pinger handlers.RedisPinger
	if deps.Redis != nil {
		pinger = deps.Redis
	}
	return handlers.NewHealthHandler(db, pinger, deps.Logger)
}

func metricsHandler(registry *prometheus.Registry) http.Handler {
	if registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
}
