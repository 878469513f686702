package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/upb/freelance-marketplace/backend/app"
	"github.com/upb/freelance-marketplace/backend/handlers"
	"github.com/upb/freelance-marketplace/backend/models"
	"github.com/upb/freelance-marketplace/backend/services/ratelimit"
	"github.com/upb/freelance-marketplace/backend/utils"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link", "X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	health := handlers.NewHealthHandler(healthChecks(deps), deps.Logger)
	catalog := handlers.NewCatalogHandler()
	milestones := handlers.NewMilestoneHandler(deps.Logger)
	remarks := handlers.NewRemarkHandler(deps.RemarkService, deps.Logger).
		WithQuota(deps.RateLimitMiddleware, ratelimit.ScopeRemarkCreate)

	// Health check endpoints
	r.Get("/healthz", health.HandleHealth)
	r.Get("/readyz", health.HandleReadiness)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public routes
		r.Route("/catalog", func(r chi.Router) {
			r.Get("/categories", catalog.HandleCategories)
			r.Get("/skills", catalog.HandleSkills)
			r.Get("/plans", catalog.HandlePlans)
		})
		r.Post("/milestones/deletion-preview", milestones.HandleDeletionPreview)

		// Deletion remarks: any signed-in user files them, only admins read them
		r.Route("/deletion-remarks", func(r chi.Router) {
			r.Use(deps.AuthMiddleware.RequireAuth)

			r.With(deps.RateLimitMiddleware.Limit(ratelimit.ScopeRemarkCreate)).Post("/", remarks.HandleCreate)
			// Charged per remark once the body is decoded
			r.Post("/batch", remarks.HandleCreateBatch)

			r.Group(func(r chi.Router) {
				r.Use(deps.AuthMiddleware.RequireRole(string(models.RoleAdmin)))
				r.Get("/", remarks.HandleList)
				r.Get("/{id}", remarks.HandleGet)
			})
		})
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "endpoint not found")
	})

	return r
}

// healthChecks collects a readiness probe for every backend that is open
func healthChecks(deps *app.Dependencies) map[string]handlers.HealthChecker {
	checks := map[string]handlers.HealthChecker{}
	if deps.DB != nil {
		checks["database"] = deps.DB
	}
	if deps.Mongo != nil {
		checks["mongo"] = deps.Mongo
	}
	if deps.Redis != nil {
		client := deps.Redis
		checks["redis"] = handlers.HealthCheckFunc(func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
	}
	return checks
}
