/**
 * @description
 * This file sets up the HTTP router for the controller service using the
 * go-chi/chi router. It defines the API routes, applies middleware for logging,
 * CORS, and authentication, and maps the routes to their handler functions.
 */
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new Chi router and registers the controller-service routes.
func NewRouter(h *Handler, jwksURL, internalAPIKey string) *chi.Mux {
	r := chi.NewRouter()

	// Setup middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Internal-API-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any major browsers
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Controller service is healthy"))
	})

	// Authenticated routes; identity comes from the JWT subject
	r.Group(func(r chi.Router) {
		r.Use(JWTAuthMiddleware(jwksURL))

		r.Post("/controllers", h.handleInitializeController)
		r.Get("/controllers/me", h.handleGetController)
		r.Post("/controllers/me/bundles", h.handleAddBundle)
		r.Get("/controllers/me/bundles", h.handleListBundles)
		r.Get("/controllers/me/payments", h.handleListPayments)

		// The authority gate itself runs inside the engine; the route only
		// establishes who the caller is.
		r.Post("/trigger", h.handleTrigger)
	})

	// Server-to-server routes
	r.Group(func(r chi.Router) {
		r.Use(InternalAuthMiddleware(internalAPIKey))

		r.Post("/internal/trigger-scan", h.handleTriggerScan)
	})

	return r
}
