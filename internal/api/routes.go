package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"

	"throttle/internal/models"
	"throttle/internal/ratelimit"
)

// RouteOption configures optional route behavior.
type RouteOption func(*mux.Router)

// WithOTelMiddleware adds OpenTelemetry HTTP instrumentation middleware.
func WithOTelMiddleware(serviceName string) RouteOption {
	return func(r *mux.Router) {
		r.Use(otelmux.Middleware(serviceName,
			otelmux.WithFilter(func(r *http.Request) bool {
				return r.URL.Path != "/health" &&
					r.URL.Path != "/api/v1/health" &&
					r.URL.Path != "/api/v1/openapi.yaml" &&
					r.URL.Path != "/api/v1/docs"
			}),
		))
	}
}

// SetupRoutes configures the HTTP routes for the API
func SetupRoutes(handlers *Handlers, config *models.Config, opts ...RouteOption) *mux.Router {
	router := mux.NewRouter()

	for _, opt := range opts {
		opt(router)
	}

	router.Use(requestIDMiddleware)
	router.Use(loggingMiddleware)
	router.Use(recoveryMiddleware)

	router.HandleFunc("/health", handlers.HealthCheck).Methods("GET")

	// API routes are registered on the root router with full paths. A method
	// mismatch recorded inside a shared subrouter is cleared by later sibling
	// routes, which turns 405 into 404.
	router.HandleFunc("/api/v1/health", handlers.HealthCheck).Methods("GET")
	router.HandleFunc("/api/v1/admit", handlers.Admit).Methods("POST")
	router.HandleFunc("/api/v1/stats", handlers.Stats).Methods("GET")
	router.HandleFunc("/api/v1/identifiers/{identifier}", handlers.GetIdentifier).Methods("GET")
	router.HandleFunc("/api/v1/openapi.yaml", handlers.ServeOpenAPISpec).Methods("GET")
	router.HandleFunc("/api/v1/docs", handlers.ServeSwaggerUI).Methods("GET")

	requireAdmin := adminTokenMiddleware(config.Security.AdminToken)
	router.Handle("/api/v1/identifiers/{identifier}", requireAdmin(http.HandlerFunc(handlers.ResetIdentifier))).Methods("DELETE")

	// Demo resources throttled per client IP.
	if config.Admission.GuardEnabled {
		protected := router.PathPrefix("/api/v1/protected").Subrouter()
		protected.Use(ratelimit.Middleware(handlers.admitter, config.Security.TrustProxyHeaders))
		protected.HandleFunc("/{resource}", handlers.Protected).Methods("GET")
	}

	router.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowedHandler)

	return router
}

// methodNotAllowedHandler handles requests with invalid HTTP methods
func methodNotAllowedHandler(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, models.NewErrorResponse("Method not allowed", models.ErrorCodeInvalidRequest))
}
