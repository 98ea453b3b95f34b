package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		// Broker webhook and provisioning endpoints
		r.Route("/mqtt", func(r chi.Router) {
			r.Post("/auth", s.handleAuth)
			r.Post("/acl", s.handleACL)
			r.Post("/create_account", s.handleCreateAccount)
			r.Get("/device-info/{clientID}", s.handleDeviceInfo)
		})
	})

	return r
}

// handleHealth returns the server health status, including database
// connectivity.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	httpStatus := http.StatusOK

	if s.db != nil {
		if err := s.db.HealthCheck(r.Context()); err != nil {
			s.logger.Error("health check: database unhealthy", "error", err)
			status = "degraded"
			httpStatus = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":  status,
		"version": s.version,
	})
}
