package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sensorstack/core/internal/infrastructure/config"
	"github.com/sensorstack/core/internal/infrastructure/influxdb"
	"github.com/sensorstack/core/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight
// requests during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Server exposes the live telemetry stream and a health endpoint.
type Server struct {
	cfg     config.APIConfig
	logger  *logging.Logger
	hub     *Hub
	influx  *influxdb.Client
	version string

	server *http.Server
}

// NewServer creates the telemetry API server. influx may be nil, the
// health endpoint then skips the storage check.
func NewServer(cfg config.APIConfig, hub *Hub, influx *influxdb.Client, version string, log *logging.Logger) (*Server, error) {
	if log == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if hub == nil {
		return nil, fmt.Errorf("hub is required")
	}

	return &Server{
		cfg:     cfg,
		logger:  log,
		hub:     hub,
		influx:  influx,
		version: version,
	}, nil
}

// Start begins listening for HTTP connections.
func (s *Server) Start(_ context.Context) error {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/api/v1/health", s.handleHealth)
	r.Get("/api/v1/ws/telemetry", s.hub.ServeWS)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           r,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
		// No WriteTimeout: it would sever long-lived WebSocket streams.
	}

	go func() {
		err := s.server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("telemetry API server error", "error", err)
		}
	}()

	s.logger.Info("telemetry API server started", "address", s.server.Addr)
	return nil
}

// Close gracefully shuts down the server.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("telemetry API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down telemetry API server: %w", err)
	}
	return nil
}

// handleHealth reports service health including storage reachability.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	httpStatus := http.StatusOK

	if s.influx != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.influx.HealthCheck(ctx); err != nil {
			s.logger.Warn("health check influxdb failure", "error", err)
			status = "degraded"
			httpStatus = http.StatusServiceUnavailable
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	//nolint:errcheck // Best-effort write to response
	json.NewEncoder(w).Encode(map[string]string{
		"status":  status,
		"service": "telemetryd",
		"version": s.version,
	})
}
