package device

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sensorstack/core/internal/infrastructure/config"
	"github.com/sensorstack/core/internal/infrastructure/database"
	"github.com/sensorstack/core/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight
// requests to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// ServerDeps holds the dependencies required by the registry API server.
type ServerDeps struct {
	Config   config.APIConfig
	Logger   *logging.Logger
	Registry *Registry
	DB       *database.DB

	// JWTSecret protects mutating endpoints when non-empty. An empty
	// secret leaves the API open, which is the development default.
	JWTSecret string

	Version string
}

// Server is the HTTP server for deviced.
type Server struct {
	cfg       config.APIConfig
	logger    *logging.Logger
	registry  *Registry
	db        *database.DB
	jwtSecret string
	version   string

	server *http.Server
}

// NewServer creates the registry API server. It is not started until
// Start() is called.
func NewServer(deps ServerDeps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}

	return &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		registry:  deps.Registry,
		db:        deps.DB,
		jwtSecret: deps.JWTSecret,
		version:   deps.Version,
	}, nil
}

// Start begins listening for HTTP connections.
//
// The listener runs in a background goroutine; stop it with Close().
func (s *Server) Start(_ context.Context) error {
	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		err := s.server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("registry API server error", "error", err)
		}
	}()

	s.logger.Info("registry API server started", "address", s.server.Addr)
	return nil
}

// Close gracefully shuts down the API server.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("registry API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down registry API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("registry api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("registry api server not started")
	}

	return nil
}
