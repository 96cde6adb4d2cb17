package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/radiotherm-homie/internal/homie"
	"github.com/nerrad567/radiotherm-homie/internal/infrastructure/config"
	"github.com/nerrad567/radiotherm-homie/internal/infrastructure/logging"
)

// Server timeouts.
const (
	// gracefulShutdownTimeout is the maximum time to wait for in-flight
	// requests to complete during shutdown.
	gracefulShutdownTimeout = 10 * time.Second

	readTimeout  = 5 * time.Second
	writeTimeout = 10 * time.Second
	idleTimeout  = 60 * time.Second
)

// PropertySource exposes the Homie tree read-only.
// Satisfied by *homie.Device.
type PropertySource interface {
	ID() string
	Name() string
	State() string
	Values() []homie.PropertyValue
}

// HealthChecker is satisfied by infrastructure clients (MQTT, thermostat).
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	Logger   *logging.Logger
	Tree     PropertySource
	Gatherer prometheus.Gatherer

	// Checks are run by GET /health, keyed by component name.
	Checks map[string]HealthChecker

	Version string
}

// Server is the bridge's optional HTTP side-server: health, Prometheus
// metrics and a read-only view of the property tree.
//
// The server is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	logger    *logging.Logger
	tree      PropertySource
	gatherer  prometheus.Gatherer
	checks    map[string]HealthChecker
	version   string
	startTime time.Time

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Tree == nil {
		return nil, fmt.Errorf("property tree is required")
	}
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	return &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		tree:      deps.Tree,
		gatherer:  gatherer,
		checks:    deps.Checks,
		version:   deps.Version,
		startTime: time.Now(),
	}, nil
}

// Start binds the listener and serves in a background goroutine.
//
// Returns:
//   - error: If the address cannot be bound (port in use, etc.)
func (s *Server) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		return fmt.Errorf("api server already started")
	}

	addr := s.cfg.Address()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	s.listener = ln
	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	s.logger.Info("API server listening", "address", ln.Addr().String())
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}
