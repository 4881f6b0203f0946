// Package api provides the HTTP REST API and WebSocket server for the
// mixer core.
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/gray-logic-mixer/internal/broadcast"
	"github.com/nerrad567/gray-logic-mixer/internal/history"
	"github.com/nerrad567/gray-logic-mixer/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-mixer/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-mixer/internal/state"
	"github.com/nerrad567/gray-logic-mixer/internal/transport"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// defaultConnectTimeout bounds a device connect requested over the API.
const defaultConnectTimeout = 5 * time.Second

// WebSocket defaults, used when the config leaves them zero.
const (
	defaultWSMaxMessageSize = 8192
	defaultWSPingInterval   = 30
	defaultWSPongTimeout    = 10
)

// HealthChecker is implemented by optional components reported in metrics.
type HealthChecker interface {
	IsConnected() bool
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config      config.APIConfig
	WS          config.WebSocketConfig
	Logger      *logging.Logger
	Manager     *state.Manager
	Broadcaster *broadcast.Broadcaster

	// History is optional.
	History history.Repository

	// MQTT and InfluxDB are optional and only reported in metrics.
	MQTT     HealthChecker
	InfluxDB HealthChecker

	// Dial opens device transports. Defaults to transport.Dial.
	Dial transport.DialFunc

	// ConnectTimeout bounds API-initiated device connects.
	ConnectTimeout time.Duration

	// DeviceQueueSize is the inbound event queue length of new boards.
	DeviceQueueSize int

	Version string
}

// Server is the HTTP API server.
//
// It manages the HTTP listener, routes, middleware, and WebSocket clients.
// The server is created with New() and started with Start().
type Server struct {
	cfg         config.APIConfig
	wsCfg       config.WebSocketConfig
	logger      *logging.Logger
	manager     *state.Manager
	broadcaster *broadcast.Broadcaster
	history     history.Repository
	mqtt        HealthChecker
	influx      HealthChecker
	dial        transport.DialFunc
	connTimeout time.Duration
	queueSize   int
	version     string
	startTime   time.Time

	router http.Handler
	server *http.Server
	hub    *hub

	// ctx bounds work started by WebSocket clients; cancelled by Close.
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called; Handler is usable
// immediately.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Manager == nil {
		return nil, fmt.Errorf("state manager is required")
	}
	if deps.Broadcaster == nil {
		return nil, fmt.Errorf("broadcaster is required")
	}
	if deps.Dial == nil {
		deps.Dial = transport.Dial
	}
	if deps.ConnectTimeout <= 0 {
		deps.ConnectTimeout = defaultConnectTimeout
	}
	if deps.WS.MaxMessageSize <= 0 {
		deps.WS.MaxMessageSize = defaultWSMaxMessageSize
	}
	if deps.WS.PingInterval <= 0 {
		deps.WS.PingInterval = defaultWSPingInterval
	}
	if deps.WS.PongTimeout <= 0 {
		deps.WS.PongTimeout = defaultWSPongTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:         deps.Config,
		wsCfg:       deps.WS,
		logger:      deps.Logger,
		manager:     deps.Manager,
		broadcaster: deps.Broadcaster,
		history:     deps.History,
		mqtt:        deps.MQTT,
		influx:      deps.InfluxDB,
		dial:        deps.Dial,
		connTimeout: deps.ConnectTimeout,
		queueSize:   deps.DeviceQueueSize,
		version:     deps.Version,
		startTime:   time.Now(),
		hub:         newHub(deps.Logger),
		ctx:         ctx,
		cancel:      cancel,
	}
	s.router = s.buildRouter()
	return s, nil
}

// Handler returns the router with all middleware applied.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins listening for HTTP connections in a background goroutine.
// The server can be stopped with Close().
func (s *Server) Start(_ context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close disconnects every WebSocket client and gracefully shuts down the
// HTTP server. It waits up to 10 seconds for in-flight requests.
func (s *Server) Close() error {
	s.cancel()
	s.hub.closeAll()

	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
