// Package server exposes the position lifecycle over HTTP and streams
// position events over WebSocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Juhan1212/karbit-sub001/internal/server/handler"
	"github.com/Juhan1212/karbit-sub001/internal/server/middleware"
	"github.com/Juhan1212/karbit-sub001/internal/server/ws"
)

// writeTimeout covers a synchronous close finalization, which can run for the
// whole close retry policy.
const writeTimeout = 60 * time.Second

// Config holds the HTTP server configuration. APIKey guards every route
// except the health checks; an empty key disables authentication.
type Config struct {
	Addr              string
	CORSOrigins       []string
	APIKey            string
	RequestsPerSecond float64
	Burst             int
}

// Handlers aggregates the HTTP handlers the server registers.
type Handlers struct {
	Health    *handler.HealthHandler
	Positions *handler.PositionHandler
	Rates     *handler.RateHandler
}

// Server is the HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers the routes and wraps them in the middleware chain. hub
// may be nil, in which case /ws is not served.
func NewServer(cfg Config, handlers Handlers, hub *ws.Hub, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "server"))
	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.Addr,
			Handler:      Routes(cfg, handlers, hub, logger),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: writeTimeout,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// Routes builds the handler tree without binding a listener.
func Routes(cfg Config, handlers Handlers, hub *ws.Hub, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/ready", handlers.Health.Ready)

	mux.HandleFunc("POST /api/positions/open", handlers.Positions.Open)
	mux.HandleFunc("POST /api/positions/close", handlers.Positions.Close)
	mux.HandleFunc("GET /api/positions/settlement", handlers.Positions.Settlement)
	mux.HandleFunc("GET /api/executions/pending", handlers.Positions.Pending)

	mux.HandleFunc("GET /api/rate", handlers.Rates.CrossRate)

	if hub != nil {
		mux.HandleFunc("GET /ws", hub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey, "/api/health", "/api/ready")(h)
	h = middleware.RateLimit(cfg.RequestsPerSecond, cfg.Burst)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)
	return h
}

// Start listens until the server is shut down.
func (s *Server) Start() error {
	s.logger.Info("starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
