// Package server exposes the HTTP control API, the metrics endpoint and the
// websocket event feed.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/dexarb/internal/domain"
	"github.com/alanyoungcy/dexarb/internal/server/handler"
	"github.com/alanyoungcy/dexarb/internal/server/middleware"
	"github.com/alanyoungcy/dexarb/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Addr        string
	CORSOrigins []string
	APIKey      string // empty disables authentication

	// Limiter enables per-IP rate limiting when non-nil.
	Limiter         domain.RateLimiter
	RateLimit       int
	RateLimitWindow time.Duration
}

// Handlers aggregates the HTTP handlers to register. Metrics and Hub are
// optional.
type Handlers struct {
	Health   *handler.HealthHandler
	Control  *handler.ControlHandler
	Settings *handler.SettingsHandler
	Logs     *handler.LogsHandler
	Metrics  http.Handler
	Hub      *ws.Hub
}

// Server is the HTTP API of the bot.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// Paths reachable without the API key.
var publicPaths = []string{"/api/health", "/metrics"}

// NewServer registers every route and wraps the mux in the middleware chain:
// CORS, then logging, then rate limiting, then auth.
func NewServer(cfg Config, h Handlers, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "http"))
	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           newHandler(cfg, h, logger),
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger: logger,
	}
}

func newHandler(cfg Config, h Handlers, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", h.Health.HealthCheck)

	mux.HandleFunc("POST /api/start", h.Control.Start)
	mux.HandleFunc("POST /api/stop", h.Control.Stop)
	mux.HandleFunc("GET /api/status", h.Control.Status)

	mux.HandleFunc("GET /api/settings", h.Settings.Get)
	mux.HandleFunc("POST /api/settings", h.Settings.Update)

	mux.HandleFunc("GET /api/logs", h.Logs.Recent)
	mux.HandleFunc("GET /api/logs/history", h.Logs.History)

	if h.Metrics != nil {
		mux.Handle("GET /metrics", h.Metrics)
	}
	if h.Hub != nil {
		mux.HandleFunc("GET /ws", h.Hub.HandleWS)
	}

	var root http.Handler = mux
	root = middleware.Auth(cfg.APIKey, publicPaths...)(root)
	if cfg.Limiter != nil && cfg.RateLimit > 0 {
		window := cfg.RateLimitWindow
		if window <= 0 {
			window = time.Second
		}
		root = middleware.RateLimit(cfg.Limiter, cfg.RateLimit, window, logger)(root)
	}
	root = middleware.Logging(logger)(root)
	root = middleware.CORS(cfg.CORSOrigins)(root)
	return root
}

// Handler returns the fully wrapped root handler.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start listens until the server is shut down.
func (s *Server) Start() error {
	s.logger.Info("listening", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown waits for in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
