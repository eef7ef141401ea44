// Package server is the operator HTTP API: health, engine status, persisted
// legs and executions, cached balances, the event stream and Prometheus
// metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/alanyoungcy/arbengine/internal/server/handler"
	"github.com/alanyoungcy/arbengine/internal/server/middleware"
)

// Config holds the HTTP server configuration.
type Config struct {
	Addr   string
	APIKey string // if empty, authentication is disabled
	// RateLimit is requests per RateWindow per client IP; 0 disables.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates the handlers to register. Nil handlers leave their
// routes unregistered.
type Handlers struct {
	Health     *handler.HealthHandler
	Status     *handler.StatusHandler
	Orders     *handler.OrderHandler
	Executions *handler.ExecutionHandler
	Balances   *handler.BalanceHandler
	Events     *handler.EventHandler
	Audit      *handler.AuditHandler
	Metrics    http.Handler
}

// Server is the headless ops API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

const (
	pathHealth  = "/api/health"
	pathMetrics = "/metrics"
)

// NewServer registers routes and wraps them in auth, rate limiting and
// request logging. limiter may be nil.
func NewServer(cfg Config, handlers Handlers, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "server"))
	mux := http.NewServeMux()

	if handlers.Health != nil {
		mux.HandleFunc("GET "+pathHealth, handlers.Health.HealthCheck)
	}
	if handlers.Metrics != nil {
		mux.Handle("GET "+pathMetrics, handlers.Metrics)
	}
	if handlers.Status != nil {
		mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)
	}
	if handlers.Orders != nil {
		mux.HandleFunc("GET /api/orders", handlers.Orders.ListOrders)
	}
	if handlers.Executions != nil {
		mux.HandleFunc("GET /api/executions", handlers.Executions.ListRecent)
		mux.HandleFunc("GET /api/executions/{group_id}", handlers.Executions.Get)
	}
	if handlers.Balances != nil {
		mux.HandleFunc("GET /api/balances/{venue}", handlers.Balances.GetBalances)
	}
	if handlers.Events != nil {
		mux.HandleFunc("GET /api/events", handlers.Events.ListEvents)
	}
	if handlers.Audit != nil {
		mux.HandleFunc("GET /api/audit", handlers.Audit.List)
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey, pathHealth, pathMetrics)(h)
	if limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow, logger)(h)
	}
	h = middleware.Logging(logger, pathHealth, pathMetrics)(h)

	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.Addr,
			Handler:      h,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start listens until the server fails or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown waits for in-flight requests within ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
