// Package server exposes the relay taker over HTTP and websocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/relaytaker/internal/domain"
	"github.com/alanyoungcy/relaytaker/internal/server/handler"
	"github.com/alanyoungcy/relaytaker/internal/server/middleware"
	"github.com/alanyoungcy/relaytaker/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // empty disables authentication
	// RateLimit is requests per RateLimitWindow per client; 0 disables it.
	RateLimit       int
	RateLimitWindow time.Duration
	// WriteTimeout must cover a whole fill, which waits for blocks.
	WriteTimeout time.Duration
}

// Handlers aggregates the HTTP handlers registered by the server.
type Handlers struct {
	Health  *handler.HealthHandler
	Status  *handler.StatusHandler
	Network *handler.NetworkHandler
	Orders  *handler.OrdersHandler
	Tokens  *handler.TokensHandler
	Fills   *handler.FillsHandler
	Audit   *handler.AuditHandler // nil without an audit store
}

// Server is the HTTP and websocket API.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers every route and builds the middleware chain. limiter
// and hub may be nil.
func NewServer(cfg Config, handlers Handlers, hub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.Health)
	mux.HandleFunc("GET /api/status", handlers.Status.Status)
	mux.HandleFunc("GET /api/network", handlers.Network.Network)

	mux.HandleFunc("GET /api/orders", handlers.Orders.ListOrders)
	mux.HandleFunc("GET /api/pairs", handlers.Orders.ListPairs)
	mux.HandleFunc("GET /api/tokens/{address}/symbol", handlers.Tokens.Symbol)

	mux.HandleFunc("POST /api/fills", handlers.Fills.CreateFill)
	mux.HandleFunc("GET /api/fills", handlers.Fills.ListFills)
	mux.HandleFunc("GET /api/fills/events", handlers.Fills.Events)
	mux.HandleFunc("GET /api/fills/{id}", handlers.Fills.GetFill)
	mux.HandleFunc("GET /api/fills/{id}/receipt", handlers.Fills.GetReceipt)

	if handlers.Audit != nil {
		mux.HandleFunc("GET /api/audit", handlers.Audit.List)
	}
	if hub != nil {
		mux.HandleFunc("GET /ws", hub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey, "/api/health")(h)
	if limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateLimitWindow, logger)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Minute
	}

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           h,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      writeTimeout,
			IdleTimeout:       60 * time.Second,
		},
		logger: logger,
	}
}

// Handler returns the root handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start listens until the server fails or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown waits for in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
