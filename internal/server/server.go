// Package server assembles the HTTP and WebSocket API surface.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/calebhwang/predictd/internal/server/handler"
	"github.com/calebhwang/predictd/internal/server/middleware"
	"github.com/calebhwang/predictd/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CORSOrigins  []string
	AdminAPIKey  string // if empty, admin authentication is disabled
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health  *handler.HealthHandler
	Markets *handler.MarketHandler
	Trading *handler.TradingHandler
	Users   *handler.UserHandler
	Admin   *handler.AdminHandler
}

// Server is the HTTP + WebSocket API server for the prediction market.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	log        *slog.Logger
}

// NewServer creates a Server with all routes registered on the ServeMux and
// the middleware chain (CORS, logging) wired around it. Admin routes sit
// behind API-key auth when a key is configured.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, log *slog.Logger) *Server {
	mux := http.NewServeMux()
	adminAuth := middleware.Auth(cfg.AdminAPIKey)

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Markets. Creation is open and idempotent on ticker; lifecycle
	// management lives under /api/admin.
	mux.HandleFunc("POST /api/markets", handlers.Admin.CreateMarket)
	mux.HandleFunc("GET /api/markets", handlers.Markets.ListMarkets)
	mux.HandleFunc("GET /api/markets/{id}", handlers.Markets.GetMarket)
	mux.HandleFunc("GET /api/markets/{id}/trades", handlers.Markets.ListTrades)
	mux.HandleFunc("GET /api/markets/{id}/history", handlers.Markets.PriceHistory)
	mux.HandleFunc("GET /api/markets/{id}/events", handlers.Markets.ListEvents)

	// Trading.
	mux.HandleFunc("POST /api/markets/{id}/buy", handlers.Trading.Buy)
	mux.HandleFunc("POST /api/markets/{id}/sell", handlers.Trading.Sell)

	// Users.
	mux.HandleFunc("POST /api/users", handlers.Users.CreateOrLogin)
	mux.HandleFunc("GET /api/users/{id}", handlers.Users.GetUser)
	mux.HandleFunc("GET /api/users/{id}/positions", handlers.Users.ListPositions)
	mux.HandleFunc("GET /api/users/{id}/ledger", handlers.Users.LedgerHistory)
	mux.HandleFunc("POST /api/users/{id}/deposit", handlers.Users.MockDeposit)
	mux.HandleFunc("POST /api/users/{id}/withdrawals", handlers.Users.SignWithdrawal)

	// Admin lifecycle management.
	mux.Handle("POST /api/admin/markets/{id}/liquidity", adminAuth(http.HandlerFunc(handlers.Admin.AddLiquidity)))
	mux.Handle("POST /api/admin/markets/{id}/pause", adminAuth(http.HandlerFunc(handlers.Admin.PauseMarket)))
	mux.Handle("POST /api/admin/markets/{id}/resume", adminAuth(http.HandlerFunc(handlers.Admin.ResumeMarket)))
	mux.Handle("POST /api/admin/markets/{id}/resolve", adminAuth(http.HandlerFunc(handlers.Admin.ResolveMarket)))
	mux.Handle("GET /api/admin/stats", adminAuth(http.HandlerFunc(handlers.Admin.Stats)))

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Logging(log)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	readTimeout := cfg.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 15 * time.Second
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 30 * time.Second
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      h,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		log:        log,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.log.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

// Handler exposes the assembled handler chain for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}
