// Package http implements the JSON API of Achievement Hub.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/alem-hub/achievement-hub/internal/application/command"
	"github.com/alem-hub/achievement-hub/internal/application/query"
	authn "github.com/alem-hub/achievement-hub/internal/infrastructure/identity"
	"github.com/alem-hub/achievement-hub/internal/interface/http/handlers"
	"github.com/alem-hub/achievement-hub/pkg/logger"
)

// Config holds listener and request-limit settings.
type Config struct {
	Host           string
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int

	// MaxBodyBytes caps /api/v1 request bodies; larger ones get 413.
	MaxBodyBytes int64

	EnableCORS     bool
	AllowedOrigins []string

	// RateLimitPerMinute is per client IP. Zero disables limiting.
	RateLimitPerMinute int
}

// DefaultConfig listens on :8080 with 1 MiB body and header limits.
func DefaultConfig() Config {
	return Config{
		Host:           "0.0.0.0",
		Port:           8080,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
		MaxBodyBytes:   1 << 20,
		AllowedOrigins: []string{"*"},
	}
}

// Address is the host:port the server binds.
func (c Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Dependencies are the collaborators behind the routes.
type Dependencies struct {
	Commands *command.Handlers
	Queries  *query.Handlers
	Auth     authn.Provider

	// HealthChecker backs /health and /ready. ReadinessChecks names the
	// subset /ready runs; empty means all.
	HealthChecker   handlers.HealthChecker
	ReadinessChecks []string

	Logger *logger.Logger
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server serves the Achievement Hub API.
type Server struct {
	config     Config
	deps       Dependencies
	logger     *logger.Logger
	router     *http.ServeMux
	handler    http.Handler
	httpServer *http.Server
	limiter    *rateLimiter

	running atomic.Bool
}

// NewServer wires routes and middleware. It does not listen until Start.
func NewServer(config Config, deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = logger.Default()
	}
	if deps.HealthChecker == nil {
		deps.HealthChecker = handlers.NewCompositeHealthChecker("")
	}
	s := &Server{
		config: config,
		deps:   deps,
		logger: deps.Logger.With(logger.Component("http")),
		router: http.NewServeMux(),
	}
	if config.RateLimitPerMinute > 0 {
		s.limiter = newRateLimiter(config.RateLimitPerMinute, time.Minute)
	}

	s.setupRoutes()
	s.handler = s.middleware()(s.router)
	s.httpServer = &http.Server{
		Addr:           config.Address(),
		Handler:        s.handler,
		ReadTimeout:    config.ReadTimeout,
		WriteTimeout:   config.WriteTimeout,
		IdleTimeout:    config.IdleTimeout,
		MaxHeaderBytes: config.MaxHeaderBytes,
	}
	return s
}

// Handler is the fully wrapped handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING
// ══════════════════════════════════════════════════════════════════════════════

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	// ─────────────────────────────────────────────────────────────────────────
	// Health & Status Endpoints (unauthenticated)
	// ─────────────────────────────────────────────────────────────────────────
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /ready", s.handleReady)
	s.router.HandleFunc("GET /live", s.handleLive)

	// ─────────────────────────────────────────────────────────────────────────
	// API v1 (bearer authenticated)
	// ─────────────────────────────────────────────────────────────────────────
	api := http.NewServeMux()

	api.HandleFunc("POST /api/v1/submit", s.handleSubmitNew)
	api.HandleFunc("POST /api/v1/achievements", s.handleCreateDraft)
	api.HandleFunc("PUT /api/v1/achievements/{id}", s.handleUpdateContent)
	api.HandleFunc("POST /api/v1/achievements/{id}/submit", s.handleSubmit)
	api.HandleFunc("DELETE /api/v1/achievements/{id}", s.handleDelete)
	api.HandleFunc("GET /api/v1/achievements/{id}/decisions", s.handleDecisions)
	api.HandleFunc("POST /api/v1/review/{id}", s.handleReview)
	api.HandleFunc("POST /api/v1/publish", s.handlePublish)
	api.HandleFunc("POST /api/v1/withdraw/{id}", s.handleWithdraw)

	api.HandleFunc("GET /api/v1/pending", s.handlePending)
	api.HandleFunc("GET /api/v1/history", s.handleHistory)
	api.HandleFunc("GET /api/v1/mine", s.handleMine)
	api.HandleFunc("GET /api/v1/notifications", s.handleNotifications)
	api.HandleFunc("GET /api/v1/counts", s.handleCounts)

	api.HandleFunc("/api/v1/", func(w http.ResponseWriter, r *http.Request) {
		handlers.WriteJSONError(w, http.StatusNotFound, "not_found", "no such endpoint")
	})

	auth := handlers.NewAuthenticator(s.deps.Auth, s.logger)
	s.router.Handle("/api/v1/", handlers.Chain(
		handlers.NoCacheMiddleware,
		handlers.RequestSizeLimitMiddleware(s.config.MaxBodyBytes),
		auth.Middleware,
	)(api))
}

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start serves until Shutdown and returns nil after a clean shutdown.
func (s *Server) Start() error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.New("server already running")
	}
	s.logger.Info("starting HTTP server", logger.String("address", s.config.Address()))

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests until ctx expires. Called before
// Start, it makes the later Start return immediately.
func (s *Server) Shutdown(ctx context.Context) error {
	s.running.Store(false)
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// IsRunning reports whether Start is serving.
func (s *Server) IsRunning() bool {
	return s.running.Load()
}

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

