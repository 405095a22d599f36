// Package server provides HTTP server management and lifecycle handling for the
// prescriptions front end: middleware chain, routes and graceful shutdown.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/giygas/prescriptions-web/config"
	"github.com/giygas/prescriptions-web/handlers"
	"github.com/giygas/prescriptions-web/logging"
	"github.com/giygas/prescriptions-web/metrics"
	"github.com/giygas/prescriptions-web/session"
)

// Server represents the HTTP server
type Server struct {
	server   *http.Server
	router   chi.Router
	config   *config.Config
	handlers *handlers.Handler
	sessions *session.Store
	limiter  *RateLimiter
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config, h *handlers.Handler, sessions *session.Store, limiter *RateLimiter) *Server {
	router := chi.NewRouter()

	server := &Server{
		server: &http.Server{
			Handler:      router,
			Addr:         cfg.ListenAddr(),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		router:   router,
		config:   cfg,
		handlers: h,
		sessions: sessions,
		limiter:  limiter,
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

// setupMiddleware configures all middleware
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(RealIPMiddleware)
	s.router.Use(logging.RequestLogger(logging.Logger()))
	s.router.Use(middleware.RedirectSlashes)
	s.router.Use(middleware.Recoverer)
	s.router.Use(RequestSizeMiddleware(s.config))
	if s.limiter != nil {
		s.router.Use(s.limiter.Middleware)
	}
	s.router.Use(metrics.Metrics)
}

// setupRoutes configures all routes. Pages get a session; probes and assets do not.
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handlers.Health)
	s.router.Handle("/metrics", promhttp.Handler())
	s.router.Handle("/static/*", s.handlers.Static())

	s.router.Group(func(r chi.Router) {
		r.Use(s.sessions.Middleware)
		s.handlers.Routes(r)
	})
}

// Handler returns the root handler with every middleware applied
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the server
func (s *Server) Start() error {
	logging.Info("Starting server", "address", s.server.Addr, "api_url", s.config.APIURL)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server, then ends every session
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down server...")

	err := s.server.Shutdown(ctx)
	if err != nil {
		logging.Error("Server forced to shutdown", "error", err)
		if cerr := s.server.Close(); cerr != nil {
			logging.Error("Server close error", "error", cerr)
		}
	}

	s.sessions.Close()

	logging.Info("Server shutdown complete")
	return err
}
