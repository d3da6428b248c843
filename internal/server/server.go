// Package server provides the HTTP API for kbserve.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hyperjump/kbserve/internal/answer"
	"github.com/hyperjump/kbserve/internal/config"
	"github.com/hyperjump/kbserve/internal/models"
	"go.uber.org/zap"
)

// HealthChecker produces readiness reports. It must not fail.
type HealthChecker interface {
	Check(ctx context.Context) *models.HealthReport
}

// Server is the HTTP server for the kbserve API.
type Server struct {
	health   HealthChecker
	answerer answer.Answerer
	config   *config.ServerConfig
	logger   *zap.Logger
	server   *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(
	health HealthChecker,
	answerer answer.Answerer,
	cfg *config.ServerConfig,
	logger *zap.Logger,
) *Server {
	return &Server{
		health:   health,
		answerer: answerer,
		config:   cfg,
		logger:   logger,
	}
}

// Handler builds the router with all routes and middleware.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(s.corsHandler())
	if s.config.RequestTimeout > 0 {
		r.Use(middleware.Timeout(s.config.RequestTimeout))
	}

	r.Post("/query", s.handleQuery)
	r.Post("/", s.handleRootQuery)
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
