// Package server exposes the Divfolio REST API
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/tobyrouse/divfolio/internal/common"
	"github.com/tobyrouse/divfolio/internal/interfaces"
)

// Server wraps the HTTP server and its service dependencies.
type Server struct {
	snapshots interfaces.SnapshotProvider
	payouts   interfaces.PayoutService
	settings  *common.SettingsStore
	config    *common.Config
	logger    *common.Logger
	server    *http.Server
}

// NewServer creates a new HTTP REST API server.
func NewServer(config *common.Config, snapshots interfaces.SnapshotProvider, payouts interfaces.PayoutService, settings *common.SettingsStore, logger *common.Logger) *Server {
	s := &Server{
		snapshots: snapshots,
		payouts:   payouts,
		settings:  settings,
		config:    config,
		logger:    logger,
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	handler := applyMiddleware(mux, logger)

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port),
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// registerRoutes sets up all REST API routes on the mux.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	// System
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/version", s.handleVersion)

	// Portfolio
	mux.HandleFunc("/api/portfolio", s.handlePortfolio)
	mux.HandleFunc("/api/dividends", s.handleDividends)
	mux.HandleFunc("/api/dividends/chart", s.handleDividendsChart)
	mux.HandleFunc("/api/payouts", s.handlePayouts)
	mux.HandleFunc("/api/refresh", s.handleRefresh)

	// Settings
	mux.HandleFunc("/api/settings", s.handleSettings)
}

// Handler returns the HTTP handler for testing.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server (blocking).
func (s *Server) Start() error {
	s.logger.Info().
		Str("addr", s.server.Addr).
		Msg("Starting REST API server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
