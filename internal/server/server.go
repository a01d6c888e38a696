// Package server is the rebalancer's optional debug/health HTTP surface:
// `serve --listen` exposes the supervisor's per-component health and the
// in-process metrics snapshot, adapted from the teacher's
// internal/server/server.go route-registration shape but trimmed down to
// the two endpoints spec.md's Non-goals leave in scope (no trading-API
// routes, no WebSocket hub, no auth/CORS/rate-limit middleware — this
// surface is meant for an operator or orchestrator liveness probe, not a
// public API).
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/crossfluxx/rebalancer/internal/server/handler"
)

// Handlers aggregates the HTTP handlers the server registers.
type Handlers struct {
	Health  *handler.HealthHandler
	Metrics *handler.MetricsHandler
}

// Server is the headless HTTP server backing --listen.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a Server listening on addr with routes registered on a fresh
// ServeMux.
func New(addr string, handlers Handlers, logger *slog.Logger) *Server {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /metrics", handlers.Metrics.Metrics)

	return &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger.With(slog.String("component", "server")),
	}
}

// Run starts the server and blocks until ctx is cancelled, at which point it
// shuts down gracefully. It satisfies supervisor.Component.Run.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", slog.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("server: listen: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: shutdown: %w", err)
		}
		<-errCh
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}
