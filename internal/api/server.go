package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/stardispatch/internal/dispatch"
	"github.com/mattjoyce/stardispatch/internal/events"
	"github.com/mattjoyce/stardispatch/internal/metrics"
	"github.com/mattjoyce/stardispatch/internal/wire"
)

// EventDispatchFinished is published on the hub after every dispatch.
const EventDispatchFinished = "dispatch.finished"

// Config holds API server configuration
type Config struct {
	Listen string
	// Dispatch is shared by every streaming endpoint. Its Finalize hook is
	// wrapped so finished dispatches are published on the hub.
	Dispatch dispatch.Config
}

// Server represents the HTTP API server
type Server struct {
	config    Config
	hub       *events.Hub
	metrics   *metrics.Dispatch
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
	active    atomic.Int64
}

// New creates a new API server instance
func New(config Config, hub *events.Hub, logger *slog.Logger) *Server {
	if hub == nil {
		hub = events.NewHub(events.DefaultHistory)
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		config:    config,
		hub:       hub,
		metrics:   config.Dispatch.Metrics,
		logger:    logger,
		startedAt: time.Now(),
	}

	next := config.Dispatch.Finalize
	s.config.Dispatch.Finalize = func(view wire.ViewContext, resp *dispatch.Response) {
		s.hub.Publish(EventDispatchFinished, map[string]any{
			"state":  resp.State.String(),
			"status": resp.Status,
		})
		if next != nil {
			next(view, resp)
		}
	}
	return s
}

// Handler returns the configured router.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// Start starts the HTTP server (blocking)
func (s *Server) Start(ctx context.Context) error {
	router := s.setupRoutes()

	s.server = &http.Server{
		Addr:        s.config.Listen,
		Handler:     router,
		ReadTimeout: 10 * time.Second,
		// No WriteTimeout: event streams stay open until the client leaves.
		IdleTimeout: 60 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	s.logger.Info("API server starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down", "active_dispatches", s.active.Load())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// setupRoutes configures the HTTP router
func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Handle("/metrics", s.metricsHandler())

	r.Route("/ds", func(r chi.Router) {
		r.Get("/counter", s.handleCounter)
		r.Post("/counter", s.handleCounter)
		r.Get("/clock", s.handleClock)
		r.Get("/feed", s.handleFeed)
		r.Post("/feed", s.handlePublish)
		r.Post("/echo", s.handleEcho)
		r.Get("/redirect", s.handleRedirect)
	})

	return r
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) metricsHandler() http.Handler {
	if s.metrics == nil {
		return metrics.Default().Handler()
	}
	return s.metrics.Handler()
}
