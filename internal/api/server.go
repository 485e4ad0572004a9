// Package api exposes the investigation lifecycle over REST: alert intake,
// status reads, cancellation, history, and mined failure patterns.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/faultlens/faultlens-agent/internal/config"
)

// Server wraps the HTTP listener and its routes.
type Server struct {
	httpServer      *http.Server
	gracefulTimeout time.Duration
	logger          *slog.Logger
}

// NewServer builds the REST server around the handler set.
func NewServer(cfg config.ServerConfig, h *Handlers, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	router := mux.NewRouter()
	router.Use(requestLogging(logger))

	router.HandleFunc("/healthz", h.Health).Methods(http.MethodGet)

	v1 := router.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/alerts", h.SubmitAlert).Methods(http.MethodPost)
	v1.HandleFunc("/investigations", h.ListInvestigations).Methods(http.MethodGet)
	v1.HandleFunc("/investigations/{id}", h.GetInvestigation).Methods(http.MethodGet)
	v1.HandleFunc("/investigations/{id}", h.CancelInvestigation).Methods(http.MethodDelete)
	v1.HandleFunc("/investigations/{id}/report", h.GetReport).Methods(http.MethodGet)
	v1.HandleFunc("/patterns", h.GetPatterns).Methods(http.MethodGet)

	gracefulTimeout := cfg.GracefulTimeout
	if gracefulTimeout <= 0 {
		gracefulTimeout = 10 * time.Second
	}

	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.Address,
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		gracefulTimeout: gracefulTimeout,
		logger:          logger,
	}
}

// Start serves until the listener closes. Blocks.
func (s *Server) Start() error {
	s.logger.Info("api server listening", slog.String("address", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests within the graceful timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, s.gracefulTimeout)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func requestLogging(logger *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Debug("http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Duration("duration", time.Since(start)))
		})
	}
}
