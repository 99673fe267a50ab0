// Package server exposes the HTTP trigger for lecture runs.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"psut-lecture-notifier/poll"
)

// RunFunc performs one full run. runID correlates its log lines.
type RunFunc func(ctx context.Context, runID string) poll.Outcome

// Config holds server configuration.
type Config struct {
	Run      RunFunc
	Logger   *slog.Logger
	NewRunID func() string
}

// Server handles HTTP requests. At most one run is active at a time.
type Server struct {
	run      RunFunc
	newRunID func() string
	logger   *slog.Logger
	running  atomic.Bool
}

// New creates a new HTTP server handler.
func New(cfg *Config) *Server {
	newRunID := cfg.NewRunID
	if newRunID == nil {
		newRunID = func() string { return time.Now().UTC().Format("20060102T150405.000000000") }
	}
	return &Server{
		run:      cfg.Run,
		newRunID: newRunID,
		logger:   cfg.Logger,
	}
}

// Handler returns the router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleRun)
	r.Post("/", s.handleRun)
	r.Get("/health", s.handleHealth)
	return r
}

// ListenAndServe serves on port until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, port string) error {
	// A run drives a browser through dozens of pages; the write timeout must cover it.
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           s.Handler(),
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Minute,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", "port", port)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn("Run requested while another run is active")
		s.writeJSON(w, http.StatusConflict, map[string]string{"error": "A run is already in progress"})
		return
	}
	defer s.running.Store(false)

	runID := s.newRunID()
	s.logger.Info("Run triggered",
		"run_id", runID,
		"method", r.Method,
		"request_id", middleware.GetReqID(r.Context()))

	// A client disconnect must not cut a run short halfway through sending.
	outcome := s.run(context.WithoutCancel(r.Context()), runID)

	if !outcome.Success() {
		msg := outcome.Message
		if msg == "" && outcome.Err != nil {
			msg = outcome.Err.Error()
		}
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": msg, "run_id": runID})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"message": outcome.Message, "run_id": runID})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(`{"status":"healthy"}`)); err != nil {
		s.logger.Warn("Failed to write health response", "error", err)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn("Failed to write response", "error", err)
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			s.logger.Info("HTTP request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"remote", r.RemoteAddr,
				"request_id", middleware.GetReqID(r.Context()),
				"duration_ms", time.Since(start).Milliseconds())
		}()
		next.ServeHTTP(ww, r)
	})
}
