// Package server exposes the operational endpoints of the enricher.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/samvad-hq/samvad-contact-enricher/internal/logger"
)

// Status describes the most recent enrichment pass.
type Status struct {
	Ready     bool      `json:"ready"`
	LastRunAt time.Time `json:"last_run_at,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	Summary   any       `json:"summary,omitempty"`
}

// StatusFunc reports the current Status.
type StatusFunc func() Status

// Server serves /healthz, /readyz and /metrics.
type Server struct {
	http *http.Server
	log  logger.Logger
}

// New builds the ops server. metrics may be nil.
func New(addr string, metrics http.Handler, status StatusFunc, log logger.Logger) *Server {
	if log == nil {
		log = &logger.NopLogger{}
	}
	return &Server{
		http: &http.Server{
			Addr:              addr,
			Handler:           Router(metrics, status),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		log: log,
	}
}

// Router wires the ops routes.
func Router(metrics http.Handler, status StatusFunc) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.GetHead)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		st := Status{}
		if status != nil {
			st = status()
		}
		code := http.StatusOK
		if !st.Ready {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, st)
	})
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}
	return r
}

// Start serves until Stop is called.
func (s *Server) Start() error {
	s.log.InfoObj("ops server listening", "ops_server", map[string]any{"addr": s.http.Addr})
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	s.log.InfoObj("ops server shutting down", "ops_server", map[string]any{"addr": s.http.Addr})
	return s.http.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
