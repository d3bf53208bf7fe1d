package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server exposes the generation API alongside health, readiness, and metrics
// endpoints.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics and the
// /api routes. Everything under /api except session creation requires a
// bearer token issued by gate.
func NewServer(addr string, svc Service, gate Authenticator, ready sharedobs.ReadinessChecker, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:        addr,
			Handler:     mux,
			ReadTimeout: 10 * time.Second,
			// Generation waits on a grounded model call.
			WriteTimeout: 2 * time.Minute,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	a := &api{svc: svc, gate: gate, logger: logger}
	mux.HandleFunc("POST /api/session", a.handleLogin)
	mux.Handle("GET /api/state", a.requireSession(a.handleState))
	mux.Handle("POST /api/generate", a.requireSession(a.handleGenerate))
	mux.Handle("POST /api/history/{id}/refresh", a.requireSession(a.handleRefresh))
	mux.Handle("POST /api/history/{id}/view", a.requireSession(a.handleView))
	mux.Handle("GET /api/history", a.requireSession(a.handleHistory))
	mux.Handle("PUT /api/next-province", a.requireSession(a.handlePin))
	mux.Handle("GET /api/provinces", a.requireSession(a.handleProvinces))

	return s
}

// Start listens on the configured address until Shutdown is called, at which
// point it returns http.ErrServerClosed.
func (s *Server) Start() error {
	s.logger.Info("api listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown stops accepting requests and waits for in-flight ones, including
// running generations, until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("api draining connections")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown api server: %w", err)
	}
	return nil
}

// ServeHTTP serves a single request through the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}
