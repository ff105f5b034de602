// Package server exposes the HTTP, WebSocket, and SSE surface. Routes
// are registered on a net/http mux wrapped in h2c so HTTP/2 works
// without TLS termination in front.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"webforge/internal/config"
	"webforge/internal/logging"
	"webforge/internal/session"
	"webforge/internal/stream"
)

// Server wires the API surface over the session manager and executor.
type Server struct {
	cfg       config.ServerConfig
	wsCfg     config.WorkspaceConfig
	manager   *session.Manager
	executor  *session.Executor
	bus       *stream.Bus
	sse       *stream.SSEHandler
	wsHandler *stream.WSHandler

	version string
	started time.Time

	http *http.Server
}

// New builds a Server. The API key in cfg guards every route except
// /health; an empty key disables authentication.
func New(cfg config.ServerConfig, wsCfg config.WorkspaceConfig, manager *session.Manager, executor *session.Executor, bus *stream.Bus) *Server {
	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	s := &Server{
		cfg:      cfg,
		wsCfg:    wsCfg,
		manager:  manager,
		executor: executor,
		bus:      bus,
		sse:      stream.NewSSEHandler(bus),
		version:  version,
		started:  time.Now(),
	}

	var verify func(string) bool
	if cfg.APIKey != "" {
		key := cfg.APIKey
		verify = func(token string) bool { return token == key }
	}
	s.wsHandler = stream.NewWSHandler(bus, stream.WSConfig{
		PingInterval:         cfg.WSPingInterval,
		IdleTimeout:          cfg.WSIdleTimeout,
		CompressionThreshold: cfg.CompressionThreshold,
	}, verify)

	mux := http.NewServeMux()
	s.routes(mux)

	s.http = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:     h2c.NewHandler(s.withMiddleware(mux), &http2.Server{}),
		ReadTimeout: cfg.ReadTimeout,
		// WriteTimeout stays unset: SSE and WS hold connections open.
	}
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("POST /api/sessions/{id}/mode", s.handleSetMode)

	mux.HandleFunc("POST /api/agent/create-project", s.handleCreateProject)
	mux.HandleFunc("POST /api/agent/continue-project", s.handleContinueProject)
	mux.HandleFunc("GET /api/agent/projects/{id}/files", s.handleProjectFiles)
	mux.HandleFunc("POST /api/agent/projects/{id}/cancel", s.handleCancel)
	mux.HandleFunc("POST /api/agent/cleanup", s.handleCleanup)
	mux.HandleFunc("POST /api/agent/stream-generate", s.handleStreamGenerate)
	mux.HandleFunc("GET /api/agent/sessions/{id}/events", s.handleSessionEvents)

	mux.HandleFunc("/ws", s.wsHandler.ServeHTTP)
}

// Handler returns the full middleware-wrapped handler. Used by tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// ListenAndServe blocks serving requests until Shutdown.
func (s *Server) ListenAndServe() error {
	logging.Server("listening on %s", s.http.Addr)
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Server("shutting down")
	return s.http.Shutdown(ctx)
}

// withMiddleware applies CORS, auth, and request logging.
func (s *Server) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if !s.authorized(r) {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid API key")
			return
		}

		next.ServeHTTP(w, r)
		logging.ServerDebug("%s %s (%v)", r.Method, r.URL.Path, time.Since(start).Round(time.Microsecond))
	})
}

// authorized checks the bearer key. /health and /ws are exempt: the WS
// protocol authenticates in-band with its authenticate frame.
func (s *Server) authorized(r *http.Request) bool {
	if s.cfg.APIKey == "" {
		return true
	}
	switch r.URL.Path {
	case "/health", "/ws":
		return true
	}
	return r.Header.Get("Authorization") == "Bearer "+s.cfg.APIKey
}
