package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"capstan/internal/manifest"
	"capstan/internal/router"
	"capstan/pkg/logging"
)

// Config holds the HTTP front door configuration.
type Config struct {
	Host string
	Port int
}

// Server exposes the invocation router over HTTP.
//
// Endpoints:
//   - POST /route                      invoke a capability named in the body
//   - POST /capabilities/{id}/invoke   invoke a capability named in the path
//   - GET  /capabilities               list capabilities with health
//   - GET  /capabilities/{id}          describe one capability
//   - GET  /health                     liveness of the front door itself
type Server struct {
	config Config
	store  *manifest.Store
	router *router.Router

	httpServer *http.Server

	mu      sync.Mutex
	running bool
}

// New creates the HTTP front door.
func New(config Config, store *manifest.Store, rt *router.Router) *Server {
	return &Server{
		config: config,
		store:  store,
		router: rt,
	}
}

// Start begins serving. It returns once the listener goroutine is
// running; serve errors other than a clean shutdown are logged.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("server already started")
	}

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logging.Info("Server", "Listening on %s", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error("Server", err, "HTTP server error")
		}
	}()

	s.running = true
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	logging.Info("Server", "Shutting down")
	return s.httpServer.Shutdown(shutdownCtx)
}

// Handler builds the routing handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /route", s.handleRoute)
	mux.HandleFunc("POST /capabilities/{id}/invoke", s.handleInvoke)
	mux.HandleFunc("GET /capabilities", s.handleListCapabilities)
	mux.HandleFunc("GET /capabilities/{id}", s.handleGetCapability)
	mux.HandleFunc("GET /health", s.handleHealth)
	return mux
}
