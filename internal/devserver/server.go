package devserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/nexus-chat-client/internal/logging"
)

// Server ties the hub to an HTTP server.
type Server struct {
	hub      *Hub
	log      logging.Logger
	origins  originPolicy
	upgrader websocket.Upgrader
	http     *http.Server
}

// New creates a Server; call Start or Serve to accept connections.
func New(cfg Config, log logging.Logger) *Server {
	hub := NewHub(cfg, log)
	origins, rejected := newOriginPolicy(hub.cfg.AllowedOrigins)
	for _, origin := range rejected {
		log.Warn(context.Background(), "ignoring invalid origin in configuration", "origin", origin)
	}

	s := &Server{hub: hub, log: log, origins: origins}
	s.upgrader = newUpgrader(s.checkOrigin)
	s.http = CreateServer(hub.cfg.Addr, s.SetupRoutes())
	go hub.Run()
	return s
}

// Hub returns the server's hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the HTTP handler, for use with httptest.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// CreateServer creates an HTTP server with the timeouts used in production.
func CreateServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// ListenAndServe blocks serving on the configured address until Shutdown.
func (s *Server) ListenAndServe() error {
	s.log.Info(context.Background(), "server listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Serve blocks serving on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.log.Info(context.Background(), "server listening", "addr", ln.Addr().String())
	if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, then closes every chat connection.
func (s *Server) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	httpErr := s.http.Shutdown(ctx)
	if httpErr != nil {
		s.log.Warn(ctx, "http server shutdown error", "err", httpErr)
	}
	return errors.Join(httpErr, s.hub.Shutdown(timeout))
}
