package admin

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/GoCodeAlone/modhost/logging"
)

// ErrServerNotStarted is returned by Shutdown before Start.
var ErrServerNotStarted = errors.New("admin server not started")

const (
	// StartPriority starts the admin endpoint after ordinary services.
	StartPriority = -100
	// ShutdownPriority stops the admin endpoint before ordinary services.
	ShutdownPriority = 100

	shutdownTimeout = 5 * time.Second
)

// Server runs the admin handler. It implements service.Startable and
// service.Shutdownable so that binding it into the service registry ties it
// to the platform lifecycle.
type Server struct {
	addr    string
	handler http.Handler
	logger  logging.Logger

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// NewServer creates a server for handler on addr.
func NewServer(addr string, handler http.Handler, logger logging.Logger) *Server {
	return &Server{addr: addr, handler: handler, logger: logging.With(logger, "component", "admin")}
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("admin listen %s: %w", s.addr, err)
	}
	s.listener = ln
	s.server = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	srv := s.server
	go func() {
		s.logger.Info("Admin endpoint listening", "address", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Admin endpoint stopped", "error", err)
		}
	}()
	return nil
}

// StartPriority implements service.Startable.
func (s *Server) StartPriority() int { return StartPriority }

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.server, s.listener = nil, nil
	s.mu.Unlock()
	if srv == nil {
		return ErrServerNotStarted
	}

	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("admin shutdown: %w", err)
	}
	s.logger.Info("Admin endpoint stopped")
	return nil
}

// ShutdownPriority implements service.Shutdownable.
func (s *Server) ShutdownPriority() int { return ShutdownPriority }
