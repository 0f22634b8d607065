// Package server runs the TCP front end of the document store: an accept
// loop that rate-limits incoming connections and hands each one to a
// protocol session.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"docvault/config"
	"docvault/logging"
	"docvault/middleware"
	"docvault/pkg/session"
)

const sweepInterval = 5 * time.Minute

// Server accepts client connections and serves sessions until stopped.
type Server struct {
	cfg     *config.Config
	deps    session.Deps
	limiter *middleware.RateLimiter

	listener net.Listener
	wg       sync.WaitGroup

	mu     sync.Mutex
	conns  map[net.Conn]struct{}
	closed bool
}

// New creates a server over the given session dependencies.
func New(cfg *config.Config, deps session.Deps) *Server {
	if deps.IdleTimeout == 0 {
		deps.IdleTimeout = cfg.Server.ReadTimeout
	}
	return &Server{
		cfg:     cfg,
		deps:    deps,
		limiter: middleware.NewRateLimiter(cfg),
		conns:   make(map[net.Conn]struct{}),
	}
}

// Listen binds the configured address.
func (s *Server) Listen() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener
	logging.Startup("Document store listening on %s", listener.Addr())
	return nil
}

// Addr returns the bound address; nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve runs the accept loop until the listener closes or ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	go s.sweepGrants(ctx)

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept failed: %w", err)
		}

		if !s.limiter.Allow(conn.RemoteAddr()) {
			conn.Close()
			continue
		}

		if !s.track(conn) {
			conn.Close()
			return nil
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			logging.Debug("Accepted connection from %s", conn.RemoteAddr())
			session.New(conn, s.deps).Serve(ctx)
		}()
	}
}

// Stop closes the listener and every open connection, then waits for
// sessions to wind down within the configured graceful-stop window.
func (s *Server) Stop() {
	s.mu.Lock()
	s.closed = true
	open := make([]net.Conn, 0, len(s.conns))
	for conn := range s.conns {
		open = append(open, conn)
	}
	s.mu.Unlock()

	if s.listener != nil {
		s.listener.Close()
	}
	for _, conn := range open {
		conn.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	grace := s.cfg.Server.GracefulStop
	if grace <= 0 {
		grace = 5 * time.Second
	}
	select {
	case <-done:
		logging.Info("All sessions drained")
	case <-time.After(grace):
		logging.Warn("Graceful stop timed out after %s", grace)
	}
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

// sweepGrants periodically clears expired grants so the lazy per-request
// eviction is not the only thing keeping the grant table bounded.
func (s *Server) sweepGrants(ctx context.Context) {
	if s.deps.Delegation == nil {
		return
	}

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := s.deps.Delegation.SweepExpired(ctx)
			if err != nil {
				logging.Warn("Grant sweep failed: %v", err)
				continue
			}
			if removed > 0 {
				logging.Debug("Swept %d expired grants", removed)
			}
		}
	}
}
