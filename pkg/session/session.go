// Package session implements the per-connection protocol state machine. A
// session starts unauthenticated, becomes authenticated after a successful
// login, and processes store operations until the client closes or the
// transport fails. Frames that are invalid for the current state are ignored
// rather than answered; a failed login terminates the connection without a
// response.
package session

import (
	"context"
	"crypto/x509"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"docvault/logging"
	"docvault/pkg/delegation"
	"docvault/pkg/identity"
	"docvault/pkg/models"
	"docvault/pkg/protocol"
	"docvault/pkg/repository"
	"docvault/pkg/store"
)

// State is the session's position in the protocol lifecycle.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticated
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Deps are the collaborators a session needs to serve requests.
type Deps struct {
	Store       *store.DocumentStore
	Delegation  *delegation.Engine
	Credentials *identity.CredentialStore
	Audit       repository.AuditRepository

	// ServerCertificate is returned to clients on successful login.
	ServerCertificate *x509.Certificate

	// IdleTimeout bounds the wait for the next frame; zero disables it.
	IdleTimeout time.Duration
}

// Session serves one client connection. State and principal are only
// written by the serve goroutine; the mutex exists for observers.
type Session struct {
	conn net.Conn
	deps Deps

	mu        sync.RWMutex
	state     State
	principal string
}

// New creates a session over conn in the unauthenticated state.
func New(conn net.Conn, deps Deps) *Session {
	return &Session{conn: conn, deps: deps, state: StateUnauthenticated}
}

// State returns the session's current state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Principal returns the authenticated principal, or "" before login.
func (s *Session) Principal() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.principal
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Session) setPrincipal(principal string) {
	s.mu.Lock()
	s.principal = principal
	s.mu.Unlock()
}

// Serve runs the dispatch loop until the client closes, the transport
// fails, or ctx is cancelled.
func (s *Session) Serve(ctx context.Context) {
	defer func() {
		s.setState(StateClosed)
		s.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if s.deps.IdleTimeout > 0 {
			s.conn.SetReadDeadline(time.Now().Add(s.deps.IdleTimeout))
		}

		msgType, payload, err := protocol.ReadFrame(s.conn)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logging.Debug("Session %s: transport error: %v", s.conn.RemoteAddr(), err)
			}
			return
		}

		msg, err := protocol.Decode(msgType, payload)
		if err != nil {
			// Malformed payload: skip the frame, keep the session.
			logging.Warn("Session %s: dropping malformed %s frame: %v", s.conn.RemoteAddr(), msgType, err)
			continue
		}

		if !s.dispatch(ctx, msg) {
			return
		}
	}
}

// dispatch handles one message; false means the session is over.
func (s *Session) dispatch(ctx context.Context, msg protocol.Message) bool {
	switch s.state {
	case StateUnauthenticated:
		switch m := msg.(type) {
		case *protocol.LoginRequest:
			return s.handleLogin(ctx, m)
		case *protocol.CloseRequest:
			return false
		default:
			logging.Debug("Session %s: ignoring %s before login", s.conn.RemoteAddr(), msg.Type())
			return true
		}

	case StateAuthenticated:
		switch m := msg.(type) {
		case *protocol.CheckinRequest:
			return s.handleCheckin(ctx, m)
		case *protocol.CheckoutRequest:
			return s.handleCheckout(ctx, m)
		case *protocol.DelegationRequest:
			return s.handleDelegate(ctx, m)
		case *protocol.DeleteRequest:
			return s.handleDelete(ctx, m)
		case *protocol.CloseRequest:
			return false
		default:
			logging.Debug("Session %s: ignoring %s in authenticated state", s.conn.RemoteAddr(), msg.Type())
			return true
		}
	}
	return false
}

// handleLogin authenticates the presented certificate against the trusted
// root. On failure the connection is terminated without a response; the
// client learns nothing about why verification failed.
func (s *Session) handleLogin(ctx context.Context, req *protocol.LoginRequest) bool {
	ok := s.authenticate(req)
	s.audit(ctx, models.AuditActionLogin, req.Principal, "", ok, "")

	if !ok {
		logging.Warn("Session %s: login failed for %q, terminating", s.conn.RemoteAddr(), req.Principal)
		return false
	}

	s.setState(StateAuthenticated)
	s.setPrincipal(req.Principal)
	logging.Info("Session %s: %s logged in", s.conn.RemoteAddr(), req.Principal)
	return s.send(&protocol.LoginResponse{
		Success:           true,
		ServerCertificate: s.deps.ServerCertificate.Raw,
	})
}

func (s *Session) authenticate(req *protocol.LoginRequest) bool {
	if req.Principal == "" {
		return false
	}

	cert, err := identity.ParseCertificateDER(req.Certificate)
	if err != nil {
		return false
	}
	if cert.Subject.CommonName != req.Principal {
		return false
	}
	if err := s.deps.Credentials.VerifyAgainstRoot(cert); err != nil {
		return false
	}
	return true
}

func (s *Session) handleCheckin(ctx context.Context, req *protocol.CheckinRequest) bool {
	err := s.deps.Store.CheckIn(ctx, s.principal, req.Filename, req.Level, req.Content)
	docID := models.DocumentID(s.principal, req.Filename)
	s.audit(ctx, models.AuditActionCheckin, s.principal, docID, err == nil, errDetail(err))
	return s.send(&protocol.CheckinResponse{Success: err == nil})
}

func (s *Session) handleCheckout(ctx context.Context, req *protocol.CheckoutRequest) bool {
	// An absent owner hint means the requester's own namespace.
	owner := req.Owner
	if owner == "" {
		owner = s.principal
	}

	content, level, err := s.deps.Store.CheckOut(ctx, s.principal, owner, req.Filename)
	docID := models.DocumentID(owner, req.Filename)
	s.audit(ctx, models.AuditActionCheckout, s.principal, docID, err == nil, errDetail(err))

	// Denied, missing, and integrity-failed all collapse into the same
	// refusal on the wire.
	resp := &protocol.CheckoutResponse{Success: err == nil}
	if err == nil {
		resp.Content = content
		resp.Level = level
	}
	return s.send(resp)
}

// handleDelegate records a grant. The protocol defines no response for
// delegation; the grantor learns nothing, not even failure.
func (s *Session) handleDelegate(ctx context.Context, req *protocol.DelegationRequest) bool {
	docID := models.DocumentID(req.Owner, req.Filename)
	duration := time.Duration(req.DurationSeconds) * time.Second

	err := s.deps.Delegation.Grant(ctx, s.principal, docID, req.Grantee, duration, req.Propagate)
	s.audit(ctx, models.AuditActionDelegate, s.principal, docID, err == nil, errDetail(err))
	return true
}

func (s *Session) handleDelete(ctx context.Context, req *protocol.DeleteRequest) bool {
	owner := req.Owner
	if owner == "" {
		owner = s.principal
	}

	err := s.deps.Store.Delete(ctx, s.principal, owner, req.Filename, req.Delegated)
	docID := models.DocumentID(owner, req.Filename)
	s.audit(ctx, models.AuditActionDelete, s.principal, docID, err == nil, errDetail(err))
	return s.send(&protocol.DeleteResponse{Success: err == nil})
}

func (s *Session) send(msg protocol.Message) bool {
	if err := protocol.WriteMessage(s.conn, msg); err != nil {
		logging.Debug("Session %s: write failed: %v", s.conn.RemoteAddr(), err)
		return false
	}
	return true
}

func (s *Session) audit(ctx context.Context, action models.AuditAction, actor, documentID string, outcome bool, detail string) {
	if s.deps.Audit == nil {
		return
	}
	record := models.NewAuditRecord(action, actor, documentID, outcome, detail)
	if addr := s.conn.RemoteAddr(); addr != nil {
		record.RemoteAddr = addr.String()
	}
	if err := s.deps.Audit.Create(ctx, record); err != nil {
		logging.Warn("Failed to write audit record: %v", err)
	}
}

func errDetail(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
