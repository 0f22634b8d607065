package server

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"docvault/config"
	"docvault/pkg/cache"
	"docvault/pkg/delegation"
	"docvault/pkg/envelope"
	"docvault/pkg/identity"
	"docvault/pkg/models"
	"docvault/pkg/protocol"
	"docvault/pkg/repository/memory"
	"docvault/pkg/session"
	"docvault/pkg/store"
)

func startTestServer(t *testing.T, mutate ...func(*config.Config)) (*Server, *identity.CredentialStore) {
	t.Helper()

	creds := identity.NewCredentialStore(t.TempDir())
	if err := creds.GenerateRoot(24 * time.Hour); err != nil {
		t.Fatalf("Failed to generate root: %v", err)
	}
	for _, p := range []string{"server", "alice"} {
		if err := creds.IssuePrincipal(p, 24*time.Hour); err != nil {
			t.Fatalf("Failed to issue %s: %v", p, err)
		}
	}

	serverKeys, err := creds.LoadKeyPair("server")
	if err != nil {
		t.Fatalf("Failed to load server keys: %v", err)
	}
	serverCert, err := creds.LoadCertificate("server")
	if err != nil {
		t.Fatalf("Failed to load server cert: %v", err)
	}

	repo := memory.NewRepository()
	artifacts, err := store.NewFilesystemArtifacts(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create artifact store: %v", err)
	}
	del := delegation.NewEngine(repo.Document, repo.Grant, cache.NewNoOpDecisionCache(), time.Minute)

	cfg := &config.Config{}
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Server.GracefulStop = time.Second
	for _, fn := range mutate {
		fn(cfg)
	}

	srv := New(cfg, session.Deps{
		Store:             store.NewDocumentStore(repo.Document, artifacts, envelope.NewEngine(serverKeys), del),
		Delegation:        del,
		Credentials:       creds,
		Audit:             repo.Audit,
		ServerCertificate: serverCert,
	})
	if err := srv.Listen(); err != nil {
		t.Fatalf("Listen failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go srv.Serve(ctx)
	t.Cleanup(func() {
		cancel()
		srv.Stop()
	})
	return srv, creds
}

func dial(t *testing.T, srv *Server) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestServerEndToEnd(t *testing.T) {
	srv, creds := startTestServer(t)
	conn := dial(t, srv)

	cert, err := creds.LoadCertificate("alice")
	if err != nil {
		t.Fatalf("Failed to load certificate: %v", err)
	}

	if err := protocol.WriteMessage(conn, &protocol.LoginRequest{Principal: "alice", Certificate: cert.Raw}); err != nil {
		t.Fatalf("Failed to send login: %v", err)
	}
	msg, err := protocol.ReadMessage(conn)
	if err != nil {
		t.Fatalf("Failed to read login response: %v", err)
	}
	login, ok := msg.(*protocol.LoginResponse)
	if !ok || !login.Success {
		t.Fatalf("Expected successful login, got %#v", msg)
	}

	content := []byte("over tcp")
	if err := protocol.WriteMessage(conn, &protocol.CheckinRequest{
		Filename: "tcp.txt", Level: models.LevelAll, Content: content,
	}); err != nil {
		t.Fatalf("Failed to send check-in: %v", err)
	}
	if msg, err = protocol.ReadMessage(conn); err != nil {
		t.Fatalf("Failed to read check-in response: %v", err)
	}
	if resp, ok := msg.(*protocol.CheckinResponse); !ok || !resp.Success {
		t.Fatalf("Expected successful check-in, got %#v", msg)
	}

	if err := protocol.WriteMessage(conn, &protocol.CheckoutRequest{Owner: "alice", Filename: "tcp.txt"}); err != nil {
		t.Fatalf("Failed to send checkout: %v", err)
	}
	if msg, err = protocol.ReadMessage(conn); err != nil {
		t.Fatalf("Failed to read checkout response: %v", err)
	}
	checkout, ok := msg.(*protocol.CheckoutResponse)
	if !ok || !checkout.Success {
		t.Fatalf("Expected successful checkout, got %#v", msg)
	}
	if !bytes.Equal(checkout.Content, content) {
		t.Errorf("Round trip altered content: got %q", checkout.Content)
	}
	if checkout.Level != models.LevelAll {
		t.Errorf("Expected checkout level %s, got %s", models.LevelAll, checkout.Level)
	}
}

func TestServerStopClosesConnections(t *testing.T) {
	srv, _ := startTestServer(t)
	conn := dial(t, srv)

	srv.Stop()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := protocol.ReadMessage(conn); err == nil {
		t.Error("Expected connection to be closed by server stop")
	}
}

func TestServerRateLimiting(t *testing.T) {
	srv, _ := startTestServer(t, func(cfg *config.Config) {
		cfg.Security.RateLimiting.Enabled = true
		cfg.Security.RateLimiting.RequestsPerMin = 60
		cfg.Security.RateLimiting.Burst = 1
	})

	first := dial(t, srv)
	defer first.Close()
	// The first connection consumes the burst; the next one is dropped
	// right after accept.
	second := dial(t, srv)
	second.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := protocol.ReadMessage(second); err == nil {
		t.Error("Expected rate-limited connection to be closed")
	}
}
