package client

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"docvault/config"
	"docvault/pkg/cache"
	"docvault/pkg/delegation"
	"docvault/pkg/envelope"
	"docvault/pkg/identity"
	"docvault/pkg/models"
	"docvault/pkg/repository/memory"
	"docvault/pkg/server"
	"docvault/pkg/session"
	"docvault/pkg/store"
)

type testEnv struct {
	srv   *server.Server
	creds *identity.CredentialStore
}

func startServer(t *testing.T) *testEnv {
	t.Helper()

	creds := identity.NewCredentialStore(t.TempDir())
	if err := creds.GenerateRoot(24 * time.Hour); err != nil {
		t.Fatalf("Failed to generate root: %v", err)
	}
	for _, p := range []string{"server", "alice", "bob"} {
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
	cfg.Server.GracefulStop = time.Second

	srv := server.New(cfg, session.Deps{
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
	return &testEnv{srv: srv, creds: creds}
}

func (e *testEnv) connect(t *testing.T, principal, cacheDir string) *Client {
	t.Helper()
	c, err := Connect(Options{
		ServerAddress: e.srv.Addr().String(),
		DialTimeout:   5 * time.Second,
		CacheDir:      cacheDir,
	})
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	t.Cleanup(func() { c.Close() })

	if principal != "" {
		cert, err := e.creds.LoadCertificate(principal)
		if err != nil {
			t.Fatalf("Failed to load certificate: %v", err)
		}
		if err := c.Login(principal, cert.Raw); err != nil {
			t.Fatalf("Login as %s failed: %v", principal, err)
		}
	}
	return c
}

func TestLoginPinsServerCertificate(t *testing.T) {
	e := startServer(t)
	c := e.connect(t, "alice", "")

	if c.Principal() != "alice" {
		t.Errorf("Expected principal alice, got %q", c.Principal())
	}
	cert := c.ServerCertificate()
	if cert == nil || cert.Subject.CommonName != "server" {
		t.Errorf("Expected pinned server certificate, got %v", cert)
	}
}

func TestLoginRejected(t *testing.T) {
	e := startServer(t)
	c := e.connect(t, "", "")

	err := c.Login("alice", []byte("garbage"))
	if err == nil {
		t.Fatal("Expected login with garbage certificate to fail")
	}
	var modelErr *models.Error
	if !errors.As(err, &modelErr) || modelErr.Code != models.ErrCodeAuthFailed {
		t.Errorf("Expected AUTH_FAILED, got %v", err)
	}
}

func TestCheckInCheckOutDelete(t *testing.T) {
	e := startServer(t)
	c := e.connect(t, "alice", "")
	content := []byte("client round trip")

	if err := c.CheckIn("doc.txt", models.LevelAll, content); err != nil {
		t.Fatalf("CheckIn failed: %v", err)
	}

	got, level, err := c.CheckOut("alice", "doc.txt")
	if err != nil {
		t.Fatalf("CheckOut failed: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("Round trip altered content: got %q", got)
	}
	if level != models.LevelAll {
		t.Errorf("Expected checkout to report level %s, got %s", models.LevelAll, level)
	}

	if err := c.Delete("alice", "doc.txt"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, _, err := c.CheckOut("alice", "doc.txt"); err == nil {
		t.Error("Expected checkout of deleted document to fail")
	}
}

func TestDelegateFlow(t *testing.T) {
	e := startServer(t)
	alice := e.connect(t, "alice", "")
	bob := e.connect(t, "bob", "")

	if err := alice.CheckIn("shared.txt", models.LevelConfidentiality, []byte("for bob")); err != nil {
		t.Fatalf("CheckIn failed: %v", err)
	}

	if _, _, err := bob.CheckOut("alice", "shared.txt"); err == nil {
		t.Fatal("Expected checkout before delegation to fail")
	}

	if err := alice.Delegate("alice", "shared.txt", "bob", time.Minute, false); err != nil {
		t.Fatalf("Delegate failed: %v", err)
	}
	// Delegation has no response; a checkout on the same connection
	// guarantees the server has processed it.
	if _, _, err := alice.CheckOut("alice", "shared.txt"); err != nil {
		t.Fatalf("Owner checkout failed: %v", err)
	}

	got, _, err := bob.CheckOut("alice", "shared.txt")
	if err != nil {
		t.Fatalf("Delegated checkout failed: %v", err)
	}
	if !bytes.Equal(got, []byte("for bob")) {
		t.Errorf("Unexpected content: %q", got)
	}
}

func TestCheckoutCacheFlushedOnClose(t *testing.T) {
	e := startServer(t)
	cacheDir := t.TempDir()
	c := e.connect(t, "alice", cacheDir)

	if err := c.CheckIn("cached.txt", models.LevelNone, []byte("cache me")); err != nil {
		t.Fatalf("CheckIn failed: %v", err)
	}
	if _, _, err := c.CheckOut("alice", "cached.txt"); err != nil {
		t.Fatalf("CheckOut failed: %v", err)
	}

	cached := filepath.Join(cacheDir, "alice", "cached.txt")
	raw, err := os.ReadFile(cached)
	if err != nil {
		t.Fatalf("Expected checkout to be mirrored into the cache: %v", err)
	}
	if !bytes.Equal(raw, []byte("cache me")) {
		t.Errorf("Cache holds wrong content: %q", raw)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := os.Stat(cached); !os.IsNotExist(err) {
		t.Error("Expected cache to be flushed on close")
	}
}

func TestLocalEditsWrittenBackOnClose(t *testing.T) {
	e := startServer(t)
	cacheDir := t.TempDir()
	c := e.connect(t, "alice", cacheDir)

	if err := c.CheckIn("draft.txt", models.LevelAll, []byte("first draft")); err != nil {
		t.Fatalf("CheckIn failed: %v", err)
	}
	if _, _, err := c.CheckOut("alice", "draft.txt"); err != nil {
		t.Fatalf("CheckOut failed: %v", err)
	}

	// Edit the cached copy; Close must check the edit back in before the
	// cache is flushed.
	edited := []byte("second draft")
	cached := filepath.Join(cacheDir, "alice", "draft.txt")
	if err := os.WriteFile(cached, edited, 0o600); err != nil {
		t.Fatalf("Failed to edit cached document: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	fresh := e.connect(t, "alice", "")
	got, level, err := fresh.CheckOut("alice", "draft.txt")
	if err != nil {
		t.Fatalf("CheckOut after write-back failed: %v", err)
	}
	if !bytes.Equal(got, edited) {
		t.Errorf("Expected written-back content %q, got %q", edited, got)
	}
	if level != models.LevelAll {
		t.Errorf("Expected write-back to keep level %s, got %s", models.LevelAll, level)
	}
}

func TestConnectFailure(t *testing.T) {
	_, err := Connect(Options{ServerAddress: "127.0.0.1:1", DialTimeout: 200 * time.Millisecond})
	if err == nil {
		t.Fatal("Expected connection to a closed port to fail")
	}
	var modelErr *models.Error
	if !errors.As(err, &modelErr) || modelErr.Code != models.ErrCodeTransportFailed {
		t.Errorf("Expected TRANSPORT_FAILED, got %v", err)
	}
}
