package delegation

import (
	"context"
	"errors"
	"testing"
	"time"

	"docvault/pkg/cache"
	"docvault/pkg/models"
	"docvault/pkg/repository/memory"

	"github.com/alicebob/miniredis/v2"
)

const docID = "alice/report.txt"

func setupEngine(t *testing.T) (*Engine, *time.Time) {
	t.Helper()
	repo := memory.NewRepository()

	doc := &models.Document{
		Owner:       "alice",
		Filename:    "report.txt",
		Level:       models.LevelAll,
		Artifacts:   models.ArtifactRef{Body: "alice/report.txt.body"},
		CheckedInAt: time.Now(),
	}
	if err := repo.Document.Save(context.Background(), doc); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	engine := NewEngine(repo.Document, repo.Grant, cache.NewNoOpDecisionCache(), time.Minute)
	now := time.Now()
	engine.now = func() time.Time { return now }
	return engine, &now
}

func TestOwnerAlwaysAuthorized(t *testing.T) {
	engine, _ := setupEngine(t)

	allowed, err := engine.Authorize(context.Background(), "alice", docID)
	if err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}
	if !allowed {
		t.Error("Owner must always be authorized")
	}
}

func TestUnknownPrincipalDenied(t *testing.T) {
	engine, _ := setupEngine(t)

	allowed, err := engine.Authorize(context.Background(), "mallory", docID)
	if err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}
	if allowed {
		t.Error("Principal without a grant must be denied")
	}
}

func TestOwnerGrant(t *testing.T) {
	engine, now := setupEngine(t)
	ctx := context.Background()

	if err := engine.Grant(ctx, "alice", docID, "bob", 10*time.Minute, false); err != nil {
		t.Fatalf("Grant failed: %v", err)
	}

	allowed, err := engine.Authorize(ctx, "bob", docID)
	if err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}
	if !allowed {
		t.Error("Grantee must be authorized while the grant is live")
	}

	t.Run("denied after expiry", func(t *testing.T) {
		*now = now.Add(11 * time.Minute)
		allowed, err := engine.Authorize(ctx, "bob", docID)
		if err != nil {
			t.Fatalf("Authorize failed: %v", err)
		}
		if allowed {
			t.Error("Expired grant must not authorize")
		}
	})
}

func TestExpiredGrantEvictedLazily(t *testing.T) {
	engine, now := setupEngine(t)
	ctx := context.Background()

	if err := engine.Grant(ctx, "alice", docID, "bob", time.Minute, false); err != nil {
		t.Fatalf("Grant failed: %v", err)
	}

	*now = now.Add(2 * time.Minute)
	if allowed, _ := engine.Authorize(ctx, "bob", docID); allowed {
		t.Fatal("Expired grant must not authorize")
	}

	if _, err := engine.grants.Get(ctx, docID, "bob"); !errors.Is(err, models.ErrGrantNotFound) {
		t.Errorf("Expected expired grant to be evicted, got %v", err)
	}
}

func TestRedelegation(t *testing.T) {
	ctx := context.Background()

	t.Run("requires a propagating grant", func(t *testing.T) {
		engine, _ := setupEngine(t)
		if err := engine.Grant(ctx, "alice", docID, "bob", 10*time.Minute, false); err != nil {
			t.Fatalf("Grant failed: %v", err)
		}

		err := engine.Grant(ctx, "bob", docID, "carol", time.Minute, false)
		if !errors.Is(err, models.ErrGrantNoPropagate) {
			t.Errorf("Expected ErrGrantNoPropagate, got %v", err)
		}
		if allowed, _ := engine.Authorize(ctx, "carol", docID); allowed {
			t.Error("Failed re-delegation must not authorize the grantee")
		}
	})

	t.Run("requires any grant at all", func(t *testing.T) {
		engine, _ := setupEngine(t)
		err := engine.Grant(ctx, "bob", docID, "carol", time.Minute, false)
		if !errors.Is(err, models.ErrGrantNotFound) {
			t.Errorf("Expected ErrGrantNotFound, got %v", err)
		}
	})

	t.Run("expiry is capped at the grantor's", func(t *testing.T) {
		engine, now := setupEngine(t)
		if err := engine.Grant(ctx, "alice", docID, "bob", 10*time.Minute, true); err != nil {
			t.Fatalf("Grant failed: %v", err)
		}
		if err := engine.Grant(ctx, "bob", docID, "carol", time.Hour, false); err != nil {
			t.Fatalf("Re-delegation failed: %v", err)
		}

		carol, err := engine.grants.Get(ctx, docID, "carol")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		bob, err := engine.grants.Get(ctx, docID, "bob")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if carol.ExpiresAt.After(bob.ExpiresAt) {
			t.Error("Re-delegated expiry must never exceed the grantor's")
		}

		// Carol's access dies with bob's window even though she asked
		// for an hour.
		*now = now.Add(11 * time.Minute)
		if allowed, _ := engine.Authorize(ctx, "carol", docID); allowed {
			t.Error("Re-delegated grant must expire with the capped window")
		}
	})

	t.Run("shorter window is honored", func(t *testing.T) {
		engine, _ := setupEngine(t)
		if err := engine.Grant(ctx, "alice", docID, "bob", time.Hour, true); err != nil {
			t.Fatalf("Grant failed: %v", err)
		}
		if err := engine.Grant(ctx, "bob", docID, "carol", time.Minute, false); err != nil {
			t.Fatalf("Re-delegation failed: %v", err)
		}

		carol, err := engine.grants.Get(ctx, docID, "carol")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		bob, _ := engine.grants.Get(ctx, docID, "bob")
		if !carol.ExpiresAt.Before(bob.ExpiresAt) {
			t.Error("Requested shorter window must stand")
		}
	})

	t.Run("expired propagating grant cannot delegate", func(t *testing.T) {
		engine, now := setupEngine(t)
		if err := engine.Grant(ctx, "alice", docID, "bob", time.Minute, true); err != nil {
			t.Fatalf("Grant failed: %v", err)
		}

		*now = now.Add(2 * time.Minute)
		err := engine.Grant(ctx, "bob", docID, "carol", time.Minute, false)
		if !errors.Is(err, models.ErrGrantExpired) {
			t.Errorf("Expected ErrGrantExpired, got %v", err)
		}
	})
}

func TestRegrantReplaces(t *testing.T) {
	engine, now := setupEngine(t)
	ctx := context.Background()

	if err := engine.Grant(ctx, "alice", docID, "bob", time.Hour, true); err != nil {
		t.Fatalf("Grant failed: %v", err)
	}
	if err := engine.Grant(ctx, "alice", docID, "bob", time.Minute, false); err != nil {
		t.Fatalf("Re-grant failed: %v", err)
	}

	grant, err := engine.grants.Get(ctx, docID, "bob")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if grant.Propagate {
		t.Error("Newer grant must replace the older one entirely")
	}

	*now = now.Add(2 * time.Minute)
	if allowed, _ := engine.Authorize(ctx, "bob", docID); allowed {
		t.Error("Access must follow the replacement grant's shorter window")
	}
}

func TestGrantValidation(t *testing.T) {
	engine, _ := setupEngine(t)
	ctx := context.Background()

	if err := engine.Grant(ctx, "alice", docID, "bob", 0, false); !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for zero duration, got %v", err)
	}
	if err := engine.Grant(ctx, "alice", docID, "", time.Minute, false); !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for empty grantee, got %v", err)
	}
	if err := engine.Grant(ctx, "alice", "alice/missing.txt", "bob", time.Minute, false); !errors.Is(err, models.ErrDocumentNotFound) {
		t.Errorf("Expected ErrDocumentNotFound, got %v", err)
	}
}

func TestRevokeDocument(t *testing.T) {
	engine, _ := setupEngine(t)
	ctx := context.Background()

	if err := engine.Grant(ctx, "alice", docID, "bob", time.Hour, true); err != nil {
		t.Fatalf("Grant failed: %v", err)
	}
	if err := engine.Grant(ctx, "bob", docID, "carol", time.Minute, false); err != nil {
		t.Fatalf("Re-delegation failed: %v", err)
	}

	if err := engine.RevokeDocument(ctx, docID); err != nil {
		t.Fatalf("RevokeDocument failed: %v", err)
	}

	for _, principal := range []string{"bob", "carol"} {
		if allowed, _ := engine.Authorize(ctx, principal, docID); allowed {
			t.Errorf("Expected %s's access to be revoked", principal)
		}
	}
}

func TestSweepExpired(t *testing.T) {
	engine, now := setupEngine(t)
	ctx := context.Background()

	if err := engine.Grant(ctx, "alice", docID, "bob", time.Minute, false); err != nil {
		t.Fatalf("Grant failed: %v", err)
	}
	if err := engine.Grant(ctx, "alice", docID, "carol", time.Hour, false); err != nil {
		t.Fatalf("Grant failed: %v", err)
	}

	*now = now.Add(10 * time.Minute)
	removed, err := engine.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("SweepExpired failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("Expected 1 grant swept, got %d", removed)
	}
}

func TestDecisionCacheIntegration(t *testing.T) {
	mr := miniredis.RunT(t)
	decisions, err := cache.NewRedisDecisionCache(cache.RedisCacheConfig{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("Failed to create redis cache: %v", err)
	}
	defer decisions.Close()

	repo := memory.NewRepository()
	ctx := context.Background()
	doc := &models.Document{Owner: "alice", Filename: "report.txt", Level: models.LevelNone,
		Artifacts: models.ArtifactRef{Body: "alice/report.txt.body"}, CheckedInAt: time.Now()}
	if err := repo.Document.Save(ctx, doc); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	engine := NewEngine(repo.Document, repo.Grant, decisions, time.Minute)

	if err := engine.Grant(ctx, "alice", docID, "bob", time.Hour, false); err != nil {
		t.Fatalf("Grant failed: %v", err)
	}

	// First call populates the cache, second is served from it.
	for i := 0; i < 2; i++ {
		allowed, err := engine.Authorize(ctx, "bob", docID)
		if err != nil {
			t.Fatalf("Authorize failed: %v", err)
		}
		if !allowed {
			t.Fatal("Expected bob to be authorized")
		}
	}

	if err := engine.RevokeDocument(ctx, docID); err != nil {
		t.Fatalf("RevokeDocument failed: %v", err)
	}
	if allowed, _ := engine.Authorize(ctx, "bob", docID); allowed {
		t.Error("Revocation must invalidate the cached allow")
	}
}
