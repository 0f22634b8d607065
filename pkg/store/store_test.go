package store

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"docvault/pkg/cache"
	"docvault/pkg/delegation"
	"docvault/pkg/envelope"
	"docvault/pkg/models"
	"docvault/pkg/repository/memory"
)

type testKeys struct {
	key *rsa.PrivateKey
}

func (k *testKeys) Public() crypto.PublicKey   { return &k.key.PublicKey }
func (k *testKeys) Private() crypto.PrivateKey { return k.key }

type fixture struct {
	store     *DocumentStore
	artifacts *FilesystemArtifacts
	root      string
}

func setupStore(t *testing.T) *fixture {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("Failed to generate server key: %v", err)
	}

	root := t.TempDir()
	artifacts, err := NewFilesystemArtifacts(root)
	if err != nil {
		t.Fatalf("Failed to create artifact store: %v", err)
	}

	repo := memory.NewRepository()
	env := envelope.NewEngine(&testKeys{key: key})
	del := delegation.NewEngine(repo.Document, repo.Grant, cache.NewNoOpDecisionCache(), time.Minute)

	return &fixture{
		store:     NewDocumentStore(repo.Document, artifacts, env, del),
		artifacts: artifacts,
		root:      root,
	}
}

func (f *fixture) delegation() *delegation.Engine {
	return f.store.delegation
}

func TestCheckInCheckOut(t *testing.T) {
	f := setupStore(t)
	ctx := context.Background()
	content := []byte("the quick brown fox")

	levels := []models.SecurityLevel{
		models.LevelNone,
		models.LevelConfidentiality,
		models.LevelIntegrity,
		models.LevelAll,
	}

	for _, level := range levels {
		t.Run(level.String(), func(t *testing.T) {
			if err := f.store.CheckIn(ctx, "alice", "doc-"+level.String(), level, content); err != nil {
				t.Fatalf("CheckIn failed: %v", err)
			}

			got, gotLevel, err := f.store.CheckOut(ctx, "alice", "alice", "doc-"+level.String())
			if err != nil {
				t.Fatalf("CheckOut failed: %v", err)
			}
			if !bytes.Equal(got, content) {
				t.Errorf("Round trip altered content: got %q", got)
			}
			if gotLevel != level {
				t.Errorf("Expected checkout to report level %s, got %s", level, gotLevel)
			}
		})
	}
}

func TestConfidentialBodyIsEncryptedOnDisk(t *testing.T) {
	f := setupStore(t)
	ctx := context.Background()
	content := []byte("for alice's eyes only")

	if err := f.store.CheckIn(ctx, "alice", "secret.txt", models.LevelConfidentiality, content); err != nil {
		t.Fatalf("CheckIn failed: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(f.root, "alice", "secret.txt.body"))
	if err != nil {
		t.Fatalf("Failed to read body artifact: %v", err)
	}
	if bytes.Contains(raw, content) {
		t.Error("Body artifact contains plaintext despite confidentiality level")
	}
}

func TestCheckOutRequiresGrant(t *testing.T) {
	f := setupStore(t)
	ctx := context.Background()

	if err := f.store.CheckIn(ctx, "alice", "report.txt", models.LevelAll, []byte("q3 numbers")); err != nil {
		t.Fatalf("CheckIn failed: %v", err)
	}

	t.Run("non-owner denied without grant", func(t *testing.T) {
		_, _, err := f.store.CheckOut(ctx, "bob", "alice", "report.txt")
		if err == nil {
			t.Fatal("Expected checkout without grant to fail")
		}
	})

	t.Run("grantee allowed", func(t *testing.T) {
		if err := f.delegation().Grant(ctx, "alice", "alice/report.txt", "bob", time.Minute, false); err != nil {
			t.Fatalf("Grant failed: %v", err)
		}
		got, _, err := f.store.CheckOut(ctx, "bob", "alice", "report.txt")
		if err != nil {
			t.Fatalf("CheckOut failed: %v", err)
		}
		if !bytes.Equal(got, []byte("q3 numbers")) {
			t.Errorf("Unexpected content: %q", got)
		}
	})
}

func TestCheckOutMissingDocument(t *testing.T) {
	f := setupStore(t)

	_, _, err := f.store.CheckOut(context.Background(), "alice", "alice", "missing.txt")
	if !errors.Is(err, models.ErrDocumentNotFound) {
		t.Errorf("Expected ErrDocumentNotFound, got %v", err)
	}
}

func TestReCheckInReplaces(t *testing.T) {
	f := setupStore(t)
	ctx := context.Background()

	if err := f.store.CheckIn(ctx, "alice", "notes.txt", models.LevelAll, []byte("v1")); err != nil {
		t.Fatalf("CheckIn failed: %v", err)
	}
	if err := f.store.CheckIn(ctx, "alice", "notes.txt", models.LevelNone, []byte("v2")); err != nil {
		t.Fatalf("Second CheckIn failed: %v", err)
	}

	got, gotLevel, err := f.store.CheckOut(ctx, "alice", "alice", "notes.txt")
	if err != nil {
		t.Fatalf("CheckOut failed: %v", err)
	}
	if !bytes.Equal(got, []byte("v2")) {
		t.Errorf("Expected replacement content, got %q", got)
	}
	if gotLevel != models.LevelNone {
		t.Errorf("Expected replaced document to report level %s, got %s", models.LevelNone, gotLevel)
	}

	// Dropping to LevelNone must clear the stale key and signature
	// artifacts from the previous level.
	for _, suffix := range []string{".key", ".sig"} {
		if _, err := os.Stat(filepath.Join(f.root, "alice", "notes.txt"+suffix)); !os.IsNotExist(err) {
			t.Errorf("Expected stale %s artifact to be removed", suffix)
		}
	}
}

func TestDelete(t *testing.T) {
	f := setupStore(t)
	ctx := context.Background()

	checkin := func(t *testing.T) {
		t.Helper()
		if err := f.store.CheckIn(ctx, "alice", "report.txt", models.LevelAll, []byte("data")); err != nil {
			t.Fatalf("CheckIn failed: %v", err)
		}
	}

	t.Run("non-owner refused", func(t *testing.T) {
		checkin(t)
		if err := f.store.Delete(ctx, "bob", "alice", "report.txt", false); !errors.Is(err, models.ErrUnauthorized) {
			t.Errorf("Expected ErrUnauthorized, got %v", err)
		}
	})

	t.Run("delegated delete refused even with a grant", func(t *testing.T) {
		if err := f.delegation().Grant(ctx, "alice", "alice/report.txt", "bob", time.Minute, true); err != nil {
			t.Fatalf("Grant failed: %v", err)
		}
		if err := f.store.Delete(ctx, "bob", "alice", "report.txt", true); !errors.Is(err, models.ErrUnauthorized) {
			t.Errorf("Expected ErrUnauthorized, got %v", err)
		}
		// The flag is refused no matter who sets it.
		if err := f.store.Delete(ctx, "alice", "alice", "report.txt", true); !errors.Is(err, models.ErrUnauthorized) {
			t.Errorf("Expected ErrUnauthorized for owner with delegated flag, got %v", err)
		}
	})

	t.Run("owner delete removes document, artifacts, and grants", func(t *testing.T) {
		if err := f.store.Delete(ctx, "alice", "alice", "report.txt", false); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}

		if _, _, err := f.store.CheckOut(ctx, "alice", "alice", "report.txt"); !errors.Is(err, models.ErrDocumentNotFound) {
			t.Errorf("Expected document gone, got %v", err)
		}
		if _, err := os.Stat(filepath.Join(f.root, "alice", "report.txt.body")); !os.IsNotExist(err) {
			t.Error("Expected body artifact to be removed")
		}

		// Bob's old grant must not survive into a re-checked-in document.
		checkin(t)
		if _, _, err := f.store.CheckOut(ctx, "bob", "alice", "report.txt"); err == nil {
			t.Error("Expected grants to be revoked by delete")
		}
	})

	t.Run("delete of missing document", func(t *testing.T) {
		if err := f.store.Delete(ctx, "alice", "alice", "missing.txt", false); !errors.Is(err, models.ErrDocumentNotFound) {
			t.Errorf("Expected ErrDocumentNotFound, got %v", err)
		}
	})
}

func TestTamperedArtifactFailsClosed(t *testing.T) {
	f := setupStore(t)
	ctx := context.Background()

	// A single flipped bit in the stored body must surface as an integrity
	// failure, whether the body is plaintext or ciphertext.
	for _, level := range []models.SecurityLevel{models.LevelIntegrity, models.LevelAll} {
		t.Run(level.String(), func(t *testing.T) {
			filename := "signed-" + level.String() + ".txt"
			if err := f.store.CheckIn(ctx, "alice", filename, level, []byte("authentic content")); err != nil {
				t.Fatalf("CheckIn failed: %v", err)
			}

			bodyPath := filepath.Join(f.root, "alice", filename+".body")
			raw, err := os.ReadFile(bodyPath)
			if err != nil {
				t.Fatalf("Failed to read artifact: %v", err)
			}
			raw[0] ^= 0x01
			if err := os.WriteFile(bodyPath, raw, 0o600); err != nil {
				t.Fatalf("Failed to write tampered artifact: %v", err)
			}

			if _, _, err := f.store.CheckOut(ctx, "alice", "alice", filename); !envelope.IsIntegrityFailure(err) {
				t.Errorf("Expected integrity failure, got %v", err)
			}
		})
	}
}

func TestPathEscapeRejected(t *testing.T) {
	f := setupStore(t)
	ctx := context.Background()

	for _, filename := range []string{"../outside.txt", "..", "/etc/passwd"} {
		if err := f.store.CheckIn(ctx, "alice", filename, models.LevelNone, []byte("x")); err == nil {
			t.Errorf("Expected check-in of %q to be rejected", filename)
		}
	}

	if _, err := os.Stat(filepath.Join(filepath.Dir(f.root), "outside.txt")); !os.IsNotExist(err) {
		t.Error("Path escape produced a file outside the artifact root")
	}
}

func TestNestedFilenames(t *testing.T) {
	f := setupStore(t)
	ctx := context.Background()

	if err := f.store.CheckIn(ctx, "alice", "plans/q3/launch.txt", models.LevelAll, []byte("go")); err != nil {
		t.Fatalf("CheckIn with nested filename failed: %v", err)
	}
	got, _, err := f.store.CheckOut(ctx, "alice", "alice", "plans/q3/launch.txt")
	if err != nil {
		t.Fatalf("CheckOut failed: %v", err)
	}
	if !bytes.Equal(got, []byte("go")) {
		t.Errorf("Unexpected content: %q", got)
	}
}

func TestSeedData(t *testing.T) {
	f := setupStore(t)
	ctx := context.Background()

	seedPath := filepath.Join(t.TempDir(), "seed.yaml")
	seedYAML := `documents:
  - owner: alice
    filename: welcome.txt
    level: all
    content: "welcome to the vault"
  - owner: bob
    filename: notes.txt
    level: none
    content: "plain notes"
`
	if err := os.WriteFile(seedPath, []byte(seedYAML), 0o600); err != nil {
		t.Fatalf("Failed to write seed file: %v", err)
	}

	seed, err := LoadSeedFile(seedPath)
	if err != nil {
		t.Fatalf("LoadSeedFile failed: %v", err)
	}
	if len(seed.Documents) != 2 {
		t.Fatalf("Expected 2 seed documents, got %d", len(seed.Documents))
	}

	if err := f.store.ApplySeed(ctx, seed); err != nil {
		t.Fatalf("ApplySeed failed: %v", err)
	}

	got, _, err := f.store.CheckOut(ctx, "alice", "alice", "welcome.txt")
	if err != nil {
		t.Fatalf("CheckOut of seeded document failed: %v", err)
	}
	if !bytes.Equal(got, []byte("welcome to the vault")) {
		t.Errorf("Unexpected seeded content: %q", got)
	}

	t.Run("bad level rejected", func(t *testing.T) {
		bad := &SeedFile{Documents: []SeedDocument{{Owner: "x", Filename: "y", Level: "ultra", Content: "z"}}}
		if err := f.store.ApplySeed(ctx, bad); err == nil {
			t.Error("Expected unknown seed level to fail")
		}
	})
}
