package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"docvault/pkg/envelope"
	"docvault/pkg/models"
)

const (
	bodySuffix = ".body"
	keySuffix  = ".key"
	sigSuffix  = ".sig"
)

// ArtifactStore persists sealed document artifacts. Refs are paths relative
// to the artifact root so the metadata stays portable across hosts.
type ArtifactStore interface {
	Save(owner, filename string, blob *envelope.SealedBlob) (models.ArtifactRef, error)
	Load(ref models.ArtifactRef) (*envelope.SealedBlob, error)
	Remove(ref models.ArtifactRef) error
}

// FilesystemArtifacts stores artifacts under a root directory, one
// subdirectory per owner.
type FilesystemArtifacts struct {
	root string
}

// NewFilesystemArtifacts creates the artifact store rooted at dir.
func NewFilesystemArtifacts(dir string) (*FilesystemArtifacts, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create artifact root: %w", err)
	}
	return &FilesystemArtifacts{root: dir}, nil
}

// relPath builds the in-root path for one artifact. Owner and filename come
// from authenticated principals and client input respectively; both are
// checked against path escape.
func (f *FilesystemArtifacts) relPath(owner, filename, suffix string) (string, error) {
	if owner == "" || filename == "" {
		return "", models.ErrInvalidInput
	}
	if !filepath.IsLocal(owner) || !filepath.IsLocal(filename) {
		return "", models.ErrInvalidInput
	}
	rel := filepath.Join(owner, filename+suffix)
	if !filepath.IsLocal(rel) {
		return "", models.ErrInvalidInput
	}
	return rel, nil
}

func (f *FilesystemArtifacts) abs(rel string) (string, error) {
	if rel == "" || !filepath.IsLocal(rel) {
		return "", models.ErrInvalidInput
	}
	return filepath.Join(f.root, rel), nil
}

// Save writes the blob's artifacts and returns their refs. A prior version
// of the same document is overwritten; stale side artifacts from a previous
// security level are removed.
func (f *FilesystemArtifacts) Save(owner, filename string, blob *envelope.SealedBlob) (models.ArtifactRef, error) {
	var ref models.ArtifactRef

	bodyRel, err := f.relPath(owner, filename, bodySuffix)
	if err != nil {
		return ref, err
	}

	bodyAbs, _ := f.abs(bodyRel)
	if err := os.MkdirAll(filepath.Dir(bodyAbs), 0o700); err != nil {
		return ref, fmt.Errorf("failed to create owner directory: %w", err)
	}
	if err := os.WriteFile(bodyAbs, blob.Body, 0o600); err != nil {
		return ref, fmt.Errorf("failed to write body artifact: %w", err)
	}
	ref.Body = bodyRel

	ref.WrappedKey, err = f.saveSide(owner, filename, keySuffix, blob.WrappedKey)
	if err != nil {
		return ref, err
	}
	ref.Signature, err = f.saveSide(owner, filename, sigSuffix, blob.Signature)
	if err != nil {
		return ref, err
	}
	return ref, nil
}

// saveSide writes or removes one optional artifact depending on whether the
// seal produced it.
func (f *FilesystemArtifacts) saveSide(owner, filename, suffix string, data []byte) (string, error) {
	rel, err := f.relPath(owner, filename, suffix)
	if err != nil {
		return "", err
	}
	abs, _ := f.abs(rel)

	if len(data) == 0 {
		if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
			return "", fmt.Errorf("failed to remove stale artifact: %w", err)
		}
		return "", nil
	}
	if err := os.WriteFile(abs, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write %s artifact: %w", strings.TrimPrefix(suffix, "."), err)
	}
	return rel, nil
}

// Load reads the blob for a ref.
func (f *FilesystemArtifacts) Load(ref models.ArtifactRef) (*envelope.SealedBlob, error) {
	bodyAbs, err := f.abs(ref.Body)
	if err != nil {
		return nil, err
	}

	body, err := os.ReadFile(bodyAbs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, models.ErrDocumentNotFound
		}
		return nil, fmt.Errorf("failed to read body artifact: %w", err)
	}

	blob := &envelope.SealedBlob{Body: body}
	if blob.WrappedKey, err = f.loadSide(ref.WrappedKey); err != nil {
		return nil, err
	}
	if blob.Signature, err = f.loadSide(ref.Signature); err != nil {
		return nil, err
	}
	return blob, nil
}

func (f *FilesystemArtifacts) loadSide(rel string) ([]byte, error) {
	if rel == "" {
		return nil, nil
	}
	abs, err := f.abs(rel)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			// The metadata references an artifact that is gone; the
			// envelope layer will refuse to open without it.
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}
	return data, nil
}

// Remove deletes every artifact in the ref.
func (f *FilesystemArtifacts) Remove(ref models.ArtifactRef) error {
	for _, rel := range []string{ref.Body, ref.WrappedKey, ref.Signature} {
		if rel == "" {
			continue
		}
		abs, err := f.abs(rel)
		if err != nil {
			return err
		}
		if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove artifact: %w", err)
		}
	}
	return nil
}
