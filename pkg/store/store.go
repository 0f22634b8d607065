// Package store implements the document store: check-in seals content into
// the artifact store and records metadata, checkout reverses it behind the
// delegation engine's access decision, delete is owner-only and revokes all
// grants on the way out.
package store

import (
	"context"
	"time"

	"docvault/logging"
	"docvault/pkg/delegation"
	"docvault/pkg/envelope"
	"docvault/pkg/models"
	"docvault/pkg/repository"
)

// DocumentStore coordinates metadata, artifacts, the envelope engine, and
// delegation decisions.
type DocumentStore struct {
	documents  repository.DocumentRepository
	artifacts  ArtifactStore
	envelope   *envelope.Engine
	delegation *delegation.Engine

	now func() time.Time
}

// NewDocumentStore wires the store's collaborators together.
func NewDocumentStore(documents repository.DocumentRepository, artifacts ArtifactStore, env *envelope.Engine, del *delegation.Engine) *DocumentStore {
	return &DocumentStore{
		documents:  documents,
		artifacts:  artifacts,
		envelope:   env,
		delegation: del,
		now:        time.Now,
	}
}

// CheckIn seals content at the requested level and stores it under the
// principal's namespace. Checking in an existing filename replaces the
// document; grants against it stay attached to the document ID.
func (s *DocumentStore) CheckIn(ctx context.Context, principal, filename string, level models.SecurityLevel, content []byte) error {
	start := s.now()

	err := s.checkIn(ctx, principal, filename, level, content)
	recordStoreOperation(ctx, "checkin", s.now().Sub(start), err)
	if err != nil {
		logging.Warn("Check-in of %s/%s failed: %v", principal, filename, err)
		return err
	}

	logging.Info("Checked in %s/%s at level %s (%d bytes)", principal, filename, level, len(content))
	return nil
}

func (s *DocumentStore) checkIn(ctx context.Context, principal, filename string, level models.SecurityLevel, content []byte) error {
	if principal == "" || filename == "" || !level.Valid() {
		return models.ErrInvalidInput
	}

	blob, err := s.envelope.Seal(content, level)
	if err != nil {
		return err
	}

	ref, err := s.artifacts.Save(principal, filename, blob)
	if err != nil {
		return err
	}

	doc := &models.Document{
		Owner:       principal,
		Filename:    filename,
		Level:       level,
		Artifacts:   ref,
		CheckedInAt: s.now(),
	}
	return s.documents.Save(ctx, doc)
}

// CheckOut retrieves a document's plaintext and the level it was checked in
// under. The owner always may; other principals need a live grant. An
// integrity failure never returns content.
func (s *DocumentStore) CheckOut(ctx context.Context, principal, owner, filename string) ([]byte, models.SecurityLevel, error) {
	start := s.now()

	content, level, err := s.checkOut(ctx, principal, owner, filename)
	recordStoreOperation(ctx, "checkout", s.now().Sub(start), err)
	if err != nil {
		logging.Warn("Checkout of %s/%s by %s failed: %v", owner, filename, principal, err)
		return nil, models.LevelNone, err
	}

	logging.Info("Checked out %s/%s for %s (level %s)", owner, filename, principal, level)
	return content, level, nil
}

func (s *DocumentStore) checkOut(ctx context.Context, principal, owner, filename string) ([]byte, models.SecurityLevel, error) {
	if principal == "" || owner == "" || filename == "" {
		return nil, models.LevelNone, models.ErrInvalidInput
	}

	documentID := models.DocumentID(owner, filename)
	allowed, err := s.delegation.Authorize(ctx, principal, documentID)
	if err != nil {
		return nil, models.LevelNone, err
	}
	if !allowed {
		return nil, models.LevelNone, &models.Error{
			Code:    models.ErrCodeAccessDenied,
			Message: "principal holds no live grant for document",
		}
	}

	doc, err := s.documents.Get(ctx, owner, filename)
	if err != nil {
		return nil, models.LevelNone, err
	}

	blob, err := s.artifacts.Load(doc.Artifacts)
	if err != nil {
		return nil, models.LevelNone, err
	}

	content, err := s.envelope.Open(blob, doc.Level)
	if err != nil {
		return nil, models.LevelNone, err
	}
	return content, doc.Level, nil
}

// Delete removes a document, its artifacts, and every grant against it.
// Only the owner may delete; a delegated delete is refused outright even
// when the requester holds a grant.
func (s *DocumentStore) Delete(ctx context.Context, principal, owner, filename string, delegated bool) error {
	start := s.now()

	err := s.delete(ctx, principal, owner, filename, delegated)
	recordStoreOperation(ctx, "delete", s.now().Sub(start), err)
	if err != nil {
		logging.Warn("Delete of %s/%s by %s failed: %v", owner, filename, principal, err)
		return err
	}

	logging.Info("Deleted %s/%s", owner, filename)
	return nil
}

func (s *DocumentStore) delete(ctx context.Context, principal, owner, filename string, delegated bool) error {
	if principal == "" || owner == "" || filename == "" {
		return models.ErrInvalidInput
	}
	if delegated {
		return models.ErrUnauthorized
	}
	if principal != owner {
		return models.ErrUnauthorized
	}

	doc, err := s.documents.Get(ctx, owner, filename)
	if err != nil {
		return err
	}

	if err := s.documents.Delete(ctx, owner, filename); err != nil {
		return err
	}
	if err := s.artifacts.Remove(doc.Artifacts); err != nil {
		logging.Warn("Failed to remove artifacts for %s: %v", doc.ID(), err)
	}

	// Grants die with the document. A later check-in under the same name
	// starts with a clean slate.
	return s.delegation.RevokeDocument(ctx, doc.ID())
}
