// Package delegation implements time-limited, re-delegable access grants.
// A grant authorizes a grantee to check out one document until it expires.
// Owners delegate freely; everyone else needs a live grant marked as
// propagating, and can never hand out more time than they hold themselves.
package delegation

import (
	"context"
	"errors"
	"time"

	"docvault/logging"
	"docvault/pkg/cache"
	"docvault/pkg/models"
	"docvault/pkg/repository"

	"github.com/google/uuid"
)

// Engine evaluates and records delegation grants.
type Engine struct {
	documents repository.DocumentRepository
	grants    repository.GrantRepository
	decisions cache.DecisionCache
	cacheTTL  time.Duration

	// now is swappable for tests.
	now func() time.Time
}

// NewEngine creates a delegation engine. decisions may be a no-op cache.
func NewEngine(documents repository.DocumentRepository, grants repository.GrantRepository, decisions cache.DecisionCache, cacheTTL time.Duration) *Engine {
	return &Engine{
		documents: documents,
		grants:    grants,
		decisions: decisions,
		cacheTTL:  cacheTTL,
		now:       time.Now,
	}
}

// Grant records a delegation from grantor to grantee for the given document.
// An owner grant expires duration from now. A re-delegation additionally
// requires the grantor to hold a live propagating grant, and the new expiry
// is capped at the grantor's own; delegated access can narrow but never
// widen.
func (e *Engine) Grant(ctx context.Context, grantor, documentID, grantee string, duration time.Duration, propagate bool) error {
	if duration <= 0 || grantee == "" {
		return models.ErrInvalidInput
	}

	owner, _, err := models.SplitDocumentID(documentID)
	if err != nil {
		return models.ErrInvalidInput
	}

	if _, err := e.getDocument(ctx, documentID); err != nil {
		return err
	}

	now := e.now()
	expiresAt := now.Add(duration)

	if grantor != owner {
		parent, err := e.liveGrant(ctx, documentID, grantor, now)
		if err != nil {
			return err
		}
		if !parent.Propagate {
			return models.ErrGrantNoPropagate
		}
		if expiresAt.After(parent.ExpiresAt) {
			expiresAt = parent.ExpiresAt
		}
	}

	grant := &models.Grant{
		ID:         uuid.New(),
		DocumentID: documentID,
		Grantor:    grantor,
		Grantee:    grantee,
		ExpiresAt:  expiresAt,
		Propagate:  propagate,
		CreatedAt:  now,
	}

	if err := e.grants.Upsert(ctx, grant); err != nil {
		return err
	}

	e.invalidate(ctx, documentID)
	logging.Info("Granted %s access to %s until %s (propagate=%t)", grantee, documentID, expiresAt.Format(time.RFC3339), propagate)
	return nil
}

// Authorize reports whether principal may check out the document. The owner
// always may; anyone else needs a live grant. Expired grants are evicted on
// the spot.
func (e *Engine) Authorize(ctx context.Context, principal, documentID string) (bool, error) {
	owner, _, err := models.SplitDocumentID(documentID)
	if err != nil {
		return false, models.ErrInvalidInput
	}
	if principal == owner {
		return true, nil
	}

	if decision, hit, err := e.decisions.Get(ctx, documentID, principal); err == nil && hit {
		return decision == cache.DecisionAllow, nil
	} else if err != nil {
		logging.Warn("Decision cache read failed for %s: %v", documentID, err)
	}

	now := e.now()
	grant, err := e.liveGrant(ctx, documentID, principal, now)
	if err != nil {
		if errors.Is(err, models.ErrGrantNotFound) || errors.Is(err, models.ErrGrantExpired) {
			e.cacheDecision(ctx, documentID, principal, cache.DecisionDeny, e.cacheTTL)
			return false, nil
		}
		return false, err
	}

	// Never let a cached allow outlive the grant itself.
	ttl := e.cacheTTL
	if remaining := grant.ExpiresAt.Sub(now); remaining < ttl {
		ttl = remaining
	}
	e.cacheDecision(ctx, documentID, principal, cache.DecisionAllow, ttl)
	return true, nil
}

// RevokeDocument removes every grant attached to a document. Called when a
// document is deleted and by the admin API.
func (e *Engine) RevokeDocument(ctx context.Context, documentID string) error {
	if err := e.grants.DeleteByDocument(ctx, documentID); err != nil {
		return err
	}
	e.invalidate(ctx, documentID)
	return nil
}

// RevokeGrant removes a single grant by ID.
func (e *Engine) RevokeGrant(ctx context.Context, documentID string, id uuid.UUID) error {
	if err := e.grants.Delete(ctx, id); err != nil {
		return err
	}
	e.invalidate(ctx, documentID)
	return nil
}

// SweepExpired removes every expired grant. The session layer evicts lazily;
// this exists for the periodic background sweep.
func (e *Engine) SweepExpired(ctx context.Context) (int, error) {
	return e.grants.DeleteExpired(ctx, e.now())
}

// liveGrant loads the grant for (documentID, principal) and lazily evicts it
// when expired.
func (e *Engine) liveGrant(ctx context.Context, documentID, principal string, now time.Time) (*models.Grant, error) {
	grant, err := e.grants.Get(ctx, documentID, principal)
	if err != nil {
		return nil, err
	}
	if grant.Expired(now) {
		if err := e.grants.Delete(ctx, grant.ID); err != nil && !errors.Is(err, models.ErrGrantNotFound) {
			logging.Warn("Failed to evict expired grant %s: %v", grant.ID, err)
		}
		return nil, models.ErrGrantExpired
	}
	return grant, nil
}

func (e *Engine) getDocument(ctx context.Context, documentID string) (*models.Document, error) {
	owner, filename, err := models.SplitDocumentID(documentID)
	if err != nil {
		return nil, models.ErrInvalidInput
	}
	return e.documents.Get(ctx, owner, filename)
}

func (e *Engine) cacheDecision(ctx context.Context, documentID, principal string, decision cache.Decision, ttl time.Duration) {
	if err := e.decisions.Set(ctx, documentID, principal, decision, ttl); err != nil {
		logging.Warn("Decision cache write failed for %s: %v", documentID, err)
	}
}

func (e *Engine) invalidate(ctx context.Context, documentID string) {
	if err := e.decisions.InvalidateDocument(ctx, documentID); err != nil {
		logging.Warn("Decision cache invalidation failed for %s: %v", documentID, err)
	}
}
