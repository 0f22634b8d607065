package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"docvault/pkg/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// GrantRepository implements repository.GrantRepository for PostgreSQL
type GrantRepository struct {
	db sqlx.ExtContext
}

// NewGrantRepository creates a new PostgreSQL grant repository
func NewGrantRepository(db sqlx.ExtContext) *GrantRepository {
	return &GrantRepository{db: db}
}

// Upsert creates or replaces the grant for (DocumentID, Grantee)
func (r *GrantRepository) Upsert(ctx context.Context, grant *models.Grant) error {
	query := `
		INSERT INTO grants (id, document_id, grantor, grantee, expires_at, propagate, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (document_id, grantee) DO UPDATE
		SET id = EXCLUDED.id, grantor = EXCLUDED.grantor, expires_at = EXCLUDED.expires_at,
		    propagate = EXCLUDED.propagate, created_at = EXCLUDED.created_at
	`
	_, err := r.db.ExecContext(ctx, query,
		grant.ID,
		grant.DocumentID,
		grant.Grantor,
		grant.Grantee,
		grant.ExpiresAt,
		grant.Propagate,
		grant.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert grant: %w", err)
	}
	return nil
}

// Get retrieves the grant for a document and grantee
func (r *GrantRepository) Get(ctx context.Context, documentID, grantee string) (*models.Grant, error) {
	var grant models.Grant
	query := `
		SELECT id, document_id, grantor, grantee, expires_at, propagate, created_at
		FROM grants
		WHERE document_id = $1 AND grantee = $2
	`
	err := sqlx.GetContext(ctx, r.db, &grant, query, documentID, grantee)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrGrantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get grant: %w", err)
	}
	return &grant, nil
}

// Delete removes a single grant by ID
func (r *GrantRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM grants WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete grant: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return models.ErrGrantNotFound
	}
	return nil
}

// DeleteByDocument removes every grant attached to a document
func (r *GrantRepository) DeleteByDocument(ctx context.Context, documentID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM grants WHERE document_id = $1`, documentID)
	if err != nil {
		return fmt.Errorf("failed to delete grants for document: %w", err)
	}
	return nil
}

// DeleteExpired removes grants whose expiry lies strictly before now
func (r *GrantRepository) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM grants WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired grants: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(rows), nil
}

// List retrieves grants with optional filtering
func (r *GrantRepository) List(ctx context.Context, req *models.ListGrantsRequest) ([]*models.Grant, error) {
	grants := make([]*models.Grant, 0)

	query := `
		SELECT id, document_id, grantor, grantee, expires_at, propagate, created_at
		FROM grants
		WHERE 1=1
	`
	args := []interface{}{}
	argCount := 1

	if req != nil && req.DocumentID != "" {
		query += fmt.Sprintf(" AND document_id = $%d", argCount)
		args = append(args, req.DocumentID)
		argCount++
	}
	if req != nil && req.Grantee != "" {
		query += fmt.Sprintf(" AND grantee = $%d", argCount)
		args = append(args, req.Grantee)
		argCount++
	}

	query += " ORDER BY document_id, grantee"

	if req != nil && req.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argCount)
		args = append(args, req.Limit)
		argCount++
	}
	if req != nil && req.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argCount)
		args = append(args, req.Offset)
	}

	if err := sqlx.SelectContext(ctx, r.db, &grants, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list grants: %w", err)
	}
	return grants, nil
}
