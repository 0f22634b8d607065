package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"docvault/pkg/models"

	"github.com/jmoiron/sqlx"
)

// DocumentRepository implements repository.DocumentRepository for PostgreSQL
type DocumentRepository struct {
	db sqlx.ExtContext
}

// NewDocumentRepository creates a new PostgreSQL document repository
func NewDocumentRepository(db sqlx.ExtContext) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// documentRow is the flat scan target for the documents table.
type documentRow struct {
	Owner       string               `db:"owner"`
	Filename    string               `db:"filename"`
	Level       models.SecurityLevel `db:"level"`
	BodyPath    string               `db:"body_path"`
	KeyPath     sql.NullString       `db:"key_path"`
	SigPath     sql.NullString       `db:"sig_path"`
	CheckedInAt time.Time            `db:"checked_in_at"`
}

func (r documentRow) toModel() *models.Document {
	return &models.Document{
		Owner:    r.Owner,
		Filename: r.Filename,
		Level:    r.Level,
		Artifacts: models.ArtifactRef{
			Body:       r.BodyPath,
			WrappedKey: r.KeyPath.String,
			Signature:  r.SigPath.String,
		},
		CheckedInAt: r.CheckedInAt,
	}
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Save creates or replaces a document record. Re-check-in under the same
// (owner, filename) overwrites the prior metadata.
func (r *DocumentRepository) Save(ctx context.Context, doc *models.Document) error {
	query := `
		INSERT INTO documents (owner, filename, level, body_path, key_path, sig_path, checked_in_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (owner, filename) DO UPDATE
		SET level = EXCLUDED.level, body_path = EXCLUDED.body_path, key_path = EXCLUDED.key_path,
		    sig_path = EXCLUDED.sig_path, checked_in_at = EXCLUDED.checked_in_at
	`
	_, err := r.db.ExecContext(ctx, query,
		doc.Owner,
		doc.Filename,
		doc.Level,
		doc.Artifacts.Body,
		nullable(doc.Artifacts.WrappedKey),
		nullable(doc.Artifacts.Signature),
		doc.CheckedInAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}
	return nil
}

// Get retrieves a document by owner and filename
func (r *DocumentRepository) Get(ctx context.Context, owner, filename string) (*models.Document, error) {
	var row documentRow
	query := `
		SELECT owner, filename, level, body_path, key_path, sig_path, checked_in_at
		FROM documents
		WHERE owner = $1 AND filename = $2
	`
	err := sqlx.GetContext(ctx, r.db, &row, query, owner, filename)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return row.toModel(), nil
}

// Delete removes a document record
func (r *DocumentRepository) Delete(ctx context.Context, owner, filename string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE owner = $1 AND filename = $2`, owner, filename)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return models.ErrDocumentNotFound
	}
	return nil
}

// List retrieves document metadata with optional filtering
func (r *DocumentRepository) List(ctx context.Context, req *models.ListDocumentsRequest) ([]*models.Document, error) {
	rows := make([]documentRow, 0)

	query := `
		SELECT owner, filename, level, body_path, key_path, sig_path, checked_in_at
		FROM documents
		WHERE 1=1
	`
	args := []interface{}{}
	argCount := 1

	if req != nil && req.Owner != "" {
		query += fmt.Sprintf(" AND owner = $%d", argCount)
		args = append(args, req.Owner)
		argCount++
	}

	query += " ORDER BY owner, filename"

	if req != nil && req.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argCount)
		args = append(args, req.Limit)
		argCount++
	}
	if req != nil && req.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argCount)
		args = append(args, req.Offset)
	}

	if err := sqlx.SelectContext(ctx, r.db, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	docs := make([]*models.Document, 0, len(rows))
	for _, row := range rows {
		docs = append(docs, row.toModel())
	}
	return docs, nil
}

// Count returns the total count of documents matching the criteria
func (r *DocumentRepository) Count(ctx context.Context, req *models.ListDocumentsRequest) (int, error) {
	query := `SELECT COUNT(*) FROM documents WHERE 1=1`
	args := []interface{}{}

	if req != nil && req.Owner != "" {
		query += " AND owner = $1"
		args = append(args, req.Owner)
	}

	var count int
	if err := sqlx.GetContext(ctx, r.db, &count, query, args...); err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return count, nil
}
