package postgres

import (
	"context"
	"fmt"

	"docvault/pkg/models"

	"github.com/jmoiron/sqlx"
)

// AuditRepository implements repository.AuditRepository for PostgreSQL
type AuditRepository struct {
	db sqlx.ExtContext
}

// NewAuditRepository creates a new PostgreSQL audit repository
func NewAuditRepository(db sqlx.ExtContext) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create appends a new audit record
func (r *AuditRepository) Create(ctx context.Context, record *models.AuditRecord) error {
	query := `
		INSERT INTO audit_records (id, action, actor, document_id, outcome, detail, remote_addr, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		record.ID,
		record.Action,
		record.Actor,
		record.DocumentID,
		record.Outcome,
		record.Detail,
		record.RemoteAddr,
		record.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to create audit record: %w", err)
	}
	return nil
}

// List retrieves audit records with optional filtering
func (r *AuditRepository) List(ctx context.Context, req *models.ListAuditRecordsRequest) ([]*models.AuditRecord, error) {
	records := make([]*models.AuditRecord, 0)

	query := `
		SELECT id, action, actor, document_id, outcome, detail, remote_addr, timestamp
		FROM audit_records
		WHERE 1=1
	`
	args := []interface{}{}
	argCount := 1

	if req != nil && req.Action != nil {
		query += fmt.Sprintf(" AND action = $%d", argCount)
		args = append(args, *req.Action)
		argCount++
	}
	if req != nil && req.Actor != "" {
		query += fmt.Sprintf(" AND actor = $%d", argCount)
		args = append(args, req.Actor)
		argCount++
	}
	if req != nil && req.DocumentID != "" {
		query += fmt.Sprintf(" AND document_id = $%d", argCount)
		args = append(args, req.DocumentID)
		argCount++
	}

	query += " ORDER BY timestamp DESC"

	if req != nil && req.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argCount)
		args = append(args, req.Limit)
		argCount++
	}
	if req != nil && req.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argCount)
		args = append(args, req.Offset)
	}

	if err := sqlx.SelectContext(ctx, r.db, &records, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list audit records: %w", err)
	}
	return records, nil
}
