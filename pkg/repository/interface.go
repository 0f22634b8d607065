package repository

import (
	"context"
	"time"

	"docvault/pkg/models"

	"github.com/google/uuid"
)

// Database is the interface that all metadata backends must satisfy.
// This allows us to swap between the in-memory backend and PostgreSQL.
type Database interface {
	// Connection management
	Connect(ctx context.Context, connString string) error
	Close() error
	Ping(ctx context.Context) error

	// Transaction support
	BeginTx(ctx context.Context) (Transaction, error)
}

// Transaction represents a unit of work across the repositories.
type Transaction interface {
	Commit() error
	Rollback() error
	DocumentRepository() DocumentRepository
	GrantRepository() GrantRepository
	AuditRepository() AuditRepository
}

// DocumentRepository defines operations for document metadata access.
// Documents are keyed by (owner, filename); Save replaces any existing
// record under the same key.
type DocumentRepository interface {
	// Save creates or replaces a document record
	Save(ctx context.Context, doc *models.Document) error

	// Get retrieves a document by owner and filename
	Get(ctx context.Context, owner, filename string) (*models.Document, error)

	// Delete removes a document record
	Delete(ctx context.Context, owner, filename string) error

	// List retrieves document metadata with optional filtering
	List(ctx context.Context, req *models.ListDocumentsRequest) ([]*models.Document, error)

	// Count returns the total count of documents matching the criteria
	Count(ctx context.Context, req *models.ListDocumentsRequest) (int, error)
}

// GrantRepository defines operations for delegation grant access. Grants
// are keyed by (document ID, grantee); Upsert replaces any existing grant
// for the same pair.
type GrantRepository interface {
	// Upsert creates or replaces the grant for (grant.DocumentID, grant.Grantee)
	Upsert(ctx context.Context, grant *models.Grant) error

	// Get retrieves the grant for a document and grantee
	Get(ctx context.Context, documentID, grantee string) (*models.Grant, error)

	// Delete removes a single grant by ID
	Delete(ctx context.Context, id uuid.UUID) error

	// DeleteByDocument removes every grant attached to a document
	DeleteByDocument(ctx context.Context, documentID string) error

	// DeleteExpired removes grants whose expiry lies strictly before now
	DeleteExpired(ctx context.Context, now time.Time) (int, error)

	// List retrieves grants with optional filtering
	List(ctx context.Context, req *models.ListGrantsRequest) ([]*models.Grant, error)
}

// AuditRepository defines operations for audit log access.
type AuditRepository interface {
	// Create appends a new audit record
	Create(ctx context.Context, record *models.AuditRecord) error

	// List retrieves audit records with optional filtering
	List(ctx context.Context, req *models.ListAuditRecordsRequest) ([]*models.AuditRecord, error)
}

// Repository provides access to all repository interfaces.
type Repository struct {
	Document DocumentRepository
	Grant    GrantRepository
	Audit    AuditRepository
	db       Database
}

// NewRepository creates a new repository with the given database implementation.
func NewRepository(db Database) *Repository {
	return &Repository{db: db}
}

// BeginTx starts a unit of work.
func (r *Repository) BeginTx(ctx context.Context) (Transaction, error) {
	return r.db.BeginTx(ctx)
}

// Close closes the underlying backend.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Ping checks the backend connection.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}
