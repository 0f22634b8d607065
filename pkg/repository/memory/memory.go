// Package memory implements the metadata repositories over in-process maps.
// It is the default backend for single-node deployments and for tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"docvault/pkg/models"
	"docvault/pkg/repository"

	"github.com/google/uuid"
)

type documentKey struct {
	owner    string
	filename string
}

type grantKey struct {
	documentID string
	grantee    string
}

// MemoryDB implements the Database interface over mutex-guarded maps.
type MemoryDB struct {
	mu        sync.RWMutex
	documents map[documentKey]*models.Document
	grants    map[grantKey]*models.Grant
	audit     []*models.AuditRecord
}

// NewMemoryDB creates an empty in-memory backend.
func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		documents: make(map[documentKey]*models.Document),
		grants:    make(map[grantKey]*models.Grant),
	}
}

// Connect is a no-op; the backend needs no connection string.
func (m *MemoryDB) Connect(ctx context.Context, connString string) error { return nil }

// Close discards all state.
func (m *MemoryDB) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.documents = make(map[documentKey]*models.Document)
	m.grants = make(map[grantKey]*models.Grant)
	m.audit = nil
	return nil
}

// Ping always succeeds.
func (m *MemoryDB) Ping(ctx context.Context) error { return nil }

// BeginTx returns a transaction view. Individual operations are already
// atomic under the backend mutex; Commit and Rollback are no-ops.
func (m *MemoryDB) BeginTx(ctx context.Context) (repository.Transaction, error) {
	return &memoryTx{db: m}, nil
}

type memoryTx struct {
	db *MemoryDB
}

func (t *memoryTx) Commit() error   { return nil }
func (t *memoryTx) Rollback() error { return nil }

func (t *memoryTx) DocumentRepository() repository.DocumentRepository {
	return &DocumentRepository{db: t.db}
}

func (t *memoryTx) GrantRepository() repository.GrantRepository {
	return &GrantRepository{db: t.db}
}

func (t *memoryTx) AuditRepository() repository.AuditRepository {
	return &AuditRepository{db: t.db}
}

// NewRepository creates a repository backed by in-process maps.
func NewRepository() *repository.Repository {
	db := NewMemoryDB()
	repo := repository.NewRepository(db)
	repo.Document = &DocumentRepository{db: db}
	repo.Grant = &GrantRepository{db: db}
	repo.Audit = &AuditRepository{db: db}
	return repo
}

// DocumentRepository implements repository.DocumentRepository in memory.
type DocumentRepository struct {
	db *MemoryDB
}

func (r *DocumentRepository) Save(ctx context.Context, doc *models.Document) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	stored := *doc
	r.db.documents[documentKey{doc.Owner, doc.Filename}] = &stored
	return nil
}

func (r *DocumentRepository) Get(ctx context.Context, owner, filename string) (*models.Document, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	doc, ok := r.db.documents[documentKey{owner, filename}]
	if !ok {
		return nil, models.ErrDocumentNotFound
	}
	copied := *doc
	return &copied, nil
}

func (r *DocumentRepository) Delete(ctx context.Context, owner, filename string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	key := documentKey{owner, filename}
	if _, ok := r.db.documents[key]; !ok {
		return models.ErrDocumentNotFound
	}
	delete(r.db.documents, key)
	return nil
}

func (r *DocumentRepository) List(ctx context.Context, req *models.ListDocumentsRequest) ([]*models.Document, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	docs := make([]*models.Document, 0)
	for _, doc := range r.db.documents {
		if req != nil && req.Owner != "" && doc.Owner != req.Owner {
			continue
		}
		copied := *doc
		docs = append(docs, &copied)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID() < docs[j].ID() })
	return paginate(docs, req), nil
}

func (r *DocumentRepository) Count(ctx context.Context, req *models.ListDocumentsRequest) (int, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	count := 0
	for _, doc := range r.db.documents {
		if req != nil && req.Owner != "" && doc.Owner != req.Owner {
			continue
		}
		count++
	}
	return count, nil
}

// GrantRepository implements repository.GrantRepository in memory.
type GrantRepository struct {
	db *MemoryDB
}

func (r *GrantRepository) Upsert(ctx context.Context, grant *models.Grant) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	stored := *grant
	r.db.grants[grantKey{grant.DocumentID, grant.Grantee}] = &stored
	return nil
}

func (r *GrantRepository) Get(ctx context.Context, documentID, grantee string) (*models.Grant, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	grant, ok := r.db.grants[grantKey{documentID, grantee}]
	if !ok {
		return nil, models.ErrGrantNotFound
	}
	copied := *grant
	return &copied, nil
}

func (r *GrantRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for key, grant := range r.db.grants {
		if grant.ID == id {
			delete(r.db.grants, key)
			return nil
		}
	}
	return models.ErrGrantNotFound
}

func (r *GrantRepository) DeleteByDocument(ctx context.Context, documentID string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for key := range r.db.grants {
		if key.documentID == documentID {
			delete(r.db.grants, key)
		}
	}
	return nil
}

func (r *GrantRepository) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	removed := 0
	for key, grant := range r.db.grants {
		if grant.Expired(now) {
			delete(r.db.grants, key)
			removed++
		}
	}
	return removed, nil
}

func (r *GrantRepository) List(ctx context.Context, req *models.ListGrantsRequest) ([]*models.Grant, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	grants := make([]*models.Grant, 0)
	for _, grant := range r.db.grants {
		if req != nil {
			if req.DocumentID != "" && grant.DocumentID != req.DocumentID {
				continue
			}
			if req.Grantee != "" && grant.Grantee != req.Grantee {
				continue
			}
		}
		copied := *grant
		grants = append(grants, &copied)
	}
	sort.Slice(grants, func(i, j int) bool {
		if grants[i].DocumentID != grants[j].DocumentID {
			return grants[i].DocumentID < grants[j].DocumentID
		}
		return grants[i].Grantee < grants[j].Grantee
	})
	if req != nil {
		return paginateGrants(grants, req.Limit, req.Offset), nil
	}
	return grants, nil
}

// AuditRepository implements repository.AuditRepository in memory.
type AuditRepository struct {
	db *MemoryDB
}

func (r *AuditRepository) Create(ctx context.Context, record *models.AuditRecord) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	stored := *record
	r.db.audit = append(r.db.audit, &stored)
	return nil
}

func (r *AuditRepository) List(ctx context.Context, req *models.ListAuditRecordsRequest) ([]*models.AuditRecord, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	records := make([]*models.AuditRecord, 0)
	for _, record := range r.db.audit {
		if req != nil {
			if req.Action != nil && record.Action != *req.Action {
				continue
			}
			if req.Actor != "" && record.Actor != req.Actor {
				continue
			}
			if req.DocumentID != "" && record.DocumentID != req.DocumentID {
				continue
			}
		}
		copied := *record
		records = append(records, &copied)
	}
	// Newest first, matching the postgres ordering.
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp.After(records[j].Timestamp)
	})
	if req != nil {
		records = sliceWindow(records, req.Limit, req.Offset)
	}
	return records, nil
}

func paginate(docs []*models.Document, req *models.ListDocumentsRequest) []*models.Document {
	if req == nil {
		return docs
	}
	return sliceWindow(docs, req.Limit, req.Offset)
}

func paginateGrants(grants []*models.Grant, limit, offset int) []*models.Grant {
	return sliceWindow(grants, limit, offset)
}

func sliceWindow[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return []T{}
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
