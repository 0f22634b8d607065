package admin

import (
	"errors"
	"net/http"
	"time"

	"docvault/logging"
	"docvault/pkg/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

// documentSummary is the admin view of a document. The artifact paths stay
// internal; operators get the identity and the protection level.
type documentSummary struct {
	ID          string    `json:"id"`
	Owner       string    `json:"owner"`
	Filename    string    `json:"filename"`
	Level       string    `json:"level"`
	CheckedInAt time.Time `json:"checked_in_at"`
}

// grantView is the admin view of a grant, with liveness computed at read time.
type grantView struct {
	ID         uuid.UUID `json:"id"`
	DocumentID string    `json:"document_id"`
	Grantor    string    `json:"grantor"`
	Grantee    string    `json:"grantee"`
	ExpiresAt  time.Time `json:"expires_at"`
	Propagate  bool      `json:"propagate"`
	Expired    bool      `json:"expired"`
}

// listDocuments handles GET /api/v1/documents
func (s *Server) listDocuments(c *gin.Context) {
	var req models.ListDocumentsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters", "details": err.Error()})
		return
	}
	req.Limit = clampLimit(req.Limit)

	docs, err := s.repo.Document.List(c.Request.Context(), &req)
	if err != nil {
		logging.Error("Failed to list documents: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list documents"})
		return
	}

	total, err := s.repo.Document.Count(c.Request.Context(), &req)
	if err != nil {
		logging.Error("Failed to count documents: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count documents"})
		return
	}

	summaries := lo.Map(docs, func(doc *models.Document, _ int) documentSummary {
		return documentSummary{
			ID:          doc.ID(),
			Owner:       doc.Owner,
			Filename:    doc.Filename,
			Level:       doc.Level.String(),
			CheckedInAt: doc.CheckedInAt,
		}
	})

	c.JSON(http.StatusOK, gin.H{
		"documents": summaries,
		"total":     total,
		"limit":     req.Limit,
		"offset":    req.Offset,
	})
}

// listGrants handles GET /api/v1/grants
func (s *Server) listGrants(c *gin.Context) {
	var req models.ListGrantsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters", "details": err.Error()})
		return
	}
	req.Limit = clampLimit(req.Limit)

	grants, err := s.repo.Grant.List(c.Request.Context(), &req)
	if err != nil {
		logging.Error("Failed to list grants: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list grants"})
		return
	}

	now := time.Now()
	views := lo.Map(grants, func(grant *models.Grant, _ int) grantView {
		return grantView{
			ID:         grant.ID,
			DocumentID: grant.DocumentID,
			Grantor:    grant.Grantor,
			Grantee:    grant.Grantee,
			ExpiresAt:  grant.ExpiresAt,
			Propagate:  grant.Propagate,
			Expired:    grant.Expired(now),
		}
	})

	c.JSON(http.StatusOK, gin.H{
		"grants": views,
		"limit":  req.Limit,
		"offset": req.Offset,
	})
}

// revokeGrant handles DELETE /api/v1/grants/:id. The document_id query
// parameter is required so the decision cache for that document can be
// invalidated along with the grant.
func (s *Server) revokeGrant(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid grant ID format"})
		return
	}

	documentID := c.Query("document_id")
	if documentID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "document_id query parameter is required"})
		return
	}

	if err := s.delegation.RevokeGrant(c.Request.Context(), documentID, id); err != nil {
		if errors.Is(err, models.ErrGrantNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Grant not found"})
			return
		}
		logging.Error("Failed to revoke grant %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to revoke grant"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Grant revoked", "id": id})
}

// revokeDocumentGrants handles DELETE /api/v1/grants?document_id=...
// and removes every grant attached to the document.
func (s *Server) revokeDocumentGrants(c *gin.Context) {
	documentID := c.Query("document_id")
	if documentID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "document_id query parameter is required"})
		return
	}

	if err := s.delegation.RevokeDocument(c.Request.Context(), documentID); err != nil {
		logging.Error("Failed to revoke grants for %s: %v", documentID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to revoke grants"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "All grants revoked", "document_id": documentID})
}

// listAuditRecords handles GET /api/v1/audit-records
func (s *Server) listAuditRecords(c *gin.Context) {
	var req models.ListAuditRecordsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters", "details": err.Error()})
		return
	}
	req.Limit = clampLimit(req.Limit)

	records, err := s.repo.Audit.List(c.Request.Context(), &req)
	if err != nil {
		logging.Error("Failed to list audit records: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list audit records"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"audit_records": records,
		"limit":         req.Limit,
		"offset":        req.Offset,
	})
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultPageSize
	}
	if limit > maxPageSize {
		return maxPageSize
	}
	return limit
}
