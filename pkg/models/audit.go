package models

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the store or delegation operation being audited.
type AuditAction string

const (
	AuditActionLogin    AuditAction = "login"
	AuditActionCheckin  AuditAction = "checkin"
	AuditActionCheckout AuditAction = "checkout"
	AuditActionDelete   AuditAction = "delete"
	AuditActionDelegate AuditAction = "delegate"
	AuditActionRevoke   AuditAction = "revoke"
)

// AuditRecord is one audit log entry. Outcome mirrors the boolean result the
// client saw; Detail carries the internal reason that the protocol boundary
// deliberately withholds from the wire.
type AuditRecord struct {
	ID         uuid.UUID   `json:"id" db:"id"`
	Action     AuditAction `json:"action" db:"action"`
	Actor      string      `json:"actor" db:"actor"`
	DocumentID string      `json:"document_id,omitempty" db:"document_id"`
	Outcome    bool        `json:"outcome" db:"outcome"`
	Detail     string      `json:"detail,omitempty" db:"detail"`
	RemoteAddr string      `json:"remote_addr,omitempty" db:"remote_addr"`
	Timestamp  time.Time   `json:"timestamp" db:"timestamp"`
}

// NewAuditRecord builds a record with a fresh ID and the current time.
func NewAuditRecord(action AuditAction, actor, documentID string, outcome bool, detail string) *AuditRecord {
	return &AuditRecord{
		ID:         uuid.New(),
		Action:     action,
		Actor:      actor,
		DocumentID: documentID,
		Outcome:    outcome,
		Detail:     detail,
		Timestamp:  time.Now(),
	}
}

// ListAuditRecordsRequest represents query parameters for listing audit
// records through the admin API.
type ListAuditRecordsRequest struct {
	Action     *AuditAction `form:"action"`
	Actor      string       `form:"actor"`
	DocumentID string       `form:"document_id"`
	Limit      int          `form:"limit"`
	Offset     int          `form:"offset"`
}
