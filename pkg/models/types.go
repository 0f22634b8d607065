package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SecurityLevel is a flag set controlling the at-rest protection of a
// document. Confidentiality and integrity are independent bits; LevelAll is
// exactly the union of the two, not a distinct mode.
type SecurityLevel uint8

const (
	LevelNone            SecurityLevel = 0
	LevelConfidentiality SecurityLevel = 1 << 0
	LevelIntegrity       SecurityLevel = 1 << 1
	LevelAll             SecurityLevel = LevelConfidentiality | LevelIntegrity
)

// Confidential reports whether document contents are encrypted at rest.
func (l SecurityLevel) Confidential() bool {
	return l&LevelConfidentiality != 0
}

// Signed reports whether document contents carry a detached signature.
func (l SecurityLevel) Signed() bool {
	return l&LevelIntegrity != 0
}

// Valid reports whether the level contains only known flags.
func (l SecurityLevel) Valid() bool {
	return l <= LevelAll
}

func (l SecurityLevel) String() string {
	switch l {
	case LevelNone:
		return "none"
	case LevelConfidentiality:
		return "confidentiality"
	case LevelIntegrity:
		return "integrity"
	case LevelAll:
		return "all"
	default:
		return fmt.Sprintf("invalid(%d)", uint8(l))
	}
}

// ParseSecurityLevel converts a config/CLI string into a SecurityLevel.
func ParseSecurityLevel(s string) (SecurityLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "":
		return LevelNone, nil
	case "confidentiality", "confidential":
		return LevelConfidentiality, nil
	case "integrity":
		return LevelIntegrity, nil
	case "all", "both":
		return LevelAll, nil
	default:
		return LevelNone, fmt.Errorf("unknown security level %q", s)
	}
}

// DocumentID builds the canonical identifier for a document owned by a
// principal. IDs are unique within the store; re-check-in under the same ID
// replaces the prior document.
func DocumentID(owner, filename string) string {
	return owner + "/" + filename
}

// SplitDocumentID reverses DocumentID. The owner handle cannot contain a
// slash; everything after the first slash is the filename.
func SplitDocumentID(id string) (owner, filename string, err error) {
	owner, filename, ok := strings.Cut(id, "/")
	if !ok || owner == "" || filename == "" {
		return "", "", fmt.Errorf("malformed document id %q", id)
	}
	return owner, filename, nil
}

// ArtifactRef locates the sealed artifacts of a document below the artifact
// root. WrappedKey and Signature are empty when the security level does not
// produce them.
type ArtifactRef struct {
	Body       string `json:"body" db:"body_path"`
	WrappedKey string `json:"wrapped_key,omitempty" db:"key_path"`
	Signature  string `json:"signature,omitempty" db:"sig_path"`
}

// Document is the stored metadata for one checked-in document. The sealed
// bytes themselves live in the artifact store; Document only references them.
type Document struct {
	Owner       string        `json:"owner" db:"owner"`
	Filename    string        `json:"filename" db:"filename"`
	Level       SecurityLevel `json:"level" db:"level"`
	Artifacts   ArtifactRef   `json:"artifacts"`
	CheckedInAt time.Time     `json:"checked_in_at" db:"checked_in_at"`
}

// ID returns the canonical document identifier.
func (d *Document) ID() string {
	return DocumentID(d.Owner, d.Filename)
}

// Grant is a delegation record authorizing Grantee to check out DocumentID
// until ExpiresAt. Grants are keyed by (DocumentID, Grantee); a newer grant
// for the same pair replaces the older one. The grant references the document
// by ID only, so deleting the document leaves nothing dangling.
type Grant struct {
	ID         uuid.UUID `json:"id" db:"id"`
	DocumentID string    `json:"document_id" db:"document_id"`
	Grantor    string    `json:"grantor" db:"grantor"`
	Grantee    string    `json:"grantee" db:"grantee"`
	ExpiresAt  time.Time `json:"expires_at" db:"expires_at"`
	Propagate  bool      `json:"propagate" db:"propagate"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// Expired reports whether the grant is no longer live at the given instant.
// A grant is live through its expiry instant inclusive.
func (g *Grant) Expired(now time.Time) bool {
	return now.After(g.ExpiresAt)
}

// Error is the structured error type used across the document store. Code is
// one of the ErrCode constants; Err carries the underlying cause when one
// exists.
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Code + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Common error codes. Authorization, integrity, and not-found conditions are
// collapsed into success=false at the protocol boundary; the codes exist for
// logs and audit records, never for wire responses.
const (
	ErrCodeAuthFailed       = "AUTH_FAILED"
	ErrCodeAccessDenied     = "ACCESS_DENIED"
	ErrCodeIntegrityFailed  = "INTEGRITY_FAILED"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeEncryptionFailed = "ENCRYPTION_FAILED"
	ErrCodeDecryptionFailed = "DECRYPTION_FAILED"
	ErrCodeTransportFailed  = "TRANSPORT_FAILED"
)
