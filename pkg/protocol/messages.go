package protocol

import "docvault/pkg/models"

// Message is implemented by every wire payload. The type tag travels in the
// frame header, never inside the CBOR body.
type Message interface {
	Type() MessageType
}

// LoginRequest opens a session. Certificate is the client's DER-encoded
// X.509 certificate; Principal must match the certificate's common name.
type LoginRequest struct {
	Principal   string `cbor:"principal"`
	Certificate []byte `cbor:"certificate"`
}

func (*LoginRequest) Type() MessageType { return TypeLogin }

// LoginResponse reports authentication outcome. On success the server's
// DER-encoded certificate is returned so the client can pin it.
type LoginResponse struct {
	Success           bool   `cbor:"success"`
	ServerCertificate []byte `cbor:"server_certificate,omitempty"`
}

func (*LoginResponse) Type() MessageType { return TypeLoginResponse }

// CheckinRequest stores a document under the session principal's namespace.
type CheckinRequest struct {
	Filename string               `cbor:"filename"`
	Level    models.SecurityLevel `cbor:"level"`
	Content  []byte               `cbor:"content"`
}

func (*CheckinRequest) Type() MessageType { return TypeCheckin }

type CheckinResponse struct {
	Success bool `cbor:"success"`
}

func (*CheckinResponse) Type() MessageType { return TypeCheckinResponse }

// CheckoutRequest retrieves a document owned by Owner. The server decides
// access from the session principal, ownership, and live grants.
type CheckoutRequest struct {
	Owner    string `cbor:"owner"`
	Filename string `cbor:"filename"`
}

func (*CheckoutRequest) Type() MessageType { return TypeCheckout }

// CheckoutResponse returns the document on success, along with the security
// level it was checked in under.
type CheckoutResponse struct {
	Success bool                 `cbor:"success"`
	Content []byte               `cbor:"content,omitempty"`
	Level   models.SecurityLevel `cbor:"level,omitempty"`
}

func (*CheckoutResponse) Type() MessageType { return TypeCheckoutResponse }

// DelegationRequest grants Grantee time-limited access to a document. This
// message has no response; the grantor learns nothing about the outcome.
type DelegationRequest struct {
	Owner           string `cbor:"owner"`
	Filename        string `cbor:"filename"`
	Grantee         string `cbor:"grantee"`
	DurationSeconds int64  `cbor:"duration_seconds"`
	Propagate       bool   `cbor:"propagate"`
}

func (*DelegationRequest) Type() MessageType { return TypeDelegate }

// DeleteRequest removes a document. Delegated requests the delete run under
// a grant rather than ownership; the server always refuses it.
type DeleteRequest struct {
	Owner     string `cbor:"owner"`
	Filename  string `cbor:"filename"`
	Delegated bool   `cbor:"delegated,omitempty"`
}

func (*DeleteRequest) Type() MessageType { return TypeDelete }

type DeleteResponse struct {
	Success bool `cbor:"success"`
}

func (*DeleteResponse) Type() MessageType { return TypeDeleteResponse }

// CloseRequest ends the session. It carries no fields and gets no response.
type CloseRequest struct{}

func (*CloseRequest) Type() MessageType { return TypeClose }

func newMessage(msgType MessageType) Message {
	switch msgType {
	case TypeLogin:
		return &LoginRequest{}
	case TypeLoginResponse:
		return &LoginResponse{}
	case TypeCheckin:
		return &CheckinRequest{}
	case TypeCheckinResponse:
		return &CheckinResponse{}
	case TypeCheckout:
		return &CheckoutRequest{}
	case TypeCheckoutResponse:
		return &CheckoutResponse{}
	case TypeDelegate:
		return &DelegationRequest{}
	case TypeDelete:
		return &DeleteRequest{}
	case TypeDeleteResponse:
		return &DeleteResponse{}
	case TypeClose:
		return &CloseRequest{}
	default:
		return nil
	}
}
