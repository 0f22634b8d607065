// Package identity implements the identity and trust provider: loading
// principal key pairs and certificates from a PEM credential store and
// verifying that presented certificates chain to the single trusted root.
package identity

import (
	"crypto"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"

	"docvault/pkg/models"
)

const rootName = "root"

// KeyPair holds a principal's RSA key pair. It satisfies the envelope
// engine's KeyProvider interface.
type KeyPair struct {
	private *rsa.PrivateKey
}

// Public returns the public half of the key pair.
func (k *KeyPair) Public() crypto.PublicKey {
	return &k.private.PublicKey
}

// Private returns the private half of the key pair.
func (k *KeyPair) Private() crypto.PrivateKey {
	return k.private
}

// RSA returns the underlying RSA private key.
func (k *KeyPair) RSA() *rsa.PrivateKey {
	return k.private
}

// NewKeyPair wraps an existing RSA private key.
func NewKeyPair(private *rsa.PrivateKey) *KeyPair {
	return &KeyPair{private: private}
}

// CredentialStore is a directory of PEM credentials. Each principal has
// <name>.key (PKCS#8 private key) and <name>.crt (X.509 certificate); the
// trusted root certificate lives in root.crt.
type CredentialStore struct {
	path string
}

// NewCredentialStore opens a credential store rooted at path. The directory
// does not have to exist yet; loads will fail until it is provisioned.
func NewCredentialStore(path string) *CredentialStore {
	return &CredentialStore{path: path}
}

// Path returns the store's root directory.
func (s *CredentialStore) Path() string {
	return s.path
}

func (s *CredentialStore) keyFile(principal string) string {
	return filepath.Join(s.path, principal+".key")
}

func (s *CredentialStore) certFile(principal string) string {
	return filepath.Join(s.path, principal+".crt")
}

// LoadKeyPair loads a principal's private key from the store. Returns an
// AUTH_FAILED error when the key is missing or unparseable.
func (s *CredentialStore) LoadKeyPair(principal string) (*KeyPair, error) {
	raw, err := os.ReadFile(s.keyFile(principal))
	if err != nil {
		return nil, &models.Error{
			Code:    models.ErrCodeAuthFailed,
			Message: fmt.Sprintf("no private key for principal %q", principal),
			Err:     err,
		}
	}

	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, &models.Error{
			Code:    models.ErrCodeAuthFailed,
			Message: fmt.Sprintf("malformed PEM key for principal %q", principal),
		}
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, &models.Error{
			Code:    models.ErrCodeAuthFailed,
			Message: fmt.Sprintf("failed to parse private key for principal %q", principal),
			Err:     err,
		}
	}

	rsaKey, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, &models.Error{
			Code:    models.ErrCodeAuthFailed,
			Message: fmt.Sprintf("principal %q key is not RSA", principal),
		}
	}

	return &KeyPair{private: rsaKey}, nil
}

// LoadCertificate loads a principal's certificate from the store.
func (s *CredentialStore) LoadCertificate(principal string) (*x509.Certificate, error) {
	raw, err := os.ReadFile(s.certFile(principal))
	if err != nil {
		return nil, &models.Error{
			Code:    models.ErrCodeAuthFailed,
			Message: fmt.Sprintf("no certificate for principal %q", principal),
			Err:     err,
		}
	}

	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, &models.Error{
			Code:    models.ErrCodeAuthFailed,
			Message: fmt.Sprintf("malformed PEM certificate for principal %q", principal),
		}
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, &models.Error{
			Code:    models.ErrCodeAuthFailed,
			Message: fmt.Sprintf("failed to parse certificate for principal %q", principal),
			Err:     err,
		}
	}
	return cert, nil
}

// RootCertificate loads the trusted root certificate.
func (s *CredentialStore) RootCertificate() (*x509.Certificate, error) {
	return s.LoadCertificate(rootName)
}

// VerifyAgainstRoot checks that the presented certificate was signed by the
// store's trusted root. Any failure is collapsed into a single AUTH_FAILED
// error; the reason is never surfaced to the network.
func (s *CredentialStore) VerifyAgainstRoot(cert *x509.Certificate) error {
	if cert == nil {
		return &models.Error{
			Code:    models.ErrCodeAuthFailed,
			Message: "no certificate presented",
		}
	}

	root, err := s.RootCertificate()
	if err != nil {
		return err
	}

	if err := cert.CheckSignatureFrom(root); err != nil {
		return &models.Error{
			Code:    models.ErrCodeAuthFailed,
			Message: "certificate does not chain to trusted root",
			Err:     err,
		}
	}
	return nil
}

// ParseCertificateDER reconstructs a certificate from its DER encoding as
// received on the wire.
func ParseCertificateDER(der []byte) (*x509.Certificate, error) {
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, &models.Error{
			Code:    models.ErrCodeAuthFailed,
			Message: "failed to parse presented certificate",
			Err:     err,
		}
	}
	return cert, nil
}
