package identity

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"time"

	docvaultcrypto "docvault/pkg/crypto"
)

const defaultKeyBits = 2048

// GenerateRoot creates a self-signed root authority and writes root.key and
// root.crt into the store. Used by the keygen tool and by tests; a
// production deployment provisions the store out of band.
func (s *CredentialStore) GenerateRoot(validity time.Duration) error {
	if err := os.MkdirAll(s.path, 0o700); err != nil {
		return fmt.Errorf("failed to create credential store: %w", err)
	}

	key, err := docvaultcrypto.GenerateRSAKeyPair(defaultKeyBits)
	if err != nil {
		return err
	}

	serial, err := randomSerial()
	if err != nil {
		return err
	}

	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: "DocVault Root", Organization: []string{"DocVault"}},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(validity),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return fmt.Errorf("failed to self-sign root certificate: %w", err)
	}

	return s.writeCredentials(rootName, key, der)
}

// IssuePrincipal generates a key pair for a principal and issues it a
// certificate signed by the store's root.
func (s *CredentialStore) IssuePrincipal(principal string, validity time.Duration) error {
	rootKeys, err := s.LoadKeyPair(rootName)
	if err != nil {
		return err
	}
	rootCert, err := s.RootCertificate()
	if err != nil {
		return err
	}

	key, err := docvaultcrypto.GenerateRSAKeyPair(defaultKeyBits)
	if err != nil {
		return err
	}

	serial, err := randomSerial()
	if err != nil {
		return err
	}

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: principal, Organization: []string{"DocVault"}},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(validity),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
	}

	der, err := x509.CreateCertificate(rand.Reader, template, rootCert, &key.PublicKey, rootKeys.RSA())
	if err != nil {
		return fmt.Errorf("failed to issue certificate for %q: %w", principal, err)
	}

	return s.writeCredentials(principal, key, der)
}

func (s *CredentialStore) writeCredentials(principal string, key *rsa.PrivateKey, certDER []byte) error {
	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return fmt.Errorf("failed to marshal private key: %w", err)
	}

	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER})
	if err := os.WriteFile(s.keyFile(principal), keyPEM, 0o600); err != nil {
		return fmt.Errorf("failed to write key file: %w", err)
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})
	if err := os.WriteFile(s.certFile(principal), certPEM, 0o644); err != nil {
		return fmt.Errorf("failed to write certificate file: %w", err)
	}

	return nil
}

func randomSerial() (*big.Int, error) {
	limit := new(big.Int).Lsh(big.NewInt(1), 128)
	serial, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to generate certificate serial: %w", err)
	}
	return serial, nil
}
