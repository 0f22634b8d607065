package crypto

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"
)

// WrapKey encrypts a symmetric document key using RSA-OAEP with SHA-256
// under the given public key.
func WrapKey(publicKey crypto.PublicKey, key []byte) ([]byte, error) {
	rsaPubKey, ok := publicKey.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is not RSA type")
	}

	wrapped, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, rsaPubKey, key, nil)
	if err != nil {
		return nil, fmt.Errorf("RSA-OAEP encryption failed: %w", err)
	}

	return wrapped, nil
}

// UnwrapKey decrypts a wrapped symmetric document key using RSA-OAEP with
// SHA-256 under the given private key.
func UnwrapKey(privateKey crypto.PrivateKey, wrapped []byte) ([]byte, error) {
	rsaPrivKey, ok := privateKey.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is not RSA type")
	}

	key, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, rsaPrivKey, wrapped, nil)
	if err != nil {
		return nil, fmt.Errorf("RSA-OAEP decryption failed: %w", err)
	}

	return key, nil
}

// Sign signs data using RSA PKCS#1 v1.5 over a SHA-256 digest.
func Sign(privateKey crypto.PrivateKey, data []byte) ([]byte, error) {
	rsaPrivKey, ok := privateKey.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is not RSA type")
	}

	hash := sha256.Sum256(data)
	signature, err := rsa.SignPKCS1v15(rand.Reader, rsaPrivKey, crypto.SHA256, hash[:])
	if err != nil {
		return nil, fmt.Errorf("RSA signing failed: %w", err)
	}

	return signature, nil
}

// Verify verifies an RSA PKCS#1 v1.5 signature over a SHA-256 digest.
func Verify(publicKey crypto.PublicKey, data []byte, signature []byte) error {
	rsaPubKey, ok := publicKey.(*rsa.PublicKey)
	if !ok {
		return fmt.Errorf("public key is not RSA type")
	}

	hash := sha256.Sum256(data)
	if err := rsa.VerifyPKCS1v15(rsaPubKey, crypto.SHA256, hash[:], signature); err != nil {
		return fmt.Errorf("RSA signature verification failed: %w", err)
	}

	return nil
}

// GenerateRSAKeyPair generates a new RSA key pair with the specified bit size
func GenerateRSAKeyPair(bits int) (*rsa.PrivateKey, error) {
	privateKey, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA key pair: %w", err)
	}

	return privateKey, nil
}
