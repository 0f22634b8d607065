package envelope

import (
	"bytes"
	"crypto"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"docvault/pkg/models"

	docvaultcrypto "docvault/pkg/crypto"

	"golang.org/x/crypto/hkdf"
)

const documentKeySize = 16 // AES-128

// fixedIV is the initialization vector used for every CBC encryption. A
// constant IV under per-document random keys is part of the inherited
// storage format: existing sealed artifacts decrypt against it, so changing
// it is a storage-format break. Integrators should treat this as a known
// weakness of the format, not a tunable.
var fixedIV = deriveFixedIV()

func deriveFixedIV() []byte {
	r := hkdf.New(sha256.New, []byte("docvault-envelope-v1"), nil, []byte("cbc-iv"))
	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(r, iv); err != nil {
		panic(fmt.Sprintf("envelope: fixed IV derivation failed: %v", err))
	}
	return iv
}

// SealedBlob is the at-rest representation of a document's content.
// WrappedKey is set only when the level includes confidentiality; Signature
// only when it includes integrity.
type SealedBlob struct {
	Body       []byte
	WrappedKey []byte
	Signature  []byte
}

// KeyProvider supplies the server key pair used to wrap document keys and
// sign document contents.
type KeyProvider interface {
	Public() crypto.PublicKey
	Private() crypto.PrivateKey
}

// Engine seals plaintext into at-rest form and opens it again. It holds no
// state beyond the server key material; all methods are safe for concurrent
// use.
type Engine struct {
	keys KeyProvider
}

// NewEngine creates an envelope engine over the given server key material.
func NewEngine(keys KeyProvider) *Engine {
	return &Engine{keys: keys}
}

// Seal applies the requested security level to plaintext. For levels with
// integrity the signature is always computed over the plaintext before
// encryption; ciphertext is never signed.
func (e *Engine) Seal(plaintext []byte, level models.SecurityLevel) (*SealedBlob, error) {
	if !level.Valid() {
		return nil, &models.Error{
			Code:    models.ErrCodeEncryptionFailed,
			Message: fmt.Sprintf("invalid security level %d", level),
		}
	}

	blob := &SealedBlob{}

	if level.Signed() {
		signature, err := docvaultcrypto.Sign(e.keys.Private(), plaintext)
		if err != nil {
			return nil, &models.Error{
				Code:    models.ErrCodeEncryptionFailed,
				Message: "failed to sign document",
				Err:     err,
			}
		}
		blob.Signature = signature
	}

	if level.Confidential() {
		documentKey := make([]byte, documentKeySize)
		if _, err := rand.Read(documentKey); err != nil {
			return nil, &models.Error{
				Code:    models.ErrCodeEncryptionFailed,
				Message: "failed to generate document key",
				Err:     err,
			}
		}

		ciphertext, err := encryptCBC(documentKey, plaintext)
		if err != nil {
			return nil, err
		}

		wrapped, err := docvaultcrypto.WrapKey(e.keys.Public(), documentKey)
		if err != nil {
			return nil, &models.Error{
				Code:    models.ErrCodeEncryptionFailed,
				Message: "failed to wrap document key",
				Err:     err,
			}
		}

		blob.Body = ciphertext
		blob.WrappedKey = wrapped
		return blob, nil
	}

	blob.Body = append([]byte(nil), plaintext...)
	return blob, nil
}

// Open reverses Seal. Integrity verification runs against the decrypted (or
// already-plaintext) body; a signature mismatch yields an INTEGRITY_FAILED
// error and no plaintext is returned.
func (e *Engine) Open(blob *SealedBlob, level models.SecurityLevel) ([]byte, error) {
	if blob == nil {
		return nil, &models.Error{
			Code:    models.ErrCodeDecryptionFailed,
			Message: "nil sealed blob",
		}
	}

	body := blob.Body

	if level.Confidential() {
		if len(blob.WrappedKey) == 0 {
			return nil, &models.Error{
				Code:    models.ErrCodeDecryptionFailed,
				Message: "missing wrapped key artifact",
			}
		}

		documentKey, err := docvaultcrypto.UnwrapKey(e.keys.Private(), blob.WrappedKey)
		if err != nil {
			return nil, &models.Error{
				Code:    models.ErrCodeDecryptionFailed,
				Message: "failed to unwrap document key",
				Err:     err,
			}
		}

		body, err = decryptCBC(documentKey, body)
		if err != nil {
			return nil, err
		}
	}

	if level.Signed() {
		if len(blob.Signature) == 0 {
			return nil, &models.Error{
				Code:    models.ErrCodeIntegrityFailed,
				Message: "missing signature artifact",
			}
		}
		if err := docvaultcrypto.Verify(e.keys.Public(), body, blob.Signature); err != nil {
			return nil, &models.Error{
				Code:    models.ErrCodeIntegrityFailed,
				Message: "document signature verification failed",
				Err:     err,
			}
		}
	}

	return body, nil
}

// IsIntegrityFailure reports whether err is a signature verification
// failure. Callers must treat these as "document unavailable" and never
// surface partially verified bytes.
func IsIntegrityFailure(err error) bool {
	var modelErr *models.Error
	if errors.As(err, &modelErr) {
		return modelErr.Code == models.ErrCodeIntegrityFailed
	}
	return false
}

func encryptCBC(key, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, &models.Error{
			Code:    models.ErrCodeEncryptionFailed,
			Message: "failed to create AES cipher",
			Err:     err,
		}
	}

	padded := padPKCS7(plaintext, aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, fixedIV).CryptBlocks(ciphertext, padded)
	return ciphertext, nil
}

func decryptCBC(key, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, &models.Error{
			Code:    models.ErrCodeDecryptionFailed,
			Message: "failed to create AES cipher",
			Err:     err,
		}
	}

	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, &models.Error{
			Code:    models.ErrCodeDecryptionFailed,
			Message: "ciphertext is not a whole number of blocks",
		}
	}

	padded := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, fixedIV).CryptBlocks(padded, ciphertext)

	plaintext, err := unpadPKCS7(padded, aes.BlockSize)
	if err != nil {
		return nil, &models.Error{
			Code:    models.ErrCodeDecryptionFailed,
			Message: "invalid padding",
			Err:     err,
		}
	}
	return plaintext, nil
}

func padPKCS7(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	return append(append([]byte(nil), data...), bytes.Repeat([]byte{byte(padLen)}, padLen)...)
}

func unpadPKCS7(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, fmt.Errorf("padded data length %d is invalid", len(data))
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > blockSize {
		return nil, fmt.Errorf("padding length %d out of range", padLen)
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, fmt.Errorf("inconsistent padding bytes")
		}
	}
	return data[:len(data)-padLen], nil
}
