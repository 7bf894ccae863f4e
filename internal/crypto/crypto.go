// Package crypto provides field-level encryption for sensitive applicant data
// and the deterministic document hash used as the duplicate-check key.
//
// Encryption is randomized (fresh nonce per call), so two encryptions of the
// same plaintext produce different ciphertexts. Uniqueness and row locking
// therefore key off DocumentHasher output, never off ciphertext equality.
package crypto

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	dErrors "loanflow/pkg/domain-errors"
)

// Encryptor encrypts and decrypts sensitive fields at rest.
type Encryptor interface {
	Encrypt(plaintext string) ([]byte, error)
	Decrypt(ciphertext []byte) (string, error)
}

// FieldEncryptor is an XChaCha20-Poly1305 Encryptor. The key is derived from
// configured key material with SHA-256 so operators can supply passphrases of
// any length.
type FieldEncryptor struct {
	key []byte
}

func NewFieldEncryptor(keyMaterial string) (*FieldEncryptor, error) {
	if keyMaterial == "" {
		return nil, fmt.Errorf("field encryption key is required")
	}
	sum := sha256.Sum256([]byte(keyMaterial))
	return &FieldEncryptor{key: sum[:]}, nil
}

// Encrypt seals plaintext with a random nonce prepended to the ciphertext.
// An empty string round-trips to empty bytes so optional fields stay NULL-like.
func (e *FieldEncryptor) Encrypt(plaintext string) ([]byte, error) {
	if plaintext == "" {
		return []byte{}, nil
	}

	aead, err := chacha20poly1305.NewX(e.key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	return aead.Seal(nonce, nonce, []byte(plaintext), nil), nil
}

// Decrypt opens a ciphertext produced by Encrypt.
func (e *FieldEncryptor) Decrypt(ciphertext []byte) (string, error) {
	if len(ciphertext) == 0 {
		return "", nil
	}

	aead, err := chacha20poly1305.NewX(e.key)
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}

	if len(ciphertext) < aead.NonceSize() {
		return "", dErrors.New(dErrors.CodeInternal, "malformed ciphertext")
	}

	nonce, sealed := ciphertext[:aead.NonceSize()], ciphertext[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "decrypt field")
	}
	return string(plaintext), nil
}

// DocumentHasher computes the deterministic digest used for the duplicate
// active application check. A keyed HMAC keeps raw document numbers out of
// index pages while equal plaintexts always map to the same digest.
type DocumentHasher struct {
	key []byte
}

func NewDocumentHasher(keyMaterial string) (*DocumentHasher, error) {
	if keyMaterial == "" {
		return nil, fmt.Errorf("document hash key is required")
	}
	return &DocumentHasher{key: []byte(keyMaterial)}, nil
}

// Hash returns a lowercase hex HMAC-SHA256 of the document number.
func (h *DocumentHasher) Hash(document string) string {
	mac := hmac.New(sha256.New, h.key)
	mac.Write([]byte(document))
	return hex.EncodeToString(mac.Sum(nil))
}

// MaskDocument hides the middle of a document number for error messages and
// logs. Short values are fully masked.
func MaskDocument(document string) string {
	if len(document) <= 4 {
		return "****"
	}
	return document[:2] + "****" + document[len(document)-2:]
}
