// Package crypto implements the database-key cryptography of the search index.
//
// Two primitives:
//   - AES-256-GCM for posting payloads and element metadata (randomized, a
//     fresh nonce per value).
//   - HMAC-SHA256 for index keys (deterministic, so the same token or
//     instance ID always maps to the same stored key and stays queryable).
//
// Nothing derived from mail content leaves memory unencrypted.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

var (
	ErrInvalidKey        = errors.New("encryption key must be 32 bytes")
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
	ErrDecryptionFailed  = errors.New("decryption failed")
)

// Encryptor handles the database key. It encrypts index payloads with
// AES-256-GCM and derives deterministic index keys with HMAC-SHA256.
type Encryptor struct {
	key []byte
	gcm cipher.AEAD
}

// NewEncryptor creates a new encryptor with the given database key.
// Keys that are not exactly 32 bytes are stretched with SHA-256.
func NewEncryptor(key []byte) (*Encryptor, error) {
	if len(key) == 0 {
		return nil, ErrInvalidKey
	}
	if len(key) != 32 {
		hash := sha256.Sum256(key)
		key = hash[:]
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Encryptor{
		key: key,
		gcm: gcm,
	}, nil
}

// Encrypt encrypts a payload with a random nonce. The nonce is prepended to
// the returned ciphertext.
func (e *Encryptor) Encrypt(plaintext []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, nil
	}

	nonce := make([]byte, e.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return e.gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt decrypts a payload produced by Encrypt.
func (e *Encryptor) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 {
		return nil, nil
	}

	nonceSize := e.gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, ErrInvalidCiphertext
	}

	nonce, encrypted := ciphertext[:nonceSize], ciphertext[nonceSize:]

	plaintext, err := e.gcm.Open(nil, nonce, encrypted, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}

	return plaintext, nil
}

// EncryptString encrypts a string and returns base64-encoded ciphertext.
func (e *Encryptor) EncryptString(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	ct, err := e.Encrypt([]byte(plaintext))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(ct), nil
}

// DecryptString decrypts base64-encoded ciphertext produced by EncryptString.
func (e *Encryptor) DecryptString(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("failed to decode ciphertext: %w", err)
	}
	pt, err := e.Decrypt(data)
	if err != nil {
		return "", err
	}
	return string(pt), nil
}

// IndexKeyB64 derives the deterministic storage key for an index token or
// instance ID: base64(HMAC-SHA256(dbKey, value)). Equal inputs map to equal
// keys, which is what makes encrypted postings and element rows addressable.
func (e *Encryptor) IndexKeyB64(value string) string {
	mac := hmac.New(sha256.New, e.key)
	mac.Write([]byte(value))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// IsEncrypted checks whether raw bytes could be an Encrypt output
// (nonce 12 bytes + tag 16 bytes minimum).
func IsEncrypted(data []byte) bool {
	return len(data) >= 28
}
