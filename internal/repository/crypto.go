// Package repository holds the out-of-scope collaborators spec.md §6
// names (CredentialsRepo, ServerRepo, ServerConfigRepo, StatusWriter,
// LoadHistoryWriter) plus the supporting persistence/secret-handling code
// those implementations share.
package repository

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// CredentialCipher decrypts RCON passwords stored at rest, per spec.md
// §6's note that CredentialsRepo reads and decrypts a stored secret on
// every resolve rather than caching it. There is no precedent for this
// exact primitive in the teacher repo — it hashes passwords with
// golang.org/x/crypto/bcrypt but never stores a reversible secret — so
// this is grounded only in being the same x/crypto module family already
// used elsewhere in the pack for credential handling, applied to the
// AEAD this spec's at-rest encryption needs (a password must be
// recovered in cleartext to authenticate over RCON, unlike a login
// password that only ever needs comparison).
type CredentialCipher struct {
	key []byte
}

// NewCredentialCipher builds a cipher from a base64-encoded 32-byte key,
// typically sourced from an env var never persisted alongside the
// database itself.
func NewCredentialCipher(base64Key string) (*CredentialCipher, error) {
	key, err := base64.StdEncoding.DecodeString(base64Key)
	if err != nil {
		return nil, fmt.Errorf("credential cipher: decode key: %w", err)
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("credential cipher: key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}

	return &CredentialCipher{key: key}, nil
}

// Encrypt seals plaintext with a fresh random nonce, returning
// nonce||ciphertext as the storage-ready blob.
func (c *CredentialCipher) Encrypt(plaintext string) ([]byte, error) {
	aead, err := chacha20poly1305.New(c.key)
	if err != nil {
		return nil, fmt.Errorf("credential cipher: init aead: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("credential cipher: generate nonce: %w", err)
	}

	return aead.Seal(nonce, nonce, []byte(plaintext), nil), nil
}

// Decrypt recovers the cleartext password from a nonce||ciphertext blob
// produced by Encrypt.
func (c *CredentialCipher) Decrypt(blob []byte) (string, error) {
	aead, err := chacha20poly1305.New(c.key)
	if err != nil {
		return "", fmt.Errorf("credential cipher: init aead: %w", err)
	}

	if len(blob) < aead.NonceSize() {
		return "", fmt.Errorf("credential cipher: ciphertext shorter than nonce")
	}

	nonce, ciphertext := blob[:aead.NonceSize()], blob[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("credential cipher: decrypt: %w", err)
	}

	return string(plaintext), nil
}
