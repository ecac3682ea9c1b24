package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

// ============================================================================
// PASSPHRASE-DERIVED ENCRYPTION FOR NOTE CONTENT AND CREDENTIALS
// ============================================================================

// ErrInvalidPassphrase is returned when a ciphertext cannot be
// authenticated - wrong passphrase or tampered data look identical.
var ErrInvalidPassphrase = errors.New("invalid passphrase or corrupted content")

const (
	saltSize   = 16
	nonceSize  = 12
	keySize    = 32
	iterations = 210_000
)

// Cipher encrypts and decrypts opaque strings under a user passphrase.
// Every Encrypt call draws a fresh random salt, so identical plaintexts
// never share a key. Decrypt re-derives the key from the stored salt.
type Cipher struct {
	passphrase []byte
}

// NewCipher binds a cipher to a passphrase. The passphrase itself is
// never persisted; only per-record salts are.
func NewCipher(passphrase string) *Cipher {
	return &Cipher{passphrase: []byte(passphrase)}
}

// Encrypt seals plaintext and returns (ciphertext, salt), both base64.
func (c *Cipher) Encrypt(plaintext string) (string, string, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", "", fmt.Errorf("failed to generate salt: %w", err)
	}

	gcm, err := c.aead(salt)
	if err != nil {
		return "", "", err
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed),
		base64.StdEncoding.EncodeToString(salt), nil
}

// EncryptWithSalt seals plaintext under an existing base64 salt. Used
// for the credentials row, where every field shares one salt so a
// single derived key covers the record.
func (c *Cipher) EncryptWithSalt(plaintext, saltB64 string) (string, error) {
	salt, err := base64.StdEncoding.DecodeString(saltB64)
	if err != nil {
		return "", fmt.Errorf("failed to decode salt: %w", err)
	}

	gcm, err := c.aead(salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// GenerateSalt returns a fresh random salt, base64-encoded.
func GenerateSalt() (string, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	return base64.StdEncoding.EncodeToString(salt), nil
}

// Decrypt opens a ciphertext produced by Encrypt. Any authentication
// failure is reported as ErrInvalidPassphrase.
func (c *Cipher) Decrypt(ciphertext, saltB64 string) (string, error) {
	salt, err := base64.StdEncoding.DecodeString(saltB64)
	if err != nil {
		return "", fmt.Errorf("failed to decode salt: %w", err)
	}

	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil || len(raw) < nonceSize {
		return "", ErrInvalidPassphrase
	}

	gcm, err := c.aead(salt)
	if err != nil {
		return "", err
	}

	plain, err := gcm.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return "", ErrInvalidPassphrase
	}
	return string(plain), nil
}

// aead derives the AES-GCM cipher for a given salt.
func (c *Cipher) aead(salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key(c.passphrase, salt, iterations, keySize, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// GenerateNotesKey creates a random 32-byte key, base64-encoded. The
// desktop stores it encrypted under the passphrase so remote sessions
// can decrypt notes without re-deriving from the passphrase.
func GenerateNotesKey() (string, error) {
	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("failed to generate notes key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}
