package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// KeySize is the AES-256 key length in bytes
const KeySize = 32

// ErrNotInitialized is returned by a Box without a key
var ErrNotInitialized = errors.New("encryption not initialized")

// Box encrypts and decrypts profile passwords with AES-256-GCM
type Box struct {
	key []byte
}

// NewBox creates a Box from a raw 32-byte key
func NewBox(key []byte) (*Box, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", KeySize, len(key))
	}
	k := make([]byte, KeySize)
	copy(k, key)
	return &Box{key: k}, nil
}

// KeyFromString derives a 32-byte key from a configured value.
// A base64 string of exactly 32 bytes is used as-is; anything else is hashed.
func KeyFromString(value string) []byte {
	if decoded, err := base64.StdEncoding.DecodeString(value); err == nil {
		if len(decoded) == KeySize {
			return decoded
		}
		hash := sha256.Sum256(decoded)
		return hash[:]
	}
	hash := sha256.Sum256([]byte(value))
	return hash[:]
}

// Open returns a Box keyed from configKey when set, otherwise from the
// system keychain (generating and storing a key on first use)
func Open(configKey string) (*Box, error) {
	if configKey != "" {
		return NewBox(KeyFromString(configKey))
	}

	key, err := GenerateOrLoadKey()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize encryption from keystore: %w", err)
	}
	return NewBox(key)
}

// IsInitialized reports whether the box holds a key
func (b *Box) IsInitialized() bool {
	return b != nil && len(b.key) > 0
}

func (b *Box) gcm() (cipher.AEAD, error) {
	if !b.IsInitialized() {
		return nil, ErrNotInitialized
	}
	block, err := aes.NewCipher(b.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// Encrypt returns base64(nonce || ciphertext)
func (b *Box) Encrypt(plaintext string) (string, error) {
	gcm, err := b.gcm()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt
func (b *Box) Decrypt(encoded string) (string, error) {
	gcm, err := b.gcm()
	if err != nil {
		return "", err
	}

	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("failed to decode base64: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(sealed) < nonceSize {
		return "", errors.New("ciphertext too short")
	}

	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}
	return string(plaintext), nil
}
