package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"runtime"

	"github.com/zalando/go-keyring"

	"titan/internal/logger"
)

const (
	keystoreService = "titan"
	keystoreUser    = "encryption-key"
	passwordPrefix  = "profile:"
)

// ErrPasswordNotFound is returned when a profile has no keychain entry
var ErrPasswordNotFound = errors.New("password not found in keychain")

// GenerateOrLoadKey loads the store encryption key from the system keychain,
// generating and saving a new one on first use
func GenerateOrLoadKey() ([]byte, error) {
	encoded, err := keyring.Get(keystoreService, keystoreUser)
	if err == nil && encoded != "" {
		key, decodeErr := base64.StdEncoding.DecodeString(encoded)
		if decodeErr == nil && len(key) == KeySize {
			return key, nil
		}
		logger.Warn("Ignoring malformed encryption key in keychain", "error", decodeErr)
	} else if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		logger.Warn("Keystore lookup failed", "error", err)
	}

	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate random key: %w", err)
	}

	if err := keyring.Set(keystoreService, keystoreUser, base64.StdEncoding.EncodeToString(key)); err != nil {
		// Linux without a secret service is tolerated for development
		if runtime.GOOS == "darwin" || runtime.GOOS == "windows" {
			return nil, fmt.Errorf("keychain storage required on %s: %w", runtime.GOOS, err)
		}
		logger.Warn("Failed to store key in keychain, key will be regenerated on next launch", "error", err)
	}

	return key, nil
}

// DeleteKey removes the encryption key from the keychain
func DeleteKey() error {
	return keyring.Delete(keystoreService, keystoreUser)
}

// IsKeyStored checks if an encryption key exists in the keychain
func IsKeyStored() bool {
	_, err := keyring.Get(keystoreService, keystoreUser)
	return err == nil
}

// SavePassword stores a profile password in the system keychain
func SavePassword(profileID, password string) error {
	if err := keyring.Set(keystoreService, passwordPrefix+profileID, password); err != nil {
		return fmt.Errorf("failed to save password to keychain: %w", err)
	}
	return nil
}

// LoadPassword reads a profile password from the system keychain
func LoadPassword(profileID string) (string, error) {
	password, err := keyring.Get(keystoreService, passwordPrefix+profileID)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrPasswordNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to load password from keychain: %w", err)
	}
	return password, nil
}

// DeletePassword removes a profile password; a missing entry is not an error
func DeletePassword(profileID string) error {
	err := keyring.Delete(keystoreService, passwordPrefix+profileID)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete password from keychain: %w", err)
	}
	return nil
}
