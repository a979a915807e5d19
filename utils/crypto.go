package utils

import (
	"crypto/rand"
	"crypto/cipher"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

var aead cipher.AEAD

// InitializeEncryption sets up the key used to seal borrower contact data.
func InitializeEncryption(key string) error {
	if len(key) != chacha20poly1305.KeySize {
		return fmt.Errorf("encryption key must be exactly %d characters, got %d", chacha20poly1305.KeySize, len(key))
	}
	a, err := chacha20poly1305.NewX([]byte(key))
	if err != nil {
		return fmt.Errorf("failed to create cipher: %w", err)
	}
	aead = a
	return nil
}

// EncryptSensitiveData seals data with XChaCha20-Poly1305. The random nonce is
// prepended to the ciphertext and the result is URL-safe base64.
func EncryptSensitiveData(data string) (string, error) {
	if aead == nil {
		return "", fmt.Errorf("encryption key not initialized")
	}
	if data == "" {
		return "", nil
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(data)+aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, []byte(data), nil)
	return base64.URLEncoding.EncodeToString(sealed), nil
}

func DecryptSensitiveData(encryptedData string) (string, error) {
	if aead == nil {
		return "", fmt.Errorf("encryption key not initialized")
	}
	if encryptedData == "" {
		return "", nil
	}

	sealed, err := base64.URLEncoding.DecodeString(encryptedData)
	if err != nil {
		return "", fmt.Errorf("failed to decode base64: %w", err)
	}
	if len(sealed) < aead.NonceSize()+aead.Overhead() {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to open sealed data: %w", err)
	}
	return string(plain), nil
}
