package authcore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
)

// secretCipher encrypts TOTP secrets at rest with AES-256-GCM. The nonce
// is prepended to the ciphertext; the whole blob is stored base64-encoded.
type secretCipher struct {
	aead cipher.AEAD
}

func newSecretCipher(key []byte) (*secretCipher, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("authcore: secret cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("authcore: secret cipher: %w", err)
	}
	return &secretCipher{aead: aead}, nil
}

func (c *secretCipher) Seal(plaintext []byte) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("authcore: seal secret: %w", err)
	}
	blob := c.aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(blob), nil
}

func (c *secretCipher) Open(encoded string) ([]byte, error) {
	blob, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("authcore: open secret: %w", err)
	}
	if len(blob) < c.aead.NonceSize() {
		return nil, errors.New("authcore: open secret: ciphertext too short")
	}
	nonce, ciphertext := blob[:c.aead.NonceSize()], blob[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("authcore: open secret: %w", err)
	}
	return plaintext, nil
}
