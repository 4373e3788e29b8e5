package vault

import (
	"crypto/aes"
	stdcipher "crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/hkdf"
)

// hkdfInfo binds the derived key to this specific use, so a root seed
// reused elsewhere in the process never yields the same key material.
const hkdfInfo = "ngoclaw-vault-v1"

// aeadCipher wraps an AES-256-GCM AEAD keyed from machine/user-specific
// material, so vault.json is unreadable to anyone who only copies the
// file off disk without also having the originating machine's identity.
type aeadCipher struct {
	aead stdcipher.AEAD
}

func newCipher() (*aeadCipher, error) {
	key, err := deriveKey()
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("construct AES cipher: %w", err)
	}
	aead, err := stdcipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("construct GCM mode: %w", err)
	}
	return &aeadCipher{aead: aead}, nil
}

// deriveKey produces a 32-byte AES-256 key via HKDF-SHA256, seeded from
// the user's home directory (which embeds the username on every
// platform) and run through a real KDF rather than a fixed-constant XOR.
func deriveKey() ([]byte, error) {
	seed := vaultSeed()

	kdf := hkdf.New(sha256.New, []byte(seed), nil, []byte(hkdfInfo))
	key := make([]byte, 32)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("hkdf expand: %w", err)
	}
	return key, nil
}

func vaultSeed() string {
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return home
	}
	return "ngoclaw-vault-default-seed"
}

func (c *aeadCipher) encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (c *aeadCipher) decrypt(data []byte) ([]byte, error) {
	nonceSize := c.aead.NonceSize()
	if len(data) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}
	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	return c.aead.Open(nil, nonce, ciphertext, nil)
}
