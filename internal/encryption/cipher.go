// Package encryption provides the message-body cipher. Ciphertexts are
// self-contained strings: base64(nonce || sealed).
package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// MaskedPlaceholder is displayed in place of a body that failed to decrypt.
const MaskedPlaceholder = "[Encrypted]"

var ErrDecrypt = errors.New("encryption: cannot decrypt")

type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// KDF parameters for deriving the shared key from a passphrase.
type KDFParams struct {
	Salt       []byte
	Iterations uint32
	MemoryKiB  uint32
	Parallel   uint8
}

var DefaultKDFParams = KDFParams{
	Salt:       []byte("chat-sync/v1/shared-room-key"),
	Iterations: 2,
	MemoryKiB:  64 * 1024,
	Parallel:   1,
}

type gcmCipher struct {
	aead cipher.AEAD
}

// NewAESGCM derives a 256-bit key from secret with argon2id and returns an
// AES-GCM cipher. All participants sharing secret and params can read each
// other's messages.
func NewAESGCM(secret string, params KDFParams) (Cipher, error) {
	if secret == "" {
		return nil, errors.New("encryption: empty secret")
	}
	key := argon2.IDKey([]byte(secret), params.Salt, params.Iterations, params.MemoryKiB, params.Parallel, 32)
	return newGCMFromKey(key)
}

func newGCMFromKey(key []byte) (Cipher, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("encryption: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("encryption: %w", err)
	}
	return &gcmCipher{aead: aead}, nil
}

func (c *gcmCipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("encryption: nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.RawStdEncoding.EncodeToString(sealed), nil
}

func (c *gcmCipher) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.RawStdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	ns := c.aead.NonceSize()
	if len(raw) < ns+c.aead.Overhead() {
		return "", fmt.Errorf("%w: ciphertext too short", ErrDecrypt)
	}
	plain, err := c.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	return string(plain), nil
}

// DecryptOrMask returns the plaintext, or MaskedPlaceholder and the error
// when decryption fails.
func DecryptOrMask(c Cipher, ciphertext string) (string, error) {
	plain, err := c.Decrypt(ciphertext)
	if err != nil {
		return MaskedPlaceholder, err
	}
	return plain, nil
}
