// Package cipher encrypts registrant PII under a per-event key.
//
// Ciphertexts are versioned: "v1." followed by base64url(nonce || sealed box)
// from XChaCha20-Poly1305. The AEAD key is derived from the event key with
// HKDF-SHA256.
package cipher

import (
	aead "crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	KeyBytes = 32

	versionV1 = "v1"
	hkdfInfo  = "eventpress registrant pii"
)

var (
	ErrKey     = errors.New("invalid encryption key")
	ErrDecrypt = errors.New("decryption failed")
)

// Cipher is the encrypt/decrypt capability consumed by the registration core.
type Cipher interface {
	Encrypt(plaintext, key string) (string, error)
	Decrypt(ciphertext, key string) (string, error)
}

type XChaCha struct{}

func New() *XChaCha {
	return &XChaCha{}
}

// NewKey returns a fresh event key: 32 random bytes as lowercase hex.
func NewKey() (string, error) {
	b := make([]byte, KeyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func (XChaCha) Encrypt(plaintext, key string) (string, error) {
	box, err := newAEAD(key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, box.NonceSize(), box.NonceSize()+len(plaintext)+box.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := box.Seal(nonce, nonce, []byte(plaintext), []byte(versionV1))

	return versionV1 + "." + base64.RawURLEncoding.EncodeToString(sealed), nil
}

func (XChaCha) Decrypt(ciphertext, key string) (string, error) {
	box, err := newAEAD(key)
	if err != nil {
		return "", err
	}

	version, payload, ok := strings.Cut(ciphertext, ".")
	if !ok || version != versionV1 {
		return "", fmt.Errorf("%w: unsupported format", ErrDecrypt)
	}
	raw, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("%w: bad encoding", ErrDecrypt)
	}
	if len(raw) < box.NonceSize()+box.Overhead() {
		return "", fmt.Errorf("%w: truncated payload", ErrDecrypt)
	}

	nonce, sealed := raw[:box.NonceSize()], raw[box.NonceSize():]
	plain, err := box.Open(nil, nonce, sealed, []byte(version))
	if err != nil {
		return "", fmt.Errorf("%w: authentication failed", ErrDecrypt)
	}
	return string(plain), nil
}

func newAEAD(key string) (aead.AEAD, error) {
	secret, err := hex.DecodeString(key)
	if err != nil || len(secret) != KeyBytes {
		return nil, ErrKey
	}

	derived := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(hkdfInfo)), derived); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return chacha20poly1305.NewX(derived)
}
