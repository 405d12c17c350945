// Package vault seals provider credentials at rest.
package vault

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

// ErrTampered is returned when a sealed value fails authentication.
var ErrTampered = errors.New("vault: sealed value failed authentication")

// Vault encrypts short secrets with NaCl secretbox under a key derived from a configured secret.
type Vault struct {
	key [32]byte
}

// New derives the sealing key from secret.
func New(secret string) (*Vault, error) {
	if secret == "" {
		return nil, errors.New("vault: secret is required")
	}
	return &Vault{key: sha256.Sum256([]byte(secret))}, nil
}

// Seal encrypts plain and returns a URL-safe token.
func (v *Vault) Seal(plain string) (string, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("vault: read nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], []byte(plain), &nonce, &v.key)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal.
func (v *Vault) Open(token string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", fmt.Errorf("vault: decode: %w", err)
	}
	if len(raw) < nonceSize+secretbox.Overhead {
		return "", ErrTampered
	}
	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	plain, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &v.key)
	if !ok {
		return "", ErrTampered
	}
	return string(plain), nil
}
