// ABOUTME: Secret sealing for values persisted by the settings store
// ABOUTME: NaCl secretbox with a 32-byte key kept in a 0600 file beside the database

package settings

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	sealedPrefix = "sealed:v1:"
	nonceSize    = 24
	keySize      = 32
)

// ErrUnsealable is returned when a sealed value cannot be opened.
var ErrUnsealable = errors.New("sealed value cannot be opened")

// Sealer encrypts short secrets with XSalsa20-Poly1305.
// Output format: "sealed:v1:" + base64([nonce (24 bytes)][ciphertext + tag]).
type Sealer struct {
	key [keySize]byte
}

// NewSealer returns a Sealer using key.
func NewSealer(key [keySize]byte) *Sealer {
	return &Sealer{key: key}
}

// LoadOrCreateKey reads the base64 key at path, generating and writing a new
// one with mode 0600 if the file does not exist.
func LoadOrCreateKey(path string) (*Sealer, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(data)))
		if err != nil {
			return nil, fmt.Errorf("decoding key file: %w", err)
		}
		if len(raw) != keySize {
			return nil, fmt.Errorf("key file has %d bytes, want %d", len(raw), keySize)
		}
		var key [keySize]byte
		copy(key[:], raw)
		return NewSealer(key), nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading key file: %w", err)
	}

	var key [keySize]byte
	if _, err := rand.Read(key[:]); err != nil {
		return nil, fmt.Errorf("generating key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating key directory: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(key[:]) + "\n"
	if err := os.WriteFile(path, []byte(encoded), 0600); err != nil {
		return nil, fmt.Errorf("writing key file: %w", err)
	}
	return NewSealer(key), nil
}

// Seal encrypts plaintext. Empty input stays empty.
func (s *Sealer) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}

	out := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &s.key)
	return sealedPrefix + base64.StdEncoding.EncodeToString(out), nil
}

// Open decrypts a value produced by Seal. Values without the sealed prefix
// are returned unchanged.
func (s *Sealer) Open(value string) (string, error) {
	if !IsSealed(value) {
		return value, nil
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, sealedPrefix))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsealable, err)
	}
	if len(raw) < nonceSize {
		return "", fmt.Errorf("%w: too short", ErrUnsealable)
	}

	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])

	plain, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &s.key)
	if !ok {
		return "", fmt.Errorf("%w: authentication failed", ErrUnsealable)
	}
	return string(plain), nil
}

// IsSealed reports whether value carries the sealed prefix.
func IsSealed(value string) bool {
	return strings.HasPrefix(value, sealedPrefix)
}
