// Package cryptoenv provides the authenticated-encryption envelope used by
// the encrypted file storage backend, plus the key-sourcing precedence
// (constructor argument, environment variable, generated-with-warning)
// spec.md's encrypted file backend requires.
package cryptoenv

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"

	"golang.org/x/crypto/pbkdf2"
)

// KeySize is the required master key length: 256 bits.
const KeySize = 32

// DefaultKeyEnvVar is the environment variable consulted when no key is
// supplied to NewEnvelope.
const DefaultKeyEnvVar = "HIVE_CREDENTIAL_KEY"

const pbkdf2Iterations = 100_000

// Envelope performs authenticated symmetric encryption/decryption with a
// 256-bit key, built on AES-256-GCM.
type Envelope struct {
	aead cipher.AEAD
	// Generated reports whether the key was freshly generated rather than
	// supplied or read from the environment — callers use this to decide
	// whether to emit the one-time persistence warning.
	Generated bool
	// EnvVar is the environment variable name this envelope was sourced
	// from (for diagnostics), or DefaultKeyEnvVar if none was supplied.
	EnvVar string
}

// NewEnvelope resolves a 32-byte key per precedence — explicit key
// argument, then the named environment variable (defaulting to
// HIVE_CREDENTIAL_KEY), then a freshly generated key — and builds an
// AES-256-GCM AEAD cipher around it. When envVar is empty, DefaultKeyEnvVar
// is used.
func NewEnvelope(key []byte, envVar string) (*Envelope, error) {
	if envVar == "" {
		envVar = DefaultKeyEnvVar
	}

	resolved, generated, err := resolveKey(key, envVar)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(resolved)
	if err != nil {
		return nil, fmt.Errorf("cryptoenv: aes cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cryptoenv: gcm: %w", err)
	}

	return &Envelope{aead: aead, Generated: generated, EnvVar: envVar}, nil
}

// NewEnvelopeFromPassphrase derives a 32-byte key from a passphrase and
// salt via PBKDF2-HMAC-SHA256, for callers that prefer a human-memorable
// secret over raw key material. This is an optional alternative path to
// NewEnvelope's environment-sourced key.
func NewEnvelopeFromPassphrase(passphrase string, salt []byte, iterations int) (*Envelope, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("cryptoenv: passphrase must not be empty")
	}
	if len(salt) == 0 {
		return nil, fmt.Errorf("cryptoenv: salt is required with passphrase")
	}
	if iterations <= 0 {
		iterations = pbkdf2Iterations
	}
	key := pbkdf2.Key([]byte(passphrase), salt, iterations, KeySize, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cryptoenv: aes cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cryptoenv: gcm: %w", err)
	}
	return &Envelope{aead: aead}, nil
}

func resolveKey(key []byte, envVar string) (resolved []byte, generated bool, err error) {
	if len(key) > 0 {
		if len(key) != KeySize {
			return nil, false, fmt.Errorf("cryptoenv: key must be %d bytes, got %d", KeySize, len(key))
		}
		return key, false, nil
	}

	if envValue := os.Getenv(envVar); envValue != "" {
		decoded, decodeErr := decodeEnvKey(envValue)
		if decodeErr != nil {
			return nil, false, fmt.Errorf("cryptoenv: invalid %s: %w", envVar, decodeErr)
		}
		return decoded, false, nil
	}

	fresh := make([]byte, KeySize)
	if _, randErr := rand.Read(fresh); randErr != nil {
		return nil, false, fmt.Errorf("cryptoenv: generate key: %w", randErr)
	}
	return fresh, true, nil
}

// decodeEnvKey accepts a raw 32-byte key or a 64-character hex encoding —
// environment variables cannot portably carry arbitrary binary, so hex is
// the documented format for HIVE_CREDENTIAL_KEY.
func decodeEnvKey(s string) ([]byte, error) {
	if len(s) == KeySize {
		return []byte(s), nil
	}
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("not raw key-length and not valid hex: %w", err)
	}
	if len(decoded) != KeySize {
		return nil, fmt.Errorf("decoded key must be %d bytes, got %d", KeySize, len(decoded))
	}
	return decoded, nil
}

// Seal encrypts plaintext, returning nonce||ciphertext||tag.
func (e *Envelope) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("cryptoenv: generate nonce: %w", err)
	}
	return e.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open authenticates and decrypts a nonce||ciphertext||tag blob produced
// by Seal. Any failure (wrong key, truncation, tampering) returns a
// generic error — callers map this to CredentialDecryptionFailure without
// ever including secret material.
func (e *Envelope) Open(blob []byte) ([]byte, error) {
	nonceSize := e.aead.NonceSize()
	if len(blob) < nonceSize {
		return nil, fmt.Errorf("cryptoenv: ciphertext too short")
	}
	nonce, ciphertext := blob[:nonceSize], blob[nonceSize:]
	plaintext, err := e.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("cryptoenv: authentication failed")
	}
	return plaintext, nil
}
