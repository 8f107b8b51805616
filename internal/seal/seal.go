// Package seal encrypts keychain items at rest with AES-256-GCM under a key
// derived with Argon2id from a per-install device secret.
package seal

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

const (
	KeySize   = 32 // AES-256
	SaltSize  = 32
	NonceSize = 12

	// EnvelopeVersion is bumped whenever the envelope layout changes.
	EnvelopeVersion = 1

	DefaultMemory      = 64 * 1024 // KiB
	DefaultIterations  = 3
	DefaultParallelism = 4
)

var (
	// ErrInvalidEnvelope is returned for envelopes that cannot be parsed.
	ErrInvalidEnvelope = errors.New("invalid envelope format")
	// ErrInvalidVersion is returned for envelopes written by a newer layout.
	ErrInvalidVersion = errors.New("unsupported envelope version")
	// ErrDecryptionFailed hides the reason an envelope failed to open.
	ErrDecryptionFailed = errors.New("decryption failed")
	// ErrInvalidKeySize is returned for keys that are not KeySize bytes.
	ErrInvalidKeySize = errors.New("invalid key size")
	// ErrInvalidParams is returned by Params.Validate.
	ErrInvalidParams = errors.New("invalid argon2 parameters")
)

// Params are the Argon2id cost parameters.
type Params struct {
	Memory      uint32 `yaml:"memory" env:"MEMORY" json:"memory"`
	Iterations  uint32 `yaml:"iterations" env:"ITERATIONS" json:"iterations"`
	Parallelism uint8  `yaml:"parallelism" env:"PARALLELISM" json:"parallelism"`
}

// DefaultParams returns the parameters used when none are configured.
func DefaultParams() Params {
	return Params{
		Memory:      DefaultMemory,
		Iterations:  DefaultIterations,
		Parallelism: DefaultParallelism,
	}
}

// Validate rejects parameters outside the supported range.
func (p Params) Validate() error {
	switch {
	case p.Memory < 1024 || p.Memory > 1024*1024:
		return fmt.Errorf("%w: memory must be between 1024 and 1048576 KiB", ErrInvalidParams)
	case p.Iterations < 1 || p.Iterations > 100:
		return fmt.Errorf("%w: iterations must be between 1 and 100", ErrInvalidParams)
	case p.Parallelism < 1:
		return fmt.Errorf("%w: parallelism must be at least 1", ErrInvalidParams)
	}
	return nil
}

// Engine seals and opens envelopes.
type Engine struct {
	params Params
}

// NewEngine returns an engine deriving keys with params.
func NewEngine(params Params) *Engine {
	return &Engine{params: params}
}

// Params returns the engine's KDF parameters.
func (e *Engine) Params() Params {
	return e.params
}

// RandomBytes returns n bytes from crypto/rand.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("failed to read random bytes: %w", err)
	}
	return b, nil
}

// DeriveKey stretches secret with Argon2id. The caller owns the returned key
// and should Zeroize it.
func (e *Engine) DeriveKey(secret, salt []byte) ([]byte, error) {
	if len(salt) != SaltSize {
		return nil, fmt.Errorf("invalid salt size: expected %d, got %d", SaltSize, len(salt))
	}
	if err := e.params.Validate(); err != nil {
		return nil, err
	}

	return argon2.IDKey(secret, salt, e.params.Iterations, e.params.Memory, e.params.Parallelism, KeySize), nil
}

// Seal encrypts plaintext under key. aad is authenticated but not stored;
// callers bind the envelope to the item name with it.
func (e *Engine) Seal(plaintext, key, aad []byte) (*Envelope, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce, err := RandomBytes(NonceSize)
	if err != nil {
		return nil, err
	}

	return &Envelope{
		Version:    EnvelopeVersion,
		Nonce:      nonce,
		Ciphertext: gcm.Seal(nil, nonce, plaintext, aad),
	}, nil
}

// Open decrypts env under key with the same aad that was used to seal it.
func (e *Engine) Open(env *Envelope, key, aad []byte) ([]byte, error) {
	if env == nil {
		return nil, ErrInvalidEnvelope
	}
	if env.Version != EnvelopeVersion {
		return nil, ErrInvalidVersion
	}
	if len(env.Nonce) != NonceSize {
		return nil, ErrInvalidEnvelope
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, env.Nonce, env.Ciphertext, aad)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// Zeroize overwrites data with zeros.
func Zeroize(data []byte) {
	for i := range data {
		data[i] = 0
	}
}
