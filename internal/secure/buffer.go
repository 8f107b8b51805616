// Package secure keeps cached credentials encrypted in process memory while
// they are not in use.
package secure

import (
	"errors"
	"sync"

	"github.com/awnumar/memguard"
)

// ErrDestroyed is returned when reading a destroyed Buffer.
var ErrDestroyed = errors.New("secure buffer destroyed")

// Buffer holds one secret inside a memguard enclave. An empty secret is
// still a present value; memguard cannot seal zero bytes, so that case is
// tracked without an enclave.
type Buffer struct {
	mu        sync.RWMutex
	enclave   *memguard.Enclave
	destroyed bool
}

// NewBuffer seals a copy of data. The caller's slice is left untouched and
// should be wiped by the caller.
func NewBuffer(data []byte) *Buffer {
	b := &Buffer{}
	if len(data) > 0 {
		// NewEnclave wipes its argument.
		b.enclave = memguard.NewEnclave(append([]byte(nil), data...))
	}
	return b
}

// NewStringBuffer seals s.
func NewStringBuffer(s string) *Buffer {
	return NewBuffer([]byte(s))
}

// Bytes returns a plaintext copy of the secret.
func (b *Buffer) Bytes() ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.destroyed {
		return nil, ErrDestroyed
	}
	if b.enclave == nil {
		return []byte{}, nil
	}

	locked, err := b.enclave.Open()
	if err != nil {
		return nil, err
	}
	defer locked.Destroy()

	return append([]byte(nil), locked.Bytes()...), nil
}

// String returns the secret as a string.
func (b *Buffer) String() (string, error) {
	data, err := b.Bytes()
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Destroy drops the enclave. It is safe to call more than once.
func (b *Buffer) Destroy() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.enclave = nil
	b.destroyed = true
}

// Purge wipes every memguard allocation of the process. Call it on exit.
func Purge() {
	memguard.Purge()
}
