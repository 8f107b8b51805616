package seal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vault-cli/vaultguard/internal/store"
)

// deviceSecretSize is the size of the random secret stored in device.key.
const deviceSecretSize = 32

// ErrDeviceKeyCorrupted is returned when device.key has an unexpected size.
var ErrDeviceKeyCorrupted = errors.New("device key file is corrupted")

// DeviceKey loads the per-install secret at path, creating it on first use,
// and derives the sealing key from it. The file holds the random secret
// followed by the KDF salt.
func (e *Engine) DeviceKey(path string) ([]byte, error) {
	raw, err := os.ReadFile(filepath.Clean(path))
	if errors.Is(err, os.ErrNotExist) {
		raw, err = e.createDeviceKey(path)
	}
	if err != nil {
		return nil, err
	}
	defer Zeroize(raw)

	if len(raw) != deviceSecretSize+SaltSize {
		return nil, ErrDeviceKeyCorrupted
	}

	return e.DeriveKey(raw[:deviceSecretSize], raw[deviceSecretSize:])
}

func (e *Engine) createDeviceKey(path string) (raw []byte, err error) {
	err = store.WithFileLock(path, store.LockTimeout(), func() error {
		// Another process may have won the race while we waited for the lock.
		if existing, rerr := os.ReadFile(filepath.Clean(path)); rerr == nil {
			raw = existing
			return nil
		}

		fresh, rerr := RandomBytes(deviceSecretSize + SaltSize)
		if rerr != nil {
			return rerr
		}
		if werr := store.AtomicWriteFile(path, fresh); werr != nil {
			return fmt.Errorf("failed to write device key: %w", werr)
		}
		raw = fresh
		return nil
	})
	return raw, err
}
