package keychain

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"go.etcd.io/bbolt"

	"github.com/vault-cli/vaultguard/internal/seal"
	"github.com/vault-cli/vaultguard/internal/secure"
	"github.com/vault-cli/vaultguard/internal/store"
)

const (
	// KeychainFile is the file backend's database name inside the data dir.
	KeychainFile = "keychain.db"
	// DeviceKeyFile holds the per-install secret the sealing key is
	// derived from.
	DeviceKeyFile = "device.key"
)

var itemsBucket = []byte("items")

// FileBackend keeps items in a shared bbolt file, each sealed with
// AES-256-GCM under the device key and bound to its account name.
type FileBackend struct {
	db      *store.Shared
	engine  *seal.Engine
	keyPath string

	keyMu sync.Mutex
	key   *secure.Buffer
}

// NewFileBackend opens the keychain database inside dataDir.
func NewFileBackend(dataDir string, params seal.Params) (*FileBackend, error) {
	db, err := store.OpenShared(filepath.Join(dataDir, KeychainFile), 0, itemsBucket)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return &FileBackend{
		db:      db,
		engine:  seal.NewEngine(params),
		keyPath: filepath.Join(dataDir, DeviceKeyFile),
	}, nil
}

// Name implements Backend.
func (b *FileBackend) Name() string {
	return "file"
}

func (b *FileBackend) deviceKey() ([]byte, error) {
	b.keyMu.Lock()
	defer b.keyMu.Unlock()

	if b.key == nil {
		key, err := b.engine.DeviceKey(b.keyPath)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		b.key = secure.NewBuffer(key)
		seal.Zeroize(key)
	}

	return b.key.Bytes()
}

// Insert implements Backend.
func (b *FileBackend) Insert(account string, raw []byte) error {
	key, err := b.deviceKey()
	if err != nil {
		return err
	}
	defer seal.Zeroize(key)

	env, err := b.engine.Seal(raw, key, []byte(account))
	if err != nil {
		return fmt.Errorf("failed to seal item: %w", err)
	}
	sealed, err := env.Marshal()
	if err != nil {
		return err
	}

	err = b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(itemsBucket)
		if bucket == nil {
			return store.ErrBucketMissing
		}
		if bucket.Get([]byte(account)) != nil {
			return ErrDuplicateItem
		}
		return bucket.Put([]byte(account), sealed)
	})
	return mapStoreError(err)
}

// Load implements Backend.
func (b *FileBackend) Load(account string) ([]byte, error) {
	sealed, err := b.db.Get(itemsBucket, []byte(account))
	if err != nil {
		return nil, mapStoreError(err)
	}
	if sealed == nil {
		return nil, ErrItemNotFound
	}

	env, err := seal.ParseEnvelope(sealed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	key, err := b.deviceKey()
	if err != nil {
		return nil, err
	}
	defer seal.Zeroize(key)

	raw, err := b.engine.Open(env, key, []byte(account))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return raw, nil
}

// Contains implements Backend. Only the key is looked up.
func (b *FileBackend) Contains(account string) (bool, error) {
	found, err := b.db.Has(itemsBucket, []byte(account))
	return found, mapStoreError(err)
}

// Remove implements Backend.
func (b *FileBackend) Remove(account string) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(itemsBucket)
		if bucket == nil {
			return store.ErrBucketMissing
		}
		if bucket.Get([]byte(account)) == nil {
			return ErrItemNotFound
		}
		return bucket.Delete([]byte(account))
	})
	return mapStoreError(err)
}

func mapStoreError(err error) error {
	if err == nil || errors.Is(err, ErrItemNotFound) || errors.Is(err, ErrDuplicateItem) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
