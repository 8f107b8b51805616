package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.etcd.io/bbolt"
)

// DefaultTimeout bounds how long an operation waits for another process
// to release the database file.
const DefaultTimeout = 5 * time.Second

var lockTimeout atomic.Int64

func init() {
	lockTimeout.Store(int64(DefaultTimeout))
}

// LockTimeout returns the timeout used when a store is opened without one.
func LockTimeout() time.Duration {
	return time.Duration(lockTimeout.Load())
}

// SetLockTimeout changes the process-wide default. Non-positive values
// restore DefaultTimeout.
func SetLockTimeout(d time.Duration) {
	if d <= 0 {
		d = DefaultTimeout
	}
	lockTimeout.Store(int64(d))
}

// Shared is a bbolt database that is opened for the duration of a single
// transaction and closed again, so the file lock is never held between
// operations. The mutex is the in-process serialization point; the bbolt
// flock serializes across processes. Writers always replace whole values.
type Shared struct {
	path    string
	timeout time.Duration
	buckets [][]byte

	mu sync.Mutex
}

// OpenShared prepares the database at path, creating the file and the
// given buckets if needed. A non-positive timeout uses LockTimeout.
func OpenShared(path string, timeout time.Duration, buckets ...[]byte) (*Shared, error) {
	if timeout <= 0 {
		timeout = LockTimeout()
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	s := &Shared{
		path:    path,
		timeout: timeout,
		buckets: buckets,
	}

	if err := s.Update(func(tx *bbolt.Tx) error {
		for _, name := range buckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, err)
			}
		}
		return nil
	}); err != nil {
		return nil, err
	}

	if err := EnsureFilePermissions(path); err != nil {
		return nil, fmt.Errorf("failed to verify store permissions: %w", err)
	}

	return s, nil
}

// Path returns the database file path.
func (s *Shared) Path() string {
	return s.path
}

// Update runs fn in a read-write transaction.
func (s *Shared) Update(fn func(tx *bbolt.Tx) error) error {
	return s.with(false, func(db *bbolt.DB) error {
		return db.Update(fn)
	})
}

// View runs fn in a read-only transaction. The file is opened read-only so
// readers in other processes are not excluded.
func (s *Shared) View(fn func(tx *bbolt.Tx) error) error {
	return s.with(true, func(db *bbolt.DB) error {
		return db.View(fn)
	})
}

func (s *Shared) with(readOnly bool, fn func(db *bbolt.DB) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := bbolt.Open(s.path, 0o600, &bbolt.Options{
		Timeout:  s.timeout,
		ReadOnly: readOnly,
	})
	if err != nil {
		if errors.Is(err, bbolt.ErrTimeout) {
			return ErrStoreBusy
		}
		return fmt.Errorf("failed to open store %s: %w", s.path, err)
	}

	err = fn(db)
	if closeErr := db.Close(); closeErr != nil && err == nil {
		err = fmt.Errorf("failed to close store: %w", closeErr)
	}
	return err
}

// Get returns a copy of the value stored under key, or nil when absent.
func (s *Shared) Get(bucket, key []byte) ([]byte, error) {
	var value []byte
	err := s.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return ErrBucketMissing
		}
		if v := b.Get(key); v != nil {
			value = append([]byte(nil), v...)
		}
		return nil
	})
	return value, err
}

// Has reports whether key exists without copying its value.
func (s *Shared) Has(bucket, key []byte) (bool, error) {
	var found bool
	err := s.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return ErrBucketMissing
		}
		found = b.Get(key) != nil
		return nil
	})
	return found, err
}

// Put replaces the value stored under key.
func (s *Shared) Put(bucket, key, value []byte) error {
	return s.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return ErrBucketMissing
		}
		return b.Put(key, value)
	})
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Shared) Delete(bucket, key []byte) error {
	return s.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return ErrBucketMissing
		}
		return b.Delete(key)
	})
}

// GetJSON decodes the value under key into v. found is false when the key
// is absent. Decode failures wrap ErrCorrupted.
func (s *Shared) GetJSON(bucket, key []byte, v any) (found bool, err error) {
	raw, err := s.Get(bucket, key)
	if err != nil {
		return false, err
	}
	if raw == nil {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return true, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	return true, nil
}

// PutJSON encodes v and replaces the value under key.
func (s *Shared) PutJSON(bucket, key []byte, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	return s.Put(bucket, key, payload)
}

// ForEach calls fn for every key/value pair of bucket. Values are only
// valid during the call.
func (s *Shared) ForEach(bucket []byte, fn func(k, v []byte) error) error {
	return s.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return ErrBucketMissing
		}
		return b.ForEach(fn)
	})
}
