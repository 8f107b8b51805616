package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

var (
	// ErrLockTimeout is returned when another process keeps the lock past
	// the timeout.
	ErrLockTimeout = errors.New("lock acquisition timeout")
	// ErrLockNotHeld is returned by Unlock on a lock that is not held.
	ErrLockNotHeld = errors.New("lock not held")
)

const (
	// staleLockAge is how old a lock file may get before it is assumed to
	// be left behind by a crashed process.
	staleLockAge = 5 * time.Minute
	lockPollStep = 50 * time.Millisecond
)

// FileLock is an exclusive, cross-process lock kept in a file next to the
// resource it guards. It serializes one-shot work such as legacy imports
// and device key creation, where two processes must not both act.
type FileLock struct {
	path string
	file *os.File
}

// NewFileLock returns the lock for resourcePath, kept in resourcePath+".lock".
func NewFileLock(resourcePath string) *FileLock {
	return &FileLock{path: resourcePath + ".lock"}
}

// WithFileLock runs fn while holding the lock for resourcePath.
func WithFileLock(resourcePath string, timeout time.Duration, fn func() error) error {
	lock := NewFileLock(resourcePath)
	if err := lock.Lock(timeout); err != nil {
		return fmt.Errorf("failed to lock %s: %w", filepath.Base(resourcePath), err)
	}
	defer lock.Unlock()
	return fn()
}

// Lock acquires the lock, polling until timeout.
func (fl *FileLock) Lock(timeout time.Duration) error {
	if fl.file != nil {
		return errors.New("lock already held")
	}
	if err := os.MkdirAll(filepath.Dir(fl.path), 0o700); err != nil {
		return err
	}

	deadline := time.Now().Add(timeout)
	for {
		acquired, err := fl.tryLock()
		if acquired || err != nil {
			return err
		}

		if fl.isLockStale() {
			_ = os.Remove(fl.path)
			continue
		}
		if time.Now().After(deadline) {
			return ErrLockTimeout
		}
		time.Sleep(lockPollStep)
	}
}

// tryLock creates the lock file exclusively. It reports false without an
// error when another holder exists.
func (fl *FileLock) tryLock() (bool, error) {
	file, err := os.OpenFile(fl.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if errors.Is(err, os.ErrExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := platformLock(file); err != nil {
		_ = file.Close()
		_ = os.Remove(fl.path)
		return false, nil
	}
	fl.file = file

	if _, err := file.WriteString(strconv.Itoa(os.Getpid())); err != nil {
		_ = fl.Unlock()
		return false, err
	}
	return true, nil
}

// Unlock releases the lock and removes the lock file.
func (fl *FileLock) Unlock() error {
	if fl.file == nil {
		return ErrLockNotHeld
	}

	err := errors.Join(platformUnlock(fl.file), fl.file.Close(), os.Remove(fl.path))
	fl.file = nil
	return err
}

// IsLocked reports whether this FileLock holds the lock.
func (fl *FileLock) IsLocked() bool {
	return fl.file != nil
}

func (fl *FileLock) isLockStale() bool {
	info, err := os.Stat(fl.path)
	if err != nil {
		return false
	}
	return time.Since(info.ModTime()) > staleLockAge
}
