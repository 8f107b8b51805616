// Package store provides the process-shared persistence primitives used by
// every vaultguard store: a bbolt file opened per operation so the main
// application and the autofill extension can both reach it, an exclusive
// file lock for one-shot work, and atomic whole-file writes.
package store

import "errors"

// Error variables for shared store operations
var (
	// ErrStoreBusy is returned when another process holds the database
	// file longer than the configured timeout
	ErrStoreBusy = errors.New("store is busy in another process")
	// ErrBucketMissing is returned when a bucket that Open should have
	// created does not exist
	ErrBucketMissing = errors.New("store bucket missing")
	// ErrCorrupted is returned when a persisted value cannot be decoded
	ErrCorrupted = errors.New("stored value is corrupted")
)
