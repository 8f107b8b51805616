// Package vault tracks the password databases known to vaultguard and the
// lifecycle of their cached credentials.
package vault

import "errors"

var (
	// ErrVaultNotFound is returned when no vault matches an identifier.
	ErrVaultNotFound = errors.New("vault not found")
	// ErrVaultExists is returned when creating a vault whose name is taken.
	ErrVaultExists = errors.New("vault already exists")
	// ErrInteractiveEntryRequired is returned by Unlock when no cached
	// credentials may be used and the user must type them.
	ErrInteractiveEntryRequired = errors.New("interactive credential entry required")
)
