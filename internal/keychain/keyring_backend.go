package keychain

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// DefaultService is the keyring service name items are filed under.
const DefaultService = "vaultguard"

// KeyringBackend stores items in the OS secret service through go-keyring.
// Values are base64 because the keyring API is string based.
type KeyringBackend struct {
	service string
}

// NewKeyringBackend returns a backend filing items under service.
func NewKeyringBackend(service string) *KeyringBackend {
	if service == "" {
		service = DefaultService
	}
	return &KeyringBackend{service: service}
}

// Name implements Backend.
func (b *KeyringBackend) Name() string {
	return "keyring"
}

// Insert implements Backend.
func (b *KeyringBackend) Insert(account string, raw []byte) error {
	found, err := b.Contains(account)
	if err != nil {
		return err
	}
	if found {
		return ErrDuplicateItem
	}

	if err := keyring.Set(b.service, account, base64.StdEncoding.EncodeToString(raw)); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Load implements Backend.
func (b *KeyringBackend) Load(account string) ([]byte, error) {
	encoded, err := keyring.Get(b.service, account)
	if err != nil {
		return nil, mapKeyringError(err)
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed keyring value: %v", ErrStoreUnavailable, err)
	}
	return raw, nil
}

// Contains implements Backend. The keyring has no existence-only query, so
// the value is fetched but never decoded.
func (b *KeyringBackend) Contains(account string) (bool, error) {
	_, err := keyring.Get(b.service, account)
	if errors.Is(err, keyring.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, mapKeyringError(err)
	}
	return true, nil
}

// Remove implements Backend.
func (b *KeyringBackend) Remove(account string) error {
	return mapKeyringError(keyring.Delete(b.service, account))
}

func mapKeyringError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, keyring.ErrNotFound):
		return ErrItemNotFound
	default:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}
