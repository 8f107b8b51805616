// Package secrets persists the cached password and key-file bytes of a vault
// in the keychain, under an access rule chosen from the vault's security
// level.
//
// Every failure is logged and swallowed: a secret that cannot be read is
// indistinguishable from one that was never stored, and the caller falls
// back to interactive entry in both cases.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/fxamacker/cbor/v2"

	"github.com/vault-cli/vaultguard/internal/domain"
	"github.com/vault-cli/vaultguard/internal/keychain"
	"github.com/vault-cli/vaultguard/internal/logger"
	"github.com/vault-cli/vaultguard/internal/metrics"
	"github.com/vault-cli/vaultguard/internal/policy"
)

// ErrDecodeFailure is logged when a stored payload cannot be decoded.
var ErrDecodeFailure = errors.New("stored secrets could not be decoded")

// Store is the secret store of every vault. Calls are serialized.
type Store struct {
	kc  *keychain.Keychain
	log *logger.Logger

	mu sync.Mutex
}

// New returns a Store backed by kc.
func New(kc *keychain.Keychain, log *logger.Logger) *Store {
	if log == nil {
		log = logger.Nop()
	}
	return &Store{
		kc:  kc,
		log: log.Component("secrets"),
	}
}

// Save replaces the entry of vaultID. Empty secrets delete the entry. A level
// that does not cache credentials is a policy violation: it is logged and the
// entry is deleted.
func (s *Store) Save(ctx context.Context, vaultID string, secrets domain.Secrets, level policy.SecurityLevel) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if secrets.IsEmpty() {
		s.deleteLocked(ctx, vaultID)
		return
	}

	access, err := level.AccessControl()
	if err != nil {
		s.log.Error().Err(err).
			Str("vault_id", vaultID).
			Str("level", level.String()).
			Msg("refusing to cache credentials")
		s.deleteLocked(ctx, vaultID)
		metrics.SecretStoreOps.WithLabelValues("save", metrics.Result(err)).Inc()
		return
	}

	payload, err := cbor.Marshal(secrets)
	if err != nil {
		s.log.Error().Err(err).Str("vault_id", vaultID).Msg("failed to encode secrets")
		metrics.SecretStoreOps.WithLabelValues("save", metrics.Result(err)).Inc()
		return
	}

	// Overwrite by delete then add so Add never sees a duplicate.
	s.deleteLocked(ctx, vaultID)

	err = s.kc.Add(ctx, vaultID, access, payload)
	if err != nil {
		s.log.Error().Err(err).Str("vault_id", vaultID).Msg("failed to store secrets")
	}
	metrics.SecretStoreOps.WithLabelValues("save", metrics.Result(err)).Inc()
}

// Credentials returns the stored secrets of vaultID, or nil when there are
// none, access was denied, or the payload is unreadable.
func (s *Store) Credentials(ctx context.Context, vaultID string) *domain.Secrets {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := s.kc.Copy(ctx, vaultID)
	if err != nil {
		if !errors.Is(err, keychain.ErrItemNotFound) {
			s.log.Warn().Err(err).Str("vault_id", vaultID).Msg("failed to read secrets")
			metrics.SecretStoreOps.WithLabelValues("read", metrics.Result(err)).Inc()
		}
		return nil
	}

	var secrets domain.Secrets
	if err := cbor.Unmarshal(payload, &secrets); err != nil {
		err = fmt.Errorf("%w: %v", ErrDecodeFailure, err)
		s.log.Warn().Err(err).Str("vault_id", vaultID).Msg("discarding unreadable secrets")
		metrics.SecretStoreOps.WithLabelValues("read", metrics.Result(err)).Inc()
		return nil
	}

	metrics.SecretStoreOps.WithLabelValues("read", metrics.Result(nil)).Inc()
	if secrets.IsEmpty() {
		return nil
	}
	return &secrets
}

// HasSecrets reports whether an entry exists for vaultID without reading
// it, so it never triggers a presence check.
func (s *Store) HasSecrets(ctx context.Context, vaultID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	found, err := s.kc.Exists(ctx, vaultID)
	if err != nil {
		s.log.Warn().Err(err).Str("vault_id", vaultID).Msg("failed to query secrets")
		return false
	}
	return found
}

// DeleteSecrets removes the entry of vaultID. A missing entry is not an
// error.
func (s *Store) DeleteSecrets(ctx context.Context, vaultID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deleteLocked(ctx, vaultID)
}

func (s *Store) deleteLocked(ctx context.Context, vaultID string) {
	err := s.kc.Delete(ctx, vaultID)
	if errors.Is(err, keychain.ErrItemNotFound) {
		return
	}
	if err != nil {
		s.log.Warn().Err(err).Str("vault_id", vaultID).Msg("failed to delete secrets")
	}
	metrics.SecretStoreOps.WithLabelValues("delete", metrics.Result(err)).Inc()
}
