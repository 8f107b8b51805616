// Package entitlement keeps the locally cached subscription state and turns
// purchase-queue events into entitlement records.
package entitlement

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/vault-cli/vaultguard/internal/clock"
	"github.com/vault-cli/vaultguard/internal/domain"
	"github.com/vault-cli/vaultguard/internal/logger"
	"github.com/vault-cli/vaultguard/internal/metrics"
	"github.com/vault-cli/vaultguard/internal/store"
)

// StoreFile is the entitlement database name inside the data dir.
const StoreFile = "entitlement.db"

var (
	entitlementBucket = []byte("entitlement")
	recordKey         = []byte("record")
)

// Store persists the single entitlement record in a file shared by the app
// and the extension.
type Store struct {
	db    *store.Shared
	clock clock.Clock
	log   *logger.Logger

	mu sync.Mutex
}

// OpenStore opens the entitlement store inside dataDir.
func OpenStore(dataDir string, clk clock.Clock, log *logger.Logger) (*Store, error) {
	if clk == nil {
		clk = clock.Real()
	}
	if log == nil {
		log = logger.Nop()
	}

	db, err := store.OpenShared(filepath.Join(dataDir, StoreFile), 0, entitlementBucket)
	if err != nil {
		return nil, fmt.Errorf("failed to open entitlement store: %w", err)
	}

	return &Store{db: db, clock: clk, log: log.Component("entitlement_store")}, nil
}

// Load returns the stored record. It never fails: a missing record yields
// the empty one, and a corrupt record is discarded and reset.
func (s *Store) Load() domain.EntitlementRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rec domain.EntitlementRecord
	found, err := s.db.GetJSON(entitlementBucket, recordKey, &rec)
	if err == nil && found {
		err = rec.Validate()
		if err != nil {
			err = fmt.Errorf("%w: %v", store.ErrCorrupted, err)
		}
	}

	switch {
	case err == nil && found:
		return rec
	case err == nil:
		return domain.EmptyEntitlement(s.clock.Now())
	case errors.Is(err, store.ErrCorrupted):
		s.log.Error().Err(err).Msg("discarding corrupt entitlement record")
		if delErr := s.db.Delete(entitlementBucket, recordKey); delErr != nil {
			s.log.Error().Err(delErr).Msg("failed to delete corrupt entitlement record")
		}
	default:
		s.log.Error().Err(err).Msg("failed to read entitlement record")
	}
	return domain.EmptyEntitlement(s.clock.Now())
}

// Save replaces the stored record.
func (s *Store) Save(rec domain.EntitlementRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.PutJSON(entitlementBucket, recordKey, rec); err != nil {
		return fmt.Errorf("failed to persist entitlement: %w", err)
	}
	metrics.EntitlementTransitions.WithLabelValues(string(rec.Status)).Inc()
	return nil
}
