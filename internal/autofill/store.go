// Package autofill keeps the shared set of autofill snapshots and mirrors it
// into the OS identity index, gated by the subscription entitlement.
package autofill

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/text/cases"

	"github.com/vault-cli/vaultguard/internal/clock"
	"github.com/vault-cli/vaultguard/internal/domain"
	"github.com/vault-cli/vaultguard/internal/logger"
	"github.com/vault-cli/vaultguard/internal/metrics"
	"github.com/vault-cli/vaultguard/internal/store"
)

// StoreFile is the snapshot database name inside the data dir.
const StoreFile = "autofill.db"

var (
	autofillBucket = []byte("autofill")
	snapshotsKey   = []byte("snapshots")
)

// EntitlementGate decides whether snapshots may be read.
type EntitlementGate interface {
	IsActive() bool
}

// Reconciler is told when the snapshot set changed.
type Reconciler interface {
	Schedule()
}

// Store is the process-shared snapshot set. The whole set is stored as one
// JSON array and always replaced as a whole.
type Store struct {
	db    *store.Shared
	gate  EntitlementGate
	clock clock.Clock
	log   *logger.Logger

	mu         sync.Mutex
	reconciler Reconciler
}

// OpenStore opens the snapshot store inside dataDir and, when the stored set
// is empty or unreadable, imports the legacy file at legacyPath once.
func OpenStore(dataDir, legacyPath string, gate EntitlementGate, clk clock.Clock, log *logger.Logger) (*Store, error) {
	if clk == nil {
		clk = clock.Real()
	}
	if log == nil {
		log = logger.Nop()
	}

	db, err := store.OpenShared(filepath.Join(dataDir, StoreFile), 0, autofillBucket)
	if err != nil {
		return nil, fmt.Errorf("failed to open autofill store: %w", err)
	}

	s := &Store{
		db:    db,
		gate:  gate,
		clock: clk,
		log:   log.Component("autofill_store"),
	}

	if legacyPath != "" {
		if err := s.importLegacy(legacyPath); err != nil {
			s.log.Warn().Err(err).Str("path", legacyPath).Msg("legacy snapshot import skipped")
		}
	}
	return s, nil
}

// SetReconciler registers the reconciler notified after each mutation.
func (s *Store) SetReconciler(r Reconciler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reconciler = r
}

func (s *Store) importLegacy(path string) error {
	return store.WithFileLock(path, store.LockTimeout(), func() error {
		s.mu.Lock()
		defer s.mu.Unlock()

		current, err := s.loadLocked()
		if err == nil && len(current) > 0 {
			return nil
		}

		legacy, err := readLegacy(path)
		if err != nil || legacy == nil {
			return err
		}

		if err := s.saveLocked(legacy); err != nil {
			return err
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.log.Warn().Err(err).Msg("failed to remove imported legacy file")
		}

		metrics.LegacyImports.Add(float64(len(legacy)))
		s.log.Info().Int("count", len(legacy)).Msg("imported legacy snapshots")
		return nil
	})
}

// Credentials returns every snapshot sorted for display, or an empty list
// when the entitlement is not active.
func (s *Store) Credentials() []domain.AutoFillSnapshot {
	if s.gate == nil || !s.gate.IsActive() {
		return []domain.AutoFillSnapshot{}
	}

	s.mu.Lock()
	snapshots, err := s.loadLocked()
	s.mu.Unlock()
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to read snapshots")
		return []domain.AutoFillSnapshot{}
	}

	SortSnapshots(snapshots)
	return snapshots
}

// Len returns the number of stored snapshots regardless of entitlement.
func (s *Store) Len() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshots, err := s.loadLocked()
	return len(snapshots), err
}

// Upsert replaces the snapshot with the same uuid, or adds it.
func (s *Store) Upsert(snapshot domain.AutoFillSnapshot) error {
	return s.mutate(func(set []domain.AutoFillSnapshot) ([]domain.AutoFillSnapshot, bool) {
		for i := range set {
			if set[i].UUID == snapshot.UUID {
				set[i] = snapshot
				return set, true
			}
		}
		return append(set, snapshot), true
	})
}

// RemoveCredential removes the snapshot with uuid, if present.
func (s *Store) RemoveCredential(uuid string) error {
	return s.removeIDs(map[string]struct{}{uuid: {}})
}

// UpsertEntryIfPossible derives a snapshot from entry and stores it, or
// removes the entry's snapshot when its username or password is blank.
func (s *Store) UpsertEntryIfPossible(entry domain.LoginEntry) error {
	snapshot, ok := SnapshotFromEntry(entry, s.clock.Now())
	if !ok {
		return s.RemoveCredential(entry.UUID)
	}
	return s.Upsert(snapshot)
}

// RemoveCredentials removes the snapshots of every entry in group and its
// subgroups.
func (s *Store) RemoveCredentials(group domain.Group) error {
	ids := make(map[string]struct{})
	for _, e := range group.AllEntries() {
		ids[e.UUID] = struct{}{}
	}
	if len(ids) == 0 {
		return nil
	}
	return s.removeIDs(ids)
}

func (s *Store) removeIDs(ids map[string]struct{}) error {
	return s.mutate(func(set []domain.AutoFillSnapshot) ([]domain.AutoFillSnapshot, bool) {
		kept := set[:0]
		for _, snapshot := range set {
			if _, drop := ids[snapshot.UUID]; !drop {
				kept = append(kept, snapshot)
			}
		}
		return kept, len(kept) != len(set)
	})
}

// mutate applies fn to the stored set and persists the result when fn
// reports a change. The reconciler is scheduled after a successful write.
func (s *Store) mutate(fn func([]domain.AutoFillSnapshot) ([]domain.AutoFillSnapshot, bool)) error {
	s.mu.Lock()

	current, err := s.loadLocked()
	if err != nil {
		s.log.Warn().Err(err).Msg("replacing unreadable snapshot set")
		current = nil
	}

	next, changed := fn(current)
	if !changed {
		s.mu.Unlock()
		return nil
	}

	err = s.saveLocked(next)
	reconciler := s.reconciler
	s.mu.Unlock()

	if err != nil {
		s.log.Error().Err(err).Msg("failed to persist snapshots")
		return err
	}
	if reconciler != nil {
		reconciler.Schedule()
	}
	return nil
}

func (s *Store) loadLocked() ([]domain.AutoFillSnapshot, error) {
	var snapshots []domain.AutoFillSnapshot
	if _, err := s.db.GetJSON(autofillBucket, snapshotsKey, &snapshots); err != nil {
		return nil, err
	}
	return snapshots, nil
}

func (s *Store) saveLocked(snapshots []domain.AutoFillSnapshot) error {
	if snapshots == nil {
		snapshots = []domain.AutoFillSnapshot{}
	}
	return s.db.PutJSON(autofillBucket, snapshotsKey, snapshots)
}

// SortSnapshots orders snapshots by case-folded display title, newest first
// among equal titles.
func SortSnapshots(snapshots []domain.AutoFillSnapshot) {
	fold := cases.Fold()
	keys := make(map[string]string, len(snapshots))
	key := func(s domain.AutoFillSnapshot) string {
		title := s.DisplayTitle()
		k, ok := keys[title]
		if !ok {
			k = fold.String(title)
			keys[title] = k
		}
		return k
	}

	sort.SliceStable(snapshots, func(i, j int) bool {
		ki, kj := key(snapshots[i]), key(snapshots[j])
		if ki != kj {
			return ki < kj
		}
		return snapshots[i].UpdatedAt.After(snapshots[j].UpdatedAt)
	})
}
