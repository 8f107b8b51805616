package vault

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"github.com/vault-cli/vaultguard/internal/clock"
	"github.com/vault-cli/vaultguard/internal/logger"
	"github.com/vault-cli/vaultguard/internal/policy"
	"github.com/vault-cli/vaultguard/internal/secrets"
	"github.com/vault-cli/vaultguard/internal/store"
)

// RegistryFile is the registry's database name inside the data dir.
const RegistryFile = "vaults.db"

var vaultsBucket = []byte("vaults")

// legacyColorKey is the custom-data key older releases stored the color
// under.
const legacyColorKey = "color"

// recordMeta is the persisted form of a Record. Secrets are never part of
// it.
type recordMeta struct {
	ID                     uuid.UUID            `json:"id"`
	Name                   string               `json:"name"`
	Location               []byte               `json:"location,omitempty"`
	Color                  Color                `json:"color,omitempty"`
	RequiresKeyFileContent bool                 `json:"requires_key_file_content"`
	SecurityLevel          policy.SecurityLevel `json:"security_level"`
	CreatedAt              time.Time            `json:"created_at"`

	// CustomData is only read, for migration.
	CustomData map[string]string `json:"custom_data,omitempty"`
}

// Registry persists vault metadata in a shared bbolt file. It hands out one
// Record instance per vault so in-memory caches survive repeated lookups.
type Registry struct {
	db      *store.Shared
	secrets *secrets.Store
	clock   clock.Clock
	log     *logger.Logger

	mu      sync.Mutex
	records map[uuid.UUID]*Record
}

// OpenRegistry opens the registry inside dataDir and migrates legacy
// custom data.
func OpenRegistry(dataDir string, secretStore *secrets.Store, clk clock.Clock, log *logger.Logger) (*Registry, error) {
	if clk == nil {
		clk = clock.Real()
	}
	if log == nil {
		log = logger.Nop()
	}

	db, err := store.OpenShared(filepath.Join(dataDir, RegistryFile), 0, vaultsBucket)
	if err != nil {
		return nil, fmt.Errorf("failed to open vault registry: %w", err)
	}

	r := &Registry{
		db:      db,
		secrets: secretStore,
		clock:   clk,
		log:     log.Component("vault_registry"),
		records: make(map[uuid.UUID]*Record),
	}

	if err := r.migrateCustomData(); err != nil {
		return nil, err
	}
	return r, nil
}

// migrateCustomData moves the legacy string-keyed color into the typed
// field and drops the custom data map. It rewrites only records that need
// it, so it is a no-op after the first run.
func (r *Registry) migrateCustomData() error {
	migrated := 0
	err := r.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(vaultsBucket)
		if b == nil {
			return store.ErrBucketMissing
		}

		updates := make(map[string][]byte)
		err := b.ForEach(func(k, v []byte) error {
			var meta recordMeta
			if err := json.Unmarshal(v, &meta); err != nil {
				r.log.Warn().Err(err).Str("vault_id", string(k)).Msg("skipping unreadable vault record")
				return nil
			}
			if meta.CustomData == nil {
				return nil
			}
			if meta.Color == "" {
				meta.Color = Color(meta.CustomData[legacyColorKey])
			}
			meta.CustomData = nil

			payload, err := json.Marshal(meta)
			if err != nil {
				return err
			}
			updates[string(k)] = payload
			return nil
		})
		if err != nil {
			return err
		}

		for k, v := range updates {
			if err := b.Put([]byte(k), v); err != nil {
				return err
			}
		}
		migrated = len(updates)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to migrate vault records: %w", err)
	}

	if migrated > 0 {
		r.log.Info().Int("count", migrated).Msg("migrated legacy vault custom data")
	}
	return nil
}

// Create registers a new vault. Names are unique, case-insensitively.
func (r *Registry) Create(name string, location []byte, level policy.SecurityLevel) (*Record, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("vault name must not be empty")
	}

	rec := NewRecord(uuid.New(), name, level, r.secrets, r.clock)
	rec.Location = location

	err := r.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(vaultsBucket)
		if b == nil {
			return store.ErrBucketMissing
		}

		err := b.ForEach(func(_, v []byte) error {
			var meta recordMeta
			if json.Unmarshal(v, &meta) == nil && strings.EqualFold(meta.Name, name) {
				return fmt.Errorf("%w: %s", ErrVaultExists, name)
			}
			return nil
		})
		if err != nil {
			return err
		}

		payload, err := json.Marshal(rec.meta())
		if err != nil {
			return err
		}
		return b.Put([]byte(rec.ID.String()), payload)
	})
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.records[rec.ID] = rec
	r.mu.Unlock()

	r.log.Info().Str("vault_id", rec.ID.String()).Str("level", level.String()).Msg("vault created")
	return rec, nil
}

// Get returns the vault with id, refreshed from disk.
func (r *Registry) Get(id uuid.UUID) (*Record, error) {
	var meta recordMeta
	found, err := r.db.GetJSON(vaultsBucket, []byte(id.String()), &meta)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrVaultNotFound, id)
	}
	return r.adopt(meta), nil
}

// Lookup resolves ref as a vault id or, failing that, a vault name.
func (r *Registry) Lookup(ref string) (*Record, error) {
	if id, err := uuid.Parse(ref); err == nil {
		return r.Get(id)
	}

	metas, err := r.listMetas()
	if err != nil {
		return nil, err
	}
	for _, meta := range metas {
		if strings.EqualFold(meta.Name, strings.TrimSpace(ref)) {
			return r.adopt(meta), nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrVaultNotFound, ref)
}

// List returns every vault sorted by name.
func (r *Registry) List() ([]*Record, error) {
	metas, err := r.listMetas()
	if err != nil {
		return nil, err
	}

	records := make([]*Record, 0, len(metas))
	for _, meta := range metas {
		records = append(records, r.adopt(meta))
	}
	return records, nil
}

// listMetas decodes every stored vault record, sorted by name. Sorting
// happens on the decoded copies so shared Records are not read unlocked.
func (r *Registry) listMetas() ([]recordMeta, error) {
	var metas []recordMeta
	err := r.db.ForEach(vaultsBucket, func(k, v []byte) error {
		var meta recordMeta
		if err := json.Unmarshal(v, &meta); err != nil {
			r.log.Warn().Err(err).Str("vault_id", string(k)).Msg("skipping unreadable vault record")
			return nil
		}
		metas = append(metas, meta)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(metas, func(i, j int) bool {
		return strings.ToLower(metas[i].Name) < strings.ToLower(metas[j].Name)
	})
	return metas, nil
}

// Update persists rec's metadata.
func (r *Registry) Update(rec *Record) error {
	found, err := r.db.Has(vaultsBucket, []byte(rec.ID.String()))
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrVaultNotFound, rec.ID)
	}
	return r.db.PutJSON(vaultsBucket, []byte(rec.ID.String()), rec.meta())
}

// Remove forgets the vault and deletes its stored secrets.
func (r *Registry) Remove(ctx context.Context, id uuid.UUID) error {
	rec, err := r.Get(id)
	if err != nil {
		return err
	}

	rec.ClearCache()
	r.secrets.DeleteSecrets(ctx, id.String())

	if err := r.db.Delete(vaultsBucket, []byte(id.String())); err != nil {
		return err
	}

	r.mu.Lock()
	delete(r.records, id)
	r.mu.Unlock()

	r.log.Info().Str("vault_id", id.String()).Msg("vault removed")
	return nil
}

// adopt returns the shared Record for meta, creating it on first sight and
// refreshing its metadata otherwise.
func (r *Registry) adopt(meta recordMeta) *Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[meta.ID]
	if !ok {
		rec = NewRecord(meta.ID, meta.Name, meta.SecurityLevel, r.secrets, r.clock)
		r.records[meta.ID] = rec
	}

	rec.mu.Lock()
	rec.Name = meta.Name
	rec.Location = meta.Location
	rec.Color = meta.Color
	rec.CreatedAt = meta.CreatedAt
	rec.level = meta.SecurityLevel
	rec.requiresKeyFileContent = meta.RequiresKeyFileContent
	if !rec.level.CachesCredentials() {
		rec.clearLocked()
	}
	rec.mu.Unlock()

	return rec
}

func (rec *Record) meta() recordMeta {
	rec.mu.Lock()
	defer rec.mu.Unlock()

	return recordMeta{
		ID:                     rec.ID,
		Name:                   rec.Name,
		Location:               rec.Location,
		Color:                  rec.Color,
		RequiresKeyFileContent: rec.requiresKeyFileContent,
		SecurityLevel:          rec.level,
		CreatedAt:              rec.CreatedAt,
	}
}
