package autofill

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/vault-cli/vaultguard/internal/domain"
	"github.com/vault-cli/vaultguard/internal/store"
)

//go:generate mockgen -source=index.go -destination=../mock/identity_index_mock.go -package=mock

// IdentityIndex is the OS-level credential identity registry consulted by
// the system autofill provider.
type IdentityIndex interface {
	// Enabled reports whether the user turned the autofill provider on.
	Enabled(ctx context.Context) (bool, error)
	// ReplaceIdentities replaces every published identity with identities.
	ReplaceIdentities(ctx context.Context, identities []domain.Identity) error
}

// IndexFile is the file-backed identity index name inside the data dir.
const IndexFile = "identities.db"

var (
	indexBucket   = []byte("index")
	enabledKey    = []byte("enabled")
	identitiesKey = []byte("identities")
)

// FileIndex is an IdentityIndex kept in a shared bbolt file, for platforms
// without a native identity store. It starts disabled.
type FileIndex struct {
	db *store.Shared
}

// OpenFileIndex opens the index inside dataDir.
func OpenFileIndex(dataDir string) (*FileIndex, error) {
	db, err := store.OpenShared(filepath.Join(dataDir, IndexFile), 0, indexBucket)
	if err != nil {
		return nil, fmt.Errorf("failed to open identity index: %w", err)
	}
	return &FileIndex{db: db}, nil
}

// Enabled implements IdentityIndex.
func (x *FileIndex) Enabled(_ context.Context) (bool, error) {
	var enabled bool
	if _, err := x.db.GetJSON(indexBucket, enabledKey, &enabled); err != nil {
		return false, err
	}
	return enabled, nil
}

// SetEnabled turns the index on or off. Turning it off clears it.
func (x *FileIndex) SetEnabled(ctx context.Context, enabled bool) error {
	if err := x.db.PutJSON(indexBucket, enabledKey, enabled); err != nil {
		return err
	}
	if !enabled {
		return x.db.PutJSON(indexBucket, identitiesKey, []domain.Identity{})
	}
	return nil
}

// ReplaceIdentities implements IdentityIndex.
func (x *FileIndex) ReplaceIdentities(_ context.Context, identities []domain.Identity) error {
	if identities == nil {
		identities = []domain.Identity{}
	}
	return x.db.PutJSON(indexBucket, identitiesKey, identities)
}

// Identities returns the published identities.
func (x *FileIndex) Identities(_ context.Context) ([]domain.Identity, error) {
	identities := []domain.Identity{}
	if _, err := x.db.GetJSON(indexBucket, identitiesKey, &identities); err != nil {
		return nil, err
	}
	return identities, nil
}
