package vault

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vault-cli/vaultguard/internal/clock"
	"github.com/vault-cli/vaultguard/internal/domain"
	"github.com/vault-cli/vaultguard/internal/policy"
	"github.com/vault-cli/vaultguard/internal/secrets"
	"github.com/vault-cli/vaultguard/internal/secure"
)

// Color is the accent color shown for a vault, as "#rrggbb".
type Color string

// Record is one password database reference. Metadata fields are exported;
// the security level, the key-file flag, and the in-memory credential cache
// are guarded and only change through Attach and the cache methods.
type Record struct {
	ID        uuid.UUID
	Name      string
	Location  []byte
	Color     Color
	CreatedAt time.Time

	secrets *secrets.Store
	clock   clock.Clock

	mu                     sync.Mutex
	level                  policy.SecurityLevel
	requiresKeyFileContent bool
	cachedPassword         *secure.Buffer
	cachedKeyFileContent   *secure.Buffer
	cachedAt               time.Time
}

// NewRecord returns a record bound to store.
func NewRecord(id uuid.UUID, name string, level policy.SecurityLevel, store *secrets.Store, clk clock.Clock) *Record {
	if clk == nil {
		clk = clock.Real()
	}
	return &Record{
		ID:        id,
		Name:      name,
		CreatedAt: clk.Now().UTC(),
		secrets:   store,
		clock:     clk,
		level:     level,
	}
}

// SecurityLevel returns the vault's protection tier.
func (r *Record) SecurityLevel() policy.SecurityLevel {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.level
}

// RequiresKeyFileContent reports whether the vault needs a key file to open.
func (r *Record) RequiresKeyFileContent() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.requiresKeyFileContent
}

type attachOptions struct {
	requiresKeyFileContent *bool
	level                  *policy.SecurityLevel
}

// AttachOption adjusts a single Attach call.
type AttachOption func(*attachOptions)

// WithRequiresKeyFileContent sets the key-file flag explicitly instead of
// inferring it from the key-file argument.
func WithRequiresKeyFileContent(required bool) AttachOption {
	return func(o *attachOptions) { o.requiresKeyFileContent = &required }
}

// WithSecurityLevel changes the vault's level before the cache decision is
// made.
func WithSecurityLevel(level policy.SecurityLevel) AttachOption {
	return func(o *attachOptions) { o.level = &level }
}

// Attach replaces the cached credentials, optionally together with the
// security level, and then saves them to the secret store or deletes the
// stored entry. The save-or-delete step runs on every call, so changing the
// level alone is enough to purge a cache.
func (r *Record) Attach(ctx context.Context, password *string, keyFileContent []byte, opts ...AttachOption) {
	var o attachOptions
	for _, opt := range opts {
		opt(&o)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if o.level != nil {
		r.level = *o.level
	}
	rules := r.level.Rules()

	switch {
	case o.requiresKeyFileContent != nil:
		r.requiresKeyFileContent = *o.requiresKeyFileContent
	case keyFileContent != nil:
		r.requiresKeyFileContent = true
	}
	if len(keyFileContent) == 0 {
		keyFileContent = nil
	}

	r.clearLocked()
	if rules.CachesCredentials {
		r.setCacheLocked(password, keyFileContent)
	}

	if !rules.CachesCredentials || (password == nil && keyFileContent == nil) {
		r.secrets.DeleteSecrets(ctx, r.ID.String())
		return
	}

	stored := domain.Secrets{Password: password}
	if rules.RememberKeyFileContent {
		stored.KeyFileContent = keyFileContent
	}
	r.secrets.Save(ctx, r.ID.String(), stored, r.level)
}

// LoadCachedCredentials fills the in-memory cache from the secret store and
// reports whether anything was recovered. It does not gate on biometrics;
// callers do that first.
func (r *Record) LoadCachedCredentials(ctx context.Context) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.level.CachesCredentials() {
		return false
	}

	stored := r.secrets.Credentials(ctx, r.ID.String())
	if stored == nil {
		return false
	}

	r.clearLocked()
	r.setCacheLocked(stored.Password, stored.KeyFileContent)
	return true
}

// HasCachedCredentials reports whether credentials are cached in memory or,
// when the level allows caching, in the secret store. The store is queried
// for existence only.
func (r *Record) HasCachedCredentials(ctx context.Context) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cachedPassword != nil || r.cachedKeyFileContent != nil {
		return true
	}
	if !r.level.CachesCredentials() {
		return false
	}
	return r.secrets.HasSecrets(ctx, r.ID.String())
}

// CachedPassword returns the in-memory password.
func (r *Record) CachedPassword() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cachedPassword == nil {
		return "", false
	}
	password, err := r.cachedPassword.String()
	if err != nil {
		return "", false
	}
	return password, true
}

// CachedKeyFileContent returns the in-memory key-file bytes.
func (r *Record) CachedKeyFileContent() ([]byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cachedKeyFileContent == nil {
		return nil, false
	}
	content, err := r.cachedKeyFileContent.Bytes()
	if err != nil {
		return nil, false
	}
	return content, true
}

// ClearCache drops the in-memory credentials. The secret store is not
// touched.
func (r *Record) ClearCache() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clearLocked()
}

// cacheFresh reports whether an in-memory cache exists and is younger than
// the level's grace interval.
func (r *Record) cacheFresh() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cachedPassword == nil && r.cachedKeyFileContent == nil {
		return false
	}
	return r.clock.Now().Sub(r.cachedAt) < r.level.UnlockGraceInterval()
}

func (r *Record) setCacheLocked(password *string, keyFileContent []byte) {
	if password != nil {
		r.cachedPassword = secure.NewStringBuffer(*password)
	}
	if keyFileContent != nil {
		r.cachedKeyFileContent = secure.NewBuffer(keyFileContent)
	}
	if r.cachedPassword != nil || r.cachedKeyFileContent != nil {
		r.cachedAt = r.clock.Now()
	}
}

func (r *Record) clearLocked() {
	if r.cachedPassword != nil {
		r.cachedPassword.Destroy()
		r.cachedPassword = nil
	}
	if r.cachedKeyFileContent != nil {
		r.cachedKeyFileContent.Destroy()
		r.cachedKeyFileContent = nil
	}
	r.cachedAt = time.Time{}
}
