package vault

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/vault-cli/vaultguard/internal/clock"
	"github.com/vault-cli/vaultguard/internal/domain"
	"github.com/vault-cli/vaultguard/internal/keychain"
	"github.com/vault-cli/vaultguard/internal/logger"
	"github.com/vault-cli/vaultguard/internal/mock"
	"github.com/vault-cli/vaultguard/internal/policy"
	"github.com/vault-cli/vaultguard/internal/seal"
	"github.com/vault-cli/vaultguard/internal/secrets"
)

func ptr[T any](v T) *T { return &v }

var testTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newSecretStore(t *testing.T, dir string, presence keychain.PresenceChecker) *secrets.Store {
	t.Helper()
	backend, err := keychain.NewFileBackend(dir, seal.Params{Memory: 1024, Iterations: 1, Parallelism: 1})
	require.NoError(t, err)
	return secrets.New(keychain.New(backend, presence, logger.Nop()), logger.Nop())
}

func newTestRecord(t *testing.T, level policy.SecurityLevel) (*Record, *secrets.Store, *clock.Fake) {
	t.Helper()
	store := newSecretStore(t, t.TempDir(), nil)
	clk := clock.NewFake(testTime)
	return NewRecord(uuid.New(), "Personal", level, store, clk), store, clk
}

func TestAttach_NonCachingLevelNeverStores(t *testing.T) {
	ctx := context.Background()

	for _, level := range policy.Levels() {
		if level.CachesCredentials() {
			continue
		}
		t.Run(level.String(), func(t *testing.T) {
			rec, store, _ := newTestRecord(t, level)

			rec.Attach(ctx, ptr("pw"), []byte("key"))
			assert.False(t, store.HasSecrets(ctx, rec.ID.String()))
			assert.False(t, rec.HasCachedCredentials(ctx))

			rec.Attach(ctx, ptr("pw"), nil, WithSecurityLevel(level))
			assert.False(t, store.HasSecrets(ctx, rec.ID.String()))
		})
	}
}

func TestAttach_DowngradeToParanoidPurges(t *testing.T) {
	ctx := context.Background()

	for _, from := range []policy.SecurityLevel{policy.Balanced, policy.Convenience} {
		t.Run(from.String(), func(t *testing.T) {
			rec, store, _ := newTestRecord(t, from)

			rec.Attach(ctx, ptr("pw"), []byte("key"))
			require.True(t, store.HasSecrets(ctx, rec.ID.String()))
			require.True(t, rec.HasCachedCredentials(ctx))

			rec.Attach(ctx, ptr("pw"), []byte("key"), WithSecurityLevel(policy.Paranoid))

			assert.False(t, store.HasSecrets(ctx, rec.ID.String()))
			assert.False(t, rec.HasCachedCredentials(ctx))
			_, ok := rec.CachedPassword()
			assert.False(t, ok)
			_, ok = rec.CachedKeyFileContent()
			assert.False(t, ok)
			assert.Equal(t, policy.Paranoid, rec.SecurityLevel())
		})
	}
}

func TestAttach_UpgradePreservesSecret(t *testing.T) {
	ctx := context.Background()
	rec, store, _ := newTestRecord(t, policy.Balanced)

	rec.Attach(ctx, ptr("pw"), []byte("key"))
	rec.Attach(ctx, ptr("pw"), []byte("key"), WithSecurityLevel(policy.Convenience))

	// Convenience items are readable without a presence check.
	got := store.Credentials(ctx, rec.ID.String())
	require.NotNil(t, got)
	assert.Equal(t, "pw", *got.Password)
	assert.Equal(t, []byte("key"), got.KeyFileContent)
}

func TestAttach_ClearingSecretsDeletesEntry(t *testing.T) {
	ctx := context.Background()
	rec, store, _ := newTestRecord(t, policy.Convenience)

	rec.Attach(ctx, ptr("pw"), nil)
	require.True(t, store.HasSecrets(ctx, rec.ID.String()))

	rec.Attach(ctx, nil, nil)
	assert.False(t, store.HasSecrets(ctx, rec.ID.String()))
	assert.False(t, rec.HasCachedCredentials(ctx))
}

func TestAttach_EmptyKeyFileIsNotCached(t *testing.T) {
	ctx := context.Background()
	rec, store, _ := newTestRecord(t, policy.Convenience)

	rec.Attach(ctx, nil, []byte{})
	assert.False(t, store.HasSecrets(ctx, rec.ID.String()))
	assert.False(t, rec.HasCachedCredentials(ctx))
	assert.True(t, rec.RequiresKeyFileContent())
}

func TestAttach_KeyFileFlagIsSticky(t *testing.T) {
	ctx := context.Background()
	rec, _, _ := newTestRecord(t, policy.Convenience)

	assert.False(t, rec.RequiresKeyFileContent())

	rec.Attach(ctx, ptr("pw"), []byte("key"))
	assert.True(t, rec.RequiresKeyFileContent())

	rec.Attach(ctx, ptr("pw"), nil)
	assert.True(t, rec.RequiresKeyFileContent(), "clearing the cached key file keeps the flag")

	rec.Attach(ctx, ptr("pw"), nil, WithRequiresKeyFileContent(false))
	assert.False(t, rec.RequiresKeyFileContent())
}

func TestLoadCachedCredentials(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := newSecretStore(t, dir, nil)
	clk := clock.NewFake(testTime)
	id := uuid.New()

	writer := NewRecord(id, "Personal", policy.Convenience, store, clk)
	writer.Attach(ctx, ptr("pw"), []byte("key"))

	// A fresh instance, as in another process, recovers from the store.
	reader := NewRecord(id, "Personal", policy.Convenience, newSecretStore(t, dir, nil), clk)
	_, ok := reader.CachedPassword()
	require.False(t, ok)

	assert.True(t, reader.LoadCachedCredentials(ctx))
	password, ok := reader.CachedPassword()
	require.True(t, ok)
	assert.Equal(t, "pw", password)
	content, ok := reader.CachedKeyFileContent()
	require.True(t, ok)
	assert.Equal(t, []byte("key"), content)

	paranoid := NewRecord(id, "Personal", policy.Paranoid, store, clk)
	assert.False(t, paranoid.LoadCachedCredentials(ctx))

	missing := NewRecord(uuid.New(), "Other", policy.Convenience, store, clk)
	assert.False(t, missing.LoadCachedCredentials(ctx))
}

func TestHasCachedCredentials_DoesNotPrompt(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	gate := mock.NewMockBiometricGate(ctrl)

	dir := t.TempDir()
	store := newSecretStore(t, dir, gate)
	id := uuid.New()

	writer := NewRecord(id, "Personal", policy.Balanced, store, clock.NewFake(testTime))
	writer.Attach(ctx, ptr("pw"), nil)

	reader := NewRecord(id, "Personal", policy.Balanced, newSecretStore(t, dir, gate), clock.NewFake(testTime))
	assert.True(t, reader.HasCachedCredentials(ctx))
}

func TestUnlock_MemoryCacheWithinGrace(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	gate := mock.NewMockBiometricGate(ctrl)

	rec, _, clk := newTestRecord(t, policy.Balanced)
	rec.Attach(ctx, ptr("pw"), nil)

	clk.Advance(59 * time.Minute)
	creds, err := NewUnlocker(gate, logger.Nop()).Unlock(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, SourceMemory, creds.Source)
	assert.Equal(t, "pw", *creds.Password)
}

func TestUnlock_AfterGraceRequiresBiometrics(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	gate := mock.NewMockBiometricGate(ctrl)

	dir := t.TempDir()
	clk := clock.NewFake(testTime)
	rec := NewRecord(uuid.New(), "Personal", policy.Balanced, newSecretStore(t, dir, gate), clk)
	rec.Attach(ctx, ptr("pw"), []byte("key"))

	clk.Advance(time.Hour)
	unlocker := NewUnlocker(gate, logger.Nop())

	gate.EXPECT().Evaluate(gomock.Any(), gomock.Any()).Return(domain.BiometricFailure, nil)
	_, err := unlocker.Unlock(ctx, rec)
	assert.ErrorIs(t, err, ErrInteractiveEntryRequired)
	_, ok := rec.CachedPassword()
	assert.False(t, ok, "a stale memory cache is dropped")

	// One successful challenge covers the keychain read as well.
	gate.EXPECT().Evaluate(gomock.Any(), gomock.Any()).Return(domain.BiometricSuccess, nil).Times(1)
	creds, err := unlocker.Unlock(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, SourceKeychain, creds.Source)
	assert.Equal(t, "pw", *creds.Password)
	assert.Equal(t, []byte("key"), creds.KeyFileContent)

	creds, err = unlocker.Unlock(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, SourceMemory, creds.Source)
}

func TestUnlock_GateErrorFallsBackToInteractive(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	gate := mock.NewMockBiometricGate(ctrl)

	rec, _, clk := newTestRecord(t, policy.Convenience)
	rec.Attach(ctx, ptr("pw"), nil)
	clk.Advance(25 * time.Hour)

	gate.EXPECT().Evaluate(gomock.Any(), gomock.Any()).Return(domain.BiometricUnavailable, errors.New("no sensor"))
	_, err := NewUnlocker(gate, logger.Nop()).Unlock(ctx, rec)
	assert.ErrorIs(t, err, ErrInteractiveEntryRequired)
}

func TestUnlock_ParanoidAlwaysInteractive(t *testing.T) {
	ctx := context.Background()
	rec, _, _ := newTestRecord(t, policy.Paranoid)
	rec.Attach(ctx, ptr("pw"), nil)

	_, err := NewUnlocker(nil, logger.Nop()).Unlock(ctx, rec)
	assert.ErrorIs(t, err, ErrInteractiveEntryRequired)
}

func TestUnlock_NilGateIsUnavailable(t *testing.T) {
	ctx := context.Background()
	rec, _, clk := newTestRecord(t, policy.Convenience)
	rec.Attach(ctx, ptr("pw"), nil)
	clk.Advance(48 * time.Hour)

	_, err := NewUnlocker(nil, logger.Nop()).Unlock(ctx, rec)
	assert.ErrorIs(t, err, ErrInteractiveEntryRequired)
}
