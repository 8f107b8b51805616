package secrets

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/vault-cli/vaultguard/internal/domain"
	"github.com/vault-cli/vaultguard/internal/keychain"
	"github.com/vault-cli/vaultguard/internal/logger"
	"github.com/vault-cli/vaultguard/internal/metrics"
	"github.com/vault-cli/vaultguard/internal/mock"
	"github.com/vault-cli/vaultguard/internal/policy"
	"github.com/vault-cli/vaultguard/internal/seal"
)

func ptr[T any](v T) *T { return &v }

func newTestStore(t *testing.T, presence keychain.PresenceChecker) (*Store, *keychain.Keychain) {
	t.Helper()
	backend, err := keychain.NewFileBackend(t.TempDir(), seal.Params{Memory: 1024, Iterations: 1, Parallelism: 1})
	require.NoError(t, err)
	kc := keychain.New(backend, presence, logger.Nop())
	return New(kc, logger.Nop()), kc
}

func TestStore_SaveAndRead(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, nil)

	s.Save(ctx, "v1", domain.Secrets{Password: ptr("hunter2"), KeyFileContent: []byte{1, 2}}, policy.Convenience)

	assert.True(t, s.HasSecrets(ctx, "v1"))
	got := s.Credentials(ctx, "v1")
	require.NotNil(t, got)
	assert.Equal(t, "hunter2", *got.Password)
	assert.Equal(t, []byte{1, 2}, got.KeyFileContent)
}

func TestStore_SaveOverwrites(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, nil)

	s.Save(ctx, "v1", domain.Secrets{Password: ptr("one")}, policy.Convenience)
	s.Save(ctx, "v1", domain.Secrets{Password: ptr("two")}, policy.Convenience)

	got := s.Credentials(ctx, "v1")
	require.NotNil(t, got)
	assert.Equal(t, "two", *got.Password)
	assert.Nil(t, got.KeyFileContent)
}

func TestStore_SaveEmptyDeletes(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, nil)

	s.Save(ctx, "v1", domain.Secrets{Password: ptr("x")}, policy.Convenience)
	s.Save(ctx, "v1", domain.Secrets{}, policy.Convenience)

	assert.False(t, s.HasSecrets(ctx, "v1"))
	assert.Nil(t, s.Credentials(ctx, "v1"))
}

func TestStore_EmptyKeyFileCountsAsAbsent(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, nil)

	s.Save(ctx, "v1", domain.Secrets{KeyFileContent: []byte{}}, policy.Convenience)
	assert.False(t, s.HasSecrets(ctx, "v1"))
	assert.Nil(t, s.Credentials(ctx, "v1"))

	s.Save(ctx, "v1", domain.Secrets{Password: ptr("x"), KeyFileContent: []byte{}}, policy.Convenience)
	got := s.Credentials(ctx, "v1")
	require.NotNil(t, got)
	assert.Equal(t, "x", *got.Password)
	assert.Empty(t, got.KeyFileContent)
}

func TestStore_SaveUnderParanoidDeletes(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, nil)

	s.Save(ctx, "v1", domain.Secrets{Password: ptr("x")}, policy.Convenience)
	s.Save(ctx, "v1", domain.Secrets{Password: ptr("x")}, policy.Paranoid)

	assert.False(t, s.HasSecrets(ctx, "v1"))
}

func TestStore_BalancedRequiresPresenceOnRead(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	gate := mock.NewMockBiometricGate(ctrl)
	s, _ := newTestStore(t, gate)

	s.Save(ctx, "v1", domain.Secrets{Password: ptr("x")}, policy.Balanced)

	// HasSecrets must not prompt.
	assert.True(t, s.HasSecrets(ctx, "v1"))

	gate.EXPECT().Evaluate(gomock.Any(), gomock.Any()).Return(domain.BiometricFailure, nil)
	assert.Nil(t, s.Credentials(ctx, "v1"), "denied access reads as absent")

	gate.EXPECT().Evaluate(gomock.Any(), gomock.Any()).Return(domain.BiometricSuccess, nil)
	got := s.Credentials(ctx, "v1")
	require.NotNil(t, got)
	assert.Equal(t, "x", *got.Password)
}

func TestStore_DecodeFailureReadsAsAbsent(t *testing.T) {
	ctx := context.Background()
	s, kc := newTestStore(t, nil)

	require.NoError(t, kc.Add(ctx, "v1", policy.AccessAfterFirstUnlock, []byte{0xff, 0x00}))

	before := testutil.ToFloat64(metrics.SecretStoreOps.WithLabelValues("read", "error"))
	assert.Nil(t, s.Credentials(ctx, "v1"))
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.SecretStoreOps.WithLabelValues("read", "error")))
}

func TestStore_DeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, nil)

	s.DeleteSecrets(ctx, "missing")
	s.Save(ctx, "v1", domain.Secrets{Password: ptr("x")}, policy.Convenience)
	s.DeleteSecrets(ctx, "v1")
	s.DeleteSecrets(ctx, "v1")

	assert.False(t, s.HasSecrets(ctx, "v1"))
}
