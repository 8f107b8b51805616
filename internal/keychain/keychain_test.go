package keychain

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
	"go.uber.org/mock/gomock"

	"github.com/vault-cli/vaultguard/internal/domain"
	"github.com/vault-cli/vaultguard/internal/logger"
	"github.com/vault-cli/vaultguard/internal/mock"
	"github.com/vault-cli/vaultguard/internal/policy"
	"github.com/vault-cli/vaultguard/internal/seal"
)

func testParams() seal.Params {
	return seal.Params{Memory: 1024, Iterations: 1, Parallelism: 1}
}

func backends(t *testing.T) map[string]func(t *testing.T) Backend {
	return map[string]func(t *testing.T) Backend{
		"file": func(t *testing.T) Backend {
			b, err := NewFileBackend(t.TempDir(), testParams())
			require.NoError(t, err)
			return b
		},
		"keyring": func(t *testing.T) Backend {
			keyring.MockInit()
			return NewKeyringBackend("vaultguard-test-" + t.Name())
		},
	}
}

func TestKeychain_Lifecycle(t *testing.T) {
	for name, newBackend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			kc := New(newBackend(t), nil, logger.Nop())

			found, err := kc.Exists(ctx, "vault-1")
			require.NoError(t, err)
			assert.False(t, found)

			require.NoError(t, kc.Add(ctx, "vault-1", policy.AccessAfterFirstUnlock, []byte("payload")))
			assert.ErrorIs(t, kc.Add(ctx, "vault-1", policy.AccessAfterFirstUnlock, []byte("again")), ErrDuplicateItem)

			found, err = kc.Exists(ctx, "vault-1")
			require.NoError(t, err)
			assert.True(t, found)

			data, err := kc.Copy(ctx, "vault-1")
			require.NoError(t, err)
			assert.Equal(t, []byte("payload"), data)

			require.NoError(t, kc.Delete(ctx, "vault-1"))
			assert.ErrorIs(t, kc.Delete(ctx, "vault-1"), ErrItemNotFound)

			_, err = kc.Copy(ctx, "vault-1")
			assert.ErrorIs(t, err, ErrItemNotFound)
		})
	}
}

func TestKeychain_UserPresenceGatesCopyOnly(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	gate := mock.NewMockBiometricGate(ctrl)

	backend, err := NewFileBackend(t.TempDir(), testParams())
	require.NoError(t, err)
	kc := New(backend, gate, logger.Nop())

	require.NoError(t, kc.Add(ctx, "vault-1", policy.AccessUserPresence, []byte("secret")))

	// Existence queries never prompt; the mock fails on unexpected calls.
	found, err := kc.Exists(ctx, "vault-1")
	require.NoError(t, err)
	assert.True(t, found)

	gomock.InOrder(
		gate.EXPECT().Evaluate(gomock.Any(), gomock.Any()).Return(domain.BiometricSuccess, nil),
		gate.EXPECT().Evaluate(gomock.Any(), gomock.Any()).Return(domain.BiometricFailure, nil),
		gate.EXPECT().Evaluate(gomock.Any(), gomock.Any()).Return(domain.BiometricUnavailable, nil),
		gate.EXPECT().Evaluate(gomock.Any(), gomock.Any()).Return(domain.BiometricFailure, errors.New("cancelled")),
	)

	data, err := kc.Copy(ctx, "vault-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("secret"), data)

	for i := 0; i < 3; i++ {
		_, err = kc.Copy(ctx, "vault-1")
		assert.ErrorIs(t, err, ErrAccessDenied)
	}
}

func TestKeychain_AfterFirstUnlockDoesNotPrompt(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	gate := mock.NewMockBiometricGate(ctrl)

	backend, err := NewFileBackend(t.TempDir(), testParams())
	require.NoError(t, err)
	kc := New(backend, gate, logger.Nop())

	require.NoError(t, kc.Add(ctx, "vault-1", policy.AccessAfterFirstUnlock, []byte("secret")))
	data, err := kc.Copy(ctx, "vault-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("secret"), data)
}

func TestKeychain_UserPresenceWithoutChecker(t *testing.T) {
	ctx := context.Background()
	backend, err := NewFileBackend(t.TempDir(), testParams())
	require.NoError(t, err)
	kc := New(backend, nil, logger.Nop())

	require.NoError(t, kc.Add(ctx, "vault-1", policy.AccessUserPresence, []byte("secret")))
	_, err = kc.Copy(ctx, "vault-1")
	assert.ErrorIs(t, err, ErrAccessDenied)
}

func TestKeychain_RejectsUnknownAccess(t *testing.T) {
	backend, err := NewFileBackend(t.TempDir(), testParams())
	require.NoError(t, err)
	kc := New(backend, nil, logger.Nop())

	assert.Error(t, kc.Add(context.Background(), "vault-1", "", []byte("x")))
}

func TestFileBackend_ItemsAreSealed(t *testing.T) {
	dir := t.TempDir()
	backend, err := NewFileBackend(dir, testParams())
	require.NoError(t, err)

	require.NoError(t, backend.Insert("vault-1", []byte("plaintext-marker")))

	stored, err := backend.db.Get(itemsBucket, []byte("vault-1"))
	require.NoError(t, err)
	assert.NotContains(t, string(stored), "plaintext-marker")

	// A second backend on the same directory shares the device key.
	other, err := NewFileBackend(dir, testParams())
	require.NoError(t, err)
	raw, err := other.Load("vault-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("plaintext-marker"), raw)
}

func TestFileBackend_ItemBoundToAccount(t *testing.T) {
	backend, err := NewFileBackend(t.TempDir(), testParams())
	require.NoError(t, err)

	require.NoError(t, backend.Insert("vault-1", []byte("secret")))
	sealed, err := backend.db.Get(itemsBucket, []byte("vault-1"))
	require.NoError(t, err)
	require.NoError(t, backend.db.Put(itemsBucket, []byte("vault-2"), sealed))

	_, err = backend.Load("vault-2")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestOpenBackend(t *testing.T) {
	b, err := OpenBackend("file", t.TempDir(), "", testParams())
	require.NoError(t, err)
	assert.Equal(t, "file", b.Name())

	b, err = OpenBackend("keyring", t.TempDir(), "svc", testParams())
	require.NoError(t, err)
	assert.Equal(t, "keyring", b.Name())

	_, err = OpenBackend("cloud", t.TempDir(), "", testParams())
	assert.Error(t, err)
}

func TestKeychain_ConfirmedPresenceSkipsChallenge(t *testing.T) {
	ctrl := gomock.NewController(t)
	gate := mock.NewMockBiometricGate(ctrl)

	backend, err := NewFileBackend(t.TempDir(), testParams())
	require.NoError(t, err)
	kc := New(backend, gate, logger.Nop())

	ctx := WithConfirmedPresence(context.Background())
	require.NoError(t, kc.Add(ctx, "vault-1", policy.AccessUserPresence, []byte("secret")))

	data, err := kc.Copy(ctx, "vault-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("secret"), data)
}
