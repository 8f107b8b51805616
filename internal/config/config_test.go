package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/vault-cli/vaultguard/internal/seal"
)

func TestLoad_CreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var onDisk Config
	require.NoError(t, yaml.Unmarshal(data, &onDisk))
	assert.Equal(t, 365*24*time.Hour, onDisk.Entitlement.Window)
	assert.Equal(t, "file", onDisk.Secrets.Backend)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
data_dir: /srv/vaultguard
process_role: extension
entitlement:
  window: 720h
secrets:
  kdf:
    memory: 2048
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/vaultguard", cfg.DataDir)
	assert.Equal(t, "extension", cfg.ProcessRole)
	assert.Equal(t, 720*time.Hour, cfg.Entitlement.Window)
	assert.Equal(t, uint32(2048), cfg.Secrets.KDF.Memory)
	assert.Equal(t, uint32(seal.DefaultIterations), cfg.Secrets.KDF.Iterations, "unset nested fields keep defaults")
	assert.Equal(t, "file", cfg.Secrets.Backend)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: warn\nsecrets:\n  backend: file\n"), 0o600))

	t.Setenv("VAULTGUARD_LOG_LEVEL", "debug")
	t.Setenv("VAULTGUARD_SECRETS_BACKEND", "keyring")
	t.Setenv("VAULTGUARD_ENTITLEMENT_PRODUCT_IDS", "a,b")
	t.Setenv("VAULTGUARD_AUTOFILL_CLIPBOARD_TTL", "5s")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "keyring", cfg.Secrets.Backend)
	assert.Equal(t, []string{"a", "b"}, cfg.Entitlement.ProductIDs)
	assert.Equal(t, 5*time.Second, cfg.AutoFill.ClipboardTTL)
}

func TestLoad_InvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("process_role: daemon\nsecrets:\n  backend: cloud\n"), 0o600))

	_, err := Load(path)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	require.NoError(t, os.WriteFile(path, []byte("{not yaml"), 0o600))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Entitlement.Window = -time.Hour
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}

func TestLegacyFilePath(t *testing.T) {
	cfg := &Config{DataDir: "/data", AutoFill: AutoFillConfig{LegacyFile: "legacy.json"}}
	assert.Equal(t, filepath.Join("/data", "legacy.json"), cfg.LegacyFilePath())

	cfg.AutoFill.LegacyFile = "/abs/legacy.json"
	assert.Equal(t, "/abs/legacy.json", cfg.LegacyFilePath())
}
