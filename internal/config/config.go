// Package config loads the vaultguard configuration: a YAML file, overlaid
// with VAULTGUARD_* environment variables, with defaults for anything left
// unset.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vault-cli/vaultguard/internal/seal"
	"github.com/vault-cli/vaultguard/internal/store"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "VAULTGUARD_"

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the vaultguard configuration.
type Config struct {
	DataDir     string        `yaml:"data_dir" env:"DATA_DIR"`
	ProcessRole string        `yaml:"process_role" env:"PROCESS_ROLE"`
	LogLevel    string        `yaml:"log_level" env:"LOG_LEVEL"`
	LogFile     string        `yaml:"log_file,omitempty" env:"LOG_FILE"`
	LockTimeout time.Duration `yaml:"lock_timeout" env:"LOCK_TIMEOUT"`

	Secrets     SecretsConfig     `yaml:"secrets" envPrefix:"SECRETS_"`
	Entitlement EntitlementConfig `yaml:"entitlement" envPrefix:"ENTITLEMENT_"`
	AutoFill    AutoFillConfig    `yaml:"autofill" envPrefix:"AUTOFILL_"`
}

// SecretsConfig selects where cached vault credentials are kept.
type SecretsConfig struct {
	// Backend is "file" or "keyring".
	Backend string      `yaml:"backend" env:"BACKEND"`
	Service string      `yaml:"service" env:"SERVICE"`
	KDF     seal.Params `yaml:"kdf" envPrefix:"KDF_"`
}

// EntitlementConfig configures the subscription handling.
type EntitlementConfig struct {
	Window           time.Duration `yaml:"window" env:"WINDOW"`
	ProductIDs       []string      `yaml:"product_ids" env:"PRODUCT_IDS" envSeparator:","`
	PaymentsDisabled bool          `yaml:"payments_disabled,omitempty" env:"PAYMENTS_DISABLED"`
}

// AutoFillConfig configures the snapshot store.
type AutoFillConfig struct {
	// LegacyFile is resolved against DataDir when relative.
	LegacyFile   string        `yaml:"legacy_file" env:"LEGACY_FILE"`
	ClipboardTTL time.Duration `yaml:"clipboard_ttl" env:"CLIPBOARD_TTL"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		DataDir:     filepath.Join(home, ".local", "share", "vaultguard"),
		ProcessRole: "app",
		LogLevel:    "info",
		LockTimeout: store.DefaultTimeout,
		Secrets: SecretsConfig{
			Backend: "file",
			Service: "vaultguard",
			KDF:     seal.DefaultParams(),
		},
		Entitlement: EntitlementConfig{
			Window:     365 * 24 * time.Hour,
			ProductIDs: []string{"com.vaultguard.pro.yearly"},
		},
		AutoFill: AutoFillConfig{
			LegacyFile:   "autofill-credentials.legacy.json",
			ClipboardTTL: 30 * time.Second,
		},
	}
}

// DefaultPath returns $HOME/.config/vaultguard/config.yaml.
func DefaultPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "vaultguard", "config.yaml")
}

// Load builds the configuration. Environment variables win over the file,
// and the file wins over the defaults. A missing file is created with the
// defaults.
func Load(path string) (*Config, error) {
	return newBuilder().
		withEnv().
		withFile(path).
		withDefaults().
		build()
}

// Save writes cfg to path atomically.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := store.AtomicWriteFile(filepath.Clean(path), data); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks the values that have a fixed set of choices or ranges.
func (c *Config) Validate() error {
	var errs []error

	if c.DataDir == "" {
		errs = append(errs, errors.New("data_dir must be set"))
	}
	switch c.ProcessRole {
	case "app", "extension":
	default:
		errs = append(errs, fmt.Errorf("process_role must be app or extension, got %q", c.ProcessRole))
	}
	switch c.Secrets.Backend {
	case "file", "keyring":
	default:
		errs = append(errs, fmt.Errorf("secrets.backend must be file or keyring, got %q", c.Secrets.Backend))
	}
	if err := c.Secrets.KDF.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("secrets.kdf: %w", err))
	}
	if c.Entitlement.Window <= 0 {
		errs = append(errs, errors.New("entitlement.window must be positive"))
	}
	if c.LockTimeout <= 0 {
		errs = append(errs, errors.New("lock_timeout must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// Path returns name inside the data directory.
func (c *Config) Path(name string) string {
	return filepath.Join(c.DataDir, name)
}

// LegacyFilePath returns the absolute path of the legacy snapshot file.
func (c *Config) LegacyFilePath() string {
	if c.AutoFill.LegacyFile == "" || filepath.IsAbs(c.AutoFill.LegacyFile) {
		return c.AutoFill.LegacyFile
	}
	return c.Path(c.AutoFill.LegacyFile)
}
