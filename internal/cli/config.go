package cli

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/vault-cli/vaultguard/internal/config"
)

// configKey exposes one setting to `config get` and `config set`.
type configKey struct {
	get func(c *config.Config) string
	set func(c *config.Config, value string) error
}

func durationSetter(field func(c *config.Config) *time.Duration) func(*config.Config, string) error {
	return func(c *config.Config, value string) error {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}
		*field(c) = d
		return nil
	}
}

var configKeys = map[string]configKey{
	"data_dir": {
		get: func(c *config.Config) string { return c.DataDir },
		set: func(c *config.Config, v string) error { c.DataDir = v; return nil },
	},
	"process_role": {
		get: func(c *config.Config) string { return c.ProcessRole },
		set: func(c *config.Config, v string) error { c.ProcessRole = v; return nil },
	},
	"log_level": {
		get: func(c *config.Config) string { return c.LogLevel },
		set: func(c *config.Config, v string) error { c.LogLevel = v; return nil },
	},
	"log_file": {
		get: func(c *config.Config) string { return c.LogFile },
		set: func(c *config.Config, v string) error { c.LogFile = v; return nil },
	},
	"lock_timeout": {
		get: func(c *config.Config) string { return c.LockTimeout.String() },
		set: durationSetter(func(c *config.Config) *time.Duration { return &c.LockTimeout }),
	},
	"secrets.backend": {
		get: func(c *config.Config) string { return c.Secrets.Backend },
		set: func(c *config.Config, v string) error { c.Secrets.Backend = v; return nil },
	},
	"secrets.service": {
		get: func(c *config.Config) string { return c.Secrets.Service },
		set: func(c *config.Config, v string) error { c.Secrets.Service = v; return nil },
	},
	"entitlement.window": {
		get: func(c *config.Config) string { return c.Entitlement.Window.String() },
		set: durationSetter(func(c *config.Config) *time.Duration { return &c.Entitlement.Window }),
	},
	"entitlement.product_ids": {
		get: func(c *config.Config) string { return strings.Join(c.Entitlement.ProductIDs, ",") },
		set: func(c *config.Config, v string) error {
			c.Entitlement.ProductIDs = strings.Split(v, ",")
			return nil
		},
	},
	"autofill.legacy_file": {
		get: func(c *config.Config) string { return c.AutoFill.LegacyFile },
		set: func(c *config.Config, v string) error { c.AutoFill.LegacyFile = v; return nil },
	},
	"autofill.clipboard_ttl": {
		get: func(c *config.Config) string { return c.AutoFill.ClipboardTTL.String() },
		set: durationSetter(func(c *config.Config) *time.Duration { return &c.AutoFill.ClipboardTTL }),
	},
}

func configKeyNames() string {
	names := make([]string, 0, len(configKeys))
	for name := range configKeys {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

func newConfigCmd(a *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage vaultguard configuration",
		Long: `Manage vaultguard configuration settings.

Configuration is stored in ~/.config/vaultguard/config.yaml by default.
VAULTGUARD_* environment variables override the file.

Example:
  vaultguard config path
  vaultguard config show
  vaultguard config get entitlement.window
  vaultguard config set autofill.clipboard_ttl 15s`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeOutput(cmd.OutOrStdout(), "%s\n", a.cfgFile)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := yaml.Marshal(a.cfg)
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			return writeString(cmd.OutOrStdout(), string(data))
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get KEY",
		Short: "Get a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, ok := configKeys[args[0]]
			if !ok {
				return fmt.Errorf("unknown config key %q (valid: %s)", args[0], configKeyNames())
			}
			return writeOutput(cmd.OutOrStdout(), "%s\n", key.get(a.cfg))
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Set a configuration value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, ok := configKeys[args[0]]
			if !ok {
				return fmt.Errorf("unknown config key %q (valid: %s)", args[0], configKeyNames())
			}

			updated := *a.cfg
			if err := key.set(&updated, args[1]); err != nil {
				return err
			}
			if err := updated.Validate(); err != nil {
				return err
			}
			if err := config.Save(&updated, a.cfgFile); err != nil {
				return err
			}

			a.cfg = &updated
			return writeOutput(cmd.OutOrStdout(), "✓ %s = %s\n", args[0], key.get(&updated))
		},
	})

	return cmd
}
