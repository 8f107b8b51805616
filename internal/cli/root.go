// Package cli implements the vaultguard command tree.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/vault-cli/vaultguard/internal/clock"
	"github.com/vault-cli/vaultguard/internal/config"
	"github.com/vault-cli/vaultguard/internal/logger"
	"github.com/vault-cli/vaultguard/internal/vault"
)

// appState carries the global flags and the lazily opened services of one
// invocation.
type appState struct {
	cfgFile string
	dataDir string
	verbose bool

	in    io.Reader
	gate  vault.BiometricGate
	clock clock.Clock

	cfg *config.Config
	log *logger.Logger
	svc *services
}

// services opens the stores on first use.
func (a *appState) services() (*services, error) {
	if a.svc != nil {
		return a.svc, nil
	}
	if a.cfg == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}

	svc, err := openServices(a.cfg, a.gate, a.log, a.clock)
	if err != nil {
		return nil, err
	}
	a.svc = svc
	return svc, nil
}

func (a *appState) close(ctx context.Context) error {
	if a.svc == nil {
		return nil
	}
	err := a.svc.close(ctx)
	a.svc = nil
	return err
}

func (a *appState) loadConfig() error {
	if a.cfgFile == "" {
		a.cfgFile = config.DefaultPath()
	}

	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if a.dataDir != "" {
		cfg.DataDir = a.dataDir
	}
	if a.verbose {
		cfg.LogLevel = "debug"
	}

	a.cfg = cfg
	a.log = logger.NewFileLogger(cfg.LogFile, cfg.ProcessRole, cfg.LogLevel)
	return nil
}

func newRootCmd(a *appState) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "vaultguard",
		Short: "Credential caching, entitlement, and autofill state for local vaults",
		Long: `vaultguard keeps the state that sits next to your password databases:

- cached vault credentials, protected according to each vault's security level
- the locally cached subscription entitlement
- the autofill snapshot set and the identities published from it

Nothing is sent over the network.`,
		Version:       "1.0.0",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.loadConfig()
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default is $HOME/.config/vaultguard/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&a.dataDir, "data-dir", "", "data directory (overrides data_dir)")
	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(newVaultCmd(a))
	rootCmd.AddCommand(newEntitlementCmd(a))
	rootCmd.AddCommand(newAutofillCmd(a))
	rootCmd.AddCommand(newIdentitiesCmd(a))
	rootCmd.AddCommand(newConfigCmd(a))
	rootCmd.AddCommand(newDoctorCmd(a))

	return rootCmd
}

// run executes args against a fresh command tree and always closes the
// services it opened.
func run(ctx context.Context, a *appState, args []string, stdout, stderr io.Writer) error {
	rootCmd := newRootCmd(a)
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	if a.in != nil {
		rootCmd.SetIn(a.in)
	}

	err := rootCmd.ExecuteContext(ctx)
	if cerr := a.close(ctx); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// Execute runs the command line of the current process.
func Execute(ctx context.Context) error {
	a := &appState{
		in:   os.Stdin,
		gate: terminalGate{in: os.Stdin, out: os.Stderr},
	}
	return run(ctx, a, os.Args[1:], os.Stdout, os.Stderr)
}
