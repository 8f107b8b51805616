package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vault-cli/vaultguard/internal/autofill"
	"github.com/vault-cli/vaultguard/internal/entitlement"
	"github.com/vault-cli/vaultguard/internal/keychain"
	"github.com/vault-cli/vaultguard/internal/metrics"
	"github.com/vault-cli/vaultguard/internal/seal"
	"github.com/vault-cli/vaultguard/internal/vault"
)

func newDoctorCmd(a *appState) *cobra.Command {
	var showMetrics bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Perform security and health checks",
		Long: `Perform security and health checks on the vaultguard state.

This command checks:
- Data directory and file permissions
- Secrets backend and KDF parameter strength
- Entitlement state
- Autofill snapshot set and identity index state

Example:
  vaultguard doctor`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(cmd, a, showMetrics)
		},
	}

	cmd.Flags().BoolVar(&showMetrics, "metrics", false, "Print the counters collected during the checks")
	return cmd
}

type doctorReport struct {
	w        io.Writer
	issues   int
	warnings int
}

func (r *doctorReport) section(title string) {
	fmt.Fprintf(r.w, "\n%s\n", title)
}

func (r *doctorReport) ok(format string, args ...any) {
	fmt.Fprintf(r.w, "   ✅ "+format+"\n", args...)
}

func (r *doctorReport) warn(format string, args ...any) {
	r.warnings++
	fmt.Fprintf(r.w, "   ⚠️  "+format+"\n", args...)
}

func (r *doctorReport) fail(format string, args ...any) {
	r.issues++
	fmt.Fprintf(r.w, "   ❌ "+format+"\n", args...)
}

func (r *doctorReport) checkFilePerm(label, path string) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		r.ok("%s not created yet", label)
		return
	}
	if err != nil {
		r.fail("Cannot check %s: %v", label, err)
		return
	}

	perm := info.Mode().Perm()
	switch {
	case perm == 0o600:
		r.ok("%s permissions: %o (secure)", label, perm)
	case perm&0o077 != 0:
		r.fail("%s permissions: %o (too permissive, should be 0600)", label, perm)
		fmt.Fprintf(r.w, "      Fix with: chmod 600 %s\n", path)
	default:
		r.warn("%s permissions: %o (acceptable but 0600 recommended)", label, perm)
	}
}

func runDoctor(cmd *cobra.Command, a *appState, showMetrics bool) error {
	out := cmd.OutOrStdout()
	r := &doctorReport{w: out}
	cfg := a.cfg

	fmt.Fprintln(out, "vaultguard Security & Health Check")
	fmt.Fprintln(out, "==================================")

	r.section("1. Data Directory")
	fmt.Fprintf(out, "   Data directory: %s\n", cfg.DataDir)
	if info, err := os.Stat(cfg.DataDir); err == nil {
		if perm := info.Mode().Perm(); perm&0o077 == 0 {
			r.ok("Directory permissions: %o (secure)", perm)
		} else {
			r.warn("Directory permissions: %o (consider 0700 for better security)", perm)
		}
	} else if !os.IsNotExist(err) {
		r.fail("Cannot check data directory: %v", err)
	}
	for _, name := range []string{
		vault.RegistryFile,
		entitlement.StoreFile,
		autofill.StoreFile,
		autofill.IndexFile,
		keychain.KeychainFile,
		keychain.DeviceKeyFile,
	} {
		r.checkFilePerm(name, filepath.Join(cfg.DataDir, name))
	}
	r.checkFilePerm("Config file", a.cfgFile)

	svc, err := a.services()
	if err != nil {
		r.fail("Cannot open stores: %v", err)
		return finishDoctor(r, out)
	}

	r.section("2. Secrets Backend")
	fmt.Fprintf(out, "   Backend: %s\n", svc.keychain.Backend())
	kdf := cfg.Secrets.KDF
	if cfg.Secrets.Backend == "file" {
		switch {
		case kdf.Memory >= seal.DefaultMemory:
			r.ok("KDF memory parameter: %d KB (strong)", kdf.Memory)
		case kdf.Memory >= 8192:
			r.warn("KDF memory parameter: %d KB (acceptable but consider increasing)", kdf.Memory)
		default:
			r.fail("KDF memory parameter: %d KB (weak, should be at least 8192 KB)", kdf.Memory)
		}
		if kdf.Iterations >= seal.DefaultIterations {
			r.ok("KDF iterations: %d (adequate)", kdf.Iterations)
		} else {
			r.warn("KDF iterations: %d (consider increasing for better security)", kdf.Iterations)
		}
	}

	records, err := svc.vaults.List()
	if err != nil {
		r.fail("Cannot read vault registry: %v", err)
	} else {
		cached := 0
		for _, rec := range records {
			if rec.HasCachedCredentials(cmd.Context()) {
				cached++
			}
		}
		r.ok("%d vaults registered, %d with cached credentials", len(records), cached)
	}

	r.section("3. Entitlement")
	current := svc.entitlement.Current()
	if svc.entitlement.IsActive() {
		r.ok("Entitlement %s until %s", current.Status, formatTime(current.ExpiresAt))
	} else {
		r.warn("Entitlement not active (status %s), autofill is disabled", current.Status)
	}

	r.section("4. Autofill")
	if n, err := svc.autofill.Len(); err != nil {
		r.fail("Cannot read snapshot set: %v", err)
	} else {
		r.ok("%d snapshots stored", n)
	}
	if _, err := os.Stat(cfg.LegacyFilePath()); err == nil {
		r.warn("Legacy snapshot file still present: %s", cfg.LegacyFilePath())
	}
	if enabled, err := svc.index.Enabled(cmd.Context()); err != nil {
		r.fail("Cannot read identity index: %v", err)
	} else if enabled {
		r.ok("Identity index enabled (role %s)", cfg.ProcessRole)
	} else {
		r.warn("Identity index disabled, identities are not published")
	}

	r.section("5. System")
	if cfg.AutoFill.ClipboardTTL > 60*time.Second {
		r.warn("Clipboard timeout is %v (consider reducing for better security)", cfg.AutoFill.ClipboardTTL)
	} else {
		r.ok("Clipboard timeout: %v", cfg.AutoFill.ClipboardTTL)
	}

	if showMetrics {
		if err := writeMetrics(out); err != nil {
			return err
		}
	}

	return finishDoctor(r, out)
}

func writeMetrics(w io.Writer) error {
	families, err := metrics.Registry.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}

	fmt.Fprintln(w, "\nCounters")
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			labels := make([]string, 0, len(m.GetLabel()))
			for _, l := range m.GetLabel() {
				labels = append(labels, l.GetName()+"="+l.GetValue())
			}
			fmt.Fprintf(w, "   %s{%s} %g\n", mf.GetName(), strings.Join(labels, ","), m.GetCounter().GetValue())
		}
	}
	return nil
}

func finishDoctor(r *doctorReport, out io.Writer) error {
	fmt.Fprintln(out, "\n"+strings.Repeat("=", 40))
	if r.issues == 0 && r.warnings == 0 {
		fmt.Fprintln(out, "✅ All checks passed!")
		return nil
	}
	if r.issues > 0 {
		fmt.Fprintf(out, "❌ Found %d security issues that should be fixed\n", r.issues)
	}
	if r.warnings > 0 {
		fmt.Fprintf(out, "⚠️  Found %d warnings for consideration\n", r.warnings)
	}
	return nil
}
