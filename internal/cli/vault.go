package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vault-cli/vaultguard/internal/policy"
	"github.com/vault-cli/vaultguard/internal/vault"
)

func newVaultCmd(a *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vault",
		Short: "Manage registered vaults and their cached credentials",
		Long: `Manage the vaults vaultguard knows about.

Each vault has a security level that decides whether its credentials may be
cached and how they are protected:

  paranoid      never cached, always re-enter the password
  balanced      cached behind user presence, memory cache reused for 1 hour
  convenience   cached, memory cache reused for 24 hours

Example:
  vaultguard vault create personal --location ~/vaults/personal.kdbx --level balanced
  vaultguard vault attach personal
  vaultguard vault unlock personal`,
	}

	cmd.AddCommand(
		newVaultCreateCmd(a),
		newVaultListCmd(a),
		newVaultShowCmd(a),
		newVaultRemoveCmd(a),
		newVaultAttachCmd(a),
		newVaultLevelCmd(a),
		newVaultUnlockCmd(a),
	)
	return cmd
}

func newVaultCreateCmd(a *appState) *cobra.Command {
	var (
		location string
		level    string
		color    string
	)

	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Register a vault",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lvl, err := policy.ParseSecurityLevel(level)
			if err != nil {
				return err
			}
			svc, err := a.services()
			if err != nil {
				return err
			}

			var loc []byte
			if location != "" {
				abs, err := filepath.Abs(location)
				if err != nil {
					return fmt.Errorf("invalid location: %w", err)
				}
				loc = []byte(abs)
			}

			rec, err := svc.vaults.Create(args[0], loc, lvl)
			if err != nil {
				return err
			}
			if color != "" {
				rec.Color = vault.Color(color)
				if err := svc.vaults.Update(rec); err != nil {
					return err
				}
			}

			return writeOutput(cmd.OutOrStdout(), "✓ Vault '%s' created (%s, %s)\n", rec.Name, rec.ID, lvl)
		},
	}

	cmd.Flags().StringVar(&location, "location", "", "Path of the password database")
	cmd.Flags().StringVar(&level, "level", policy.Balanced.String(), "Security level (paranoid, balanced, convenience)")
	cmd.Flags().StringVar(&color, "color", "", "Display color")
	return cmd
}

type vaultView struct {
	ID                     string `json:"id"`
	Name                   string `json:"name"`
	Location               string `json:"location,omitempty"`
	Color                  string `json:"color,omitempty"`
	SecurityLevel          string `json:"security_level"`
	RequiresKeyFileContent bool   `json:"requires_key_file"`
	CachedCredentials      bool   `json:"cached_credentials"`
	CreatedAt              string `json:"created_at"`
}

func viewOf(cmd *cobra.Command, rec *vault.Record) vaultView {
	return vaultView{
		ID:                     rec.ID.String(),
		Name:                   rec.Name,
		Location:               string(rec.Location),
		Color:                  string(rec.Color),
		SecurityLevel:          rec.SecurityLevel().String(),
		RequiresKeyFileContent: rec.RequiresKeyFileContent(),
		CachedCredentials:      rec.HasCachedCredentials(cmd.Context()),
		CreatedAt:              formatTime(&rec.CreatedAt),
	}
}

func newVaultListCmd(a *appState) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered vaults",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.services()
			if err != nil {
				return err
			}
			records, err := svc.vaults.List()
			if err != nil {
				return err
			}

			views := make([]vaultView, 0, len(records))
			for _, rec := range records {
				views = append(views, viewOf(cmd, rec))
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), views)
			}
			if len(views) == 0 {
				return writeString(cmd.OutOrStdout(), "No vaults registered.\n")
			}

			var sb strings.Builder
			tw := newTable(&sb)
			fmt.Fprintln(tw, "NAME\tLEVEL\tCACHED\tID")
			for _, v := range views {
				fmt.Fprintf(tw, "%s\t%s\t%t\t%s\n", v.Name, v.SecurityLevel, v.CachedCredentials, v.ID)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			return writeString(cmd.OutOrStdout(), sb.String())
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output in JSON format")
	return cmd
}

func newVaultShowCmd(a *appState) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show VAULT",
		Short: "Show a vault by name or id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.services()
			if err != nil {
				return err
			}
			rec, err := svc.vaults.Lookup(args[0])
			if err != nil {
				return err
			}

			v := viewOf(cmd, rec)
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), v)
			}

			rules := rec.SecurityLevel().Rules()
			return writeOutput(cmd.OutOrStdout(),
				"Name:              %s\nID:                %s\nLocation:          %s\nColor:             %s\nSecurity level:    %s\nGrace interval:    %s\nKey file required: %t\nCached:            %t\nCreated:           %s\n",
				v.Name, v.ID, orDash(v.Location), orDash(v.Color), v.SecurityLevel,
				rules.UnlockGraceInterval, v.RequiresKeyFileContent, v.CachedCredentials, v.CreatedAt)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output in JSON format")
	return cmd
}

func newVaultRemoveCmd(a *appState) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "remove VAULT",
		Short: "Forget a vault and delete its cached credentials",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.services()
			if err != nil {
				return err
			}
			rec, err := svc.vaults.Lookup(args[0])
			if err != nil {
				return err
			}

			if !force {
				ok, err := PromptConfirm(cmd.InOrStdin(), cmd.ErrOrStderr(), fmt.Sprintf("Remove vault '%s'?", rec.Name), false)
				if err != nil {
					return err
				}
				if !ok {
					return writeString(cmd.OutOrStdout(), "Cancelled.\n")
				}
			}

			if err := svc.vaults.Remove(cmd.Context(), rec.ID); err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), "✓ Vault '%s' removed\n", rec.Name)
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Do not ask for confirmation")
	return cmd
}

func newVaultAttachCmd(a *appState) *cobra.Command {
	var (
		keyFile         string
		noPassword      bool
		requiresKeyFile bool
		level           string
	)

	cmd := &cobra.Command{
		Use:   "attach VAULT",
		Short: "Replace the cached credentials of a vault",
		Long: `Replace the cached credentials of a vault.

The password is read from the terminal, or from stdin when it is not a
terminal. Credentials are only stored when the vault's security level allows
caching; otherwise any stored copy is deleted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.services()
			if err != nil {
				return err
			}
			rec, err := svc.vaults.Lookup(args[0])
			if err != nil {
				return err
			}

			var opts []vault.AttachOption
			if level != "" {
				lvl, err := policy.ParseSecurityLevel(level)
				if err != nil {
					return err
				}
				opts = append(opts, vault.WithSecurityLevel(lvl))
			}
			if cmd.Flags().Changed("requires-key-file") {
				opts = append(opts, vault.WithRequiresKeyFileContent(requiresKeyFile))
			}

			var password *string
			if !noPassword {
				pw, err := PromptPassword(cmd.InOrStdin(), cmd.ErrOrStderr(), "Vault password: ")
				if err != nil {
					return err
				}
				password = &pw
			}

			var keyFileContent []byte
			if keyFile != "" {
				keyFileContent, err = os.ReadFile(filepath.Clean(keyFile))
				if err != nil {
					return fmt.Errorf("failed to read key file: %w", err)
				}
			}

			rec.Attach(cmd.Context(), password, keyFileContent, opts...)
			if err := svc.vaults.Update(rec); err != nil {
				return err
			}

			if rec.SecurityLevel().CachesCredentials() && (password != nil || keyFileContent != nil) {
				return writeOutput(cmd.OutOrStdout(), "✓ Credentials cached for '%s' (%s)\n", rec.Name, rec.SecurityLevel())
			}
			return writeOutput(cmd.OutOrStdout(), "✓ No credentials cached for '%s' (%s)\n", rec.Name, rec.SecurityLevel())
		},
	}

	cmd.Flags().StringVar(&keyFile, "key-file", "", "Key file whose content is cached with the password")
	cmd.Flags().BoolVar(&noPassword, "no-password", false, "Attach without a password")
	cmd.Flags().BoolVar(&requiresKeyFile, "requires-key-file", false, "Mark the vault as needing a key file")
	cmd.Flags().StringVar(&level, "level", "", "Change the security level in the same step")
	return cmd
}

func newVaultLevelCmd(a *appState) *cobra.Command {
	return &cobra.Command{
		Use:   "level VAULT LEVEL",
		Short: "Change the security level of a vault",
		Long: `Change the security level of a vault.

Moving to paranoid deletes the cached credentials. Moving between caching
levels keeps them, re-protected for the new level. Reading them may require
confirming your presence; when they cannot be read the level is left
unchanged.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			lvl, err := policy.ParseSecurityLevel(args[1])
			if err != nil {
				return err
			}
			svc, err := a.services()
			if err != nil {
				return err
			}
			rec, err := svc.vaults.Lookup(args[0])
			if err != nil {
				return err
			}

			var creds vault.Credentials
			if lvl.CachesCredentials() {
				creds, err = svc.unlocker.Unlock(cmd.Context(), rec)
				switch {
				case errors.Is(err, vault.ErrInteractiveEntryRequired):
					// Re-protecting needs the plaintext; leave a stored entry alone.
					if rec.HasCachedCredentials(cmd.Context()) {
						return fmt.Errorf("cached credentials of '%s' could not be read, level unchanged: %w", rec.Name, err)
					}
				case err != nil:
					return err
				}
			}

			rec.Attach(cmd.Context(), creds.Password, creds.KeyFileContent,
				vault.WithSecurityLevel(lvl),
				vault.WithRequiresKeyFileContent(rec.RequiresKeyFileContent()))
			if err := svc.vaults.Update(rec); err != nil {
				return err
			}

			return writeOutput(cmd.OutOrStdout(), "✓ Vault '%s' is now %s\n", rec.Name, lvl)
		},
	}
}

func newVaultUnlockCmd(a *appState) *cobra.Command {
	var (
		interactive bool
		show        bool
	)

	cmd := &cobra.Command{
		Use:   "unlock VAULT",
		Short: "Recover the credentials of a vault",
		Long: `Recover the credentials of a vault from the cache.

Exits with an authentication error when the password has to be entered
again, unless --interactive is given, in which case it is prompted for and
cached according to the vault's security level.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.services()
			if err != nil {
				return err
			}
			rec, err := svc.vaults.Lookup(args[0])
			if err != nil {
				return err
			}

			creds, err := svc.unlocker.Unlock(cmd.Context(), rec)
			if errors.Is(err, vault.ErrInteractiveEntryRequired) && interactive {
				pw, perr := PromptPassword(cmd.InOrStdin(), cmd.ErrOrStderr(), "Vault password: ")
				if perr != nil {
					return perr
				}
				// The stored entry may also hold key-file content that cannot be
				// read right now; only an empty cache takes the typed password.
				if !rec.HasCachedCredentials(cmd.Context()) {
					rec.Attach(cmd.Context(), &pw, nil)
				}
				creds, err = vault.Credentials{Password: &pw, Source: vault.SourceInteractive}, nil
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if err := writeOutput(out, "✓ Vault '%s' unlocked (source: %s)\n", rec.Name, creds.Source); err != nil {
				return err
			}
			if creds.Password != nil {
				shown := strings.Repeat("*", 8)
				if show {
					shown = *creds.Password
				}
				if err := writeOutput(out, "Password: %s\n", shown); err != nil {
					return err
				}
			}
			if creds.KeyFileContent != nil {
				return writeOutput(out, "Key file: %d bytes\n", len(creds.KeyFileContent))
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Prompt for the password when nothing is cached")
	cmd.Flags().BoolVarP(&show, "show", "s", false, "Print the recovered password")
	return cmd
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
