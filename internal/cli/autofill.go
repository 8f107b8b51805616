package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/vault-cli/vaultguard/internal/autofill"
	"github.com/vault-cli/vaultguard/internal/clipboard"
	"github.com/vault-cli/vaultguard/internal/domain"
)

func newAutofillCmd(a *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "autofill",
		Short: "Manage the autofill snapshot set",
		Long: `Manage the minimal copies of login entries offered for autofill.

Snapshots are only served while the entitlement is active.

Example:
  vaultguard autofill upsert --title GitHub --username octocat --url github.com
  vaultguard autofill list --search git
  vaultguard autofill copy <uuid>
  vaultguard autofill import group.json`,
	}

	cmd.AddCommand(
		newAutofillListCmd(a),
		newAutofillUpsertCmd(a),
		newAutofillRemoveCmd(a),
		newAutofillImportCmd(a),
		newAutofillForgetCmd(a),
		newAutofillCopyCmd(a),
		newAutofillSyncCmd(a),
	)
	return cmd
}

type snapshotView struct {
	UUID      string    `json:"uuid"`
	Title     string    `json:"title"`
	Detail    string    `json:"detail"`
	Username  string    `json:"username"`
	Domain    string    `json:"domain,omitempty"`
	URL       string    `json:"url,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

func newAutofillListCmd(a *appState) *cobra.Command {
	var (
		query  string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List autofill snapshots",
		Long: `List autofill snapshots sorted by title, newest first within a title.

The --search flag matches title, username, domain, and url. Use '+' to
require several tokens (e.g. 'git+work').`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.services()
			if err != nil {
				return err
			}
			if !svc.entitlement.IsActive() {
				fmt.Fprintln(cmd.ErrOrStderr(), "Autofill requires an active entitlement.")
			}

			snapshots := autofill.Filter(svc.autofill.Credentials(), query)
			views := make([]snapshotView, 0, len(snapshots))
			for _, s := range snapshots {
				views = append(views, snapshotView{
					UUID:      s.UUID,
					Title:     s.DisplayTitle(),
					Detail:    s.DetailSummary(),
					Username:  s.Username,
					Domain:    deref(s.Domain),
					URL:       deref(s.URL),
					UpdatedAt: s.UpdatedAt,
				})
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), views)
			}
			if len(views) == 0 {
				return writeString(cmd.OutOrStdout(), "No autofill credentials.\n")
			}

			var sb strings.Builder
			tw := newTable(&sb)
			fmt.Fprintln(tw, "TITLE\tDETAIL\tUPDATED\tUUID")
			for _, v := range views {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", v.Title, v.Detail, formatTime(&v.UpdatedAt), v.UUID)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			return writeString(cmd.OutOrStdout(), sb.String())
		},
	}

	cmd.Flags().StringVar(&query, "search", "", "Search in title, username, domain, and url")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output in JSON format")
	return cmd
}

func newAutofillUpsertCmd(a *appState) *cobra.Command {
	var entry domain.LoginEntry

	cmd := &cobra.Command{
		Use:   "upsert",
		Short: "Add or replace the snapshot of a login entry",
		Long: `Add or replace the snapshot of a login entry.

The password is read from the terminal, or from stdin when it is not a
terminal. An entry with a blank username or password has no snapshot; any
existing one is removed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.services()
			if err != nil {
				return err
			}

			if entry.UUID == "" {
				entry.UUID = uuid.NewString()
			}
			entry.Password, err = PromptPassword(cmd.InOrStdin(), cmd.ErrOrStderr(), "Entry password: ")
			if err != nil {
				return err
			}

			if err := svc.autofill.UpsertEntryIfPossible(entry); err != nil {
				return err
			}
			if _, ok := autofill.SnapshotFromEntry(entry, svc.clock.Now()); !ok {
				return writeOutput(cmd.OutOrStdout(), "✓ Entry %s has no usable credentials, snapshot removed\n", entry.UUID)
			}
			return writeOutput(cmd.OutOrStdout(), "✓ Snapshot %s saved\n", entry.UUID)
		},
	}

	cmd.Flags().StringVar(&entry.UUID, "uuid", "", "Entry identifier (generated when empty)")
	cmd.Flags().StringVar(&entry.Title, "title", "", "Entry title")
	cmd.Flags().StringVar(&entry.Username, "username", "", "Entry username")
	cmd.Flags().StringVar(&entry.URL, "url", "", "Entry url or domain")
	return cmd
}

func newAutofillRemoveCmd(a *appState) *cobra.Command {
	return &cobra.Command{
		Use:   "remove UUID",
		Short: "Remove the snapshot of an entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.services()
			if err != nil {
				return err
			}
			if err := svc.autofill.RemoveCredential(args[0]); err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), "✓ Snapshot %s removed\n", args[0])
		},
	}
}

func readGroup(path string) (domain.Group, error) {
	var group domain.Group
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return group, fmt.Errorf("failed to read group file: %w", err)
	}
	if err := json.Unmarshal(data, &group); err != nil {
		return group, fmt.Errorf("failed to parse group file: %w", err)
	}
	return group, nil
}

func newAutofillImportCmd(a *appState) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Create snapshots for every entry of an exported group",
		Long: `Create snapshots for every entry of a group, including nested groups.

FILE is a JSON group: {"name": ..., "entries": [{"uuid", "title",
"username", "password", "url"}], "groups": [...]}.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.services()
			if err != nil {
				return err
			}
			group, err := readGroup(args[0])
			if err != nil {
				return err
			}

			entries := group.AllEntries()
			for _, e := range entries {
				if err := svc.autofill.UpsertEntryIfPossible(e); err != nil {
					return fmt.Errorf("failed to import entry %s: %w", e.UUID, err)
				}
			}
			return writeOutput(cmd.OutOrStdout(), "✓ Processed %d entries from '%s'\n", len(entries), group.Name)
		},
	}
}

func newAutofillForgetCmd(a *appState) *cobra.Command {
	return &cobra.Command{
		Use:   "forget FILE",
		Short: "Remove the snapshots of every entry of an exported group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.services()
			if err != nil {
				return err
			}
			group, err := readGroup(args[0])
			if err != nil {
				return err
			}
			if err := svc.autofill.RemoveCredentials(group); err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), "✓ Removed snapshots of group '%s'\n", group.Name)
		},
	}
}

func newAutofillCopyCmd(a *appState) *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "copy UUID",
		Short: "Copy a snapshot password to the clipboard",
		Long: `Copy a snapshot password to the clipboard and wait until it is cleared.

The clipboard is cleared after --ttl (default autofill.clipboard_ttl), unless
it no longer holds the copied password.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.services()
			if err != nil {
				return err
			}

			var found *domain.AutoFillSnapshot
			for _, s := range svc.autofill.Credentials() {
				if s.UUID == args[0] {
					found = &s
					break
				}
			}
			if found == nil {
				return fmt.Errorf("no autofill credential %s", args[0])
			}

			if !cmd.Flags().Changed("ttl") {
				ttl = svc.cfg.AutoFill.ClipboardTTL
			}
			if !clipboard.IsAvailable() {
				return fmt.Errorf("clipboard is not available")
			}

			if err := writeOutput(cmd.ErrOrStderr(), "✓ Password for '%s' copied, clearing in %s\n", found.DisplayTitle(), ttl); err != nil {
				return err
			}
			return clipboard.CopyWithTimeout(cmd.Context(), found.Password, ttl)
		},
	}

	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Clear the clipboard after this long")
	return cmd
}

func newAutofillSyncCmd(a *appState) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Publish the snapshot identities to the identity index now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.services()
			if err != nil {
				return err
			}

			err = svc.sync.Reconcile(cmd.Context())
			if errors.Is(err, autofill.ErrSyncDeferred) {
				return writeString(cmd.OutOrStdout(), "Identity index is disabled, nothing published.\n")
			}
			if err != nil {
				return err
			}
			if svc.cfg.ProcessRole == string(autofill.RoleExtension) {
				return writeString(cmd.OutOrStdout(), "Extension role does not publish identities.\n")
			}

			identities, err := svc.index.Identities(cmd.Context())
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), "✓ %d identities published\n", len(identities))
		},
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
