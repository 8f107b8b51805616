package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newIdentitiesCmd(a *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "identities",
		Short: "Inspect and toggle the credential identity index",
		Long: `Inspect and toggle the identity index that autofill providers read.

The index starts disabled. While disabled nothing is published and
reconciliation is deferred.`,
	}

	cmd.AddCommand(newIdentitiesListCmd(a), newIdentitiesToggleCmd(a, true), newIdentitiesToggleCmd(a, false))
	return cmd
}

func newIdentitiesListCmd(a *appState) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the published identities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.services()
			if err != nil {
				return err
			}
			identities, err := svc.index.Identities(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), identities)
			}

			enabled, err := svc.index.Enabled(cmd.Context())
			if err != nil {
				return err
			}
			var sb strings.Builder
			fmt.Fprintf(&sb, "Index enabled: %t\n", enabled)
			tw := newTable(&sb)
			fmt.Fprintln(tw, "SERVICE\tTYPE\tUSERNAME\tRECORD")
			for _, id := range identities {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", id.ServiceIdentifier, id.ServiceType, id.Username, id.RecordID)
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

func newIdentitiesToggleCmd(a *appState, enable bool) *cobra.Command {
	use, short := "disable", "Disable and clear the identity index"
	if enable {
		use, short = "enable", "Enable the identity index and publish identities"
	}

	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.services()
			if err != nil {
				return err
			}
			if err := svc.index.SetEnabled(cmd.Context(), enable); err != nil {
				return err
			}
			if enable {
				svc.sync.Schedule()
			}
			return writeOutput(cmd.OutOrStdout(), "✓ Identity index %sd\n", use)
		},
	}
}
