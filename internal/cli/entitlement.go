package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/vault-cli/vaultguard/internal/domain"
	"github.com/vault-cli/vaultguard/internal/entitlement"
)

func newEntitlementCmd(a *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entitlement",
		Short: "Inspect and update the cached subscription entitlement",
		Long: `Inspect and update the locally cached subscription entitlement.

The entitlement gates autofill: without an active one no snapshots are
served and no identities are published.

Example:
  vaultguard entitlement status
  vaultguard entitlement products
  vaultguard entitlement purchase com.vaultguard.pro.yearly
  vaultguard entitlement apply --state purchased --product com.vaultguard.pro.yearly --date 2026-01-01T00:00:00Z`,
	}

	cmd.AddCommand(
		newEntitlementStatusCmd(a),
		newEntitlementReloadCmd(a),
		newEntitlementApplyCmd(a),
		newEntitlementProductsCmd(a),
		newEntitlementPurchaseCmd(a),
		newEntitlementRestoreCmd(a),
	)
	return cmd
}

type entitlementView struct {
	Status                string     `json:"status"`
	Active                bool       `json:"active"`
	ExpiresAt             *time.Time `json:"expires_at,omitempty"`
	OriginalTransactionID *string    `json:"original_transaction_id,omitempty"`
	LastUpdated           time.Time  `json:"last_updated"`
}

func writeEntitlement(cmd *cobra.Command, svc *services, rec domain.EntitlementRecord, asJSON bool) error {
	view := entitlementView{
		Status:                string(rec.Status),
		Active:                rec.IsActive(svc.clock.Now()),
		ExpiresAt:             rec.ExpiresAt,
		OriginalTransactionID: rec.OriginalTransactionID,
		LastUpdated:           rec.LastUpdated,
	}
	if asJSON {
		return writeJSON(cmd.OutOrStdout(), view)
	}

	original := "-"
	if view.OriginalTransactionID != nil {
		original = *view.OriginalTransactionID
	}
	return writeOutput(cmd.OutOrStdout(),
		"Status:       %s\nActive:       %t\nExpires:      %s\nTransaction:  %s\nLast updated: %s\n",
		view.Status, view.Active, formatTime(view.ExpiresAt), original, formatTime(&view.LastUpdated))
}

func newEntitlementStatusCmd(a *appState) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the cached entitlement",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.services()
			if err != nil {
				return err
			}
			return writeEntitlement(cmd, svc, svc.entitlement.Current(), asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output in JSON format")
	return cmd
}

func newEntitlementReloadCmd(a *appState) *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Re-read the entitlement written by another process",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.services()
			if err != nil {
				return err
			}
			return writeEntitlement(cmd, svc, svc.entitlement.Reload(), false)
		},
	}
}

func newEntitlementApplyCmd(a *appState) *cobra.Command {
	var (
		state         string
		productID     string
		transactionID string
		originalID    string
		date          string
		reason        string
	)

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply a purchase transaction delivered by the store",
		Long: `Apply one purchase-queue transaction.

Purchased and restored transactions grant access until the transaction date
plus the configured window. The expiry never moves backwards. Failed
transactions are reported and leave the entitlement unchanged.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.services()
			if err != nil {
				return err
			}

			tx := domain.Transaction{
				State:         domain.TransactionState(strings.ToLower(state)),
				ProductID:     productID,
				TransactionID: transactionID,
			}
			switch tx.State {
			case domain.TransactionPurchased, domain.TransactionRestored, domain.TransactionFailed,
				domain.TransactionPurchasing, domain.TransactionDeferred:
			default:
				return fmt.Errorf("unknown transaction state %q", state)
			}
			if tx.TransactionID == "" {
				tx.TransactionID = uuid.NewString()
			}
			if originalID != "" {
				tx.OriginalTransactionID = &originalID
			}
			tx.TransactionDate = svc.clock.Now().UTC()
			if date != "" {
				tx.TransactionDate, err = time.Parse(time.RFC3339, date)
				if err != nil {
					return fmt.Errorf("invalid --date: %w", err)
				}
			}

			var failure error
			if tx.State == domain.TransactionFailed {
				failure = entitlement.ErrPurchaseFailed
				if reason != "" {
					failure = fmt.Errorf("%w: %s", entitlement.ErrPurchaseFailed, reason)
				}
				tx.Err = failure
			}

			svc.entitlement.HandleTransactions(cmd.Context(), []domain.Transaction{tx})
			if failure != nil {
				return failure
			}
			return writeEntitlement(cmd, svc, svc.entitlement.Current(), false)
		},
	}

	cmd.Flags().StringVar(&state, "state", string(domain.TransactionPurchased), "Transaction state (purchased, restored, failed, purchasing, deferred)")
	cmd.Flags().StringVar(&productID, "product", "", "Product identifier")
	cmd.Flags().StringVar(&transactionID, "transaction-id", "", "Transaction identifier (generated when empty)")
	cmd.Flags().StringVar(&originalID, "original-id", "", "Original transaction identifier of a renewal chain")
	cmd.Flags().StringVar(&date, "date", "", "Transaction date, RFC 3339 (default now)")
	cmd.Flags().StringVar(&reason, "reason", "", "Failure reason for failed transactions")
	return cmd
}

func newEntitlementProductsCmd(a *appState) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "products",
		Short: "List the purchasable products",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.services()
			if err != nil {
				return err
			}
			products, err := svc.entitlement.RequestProducts(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), products)
			}

			var sb strings.Builder
			tw := newTable(&sb)
			fmt.Fprintln(tw, "ID\tTITLE")
			for _, p := range products {
				fmt.Fprintf(tw, "%s\t%s\n", p.ID, p.Title)
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

func newEntitlementPurchaseCmd(a *appState) *cobra.Command {
	return &cobra.Command{
		Use:   "purchase PRODUCT",
		Short: "Purchase a product through the local purchase queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.services()
			if err != nil {
				return err
			}
			if _, err := svc.entitlement.RequestProducts(cmd.Context()); err != nil {
				return err
			}
			if err := svc.entitlement.Purchase(cmd.Context(), args[0]); err != nil {
				return err
			}

			svc.settle(cmd.Context())
			return writeEntitlement(cmd, svc, svc.entitlement.Current(), false)
		},
	}
}

func newEntitlementRestoreCmd(a *appState) *cobra.Command {
	return &cobra.Command{
		Use:   "restore",
		Short: "Replay completed purchases",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.services()
			if err != nil {
				return err
			}
			if err := svc.entitlement.Restore(cmd.Context()); err != nil {
				return err
			}

			svc.settle(cmd.Context())
			return writeEntitlement(cmd, svc, svc.entitlement.Current(), false)
		},
	}
}
