// Package util maps errors from the vaultguard packages to process exit codes.
package util

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/vault-cli/vaultguard/internal/autofill"
	"github.com/vault-cli/vaultguard/internal/config"
	"github.com/vault-cli/vaultguard/internal/entitlement"
	"github.com/vault-cli/vaultguard/internal/keychain"
	"github.com/vault-cli/vaultguard/internal/seal"
	"github.com/vault-cli/vaultguard/internal/secrets"
	"github.com/vault-cli/vaultguard/internal/store"
	"github.com/vault-cli/vaultguard/internal/vault"
)

// Exit codes
const (
	ExitOK             = 0
	ExitError          = 1
	ExitInvalidInput   = 2
	ExitStoreBusy      = 3
	ExitIntegrityErr   = 4
	ExitAuthRequired   = 5
	ExitNotEntitled    = 6
	ExitUnavailable = 7
)

var exitCodes = []struct {
	targets []error
	code    int
}{
	{[]error{store.ErrStoreBusy, store.ErrLockTimeout}, ExitStoreBusy},
	{[]error{store.ErrCorrupted, secrets.ErrDecodeFailure, seal.ErrDecryptionFailed, seal.ErrDeviceKeyCorrupted}, ExitIntegrityErr},
	{[]error{vault.ErrInteractiveEntryRequired, keychain.ErrAccessDenied}, ExitAuthRequired},
	{[]error{entitlement.ErrPurchaseNotAllowed, entitlement.ErrPurchaseFailed, entitlement.ErrProductUnavailable, autofill.ErrSyncDeferred}, ExitNotEntitled},
	{[]error{keychain.ErrStoreUnavailable}, ExitUnavailable},
	{[]error{vault.ErrVaultNotFound, vault.ErrVaultExists, config.ErrInvalidConfig, seal.ErrInvalidParams}, ExitInvalidInput},
}

// ExitCode returns the exit code for err.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	for _, m := range exitCodes {
		for _, target := range m.targets {
			if errors.Is(err, target) {
				return m.code
			}
		}
	}
	return ExitError
}

// ExitWithCode exits the program with the specified code and message
func ExitWithCode(code int, format string, args ...interface{}) {
	if format != "" {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
	os.Exit(code)
}

// FormatError writes the user-facing message for err to w and returns the
// exit code to use.
func FormatError(w io.Writer, err error, context string) int {
	code := ExitCode(err)
	if code == ExitOK {
		return code
	}

	if context != "" {
		fmt.Fprintf(w, "Error: %s - %v\n", context, err)
	} else {
		fmt.Fprintf(w, "Error: %v\n", err)
	}
	if code == ExitIntegrityErr {
		fmt.Fprintln(w, "Run 'vaultguard doctor' to diagnose issues.")
	}
	return code
}

// HandleError handles errors and exits with appropriate code
func HandleError(err error, context string) {
	if err == nil {
		return
	}
	os.Exit(FormatError(os.Stderr, err, context))
}

// WrapError wraps an error with additional context
func WrapError(err error, context string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", context, err)
}
