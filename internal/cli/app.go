package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/vault-cli/vaultguard/internal/autofill"
	"github.com/vault-cli/vaultguard/internal/clock"
	"github.com/vault-cli/vaultguard/internal/config"
	"github.com/vault-cli/vaultguard/internal/entitlement"
	"github.com/vault-cli/vaultguard/internal/keychain"
	"github.com/vault-cli/vaultguard/internal/logger"
	"github.com/vault-cli/vaultguard/internal/secrets"
	"github.com/vault-cli/vaultguard/internal/store"
	"github.com/vault-cli/vaultguard/internal/vault"
)

// services is the object graph behind every command. It is built once per
// invocation and closed before the process exits.
type services struct {
	cfg   *config.Config
	log   *logger.Logger
	clock clock.Clock

	keychain *keychain.Keychain
	secrets  *secrets.Store
	vaults   *vault.Registry
	unlocker *vault.Unlocker

	purchases   *entitlement.LocalQueue
	entitlement *entitlement.Manager

	autofill *autofill.Store
	index    *autofill.FileIndex
	sync     *autofill.Synchronizer
	sub      *entitlement.Subscription
}

func openServices(cfg *config.Config, gate vault.BiometricGate, log *logger.Logger, clk clock.Clock) (*services, error) {
	if clk == nil {
		clk = clock.Real()
	}
	store.SetLockTimeout(cfg.LockTimeout)

	backend, err := keychain.OpenBackend(cfg.Secrets.Backend, cfg.DataDir, cfg.Secrets.Service, cfg.Secrets.KDF)
	if err != nil {
		return nil, fmt.Errorf("failed to open secrets backend: %w", err)
	}

	s := &services{cfg: cfg, log: log, clock: clk}
	s.keychain = keychain.New(backend, gate, log)
	s.secrets = secrets.New(s.keychain, log)

	s.vaults, err = vault.OpenRegistry(cfg.DataDir, s.secrets, clk, log)
	if err != nil {
		return nil, err
	}
	s.unlocker = vault.NewUnlocker(gate, log)

	entStore, err := entitlement.OpenStore(cfg.DataDir, clk, log)
	if err != nil {
		return nil, err
	}
	s.purchases = entitlement.NewLocalQueue(!cfg.Entitlement.PaymentsDisabled, clk)
	s.entitlement = entitlement.NewManager(entStore, entitlement.Options{
		Queue:      s.purchases,
		Products:   entitlement.NewStaticCatalog(cfg.Entitlement.ProductIDs),
		ProductIDs: cfg.Entitlement.ProductIDs,
		Window:     cfg.Entitlement.Window,
		Clock:      clk,
		Log:        log,
	})

	s.autofill, err = autofill.OpenStore(cfg.DataDir, cfg.LegacyFilePath(), s.entitlement, clk, log)
	if err != nil {
		s.entitlement.Close()
		return nil, err
	}
	s.index, err = autofill.OpenFileIndex(cfg.DataDir)
	if err != nil {
		s.entitlement.Close()
		return nil, err
	}

	s.sync = autofill.NewSynchronizer(autofill.Role(cfg.ProcessRole), s.index, s.autofill, s.entitlement, log)
	s.autofill.SetReconciler(s.sync)
	s.sub = s.entitlement.Subscribe(s.sync.ObserveEntitlement)

	return s, nil
}

// settle applies purchase-queue transactions collected during the command.
func (s *services) settle(ctx context.Context) {
	if txs := s.purchases.Drain(); len(txs) > 0 {
		s.entitlement.HandleTransactions(ctx, txs)
	}
}

// close delivers pending entitlement notifications, runs any reconcile they
// or the command scheduled, and stops the dispatcher.
func (s *services) close(ctx context.Context) error {
	s.settle(ctx)
	s.entitlement.Flush()
	s.sub.Close()

	err := s.sync.Flush(ctx)
	if errors.Is(err, autofill.ErrSyncDeferred) {
		err = nil
	}

	s.entitlement.Close()
	return err
}
