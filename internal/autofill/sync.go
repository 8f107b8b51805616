package autofill

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/vault-cli/vaultguard/internal/domain"
	"github.com/vault-cli/vaultguard/internal/entitlement"
	"github.com/vault-cli/vaultguard/internal/logger"
	"github.com/vault-cli/vaultguard/internal/metrics"
)

// ErrSyncDeferred is returned when the identity index is disabled.
var ErrSyncDeferred = errors.New("identity index disabled, sync deferred")

// Role is the kind of process running vaultguard.
type Role string

const (
	RoleApp       Role = "app"
	RoleExtension Role = "extension"
)

// SnapshotSource supplies the snapshots to publish.
type SnapshotSource interface {
	Credentials() []domain.AutoFillSnapshot
}

// Synchronizer mirrors the snapshot set into the identity index. Only the
// app process writes the index; in the extension every call is a no-op.
type Synchronizer struct {
	role      Role
	index     IdentityIndex
	snapshots SnapshotSource
	gate      EntitlementGate
	log       *logger.Logger

	mu      sync.Mutex
	trigger chan struct{}
}

// NewSynchronizer returns a synchronizer for role.
func NewSynchronizer(role Role, index IdentityIndex, snapshots SnapshotSource, gate EntitlementGate, log *logger.Logger) *Synchronizer {
	if log == nil {
		log = logger.Nop()
	}
	return &Synchronizer{
		role:      role,
		index:     index,
		snapshots: snapshots,
		gate:      gate,
		log:       log.Component("identity_sync"),
		trigger:   make(chan struct{}, 1),
	}
}

// Identities builds the identity set for snapshots. Snapshots without a
// usable domain or url are skipped.
func Identities(snapshots []domain.AutoFillSnapshot) []domain.Identity {
	identities := make([]domain.Identity, 0, len(snapshots))
	for _, s := range snapshots {
		id, kind, ok := s.ServiceIdentifier()
		if !ok {
			continue
		}
		identities = append(identities, domain.Identity{
			ServiceIdentifier: id,
			ServiceType:       kind,
			Username:          s.Username,
			RecordID:          s.UUID,
		})
	}
	return identities
}

// Reconcile replaces the index with the identities of the current
// snapshots, or with nothing when the entitlement is inactive. Replace
// failures are logged and returned; they are not retried.
func (s *Synchronizer) Reconcile(ctx context.Context) error {
	if s.role == RoleExtension {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	enabled, err := s.index.Enabled(ctx)
	if err != nil {
		metrics.Reconciliations.WithLabelValues("error").Inc()
		s.log.Warn().Err(err).Msg("failed to query identity index state")
		return fmt.Errorf("failed to query identity index: %w", err)
	}
	if !enabled {
		metrics.Reconciliations.WithLabelValues("deferred").Inc()
		s.log.Debug().Msg("identity index disabled")
		return ErrSyncDeferred
	}

	outcome := "revoked"
	identities := []domain.Identity{}
	if s.gate != nil && s.gate.IsActive() {
		outcome = "published"
		identities = Identities(s.snapshots.Credentials())
	}

	if err := s.index.ReplaceIdentities(ctx, identities); err != nil {
		metrics.Reconciliations.WithLabelValues("error").Inc()
		s.log.Error().Err(err).Int("count", len(identities)).Msg("failed to replace identities")
		return err
	}

	metrics.Reconciliations.WithLabelValues(outcome).Inc()
	s.log.Debug().Str("outcome", outcome).Int("count", len(identities)).Msg("identity index reconciled")
	return nil
}

// Schedule requests a reconcile without blocking. Requests made while one is
// pending are coalesced.
func (s *Synchronizer) Schedule() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Flush runs a pending reconcile now, if there is one.
func (s *Synchronizer) Flush(ctx context.Context) error {
	select {
	case <-s.trigger:
		return s.Reconcile(ctx)
	default:
		return nil
	}
}

// Run reconciles on every scheduled request until ctx is done.
func (s *Synchronizer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.trigger:
			if err := s.Reconcile(ctx); err != nil && !errors.Is(err, ErrSyncDeferred) {
				s.log.Warn().Err(err).Msg("reconcile failed")
			}
		}
	}
}

// ObserveEntitlement schedules a reconcile on every entitlement change. Pass
// it to entitlement.Manager.Subscribe.
func (s *Synchronizer) ObserveEntitlement(ev entitlement.Event) {
	if ev.Kind == entitlement.EventEntitlement {
		s.Schedule()
	}
}
