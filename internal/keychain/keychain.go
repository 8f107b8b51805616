// Package keychain emulates a platform secret store: items carry an access
// control attribute fixed at write time, reads of user-presence items are
// gated by a presence check, and existence can be queried without reading
// or decrypting the payload.
package keychain

import (
	"context"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/vault-cli/vaultguard/internal/domain"
	"github.com/vault-cli/vaultguard/internal/logger"
	"github.com/vault-cli/vaultguard/internal/policy"
	"github.com/vault-cli/vaultguard/internal/seal"
)

var (
	// ErrStoreUnavailable is returned when the backing store cannot be
	// reached or refuses the operation.
	ErrStoreUnavailable = errors.New("secret store unavailable")
	// ErrAccessDenied is returned when the presence check for a
	// user-presence item fails or cannot be performed.
	ErrAccessDenied = errors.New("access to secret denied")
	// ErrItemNotFound is returned when no item exists for an account.
	ErrItemNotFound = errors.New("secret item not found")
	// ErrDuplicateItem is returned by Add when the account already exists.
	ErrDuplicateItem = errors.New("secret item already exists")
)

// PresenceChecker performs the user-presence challenge (biometrics or
// device passcode) required to read a user-presence item.
type PresenceChecker interface {
	Evaluate(ctx context.Context, reason string) (domain.BiometricOutcome, error)
}

// Backend stores raw items by account. Implementations report a missing
// account with ErrItemNotFound.
type Backend interface {
	// Insert stores raw under account, failing with ErrDuplicateItem if the
	// account exists.
	Insert(account string, raw []byte) error
	Load(account string) ([]byte, error)
	Contains(account string) (bool, error)
	Remove(account string) error
	Name() string
}

// item is what a backend stores. Access is an attribute of the item; Data
// is the caller's opaque payload.
type item struct {
	Access policy.AccessControl `cbor:"1,keyasint"`
	Data   []byte               `cbor:"2,keyasint"`
}

type presenceKey struct{}

// WithConfirmedPresence marks ctx as carrying a presence check that already
// succeeded, so reads made with it do not challenge the user again.
func WithConfirmedPresence(ctx context.Context) context.Context {
	return context.WithValue(ctx, presenceKey{}, true)
}

func presenceConfirmed(ctx context.Context) bool {
	confirmed, _ := ctx.Value(presenceKey{}).(bool)
	return confirmed
}

// Keychain applies access control on top of a Backend.
type Keychain struct {
	backend  Backend
	presence PresenceChecker
	log      *logger.Logger
}

// New returns a keychain over backend. presence may be nil, in which case
// user-presence items cannot be read.
func New(backend Backend, presence PresenceChecker, log *logger.Logger) *Keychain {
	if log == nil {
		log = logger.Nop()
	}
	return &Keychain{
		backend:  backend,
		presence: presence,
		log:      log.Component("keychain"),
	}
}

// Backend returns the name of the backing store.
func (k *Keychain) Backend() string {
	return k.backend.Name()
}

// Add stores data under account with the given access rule.
func (k *Keychain) Add(_ context.Context, account string, access policy.AccessControl, data []byte) error {
	if !access.Valid() {
		return fmt.Errorf("unknown access control %q", access)
	}

	raw, err := cbor.Marshal(item{Access: access, Data: data})
	if err != nil {
		return fmt.Errorf("failed to encode item: %w", err)
	}

	return k.backend.Insert(account, raw)
}

// Copy returns the payload stored under account. User-presence items are
// only returned after a successful presence check.
func (k *Keychain) Copy(ctx context.Context, account string) ([]byte, error) {
	raw, err := k.backend.Load(account)
	if err != nil {
		return nil, err
	}

	var it item
	if err := cbor.Unmarshal(raw, &it); err != nil {
		return nil, fmt.Errorf("%w: malformed item: %v", ErrStoreUnavailable, err)
	}

	if it.Access == policy.AccessUserPresence && !presenceConfirmed(ctx) {
		if err := k.confirmPresence(ctx); err != nil {
			return nil, err
		}
	}

	return it.Data, nil
}

func (k *Keychain) confirmPresence(ctx context.Context) error {
	if k.presence == nil {
		return fmt.Errorf("%w: no presence checker", ErrAccessDenied)
	}

	outcome, err := k.presence.Evaluate(ctx, "Unlock cached vault credentials")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAccessDenied, err)
	}
	if outcome != domain.BiometricSuccess {
		k.log.Debug().Str("outcome", outcome.String()).Msg("presence check not passed")
		return fmt.Errorf("%w: presence check %s", ErrAccessDenied, outcome)
	}
	return nil
}

// Exists reports whether an item is stored under account. It never reads
// the payload and never triggers a presence check.
func (k *Keychain) Exists(_ context.Context, account string) (bool, error) {
	return k.backend.Contains(account)
}

// Delete removes the item stored under account.
func (k *Keychain) Delete(_ context.Context, account string) error {
	return k.backend.Remove(account)
}

// OpenBackend returns the backend named kind ("file" or "keyring").
func OpenBackend(kind, dataDir, service string, params seal.Params) (Backend, error) {
	switch kind {
	case "", "file":
		return NewFileBackend(dataDir, params)
	case "keyring":
		return NewKeyringBackend(service), nil
	default:
		return nil, fmt.Errorf("unknown secrets backend %q", kind)
	}
}
