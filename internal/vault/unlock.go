package vault

import (
	"context"
	"fmt"

	"github.com/vault-cli/vaultguard/internal/domain"
	"github.com/vault-cli/vaultguard/internal/keychain"
	"github.com/vault-cli/vaultguard/internal/logger"
)

// BiometricGate performs the biometric challenge. It is supplied by the
// platform; vaultguard never implements the prompt itself.
type BiometricGate interface {
	Evaluate(ctx context.Context, reason string) (domain.BiometricOutcome, error)
}

// CredentialSource tells where unlocked credentials came from.
type CredentialSource string

const (
	SourceMemory   CredentialSource = "memory"
	SourceKeychain CredentialSource = "keychain"

	// SourceInteractive marks credentials the user just typed.
	SourceInteractive CredentialSource = "interactive"
)

// Credentials are the secrets that open a vault.
type Credentials struct {
	Password       *string
	KeyFileContent []byte
	Source         CredentialSource
}

// Unlocker decides whether a vault can be opened from cached credentials.
//
// The in-memory cache is only trusted within the level's grace interval.
// Once it has aged out it is dropped and the stored copy is read again,
// behind the biometric gate when the level uses biometrics.
type Unlocker struct {
	gate BiometricGate
	log  *logger.Logger
}

// NewUnlocker returns an Unlocker using gate. A nil gate behaves like an
// unavailable one.
func NewUnlocker(gate BiometricGate, log *logger.Logger) *Unlocker {
	if log == nil {
		log = logger.Nop()
	}
	return &Unlocker{gate: gate, log: log.Component("unlocker")}
}

// Unlock returns cached credentials for rec or ErrInteractiveEntryRequired.
func (u *Unlocker) Unlock(ctx context.Context, rec *Record) (Credentials, error) {
	if rec.cacheFresh() {
		return rec.cachedCredentials(SourceMemory), nil
	}
	rec.ClearCache()

	rules := rec.SecurityLevel().Rules()
	if !rules.CachesCredentials {
		return Credentials{}, ErrInteractiveEntryRequired
	}

	if rules.UsesBiometrics {
		outcome, err := u.evaluate(ctx)
		if err != nil || outcome != domain.BiometricSuccess {
			u.log.Info().
				Str("vault_id", rec.ID.String()).
				Str("outcome", outcome.String()).
				AnErr("gate_error", err).
				Msg("biometric gate not passed")
			return Credentials{}, fmt.Errorf("%w: biometric check %s", ErrInteractiveEntryRequired, outcome)
		}
		ctx = keychain.WithConfirmedPresence(ctx)
	}

	if !rec.LoadCachedCredentials(ctx) {
		return Credentials{}, ErrInteractiveEntryRequired
	}
	return rec.cachedCredentials(SourceKeychain), nil
}

func (u *Unlocker) evaluate(ctx context.Context) (domain.BiometricOutcome, error) {
	if u.gate == nil {
		return domain.BiometricUnavailable, nil
	}
	return u.gate.Evaluate(ctx, "Unlock vault with cached credentials")
}

func (rec *Record) cachedCredentials(source CredentialSource) Credentials {
	creds := Credentials{Source: source}
	if password, ok := rec.CachedPassword(); ok {
		creds.Password = &password
	}
	if content, ok := rec.CachedKeyFileContent(); ok {
		creds.KeyFileContent = content
	}
	return creds
}
