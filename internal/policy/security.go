// Package policy maps a vault's security level to the concrete caching,
// biometric, and expiry rules that the secret store and unlock flow apply.
package policy

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrPolicyViolation is returned when a cache write is attempted under a
// level that does not cache credentials.
var ErrPolicyViolation = errors.New("security level does not allow caching credentials")

// SecurityLevel is the user-chosen protection tier of a vault.
type SecurityLevel int

const (
	// Paranoid never caches anything and always re-authenticates.
	Paranoid SecurityLevel = iota
	// Balanced caches behind user presence for up to an hour.
	Balanced
	// Convenience caches with only a device-unlocked requirement for a day.
	Convenience
)

// Rules are the derived properties of a SecurityLevel.
type Rules struct {
	CachesCredentials bool
	UsesBiometrics    bool
	// UnlockGraceInterval is how long a successful unlock may be reused
	// without a new challenge. Zero means always re-authenticate.
	UnlockGraceInterval    time.Duration
	RememberKeyFileContent bool
}

var rulesTable = map[SecurityLevel]Rules{
	Paranoid: {},
	Balanced: {
		CachesCredentials:      true,
		UsesBiometrics:         true,
		UnlockGraceInterval:    time.Hour,
		RememberKeyFileContent: true,
	},
	Convenience: {
		CachesCredentials:      true,
		UsesBiometrics:         true,
		UnlockGraceInterval:    24 * time.Hour,
		RememberKeyFileContent: true,
	},
}

// Levels lists every level, weakest protection last.
func Levels() []SecurityLevel {
	return []SecurityLevel{Paranoid, Balanced, Convenience}
}

// Rules returns the rule set for l. Unknown values get the paranoid rules.
func (l SecurityLevel) Rules() Rules {
	if r, ok := rulesTable[l]; ok {
		return r
	}
	return rulesTable[Paranoid]
}

// CachesCredentials is shorthand for l.Rules().CachesCredentials.
func (l SecurityLevel) CachesCredentials() bool { return l.Rules().CachesCredentials }

// UsesBiometrics is shorthand for l.Rules().UsesBiometrics.
func (l SecurityLevel) UsesBiometrics() bool { return l.Rules().UsesBiometrics }

// UnlockGraceInterval is shorthand for l.Rules().UnlockGraceInterval.
func (l SecurityLevel) UnlockGraceInterval() time.Duration { return l.Rules().UnlockGraceInterval }

// RememberKeyFileContent is shorthand for l.Rules().RememberKeyFileContent.
func (l SecurityLevel) RememberKeyFileContent() bool { return l.Rules().RememberKeyFileContent }

// String returns the canonical lower-case name.
func (l SecurityLevel) String() string {
	switch l {
	case Paranoid:
		return "paranoid"
	case Balanced:
		return "balanced"
	case Convenience:
		return "convenience"
	default:
		return fmt.Sprintf("SecurityLevel(%d)", int(l))
	}
}

// ParseSecurityLevel parses a level name, case-insensitively.
func ParseSecurityLevel(s string) (SecurityLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "paranoid":
		return Paranoid, nil
	case "balanced":
		return Balanced, nil
	case "convenience":
		return Convenience, nil
	}
	return Paranoid, fmt.Errorf("unknown security level %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (l SecurityLevel) MarshalText() ([]byte, error) {
	if _, ok := rulesTable[l]; !ok {
		return nil, fmt.Errorf("unknown security level %d", int(l))
	}
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *SecurityLevel) UnmarshalText(text []byte) error {
	parsed, err := ParseSecurityLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
