package policy

// AccessControl is the platform condition attached to a stored secret at
// write time.
type AccessControl string

const (
	// AccessUserPresence requires biometrics or the device passcode on
	// every read of the payload.
	AccessUserPresence AccessControl = "user-presence"
	// AccessAfterFirstUnlock only requires the device to have been
	// unlocked once since boot.
	AccessAfterFirstUnlock AccessControl = "after-first-unlock"
)

// AccessControl returns the rule a cached secret written under l must carry.
// Paranoid has no rule because it must never reach the secret store.
func (l SecurityLevel) AccessControl() (AccessControl, error) {
	switch l {
	case Balanced:
		return AccessUserPresence, nil
	case Convenience:
		return AccessAfterFirstUnlock, nil
	default:
		return "", ErrPolicyViolation
	}
}

// Valid reports whether a is a known access rule.
func (a AccessControl) Valid() bool {
	return a == AccessUserPresence || a == AccessAfterFirstUnlock
}
