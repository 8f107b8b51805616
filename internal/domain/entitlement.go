package domain

import (
	"fmt"
	"time"
)

// EntitlementStatus is the subscription state of an EntitlementRecord.
type EntitlementStatus string

const (
	EntitlementUnknown     EntitlementStatus = "unknown"
	EntitlementActive      EntitlementStatus = "active"
	EntitlementGracePeriod EntitlementStatus = "gracePeriod"
	EntitlementExpired     EntitlementStatus = "expired"
)

// Valid reports whether s is one of the known statuses.
func (s EntitlementStatus) Valid() bool {
	switch s {
	case EntitlementUnknown, EntitlementActive, EntitlementGracePeriod, EntitlementExpired:
		return true
	}
	return false
}

// EntitlementRecord is the locally cached subscription state. It is always
// replaced as a whole.
type EntitlementRecord struct {
	Status                EntitlementStatus `json:"status"`
	ExpiresAt             *time.Time        `json:"expires_at,omitempty"`
	OriginalTransactionID *string           `json:"original_transaction_id,omitempty"`
	LastUpdated           time.Time         `json:"last_updated"`
}

// EmptyEntitlement returns the first-run record.
func EmptyEntitlement(now time.Time) EntitlementRecord {
	return EntitlementRecord{Status: EntitlementUnknown, LastUpdated: now.UTC()}
}

// IsActive reports whether the record grants access at now. Expiry is
// evaluated lazily on every call.
func (r EntitlementRecord) IsActive(now time.Time) bool {
	if r.Status != EntitlementActive && r.Status != EntitlementGracePeriod {
		return false
	}
	return r.ExpiresAt == nil || r.ExpiresAt.After(now)
}

// Validate checks the record invariants.
func (r EntitlementRecord) Validate() error {
	if !r.Status.Valid() {
		return fmt.Errorf("unknown entitlement status %q", r.Status)
	}
	if r.Status == EntitlementUnknown && r.ExpiresAt != nil {
		return fmt.Errorf("entitlement with unknown status must not carry an expiry")
	}
	return nil
}
