package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func ptr[T any](v T) *T { return &v }

func TestEntitlementRecord_IsActiveBoundary(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		record EntitlementRecord
		want   bool
	}{
		{"active expired one second ago", EntitlementRecord{Status: EntitlementActive, ExpiresAt: ptr(now.Add(-time.Second))}, false},
		{"active expires in one second", EntitlementRecord{Status: EntitlementActive, ExpiresAt: ptr(now.Add(time.Second))}, true},
		{"active without expiry", EntitlementRecord{Status: EntitlementActive}, true},
		{"active expiring exactly now", EntitlementRecord{Status: EntitlementActive, ExpiresAt: ptr(now)}, false},
		{"grace period in window", EntitlementRecord{Status: EntitlementGracePeriod, ExpiresAt: ptr(now.Add(time.Hour))}, true},
		{"expired status ignores expiry", EntitlementRecord{Status: EntitlementExpired, ExpiresAt: ptr(now.Add(time.Hour))}, false},
		{"unknown", EmptyEntitlement(now), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.record.IsActive(now))
		})
	}
}

func TestEntitlementRecord_Validate(t *testing.T) {
	now := time.Now()
	assert.NoError(t, EmptyEntitlement(now).Validate())
	assert.NoError(t, EntitlementRecord{Status: EntitlementActive, ExpiresAt: ptr(now)}.Validate())
	assert.Error(t, EntitlementRecord{Status: EntitlementUnknown, ExpiresAt: ptr(now)}.Validate())
	assert.Error(t, EntitlementRecord{Status: "lifetime"}.Validate())
}

func TestAutoFillSnapshot_DisplayTitle(t *testing.T) {
	tests := []struct {
		name     string
		snapshot AutoFillSnapshot
		want     string
	}{
		{"title wins", AutoFillSnapshot{Title: " Bank ", Domain: ptr("bank.com")}, "Bank"},
		{"blank title falls back to domain", AutoFillSnapshot{Title: "  ", Domain: ptr("bank.com"), URL: ptr("https://bank.com")}, "bank.com"},
		{"url when no domain", AutoFillSnapshot{URL: ptr("https://bank.com/login")}, "https://bank.com/login"},
		{"blank domain skipped", AutoFillSnapshot{Domain: ptr(" "), URL: ptr("https://x.io")}, "https://x.io"},
		{"placeholder", AutoFillSnapshot{}, UntitledPlaceholder},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.snapshot.DisplayTitle())
		})
	}
}

func TestAutoFillSnapshot_DetailSummary(t *testing.T) {
	assert.Equal(t, "a@b.com • b.com", AutoFillSnapshot{Username: "a@b.com", Domain: ptr("b.com")}.DetailSummary())
	assert.Equal(t, "a@b.com", AutoFillSnapshot{Username: "a@b.com"}.DetailSummary())
	assert.Equal(t, "b.com", AutoFillSnapshot{Domain: ptr("b.com")}.DetailSummary())
	assert.Equal(t, "", AutoFillSnapshot{}.DetailSummary())
}

func TestAutoFillSnapshot_ServiceIdentifier(t *testing.T) {
	id, kind, ok := AutoFillSnapshot{Domain: ptr("b.com"), URL: ptr("https://b.com")}.ServiceIdentifier()
	assert.True(t, ok)
	assert.Equal(t, "b.com", id)
	assert.Equal(t, ServiceDomain, kind)

	id, kind, ok = AutoFillSnapshot{URL: ptr("https://b.com")}.ServiceIdentifier()
	assert.True(t, ok)
	assert.Equal(t, "https://b.com", id)
	assert.Equal(t, ServiceURL, kind)

	_, _, ok = AutoFillSnapshot{Title: "notes"}.ServiceIdentifier()
	assert.False(t, ok)
}

func TestGroup_AllEntries(t *testing.T) {
	g := Group{
		Entries: []LoginEntry{{UUID: "1"}},
		Groups: []Group{
			{Entries: []LoginEntry{{UUID: "2"}}, Groups: []Group{{Entries: []LoginEntry{{UUID: "3"}}}}},
			{Entries: []LoginEntry{{UUID: "4"}}},
		},
	}

	var ids []string
	for _, e := range g.AllEntries() {
		ids = append(ids, e.UUID)
	}
	assert.Equal(t, []string{"1", "2", "3", "4"}, ids)
}

func TestTransaction_ChainID(t *testing.T) {
	assert.Equal(t, "orig", Transaction{TransactionID: "tx", OriginalTransactionID: ptr("orig")}.ChainID())
	assert.Equal(t, "tx", Transaction{TransactionID: "tx", OriginalTransactionID: ptr("")}.ChainID())
	assert.Equal(t, "tx", Transaction{TransactionID: "tx"}.ChainID())
}

func TestTransactionState_GrantsEntitlement(t *testing.T) {
	assert.True(t, TransactionPurchased.GrantsEntitlement())
	assert.True(t, TransactionRestored.GrantsEntitlement())
	assert.False(t, TransactionFailed.GrantsEntitlement())
	assert.False(t, TransactionPurchasing.GrantsEntitlement())
	assert.False(t, TransactionDeferred.GrantsEntitlement())
}

func TestSecrets_IsEmpty(t *testing.T) {
	assert.True(t, Secrets{}.IsEmpty())
	assert.False(t, Secrets{Password: ptr("")}.IsEmpty())
	assert.False(t, Secrets{KeyFileContent: []byte{}}.IsEmpty())
}
