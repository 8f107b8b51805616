package autofill

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vault-cli/vaultguard/internal/domain"
)

func TestSnapshotFromEntry(t *testing.T) {
	tests := []struct {
		name       string
		entry      domain.LoginEntry
		wantOK     bool
		wantDomain *string
		wantURL    *string
	}{
		{
			name:       "bare host with path",
			entry:      domain.LoginEntry{Username: " a@b.com ", Password: " x ", URL: "example.com/login"},
			wantOK:     true,
			wantDomain: ptr("example.com"),
			wantURL:    ptr("https://example.com/login"),
		},
		{
			name:       "scheme kept and host lowered",
			entry:      domain.LoginEntry{Username: "u", Password: "p", URL: " http://Example.COM:8080/x "},
			wantOK:     true,
			wantDomain: ptr("example.com"),
			wantURL:    ptr("http://Example.COM:8080/x"),
		},
		{
			name:   "no url",
			entry:  domain.LoginEntry{Username: "u", Password: "p"},
			wantOK: true,
		},
		{
			name:   "blank username",
			entry:  domain.LoginEntry{Username: "  ", Password: "p"},
			wantOK: false,
		},
		{
			name:   "blank password",
			entry:  domain.LoginEntry{Username: "u", Password: "\t"},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := SnapshotFromEntry(tt.entry, t0)
			assert.Equal(t, tt.wantOK, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.wantDomain, got.Domain)
			assert.Equal(t, tt.wantURL, got.URL)
			assert.Equal(t, t0, got.UpdatedAt)
		})
	}
}

func TestSnapshotFromEntry_TrimsFields(t *testing.T) {
	got, ok := SnapshotFromEntry(domain.LoginEntry{UUID: "id", Title: "  Bank ", Username: " u ", Password: " p "}, t0)
	assert.True(t, ok)
	assert.Equal(t, "id", got.UUID)
	assert.Equal(t, "Bank", got.Title)
	assert.Equal(t, "u", got.Username)
	assert.Equal(t, "p", got.Password)
}

func TestFilter(t *testing.T) {
	snapshots := []domain.AutoFillSnapshot{
		{UUID: "1", Title: "Bank", Username: "alice", Domain: ptr("bank.com")},
		{UUID: "2", Title: "Mail", Username: "bob", URL: ptr("https://mail.io")},
	}

	assert.Len(t, Filter(snapshots, ""), 2)
	assert.Equal(t, "1", Filter(snapshots, "BANK")[0].UUID)
	assert.Equal(t, "2", Filter(snapshots, "mail+bob")[0].UUID)
	assert.Empty(t, Filter(snapshots, "alice mail"))
	assert.Equal(t, []string{"bank", "x"}, ParseSearchTokens(" Bank + x "))
	assert.Nil(t, ParseSearchTokens("  "))
}
