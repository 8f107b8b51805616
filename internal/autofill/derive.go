package autofill

import (
	"net/url"
	"strings"
	"time"

	"github.com/vault-cli/vaultguard/internal/domain"
)

// SnapshotFromEntry derives the snapshot published for a login entry. ok is
// false when the trimmed username or password is empty; such entries must
// not have a snapshot.
func SnapshotFromEntry(entry domain.LoginEntry, now time.Time) (snapshot domain.AutoFillSnapshot, ok bool) {
	username := strings.TrimSpace(entry.Username)
	password := strings.TrimSpace(entry.Password)
	if username == "" || password == "" {
		return domain.AutoFillSnapshot{}, false
	}

	snapshot = domain.AutoFillSnapshot{
		UUID:      entry.UUID,
		Title:     strings.TrimSpace(entry.Title),
		Username:  username,
		Password:  password,
		UpdatedAt: now.UTC(),
	}

	if link, host, ok := normalizeURL(entry.URL); ok {
		snapshot.URL = &link
		if host != "" {
			snapshot.Domain = &host
		}
	}

	return snapshot, true
}

// normalizeURL adds https:// to a bare host and extracts the lowercase
// host. An unparsable value is kept as typed, without a host.
func normalizeURL(raw string) (link, host string, ok bool) {
	link = strings.TrimSpace(raw)
	if link == "" {
		return "", "", false
	}
	if !strings.Contains(link, "://") {
		link = "https://" + link
	}

	parsed, err := url.Parse(link)
	if err != nil {
		return strings.TrimSpace(raw), "", true
	}
	return link, strings.ToLower(parsed.Hostname()), true
}
