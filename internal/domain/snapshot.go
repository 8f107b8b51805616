package domain

import (
	"strings"
	"time"
)

// UntitledPlaceholder is shown for a snapshot with no usable title,
// domain, or URL.
var UntitledPlaceholder = "Untitled"

// AutoFillSnapshot is a minimal, autofill-ready copy of a login entry.
type AutoFillSnapshot struct {
	UUID      string    `json:"uuid"`
	Title     string    `json:"title"`
	Username  string    `json:"username"`
	Password  string    `json:"password"`
	Domain    *string   `json:"domain,omitempty"`
	URL       *string   `json:"url,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DisplayTitle is the first non-blank of title, domain, and url, or the
// untitled placeholder.
func (s AutoFillSnapshot) DisplayTitle() string {
	if t := strings.TrimSpace(s.Title); t != "" {
		return t
	}
	if d := deref(s.Domain); d != "" {
		return d
	}
	if u := deref(s.URL); u != "" {
		return u
	}
	return UntitledPlaceholder
}

// DetailSummary is "<username> • <domain>" when both are present, else
// whichever one is present.
func (s AutoFillSnapshot) DetailSummary() string {
	user := strings.TrimSpace(s.Username)
	dom := deref(s.Domain)
	switch {
	case user != "" && dom != "":
		return user + " • " + dom
	case user != "":
		return user
	default:
		return dom
	}
}

// ServiceIdentifier returns the identifier published to the identity
// index: the domain when present, else the url. ok is false when neither
// is usable.
func (s AutoFillSnapshot) ServiceIdentifier() (id string, kind ServiceIdentifierType, ok bool) {
	if d := deref(s.Domain); d != "" {
		return d, ServiceDomain, true
	}
	if u := deref(s.URL); u != "" {
		return u, ServiceURL, true
	}
	return "", "", false
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
