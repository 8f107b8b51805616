package autofill

import (
	"strings"
	"unicode"

	"github.com/vault-cli/vaultguard/internal/domain"
)

// ParseSearchTokens splits a search string into lower-cased tokens.
// Tokens are delimited by '+' or whitespace.
func ParseSearchTokens(raw string) []string {
	fields := strings.FieldsFunc(strings.TrimSpace(raw), func(r rune) bool {
		return unicode.IsSpace(r) || r == '+'
	})
	if len(fields) == 0 {
		return nil
	}

	tokens := make([]string, 0, len(fields))
	for _, field := range fields {
		tokens = append(tokens, strings.ToLower(field))
	}
	return tokens
}

// MatchesSearchTokens reports whether every token is contained in the
// snapshot's display title, username, domain, or url.
func MatchesSearchTokens(s domain.AutoFillSnapshot, tokens []string) bool {
	if len(tokens) == 0 {
		return true
	}

	haystack := []string{
		strings.ToLower(s.DisplayTitle()),
		strings.ToLower(s.Username),
	}
	if s.Domain != nil {
		haystack = append(haystack, strings.ToLower(*s.Domain))
	}
	if s.URL != nil {
		haystack = append(haystack, strings.ToLower(*s.URL))
	}

	for _, token := range tokens {
		if !containsAny(haystack, token) {
			return false
		}
	}
	return true
}

// Filter returns the snapshots matching query, keeping their order.
func Filter(snapshots []domain.AutoFillSnapshot, query string) []domain.AutoFillSnapshot {
	tokens := ParseSearchTokens(query)
	if len(tokens) == 0 {
		return snapshots
	}

	matched := make([]domain.AutoFillSnapshot, 0, len(snapshots))
	for _, s := range snapshots {
		if MatchesSearchTokens(s, tokens) {
			matched = append(matched, s)
		}
	}
	return matched
}

func containsAny(fields []string, token string) bool {
	for _, f := range fields {
		if strings.Contains(f, token) {
			return true
		}
	}
	return false
}
