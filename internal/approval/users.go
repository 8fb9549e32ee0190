// Package approval decides whether an inbound sender may talk to the coach.
// Exactly one identity is allowed: the configured phone number or Telegram
// chat id.
package approval

import (
	"strings"
	"unicode"
)

// Allowlist authorizes one normalized sender identity.
type Allowlist struct {
	identity string
}

// NewAllowlist returns an allowlist for identity. An empty identity allows
// nobody.
func NewAllowlist(identity string) Allowlist {
	return Allowlist{identity: NormalizeIdentity(identity)}
}

// Identity returns the normalized allowed identity.
func (a Allowlist) Identity() string {
	return a.identity
}

// IsAllowed reports whether sender matches the allowed identity.
func (a Allowlist) IsAllowed(sender string) bool {
	if a.identity == "" {
		return false
	}
	return NormalizeIdentity(sender) == a.identity
}

// NormalizeIdentity canonicalizes a sender identity. Phone-like values drop
// spaces, dashes, dots and parentheses so "+1 (555) 010-2000" matches
// "+15550102000". A leading sign is kept for Telegram group chat ids.
// Other values are trimmed and lower-cased.
func NormalizeIdentity(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	if !isPhoneLike(trimmed) {
		return strings.ToLower(trimmed)
	}

	var b strings.Builder
	for i, r := range trimmed {
		switch {
		case unicode.IsDigit(r):
			b.WriteRune(r)
		case (r == '+' || r == '-') && i == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isPhoneLike(s string) bool {
	digits := 0
	for i, r := range s {
		switch {
		case unicode.IsDigit(r):
			digits++
		case (r == '+' || r == '-') && i == 0:
		case r == ' ' || r == '-' || r == '.' || r == '(' || r == ')':
		default:
			return false
		}
	}
	return digits > 0
}
