// Package allowlist implements the allow-list decision service: email
// normalization, a read-through TTL cache over the store, and the
// mutation operations the admin surface drives.
package allowlist

import "strings"

// Normalize maps a raw email to its canonical form: surrounding
// whitespace stripped, then lowercased. Every lookup key, write key,
// and audit field passes through here so that case and whitespace
// variants of the same address behave identically. Empty input stays
// empty; callers reject empty before lookup.
func Normalize(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
