package routing

import "strings"

// Wildcard admits every identity when present in an allowlist.
const Wildcard = "*"

// idPrefixes are provider-specific prefixes stripped before exact ID
// comparison, so "user:123" and "123" refer to the same sender.
var idPrefixes = []string{"user:", "pk:", "id:"}

// stripIDPrefix removes a known provider prefix from an identifier.
func stripIDPrefix(s string) string {
	for _, p := range idPrefixes {
		if strings.HasPrefix(s, p) {
			return s[len(p):]
		}
	}
	return s
}

// MatchAllowlist reports whether an identity is admitted by an allowlist.
//
// Matching order, first hit wins:
//  1. literal "*" entry admits everyone
//  2. exact ID match (provider prefixes stripped on both sides)
//  3. case-insensitive username match (leading "@" ignored)
//  4. case-insensitive tag match
//
// An empty or nil allowlist admits no one — distinct from a wildcard entry.
// Never panics regardless of input shape.
func MatchAllowlist(allow []string, id Identity) bool {
	if len(allow) == 0 {
		return false
	}

	selfID := stripIDPrefix(id.ID)
	for _, entry := range allow {
		if entry == Wildcard {
			return true
		}
		if selfID != "" && stripIDPrefix(entry) == selfID {
			return true
		}
		trimmed := strings.TrimPrefix(entry, "@")
		if id.Username != "" && strings.EqualFold(trimmed, id.Username) {
			return true
		}
		if id.Tag != "" && strings.EqualFold(trimmed, id.Tag) {
			return true
		}
	}
	return false
}

// UnionAllowFrom merges the config-declared allowlist with the pairing-store
// snapshot. Recomputed per call; the result preserves config order first so a
// wildcard declared in config stays an early hit.
func UnionAllowFrom(configured, stored []string) []string {
	if len(stored) == 0 {
		return configured
	}
	out := make([]string, 0, len(configured)+len(stored))
	seen := make(map[string]bool, len(configured)+len(stored))
	for _, lists := range [][]string{configured, stored} {
		for _, v := range lists {
			if v == "" || seen[v] {
				continue
			}
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
