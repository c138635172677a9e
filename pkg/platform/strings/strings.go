// Package strings holds small text helpers shared by the roster code.
package strings

import (
	"strings"
)

// Dedupe drops repeated and blank entries, keeping first-seen order.
// Entries are compared exactly; alias keys differ only by case on purpose
// ("barcode" vs "Barcode").
func Dedupe(values ...[]string) []string {
	n := 0
	for _, v := range values {
		n += len(v)
	}
	seen := make(map[string]struct{}, n)
	out := make([]string, 0, n)
	for _, list := range values {
		for _, v := range list {
			if v == "" {
				continue
			}
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}

// Fold prepares free text for case-insensitive containment checks.
func Fold(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ContainsFold reports whether haystack contains needle, where needle has
// already been folded.
func ContainsFold(haystack, needle string) bool {
	if needle == "" {
		return false
	}
	return strings.Contains(strings.ToLower(haystack), needle)
}
