// Package strings provides string slice helpers shared by request normalizers
// and derived projections.
package strings

import (
	"slices"
	"strings"
)

// DedupeAndTrim removes duplicates and blank values, trimming each element.
// First-seen order is preserved.
//
//	DedupeAndTrim([]string{"  cotton ", "dye", "cotton", ""})
//	// []string{"cotton", "dye"}
func DedupeAndTrim(values []string) []string {
	if len(values) == 0 {
		return []string{}
	}
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		result = append(result, trimmed)
	}
	return result
}

// SortedUnique returns the distinct values of in, sorted ascending. The input
// is not modified. The result never depends on input order.
func SortedUnique[T ~string](in []T) []T {
	out := make([]T, 0, len(in))
	out = append(out, in...)
	slices.Sort(out)
	return slices.Compact(out)
}

// NormalizeLabel lower-cases and trims categorical labels such as entity
// types and checkpoint statuses.
func NormalizeLabel(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
