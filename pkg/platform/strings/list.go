// Package strings holds list helpers for values that arrive as free text
// in headers, flags and environment variables.
package strings

import "strings"

// SplitList splits raw on sep and returns the distinct non-blank items,
// trimmed, in first-seen order. A blank input yields nil.
func SplitList(raw, sep string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return DedupeAndTrim(strings.Split(raw, sep))
}

// DedupeAndTrim trims every value and drops blanks and repeats. Comparison
// is case sensitive.
func DedupeAndTrim(values []string) []string {
	if values == nil {
		return nil
	}
	out := values[:0:0]
	seen := map[string]bool{}
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
