package utils

import "strings"

// SplitAndTrim splits s on sep, trims every element and drops the empty ones.
func SplitAndTrim(s, sep string) []string {
	parts := make([]string, 0)
	for _, p := range strings.Split(s, sep) {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}
