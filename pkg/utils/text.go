// Package utils provides shared helpers for text, vectors, and logging.
package utils

import "strings"

// Truncate returns s truncated to maxLen bytes, with "..." appended if truncated.
// If maxLen is 0 or negative, s is returned unchanged.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// OneLine collapses all whitespace runs in s into single spaces.
func OneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
