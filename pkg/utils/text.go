// Package utils provides shared logging and text helpers.
package utils

import "strings"

// Excerpt condenses raw response bytes into a single-line fragment for error
// messages: whitespace runs collapse to one space and the result is cut at
// maxLen bytes with "..." appended. maxLen <= 0 disables the cut.
func Excerpt(b []byte, maxLen int) string {
	s := strings.Join(strings.Fields(string(b)), " ")
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
