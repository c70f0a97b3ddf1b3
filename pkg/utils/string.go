package utils

import "unicode/utf8"

// Truncate shortens s to at most maxRunes runes, marking the cut with "...".
func Truncate(s string, maxRunes int) string {
	if maxRunes < 0 || utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxRunes]) + "..."
}
