package util

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var controlChars = regexp.MustCompile(`[\x00-\x1F\x7F]+`)

// SanitizeForLog collapses control characters and line breaks in
// user-supplied text into single spaces so one value cannot forge log lines.
func SanitizeForLog(s string) string {
	if s == "" {
		return s
	}
	return controlChars.ReplaceAllString(strings.ReplaceAll(s, "\r\n", " "), " ")
}

// Truncate cuts s to at most max bytes without splitting a UTF-8 sequence.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
