package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeForLog(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"clean", "ops@example.com", "ops@example.com"},
		{"crlf", "line1\r\nline2", "line1 line2"},
		{"forged entry", "bob\n{\"level\":\"info\"}", "bob {\"level\":\"info\"}"},
		{"run of controls", "a\x00\x01\x1Fb", "a b"},
		{"delete char", "a\x7Fb", "a b"},
		{"unicode kept", "café ☕", "café ☕"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeForLog(tt.input))
		})
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 10))
	assert.Equal(t, "ab", Truncate("abc", 2))
	assert.Equal(t, "", Truncate("abc", 0))
	// "é" is two bytes; cutting inside it backs off to the rune start
	assert.Equal(t, "caf", Truncate("café", 4))
	assert.Equal(t, "café", Truncate("café", 5))
}
