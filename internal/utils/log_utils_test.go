package utils

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeLogString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "Empty string",
			input:    "",
			expected: "",
		},
		{
			name:     "Normal string",
			input:    "Friday standup",
			expected: "Friday standup",
		},
		{
			name:     "Format specifiers are kept",
			input:    "Room with %s and %d",
			expected: "Room with %s and %d",
		},
		{
			name:     "String with newlines",
			input:    "First line\nSecond line\r\nThird line",
			expected: "First line Second line Third line",
		},
		{
			name:     "Long string truncation",
			input:    strings.Repeat("A", 300),
			expected: strings.Repeat("A", MaxLogStringLength) + "... (truncated)",
		},
		{
			name:     "Truncation keeps whole runes",
			input:    strings.Repeat("ø", 250),
			expected: strings.Repeat("ø", MaxLogStringLength) + "... (truncated)",
		},
		{
			name:     "String with control characters",
			input:    "Room\twith\x00control\x1Fcharacters",
			expected: "Room with control characters",
		},
		{
			name:     "Invalid UTF-8",
			input:    "user\xffid",
			expected: "user id",
		},
		{
			name:     "String with script tags",
			input:    "Room <script>alert('hacked!');</script>",
			expected: "Room <script>alert('hacked!');</script>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := SanitizeLogString(tt.input)
			assert.Equal(t, tt.expected, result)
			assert.True(t, utf8.ValidString(result))
		})
	}
}
