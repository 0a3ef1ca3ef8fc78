package utils

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxLogStringLength is the maximum number of runes kept from a user-provided string
const MaxLogStringLength = 200

// unprintable matches anything that is not a letter, number, punctuation, symbol or space
var unprintable = regexp.MustCompile(`[^\p{L}\p{N}\p{P}\p{S}\p{Z}]`)

// SanitizeLogString makes a user-controlled string (room name, code, user id)
// safe to put in a log field. Control characters become spaces and long
// values are cut on a rune boundary.
func SanitizeLogString(input string) string {
	if input == "" {
		return ""
	}

	if utf8.RuneCountInString(input) > MaxLogStringLength {
		input = string([]rune(input)[:MaxLogStringLength]) + "... (truncated)"
	}

	// Pre-process CRLF to avoid double spaces
	input = strings.ReplaceAll(input, "\r\n", "\n")

	sanitized := strings.Map(func(r rune) rune {
		if r == utf8.RuneError || unicode.IsControl(r) {
			return ' '
		}
		return r
	}, input)

	return unprintable.ReplaceAllString(sanitized, "")
}
