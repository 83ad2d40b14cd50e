package textutil

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxSegmentRunes caps the length of a single sanitized path segment.
const MaxSegmentRunes = 80

// segmentReplacer maps characters that are invalid in a path segment on any
// common filesystem to underscores.
var segmentReplacer = strings.NewReplacer(
	"<", "_",
	">", "_",
	":", "_",
	"\"", "_",
	"/", "_",
	"\\", "_",
	"|", "_",
	"?", "_",
	"*", "_",
)

// SanitizeSegment converts value into a single safe directory or file name.
// Reserved characters and control runes become underscores, surrounding dots
// and whitespace are trimmed, and the result is capped at MaxSegmentRunes.
// An empty result yields fallback.
func SanitizeSegment(value, fallback string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}
	value = segmentReplacer.Replace(value)
	value = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return '_'
		}
		return r
	}, value)
	value = strings.Trim(value, " .")
	if value == "" {
		return fallback
	}
	if utf8.RuneCountInString(value) > MaxSegmentRunes {
		runes := []rune(value)
		value = strings.TrimRight(string(runes[:MaxSegmentRunes]), " .")
	}
	if value == "" {
		return fallback
	}
	return value
}

// CollapseSpaces trims value and folds every whitespace run into one space.
func CollapseSpaces(value string) string {
	return strings.Join(strings.Fields(value), " ")
}

// SanitizeToken converts a string to a lowercase filesystem-safe token.
// Letters are lowercased, digits and hyphens/underscores are kept, everything
// else becomes an underscore. Returns "unknown" for empty input.
func SanitizeToken(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "unknown"
	}
	var b strings.Builder
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), "_-")
	if out == "" {
		return "unknown"
	}
	return out
}
