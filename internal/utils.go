package internal

import (
	"strings"
	"unicode"
)

// maxFilenameRunes bounds sanitized names so long sentences stay usable as
// file names
const maxFilenameRunes = 40

// SanitizeFilename creates a safe filename from a string. Letters and
// digits of any script are kept so Japanese terms stay readable.
func SanitizeFilename(s string) string {
	var b strings.Builder
	n := 0
	for _, r := range strings.TrimSpace(s) {
		if n == maxFilenameRunes {
			break
		}
		if isFilenameRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
		n++
	}
	return b.String()
}

// isFilenameRune checks if a rune is safe in a media filename
func isFilenameRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_'
}
