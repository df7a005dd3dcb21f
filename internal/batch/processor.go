package batch

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ReadNoteIDFile reads note ids from a file, one per line. This is the
// selection the card browser exports. Supports:
// - plain ids: "1700000000123"
// - comments: "# mined on Tuesday" and "1700000000123 # 食べる"
// Blank lines are ignored and duplicates are dropped keeping the first
// occurrence.
func ReadNoteIDFile(filename string) ([]int64, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read note id file: %w", err)
	}
	return ParseNoteIDs(string(content))
}

// ParseNoteIDs parses note ids in the ReadNoteIDFile format
func ParseNoteIDs(content string) ([]int64, error) {
	var ids []int64
	seen := make(map[int64]bool)

	for n, line := range splitLines(content) {
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		if line = trimSpace(line); line == "" {
			continue
		}

		id, err := strconv.ParseInt(line, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("line %d: invalid note id %q", n+1, line)
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}

	return ids, nil
}

// splitLines splits a string by newlines
func splitLines(s string) []string {
	return strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
}

// trimSpace trims whitespace from string
func trimSpace(s string) string {
	return strings.TrimSpace(s)
}
