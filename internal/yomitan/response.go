package yomitan

import (
	"encoding/json"
	"strings"
)

// ReadingMarker is always requested so entries can be matched to a reading
const ReadingMarker = "reading"

// Entry is one dictionary entry of an ankiFields response, keyed by marker
type Entry map[string]json.RawMessage

// Value returns the marker's value as a string. ok is false when the
// marker is absent or null; an empty string is a present value.
func (e Entry) Value(marker string) (string, bool) {
	raw, found := e[marker]
	if !found {
		return "", false
	}

	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return "", false
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	// Non-string values (numbers, frequency lists) are kept as raw JSON
	return trimmed, true
}

// MediaFile is a media file referenced by marker values
type MediaFile struct {
	AnkiFilename string `json:"ankiFilename"`
	// Content is the base64 encoded file body
	Content string `json:"content"`
}

// Response is the body returned by POST /ankiFields
type Response struct {
	Fields          []Entry     `json:"fields"`
	DictionaryMedia []MediaFile `json:"dictionaryMedia"`
	AudioMedia      []MediaFile `json:"audioMedia"`
}

// Media returns dictionary media followed by audio media
func (r *Response) Media() []MediaFile {
	if r == nil {
		return nil
	}
	all := make([]MediaFile, 0, len(r.DictionaryMedia)+len(r.AudioMedia))
	all = append(all, r.DictionaryMedia...)
	return append(all, r.AudioMedia...)
}

// ResolveField picks the marker value for a note. With a reading, the
// first entry whose reading matches wins and no match means missing.
// Without a reading the first entry is used.
func ResolveField(entries []Entry, reading, marker string) (string, bool) {
	if len(entries) == 0 {
		return "", false
	}

	if reading == "" {
		return entries[0].Value(marker)
	}

	for _, e := range entries {
		if r, ok := e.Value(ReadingMarker); ok && r == reading {
			return e.Value(marker)
		}
	}
	return "", false
}

// NormalizeMarker turns a handlebar such as "{glossary-brief}" into the
// marker name the API expects
func NormalizeMarker(handlebar string) string {
	return strings.TrimSpace(strings.NewReplacer("{", "", "}", "").Replace(handlebar))
}
