package yomitan

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeEntries(t *testing.T, raw string) []Entry {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal([]byte(`{"fields": `+raw+`}`), &resp))
	return resp.Fields
}

func TestResolveField(t *testing.T) {
	entries := decodeEntries(t, `[
		{"reading": "かみ", "glossary": "paper"},
		{"reading": "かみ", "glossary": "god"},
		{"reading": "がみ", "glossary": ""},
		{"reading": "ない", "glossary": null}
	]`)

	tests := []struct {
		name    string
		entries []Entry
		reading string
		marker  string
		want    string
		wantOK  bool
	}{
		{"first entry without reading", entries, "", "glossary", "paper", true},
		{"first matching reading", entries, "かみ", "glossary", "paper", true},
		{"empty string is present", entries, "がみ", "glossary", "", true},
		{"null is missing", entries, "ない", "glossary", "", false},
		{"reading without match", entries, "しん", "glossary", "", false},
		{"missing marker", entries, "", "audio", "", false},
		{"no entries", nil, "", "glossary", "", false},
		{"no entries with reading", nil, "かみ", "glossary", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ResolveField(tt.entries, tt.reading, tt.marker)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEntryValue_NonString(t *testing.T) {
	entries := decodeEntries(t, `[{"frequency": 1234, "tags": ["a", "b"]}]`)

	v, ok := entries[0].Value("frequency")
	assert.True(t, ok)
	assert.Equal(t, "1234", v)

	v, ok = entries[0].Value("tags")
	assert.True(t, ok)
	assert.Equal(t, `["a", "b"]`, v)
}

func TestNormalizeMarker(t *testing.T) {
	tests := map[string]string{
		"{glossary-brief}": "glossary-brief",
		"glossary":         "glossary",
		" {audio} ":        "audio",
		"{{furigana}}":     "furigana",
		"":                 "",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeMarker(in), "NormalizeMarker(%q)", in)
	}
}

func TestResponseMedia_Nil(t *testing.T) {
	var r *Response
	assert.Nil(t, r.Media())
}
