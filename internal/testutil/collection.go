package testutil

import (
	"path/filepath"
	"testing"

	"codeberg.org/snonux/yomibackfill/internal/anki"
)

// Fixture ids of the collection created by NewCollection
const (
	DeckMining   = int64(1700000000001)
	DeckOther    = int64(1700000000002)
	TypeMining   = int64(1600000000001)
	TypeSentence = int64(1600000000002)
)

// MiningFields are the fields of the TypeMining note type
var MiningFields = []string{"Expression", "Reading", "Glossary", "Audio", "Picture"}

// NewCollection creates a legacy schema collection with two decks and two
// note types and opens it. The collection is closed with the test.
func NewCollection(t *testing.T) *anki.Collection {
	t.Helper()

	path := filepath.Join(t.TempDir(), "collection.anki2")
	err := anki.CreateCollection(path,
		[]anki.Deck{
			{ID: DeckMining, Name: "Japanese::Mining"},
			{ID: DeckOther, Name: "Other"},
		},
		[]anki.NoteType{
			{ID: TypeMining, Name: "Mining", Fields: MiningFields},
			{ID: TypeSentence, Name: "Sentence", Fields: []string{"Sentence", "Word", "Notes"}},
		},
	)
	if err != nil {
		t.Fatalf("Failed to create test collection: %v", err)
	}

	c, err := anki.Open(path)
	if err != nil {
		t.Fatalf("Failed to open test collection: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}
