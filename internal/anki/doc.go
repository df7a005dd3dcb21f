// Package anki reads and updates Anki collection files (collection.anki2)
// directly through SQLite. Both the legacy layout, where decks and note
// types are JSON blobs in the col table, and the newer table layout are
// supported.
package anki
