package anki

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Deck is a deck id and its full name ("Parent::Child")
type Deck struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// NoteType is a note type (model) with its ordered field names
type NoteType struct {
	ID     int64
	Name   string
	Fields []string
	// SortField is the index of the sort field, -1 when the schema does not
	// expose it in a readable form
	SortField int
}

// FieldIndex returns the position of a field or -1
func (nt *NoteType) FieldIndex(name string) int {
	for i, f := range nt.Fields {
		if f == name {
			return i
		}
	}
	return -1
}

// modern collections separate deck name components with 0x1f
const deckSeparator = "\x1f"

// Decks returns all decks sorted by name
func (c *Collection) Decks(ctx context.Context) ([]Deck, error) {
	var (
		decks []Deck
		err   error
	)
	if c.legacy {
		decks, err = c.legacyDecks(ctx)
	} else {
		decks, err = c.modernDecks(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read decks: %w", err)
	}

	sort.Slice(decks, func(i, j int) bool {
		return strings.ToLower(decks[i].Name) < strings.ToLower(decks[j].Name)
	})
	return decks, nil
}

func (c *Collection) legacyDecks(ctx context.Context) ([]Deck, error) {
	var raw string
	if err := c.db.QueryRowContext(ctx, `SELECT decks FROM col`).Scan(&raw); err != nil {
		return nil, err
	}

	var byID map[string]Deck
	if err := json.Unmarshal([]byte(raw), &byID); err != nil {
		return nil, fmt.Errorf("invalid decks json: %w", err)
	}

	decks := make([]Deck, 0, len(byID))
	for key, d := range byID {
		if d.ID == 0 {
			// very old collections keep the id only in the map key
			d.ID, _ = strconv.ParseInt(key, 10, 64)
		}
		decks = append(decks, d)
	}
	return decks, nil
}

func (c *Collection) modernDecks(ctx context.Context) ([]Deck, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT id, name FROM decks`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var decks []Deck
	for rows.Next() {
		var d Deck
		if err := rows.Scan(&d.ID, &d.Name); err != nil {
			return nil, err
		}
		d.Name = strings.ReplaceAll(d.Name, deckSeparator, "::")
		decks = append(decks, d)
	}
	return decks, rows.Err()
}

// DeckByName looks a deck up by its full name, case-insensitively
func (c *Collection) DeckByName(ctx context.Context, name string) (Deck, error) {
	decks, err := c.Decks(ctx)
	if err != nil {
		return Deck{}, err
	}
	for _, d := range decks {
		if strings.EqualFold(d.Name, name) {
			return d, nil
		}
	}
	return Deck{}, fmt.Errorf("%w: %q", ErrDeckNotFound, name)
}

// DeckByID looks a deck up by id
func (c *Collection) DeckByID(ctx context.Context, id int64) (Deck, error) {
	decks, err := c.Decks(ctx)
	if err != nil {
		return Deck{}, err
	}
	for _, d := range decks {
		if d.ID == id {
			return d, nil
		}
	}
	return Deck{}, fmt.Errorf("%w: id %d", ErrDeckNotFound, id)
}

// NoteDeck returns the deck of the note's first card
func (c *Collection) NoteDeck(ctx context.Context, noteID int64) (Deck, error) {
	var did int64
	err := c.db.QueryRowContext(ctx,
		`SELECT did FROM cards WHERE nid = ? ORDER BY ord, id LIMIT 1`, noteID).Scan(&did)
	if errors.Is(err, sql.ErrNoRows) {
		return Deck{}, fmt.Errorf("%w: id %d", ErrNoteNotFound, noteID)
	}
	if err != nil {
		return Deck{}, fmt.Errorf("failed to query note deck: %w", err)
	}
	return c.DeckByID(ctx, did)
}

// DeckFieldNames returns the sorted union of the field names of all note
// types used by cards in the deck
func (c *Collection) DeckFieldNames(ctx context.Context, deckID int64) ([]string, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT DISTINCT n.mid FROM notes n JOIN cards c ON n.id = c.nid WHERE c.did = ?`, deckID)
	if err != nil {
		return nil, fmt.Errorf("failed to query deck note types: %w", err)
	}
	defer rows.Close()

	seen := make(map[string]bool)
	for rows.Next() {
		var mid int64
		if err := rows.Scan(&mid); err != nil {
			return nil, err
		}
		nt, ok := c.noteTypes[mid]
		if !ok {
			continue
		}
		for _, f := range nt.Fields {
			seen[f] = true
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// NoteType returns a cached note type
func (c *Collection) NoteType(id int64) (*NoteType, bool) {
	nt, ok := c.noteTypes[id]
	return nt, ok
}

func (c *Collection) loadNoteTypes() error {
	if c.legacy {
		return c.loadLegacyNoteTypes()
	}
	return c.loadModernNoteTypes()
}

type legacyModel struct {
	ID    json.Number `json:"id"`
	Name  string      `json:"name"`
	SortF int         `json:"sortf"`
	Flds  []struct {
		Name string `json:"name"`
		Ord  int    `json:"ord"`
	} `json:"flds"`
}

func (c *Collection) loadLegacyNoteTypes() error {
	var raw string
	if err := c.db.QueryRow(`SELECT models FROM col`).Scan(&raw); err != nil {
		return err
	}

	var byID map[string]legacyModel
	if err := json.Unmarshal([]byte(raw), &byID); err != nil {
		return fmt.Errorf("invalid models json: %w", err)
	}

	c.noteTypes = make(map[int64]*NoteType, len(byID))
	for key, m := range byID {
		id, err := m.ID.Int64()
		if err != nil || id == 0 {
			id, err = strconv.ParseInt(key, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid note type id %q", key)
			}
		}

		flds := m.Flds
		sort.SliceStable(flds, func(i, j int) bool { return flds[i].Ord < flds[j].Ord })
		nt := &NoteType{ID: id, Name: m.Name, SortField: m.SortF}
		for _, f := range flds {
			nt.Fields = append(nt.Fields, f.Name)
		}
		c.noteTypes[id] = nt
	}
	return nil
}

func (c *Collection) loadModernNoteTypes() error {
	c.noteTypes = make(map[int64]*NoteType)

	rows, err := c.db.Query(`SELECT id, name FROM notetypes`)
	if err != nil {
		return err
	}
	for rows.Next() {
		nt := &NoteType{SortField: -1}
		if err := rows.Scan(&nt.ID, &nt.Name); err != nil {
			rows.Close()
			return err
		}
		c.noteTypes[nt.ID] = nt
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = c.db.Query(`SELECT ntid, name FROM fields ORDER BY ntid, ord`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			ntid int64
			name string
		)
		if err := rows.Scan(&ntid, &name); err != nil {
			return err
		}
		if nt, ok := c.noteTypes[ntid]; ok {
			nt.Fields = append(nt.Fields, name)
		}
	}
	return rows.Err()
}
