package anki

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CreateCollection creates a new collection file in the legacy (schema 11)
// layout with the given decks and note types, plus its media folder. A
// "Default" deck with id 1 is always present.
func CreateCollection(path string, decks []Deck, noteTypes []NoteType) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("collection already exists: %s", path)
	}

	db, err := openDB(path)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := createTables(db); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	if err := insertCollection(db, decks, noteTypes); err != nil {
		return fmt.Errorf("failed to insert collection: %w", err)
	}

	mediaDir := strings.TrimSuffix(path, ".anki2") + ".media"
	if err := os.MkdirAll(mediaDir, 0755); err != nil {
		return fmt.Errorf("failed to create media folder: %w", err)
	}

	return nil
}

// createTables creates the schema 11 tables and indexes
func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE col (
			id integer PRIMARY KEY,
			crt integer NOT NULL,
			mod integer NOT NULL,
			scm integer NOT NULL,
			ver integer NOT NULL,
			dty integer NOT NULL,
			usn integer NOT NULL,
			ls integer NOT NULL,
			conf text NOT NULL,
			models text NOT NULL,
			decks text NOT NULL,
			dconf text NOT NULL,
			tags text NOT NULL
		)`,
		`CREATE TABLE notes (
			id integer PRIMARY KEY,
			guid text NOT NULL,
			mid integer NOT NULL,
			mod integer NOT NULL,
			usn integer NOT NULL,
			tags text NOT NULL,
			flds text NOT NULL,
			sfld integer NOT NULL,
			csum integer NOT NULL,
			flags integer NOT NULL,
			data text NOT NULL
		)`,
		`CREATE TABLE cards (
			id integer PRIMARY KEY,
			nid integer NOT NULL,
			did integer NOT NULL,
			ord integer NOT NULL,
			mod integer NOT NULL,
			usn integer NOT NULL,
			type integer NOT NULL,
			queue integer NOT NULL,
			due integer NOT NULL,
			ivl integer NOT NULL,
			factor integer NOT NULL,
			reps integer NOT NULL,
			lapses integer NOT NULL,
			left integer NOT NULL,
			odue integer NOT NULL,
			odid integer NOT NULL,
			flags integer NOT NULL,
			data text NOT NULL
		)`,
		`CREATE TABLE revlog (
			id integer PRIMARY KEY,
			cid integer NOT NULL,
			usn integer NOT NULL,
			ease integer NOT NULL,
			ivl integer NOT NULL,
			lastIvl integer NOT NULL,
			factor integer NOT NULL,
			time integer NOT NULL,
			type integer NOT NULL
		)`,
		`CREATE TABLE graves (
			usn integer NOT NULL,
			oid integer NOT NULL,
			type integer NOT NULL
		)`,
		`CREATE INDEX ix_notes_csum ON notes (csum)`,
		`CREATE INDEX ix_notes_usn ON notes (usn)`,
		`CREATE INDEX ix_cards_usn ON cards (usn)`,
		`CREATE INDEX ix_cards_nid ON cards (nid)`,
		`CREATE INDEX ix_cards_sched ON cards (did, queue, due)`,
		`CREATE INDEX ix_revlog_usn ON revlog (usn)`,
		`CREATE INDEX ix_revlog_cid ON revlog (cid)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}

	return nil
}

// insertCollection writes the single col row holding decks and models json
func insertCollection(db *sql.DB, decks []Deck, noteTypes []NoteType) error {
	now := time.Now().Unix()

	deckJSON := map[string]interface{}{
		"1": deckConfig(1, "Default", now),
	}
	for _, d := range decks {
		deckJSON[strconv.FormatInt(d.ID, 10)] = deckConfig(d.ID, d.Name, now)
	}
	decksJSON, err := json.Marshal(deckJSON)
	if err != nil {
		return err
	}

	models := make(map[string]interface{}, len(noteTypes))
	for _, nt := range noteTypes {
		models[strconv.FormatInt(nt.ID, 10)] = noteTypeConfig(nt, now)
	}
	modelsJSON, err := json.Marshal(models)
	if err != nil {
		return err
	}

	conf := map[string]interface{}{
		"nextPos":       1,
		"estTimes":      true,
		"activeDecks":   []int64{1},
		"sortType":      "noteFld",
		"sortBackwards": false,
		"addToCur":      true,
		"curDeck":       1,
		"newSpread":     0,
		"dueCounts":     true,
		"collapseTime":  1200,
		"timeLim":       0,
		"schedVer":      2,
		"dayLearnFirst": false,
	}
	confJSON, err := json.Marshal(conf)
	if err != nil {
		return err
	}

	query := `INSERT INTO col VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = db.Exec(query,
		1,        // id
		now,      // crt
		now*1000, // mod
		now*1000, // scm
		11,       // ver (schema version)
		0,        // dty
		0,        // usn
		0,        // ls
		string(confJSON),
		string(modelsJSON),
		string(decksJSON),
		"{}", // dconf
		"{}", // tags
	)
	return err
}

func deckConfig(id int64, name string, now int64) map[string]interface{} {
	return map[string]interface{}{
		"id":               id,
		"name":             name,
		"mod":              now,
		"desc":             "",
		"collapsed":        false,
		"dyn":              0,
		"conf":             1,
		"usn":              0,
		"newToday":         []int{0, 0},
		"revToday":         []int{0, 0},
		"lrnToday":         []int{0, 0},
		"timeToday":        []int{0, 0},
		"browserCollapsed": false,
		"extendNew":        10,
		"extendRev":        50,
	}
}

func noteTypeConfig(nt NoteType, now int64) map[string]interface{} {
	flds := make([]map[string]interface{}, 0, len(nt.Fields))
	qfmt := ""
	for i, name := range nt.Fields {
		flds = append(flds, map[string]interface{}{
			"name":   name,
			"ord":    i,
			"sticky": false,
			"rtl":    false,
			"font":   "Arial",
			"size":   20,
			"media":  []string{},
		})
		if i == 0 {
			qfmt = "{{" + name + "}}"
		}
	}

	sortf := nt.SortField
	if sortf < 0 || sortf >= len(nt.Fields) {
		sortf = 0
	}

	return map[string]interface{}{
		"id":    nt.ID,
		"name":  nt.Name,
		"type":  0,
		"mod":   now,
		"usn":   -1,
		"sortf": sortf,
		"did":   1,
		"req":   [][]interface{}{{0, "all", []int{0}}},
		"vers":  []int{},
		"tags":  []string{},
		"flds":  flds,
		"tmpls": []map[string]interface{}{
			{
				"name":  "Card 1",
				"ord":   0,
				"qfmt":  qfmt,
				"afmt":  "{{FrontSide}}",
				"did":   nil,
				"bqfmt": "",
				"bafmt": "",
			},
		},
		"css": ".card { font-family: Arial, sans-serif; font-size: 20px; text-align: center; }",
	}
}

// AddNote inserts a note of the given note type with one new card in the
// deck and returns the note id
func (c *Collection) AddNote(ctx context.Context, deckID, noteTypeID int64, values []string, tags ...string) (int64, error) {
	nt, ok := c.noteTypes[noteTypeID]
	if !ok {
		return 0, fmt.Errorf("unknown note type %d", noteTypeID)
	}
	if len(values) != len(nt.Fields) {
		return 0, fmt.Errorf("note type %q has %d fields, got %d values", nt.Name, len(nt.Fields), len(values))
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	now := time.Now()
	var noteID int64
	if err := tx.QueryRowContext(ctx,
		`SELECT MAX(COALESCE((SELECT MAX(id) FROM notes), 0) + 1, ?)`, now.UnixMilli(),
	).Scan(&noteID); err != nil {
		return 0, err
	}

	sortf := nt.SortField
	if sortf < 0 || sortf >= len(values) {
		sortf = 0
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO notes VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		noteID,                               // id
		uuid.NewString(),                     // guid
		noteTypeID,                           // mid
		now.Unix(),                           // mod
		-1,                                   // usn
		joinTags(tags),                       // tags
		strings.Join(values, fieldSeparator), // flds
		StripHTML(values[sortf]),             // sfld
		FieldChecksum(values[0]),             // csum
		0,                                    // flags
		"",                                   // data
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert note: %w", err)
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO cards VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		noteID,     // id
		noteID,     // nid
		deckID,     // did
		0,          // ord
		now.Unix(), // mod
		-1,         // usn
		0,          // type (0=new)
		0,          // queue (0=new)
		noteID,     // due
		0,          // ivl
		0,          // factor
		0,          // reps
		0,          // lapses
		0,          // left
		0,          // odue
		0,          // odid
		0,          // flags
		"",         // data
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert card: %w", err)
	}

	return noteID, tx.Commit()
}
