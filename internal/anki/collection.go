package anki

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
)

// driverName is a go-sqlite3 driver that knows the collations Anki declares
// on its tables. Without unicase, any query touching the modern decks or
// notetypes name index fails with "no such collation sequence".
const driverName = "sqlite3_anki"

var registerDriver sync.Once

var (
	// ErrDeckNotFound is returned when a deck id or name does not exist
	ErrDeckNotFound = errors.New("deck not found")
	// ErrNoteNotFound is returned when a note id does not exist
	ErrNoteNotFound = errors.New("note not found")
	// ErrFieldNotFound is returned when a note has no field of the given name
	ErrFieldNotFound = errors.New("field not found")
)

func register() {
	registerDriver.Do(func() {
		sql.Register(driverName, &sqlite3.SQLiteDriver{
			ConnectHook: func(conn *sqlite3.SQLiteConn) error {
				return conn.RegisterCollation("unicase", func(a, b string) int {
					return strings.Compare(strings.ToLower(a), strings.ToLower(b))
				})
			},
		})
	})
}

// Collection is an open Anki collection file
type Collection struct {
	path      string
	db        *sql.DB
	legacy    bool
	noteTypes map[int64]*NoteType
}

// Open opens an existing collection.anki2 file. The desktop application
// must be closed while the collection is modified.
func Open(path string) (*Collection, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("collection not found: %w", err)
	}

	db, err := openDB(path)
	if err != nil {
		return nil, err
	}

	c := &Collection{path: path, db: db}

	if err := c.detectSchema(); err != nil {
		db.Close()
		return nil, err
	}

	if err := c.loadNoteTypes(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load note types: %w", err)
	}

	return c, nil
}

func openDB(path string) (*sql.DB, error) {
	register()

	db, err := sql.Open(driverName, fmt.Sprintf("file:%s?_busy_timeout=5000", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open collection: %w", err)
	}
	// One writer; Anki itself never opens the file concurrently with us
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open collection: %w", err)
	}

	return db, nil
}

// Close closes the underlying database
func (c *Collection) Close() error {
	return c.db.Close()
}

// Path returns the collection file path
func (c *Collection) Path() string {
	return c.path
}

// MediaDir returns the media folder that belongs to the collection
func (c *Collection) MediaDir() string {
	return strings.TrimSuffix(c.path, ".anki2") + ".media"
}

// Legacy reports whether decks and note types live as JSON in the col table
func (c *Collection) Legacy() bool {
	return c.legacy
}

func (c *Collection) detectSchema() error {
	var n int
	err := c.db.QueryRow(
		`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = 'notetypes'`,
	).Scan(&n)
	if err != nil {
		return fmt.Errorf("failed to inspect collection schema: %w", err)
	}
	c.legacy = n == 0
	return nil
}

// DeckNoteIDs returns the ids of all notes with at least one card in the deck
func (c *Collection) DeckNoteIDs(ctx context.Context, deckID int64) ([]int64, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT DISTINCT nid FROM cards WHERE did = ? ORDER BY nid`, deckID)
	if err != nil {
		return nil, fmt.Errorf("failed to query deck notes: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// touch bumps the collection modification time so the next sync notices
func (c *Collection) touch(ctx context.Context, tx *sql.Tx, now time.Time) error {
	_, err := tx.ExecContext(ctx, `UPDATE col SET mod = ?`, now.UnixMilli())
	return err
}
