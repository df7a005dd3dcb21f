package anki

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// fieldSeparator joins field values in the notes.flds column
const fieldSeparator = "\x1f"

// Note is a note with its values keyed by the note type's field names
type Note struct {
	ID      int64
	ModelID int64
	Tags    []string

	names     []string
	values    []string
	sortField int
	modified  bool
}

// Has reports whether the note type defines the field
func (n *Note) Has(field string) bool {
	return n.index(field) >= 0
}

// Get returns a field value, empty when the field does not exist
func (n *Note) Get(field string) string {
	if i := n.index(field); i >= 0 {
		return n.values[i]
	}
	return ""
}

// Set replaces a field value
func (n *Note) Set(field, value string) error {
	i := n.index(field)
	if i < 0 {
		return fmt.Errorf("%w: %q", ErrFieldNotFound, field)
	}
	if n.values[i] != value {
		n.values[i] = value
		n.modified = true
	}
	return nil
}

// Modified reports whether Set or AddTag changed the note
func (n *Note) Modified() bool {
	return n.modified
}

// FieldNames returns the ordered field names
func (n *Note) FieldNames() []string {
	return append([]string(nil), n.names...)
}

// Items calls fn for every field in order
func (n *Note) Items(fn func(name, value string)) {
	for i, name := range n.names {
		fn(name, n.values[i])
	}
}

// HasTag reports whether the note carries a tag, ignoring case
func (n *Note) HasTag(tag string) bool {
	for _, t := range n.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// AddTag adds a tag unless the note already has it
func (n *Note) AddTag(tag string) {
	tag = strings.TrimSpace(tag)
	if tag == "" || n.HasTag(tag) {
		return
	}
	n.Tags = append(n.Tags, tag)
	n.modified = true
}

func (n *Note) index(field string) int {
	if field == "" {
		return -1
	}
	for i, name := range n.names {
		if name == field {
			return i
		}
	}
	return -1
}

// Note loads a note by id
func (c *Collection) Note(ctx context.Context, id int64) (*Note, error) {
	var (
		mid        int64
		tags, flds string
		sfld       sql.NullString
	)
	err := c.db.QueryRowContext(ctx,
		`SELECT mid, tags, flds, CAST(sfld AS TEXT) FROM notes WHERE id = ?`, id,
	).Scan(&mid, &tags, &flds, &sfld)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %d", ErrNoteNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load note %d: %w", id, err)
	}

	nt, ok := c.noteTypes[mid]
	if !ok {
		return nil, fmt.Errorf("note %d uses unknown note type %d", id, mid)
	}

	values := strings.Split(flds, fieldSeparator)
	// Anki pads or trims values to the note type's field count
	for len(values) < len(nt.Fields) {
		values = append(values, "")
	}
	values = values[:len(nt.Fields)]

	note := &Note{
		ID:        id,
		ModelID:   mid,
		Tags:      strings.Fields(tags),
		names:     append([]string(nil), nt.Fields...),
		values:    values,
		sortField: nt.SortField,
	}
	if note.sortField < 0 {
		note.sortField = inferSortField(values, sfld.String)
	}
	return note, nil
}

// inferSortField finds the field whose stripped text matches the stored
// sort field. Used for modern collections where the sort field index lives
// in a protobuf blob.
func inferSortField(values []string, sfld string) int {
	for i, v := range values {
		if StripHTML(v) == sfld {
			return i
		}
	}
	return 0
}

// UpdateNotes writes the notes in one transaction and marks them for sync.
// It returns the number of notes written.
func (c *Collection) UpdateNotes(ctx context.Context, notes []*Note) (int, error) {
	if len(notes) == 0 {
		return 0, nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`UPDATE notes SET flds = ?, sfld = ?, csum = ?, tags = ?, mod = ?, usn = -1 WHERE id = ?`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare note update: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for _, n := range notes {
		sortValue := ""
		if n.sortField >= 0 && n.sortField < len(n.values) {
			sortValue = StripHTML(n.values[n.sortField])
		}
		first := ""
		if len(n.values) > 0 {
			first = n.values[0]
		}

		res, err := stmt.ExecContext(ctx,
			strings.Join(n.values, fieldSeparator),
			sortValue,
			FieldChecksum(first),
			joinTags(n.Tags),
			now.Unix(),
			n.ID,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to update note %d: %w", n.ID, err)
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return 0, fmt.Errorf("%w: id %d", ErrNoteNotFound, n.ID)
		}
	}

	if err := c.touch(ctx, tx, now); err != nil {
		return 0, fmt.Errorf("failed to update collection: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit note updates: %w", err)
	}

	for _, n := range notes {
		n.modified = false
	}
	return len(notes), nil
}

// joinTags renders tags the way Anki stores them: space separated with a
// leading and trailing space
func joinTags(tags []string) string {
	if len(tags) == 0 {
		return ""
	}
	return " " + strings.Join(tags, " ") + " "
}
