package backfill

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"codeberg.org/snonux/yomibackfill/internal/anki"
	"codeberg.org/snonux/yomibackfill/internal/audio"
	"codeberg.org/snonux/yomibackfill/internal/media"
	"codeberg.org/snonux/yomibackfill/internal/yomitan"
)

// Store is the part of the collection the runner reads and writes
type Store interface {
	Note(ctx context.Context, id int64) (*anki.Note, error)
	UpdateNotes(ctx context.Context, notes []*anki.Note) (int, error)
	MediaDir() string
}

// LookupClient renders handlebars for a term
type LookupClient interface {
	AnkiFields(ctx context.Context, req yomitan.Request) (*yomitan.Response, error)
}

// Options tune a Runner
type Options struct {
	// Tag is added to changed notes, DefaultTag when empty
	Tag string
	// MaxEntries is the number of entries requested when a reading is
	// known. Without a reading only the first entry is ever used.
	MaxEntries int
	// DryRun resolves values without writing notes or media
	DryRun bool

	// Speech generates audio for SpeechMarkers the dictionaries could not
	// provide. Nil disables the fallback.
	Speech        audio.Provider
	SpeechMarkers []string

	// Progress is called after each note
	Progress func(done, total int)

	Logger *zap.Logger
}

// Change is a field value written by a run
type Change struct {
	NoteID int64
	Field  string
	Old    string
	New    string
}

// Result summarizes a run
type Result struct {
	Processed    int
	Updated      int
	Skipped      int
	Failed       int
	MediaWritten int
	// MediaFailed counts fields whose referenced media could not be
	// written. The field value is still set.
	MediaFailed int
	Changes     []Change
}

// Runner executes backfill requests against a store
type Runner struct {
	store  Store
	client LookupClient
	media  *media.Writer
	opts   Options
	logger *zap.Logger
}

// NewRunner creates a runner writing media next to the store
func NewRunner(store Store, client LookupClient, opts Options) *Runner {
	if opts.Tag == "" {
		opts.Tag = DefaultTag
	}
	if opts.MaxEntries < 1 {
		opts.MaxEntries = 4
	}
	if opts.Speech != nil && len(opts.SpeechMarkers) == 0 {
		opts.SpeechMarkers = []string{"audio"}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Runner{
		store:  store,
		client: client,
		media:  media.NewWriter(store.MediaDir()),
		opts:   opts,
		logger: logger,
	}
}

// noteOutcome is what happened to a single note
type noteOutcome int

const (
	outcomeSkipped noteOutcome = iota
	outcomeUnchanged
	outcomeChanged
)

// Run backfills the request's notes. Per-note failures are counted and
// logged. The run stops early only when the context is cancelled or the
// API circuit opens; notes changed before that point are still written
// and the returned error explains the abort.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	result := &Result{}
	var changed []*anki.Note
	var abort error

	r.logger.Info("backfill started",
		zap.Int("notes", len(req.NoteIDs)),
		zap.String("expression", req.ExpressionField),
		zap.String("reading", req.ReadingField),
		zap.Int("targets", len(req.Targets)),
		zap.Bool("replace", req.Replace),
		zap.Bool("dry_run", r.opts.DryRun))

	for i, id := range req.NoteIDs {
		if err := ctx.Err(); err != nil {
			abort = err
			break
		}

		result.Processed++
		note, outcome, err := r.processNote(ctx, id, req, result)
		switch {
		case err != nil && (errors.Is(err, yomitan.ErrCircuitOpen) || ctx.Err() != nil):
			result.Processed--
			if ctx.Err() != nil {
				err = ctx.Err()
			}
			abort = err
		case err != nil:
			result.Failed++
			r.logger.Warn("note failed", zap.Int64("note", id), zap.Error(err))
		case outcome == outcomeSkipped:
			result.Skipped++
		case outcome == outcomeChanged:
			changed = append(changed, note)
		}
		if abort != nil {
			break
		}

		if r.opts.Progress != nil {
			r.opts.Progress(i+1, len(req.NoteIDs))
		}
	}

	if err := r.flush(ctx, changed, result); err != nil {
		return result, errors.Join(abort, err)
	}

	r.logger.Info("backfill finished",
		zap.Int("processed", result.Processed),
		zap.Int("updated", result.Updated),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
		zap.Int("media", result.MediaWritten),
		zap.Int("media_failed", result.MediaFailed))

	if abort != nil {
		return result, fmt.Errorf("backfill aborted after %d of %d notes: %w",
			result.Processed, len(req.NoteIDs), abort)
	}
	return result, nil
}

// flush writes the changed notes. It survives cancellation of ctx so an
// aborted run keeps what it already resolved.
func (r *Runner) flush(ctx context.Context, notes []*anki.Note, result *Result) error {
	if len(notes) == 0 {
		return nil
	}
	if r.opts.DryRun {
		result.Updated = len(notes)
		return nil
	}

	n, err := r.store.UpdateNotes(context.WithoutCancel(ctx), notes)
	if err != nil {
		return fmt.Errorf("failed to update notes: %w", err)
	}
	result.Updated = n
	return nil
}

func (r *Runner) processNote(ctx context.Context, id int64, req Request, result *Result) (*anki.Note, noteOutcome, error) {
	note, err := r.store.Note(ctx, id)
	if err != nil {
		return nil, outcomeSkipped, err
	}

	if !note.Has(req.ExpressionField) {
		r.logger.Debug("note lacks expression field", zap.Int64("note", id), zap.String("field", req.ExpressionField))
		return note, outcomeSkipped, nil
	}
	expression := strings.TrimSpace(note.Get(req.ExpressionField))
	if expression == "" {
		r.logger.Debug("expression is blank", zap.Int64("note", id))
		return note, outcomeSkipped, nil
	}

	reading := ""
	if req.ReadingField != "" && note.Has(req.ReadingField) {
		reading = strings.TrimSpace(note.Get(req.ReadingField))
	}

	targets := r.keptTargets(note, req)
	if len(targets) == 0 {
		r.logger.Debug("no fillable targets", zap.Int64("note", id))
		return note, outcomeSkipped, nil
	}

	markers := make([]string, 0, len(targets))
	for _, t := range targets {
		markers = append(markers, t.Marker())
	}
	maxEntries := 1
	if reading != "" {
		maxEntries = r.opts.MaxEntries
	}

	resp, err := r.client.AnkiFields(ctx, yomitan.NewTermRequest(expression, markers, maxEntries))
	if errors.Is(err, yomitan.ErrNoEntry) {
		r.logger.Debug("no entry", zap.Int64("note", id), zap.String("term", expression))
		resp, err = nil, nil
	}
	if err != nil {
		return note, outcomeSkipped, err
	}

	var entries []yomitan.Entry
	var files []yomitan.MediaFile
	if resp != nil {
		entries = resp.Fields
		files = resp.Media()
	}
	if len(entries) == 0 && r.opts.Speech == nil {
		return note, outcomeSkipped, nil
	}

	var changes []Change
	for _, t := range targets {
		value, ok := yomitan.ResolveField(entries, reading, t.Marker())
		if !ok {
			value, ok = r.speak(ctx, id, expression, t.Marker())
		}
		if !ok {
			r.logger.Debug("marker missing", zap.Int64("note", id), zap.String("marker", t.Marker()))
			continue
		}

		if !r.opts.DryRun {
			n, err := r.media.WriteReferenced(value, files)
			result.MediaWritten += n
			if err != nil {
				result.MediaFailed++
				r.logger.Warn("media write failed", zap.Int64("note", id),
					zap.String("field", t.Field), zap.Error(err))
			}
		}

		old := note.Get(t.Field)
		if old == value {
			continue
		}
		if err := note.Set(t.Field, value); err != nil {
			return note, outcomeSkipped, err
		}
		changes = append(changes, Change{NoteID: id, Field: t.Field, Old: old, New: value})
	}

	if !note.Modified() {
		if len(entries) == 0 {
			return note, outcomeSkipped, nil
		}
		return note, outcomeUnchanged, nil
	}
	note.AddTag(r.opts.Tag)
	result.Changes = append(result.Changes, changes...)
	return note, outcomeChanged, nil
}

// keptTargets returns the targets that may be written on this note
func (r *Runner) keptTargets(note *anki.Note, req Request) []Target {
	var kept []Target
	for _, t := range req.Targets {
		if t.Field == "" || t.Marker() == "" || !note.Has(t.Field) {
			continue
		}
		if !t.replace(req.Replace) && strings.TrimSpace(note.Get(t.Field)) != "" {
			continue
		}
		kept = append(kept, t)
	}
	return kept
}

// speak generates pronunciation audio for a speech marker the dictionaries
// did not answer
func (r *Runner) speak(ctx context.Context, id int64, expression, marker string) (string, bool) {
	if r.opts.Speech == nil || !r.isSpeechMarker(marker) {
		return "", false
	}

	if r.opts.DryRun {
		return audio.SoundTag(audio.MediaFilename(expression, r.opts.Speech.Extension())), true
	}

	name, err := audio.Synthesize(ctx, r.opts.Speech, expression, r.media.Dir())
	if err != nil {
		r.logger.Warn("speech fallback failed",
			zap.Int64("note", id), zap.String("term", expression), zap.Error(err))
		return "", false
	}
	r.logger.Debug("speech fallback", zap.Int64("note", id), zap.String("file", name))
	return audio.SoundTag(name), true
}

func (r *Runner) isSpeechMarker(marker string) bool {
	for _, m := range r.opts.SpeechMarkers {
		if yomitan.NormalizeMarker(m) == marker {
			return true
		}
	}
	return false
}
