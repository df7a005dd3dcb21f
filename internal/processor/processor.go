package processor

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"codeberg.org/snonux/yomibackfill/internal/anki"
	"codeberg.org/snonux/yomibackfill/internal/archive"
	"codeberg.org/snonux/yomibackfill/internal/audio"
	"codeberg.org/snonux/yomibackfill/internal/backfill"
	"codeberg.org/snonux/yomibackfill/internal/batch"
	"codeberg.org/snonux/yomibackfill/internal/cli"
	"codeberg.org/snonux/yomibackfill/internal/gui"
	"codeberg.org/snonux/yomibackfill/internal/logging"
	"codeberg.org/snonux/yomibackfill/internal/models"
	"codeberg.org/snonux/yomibackfill/internal/preset"
	"codeberg.org/snonux/yomibackfill/internal/yomitan"
)

// Processor wires configuration, collection and Yomitan client together
// and implements the commands
type Processor struct {
	flags *cli.Flags
	out   io.Writer

	// GUI callbacks resolve the configuration from several goroutines
	initMu   sync.Mutex
	settings *cli.Settings
	logger   *zap.Logger
	client   *yomitan.Client
}

// NewProcessor creates a new processor. Configuration is resolved lazily
// so flags and config files parsed after construction take effect.
func NewProcessor(flags *cli.Flags) *Processor {
	return &Processor{flags: flags}
}

// stdout resolves os.Stdout on every call so the GUI can capture it
func (p *Processor) stdout() io.Writer {
	if p.out != nil {
		return p.out
	}
	return os.Stdout
}

// Close flushes the log
func (p *Processor) Close() {
	if p.logger != nil {
		_ = p.logger.Sync()
	}
}

func (p *Processor) init() error {
	p.initMu.Lock()
	defer p.initMu.Unlock()
	if p.settings != nil {
		return nil
	}

	settings := cli.LoadSettings()
	logger, err := logging.New(settings.LogFile, settings.Debug)
	if err != nil {
		// The debug log is optional
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		logger = zap.NewNop()
	}

	p.settings = settings
	p.logger = logger
	p.client = yomitan.NewClient(settings.Yomitan, logger.Named("yomitan"))
	return nil
}

func (p *Processor) openCollection() (*anki.Collection, error) {
	if err := p.init(); err != nil {
		return nil, err
	}
	col, err := anki.Open(p.settings.Collection)
	if err != nil {
		return nil, fmt.Errorf("cannot open collection (is the path right and Anki closed?): %w", err)
	}
	p.logger.Debug("collection opened",
		zap.String("path", col.Path()),
		zap.Bool("legacy_schema", col.Legacy()))
	return col, nil
}

// Ping checks the Yomitan API
func (p *Processor) Ping(ctx context.Context) error {
	version, err := p.PingVersion(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(p.stdout(), "Yomitan API at %s is reachable (version %s)\n", p.client.URL(), version)
	return nil
}

// PingVersion returns the Yomitan version or why the API is not usable
func (p *Processor) PingVersion(ctx context.Context) (string, error) {
	if err := p.init(); err != nil {
		return "", err
	}
	version, err := p.client.Ping(ctx)
	if err != nil {
		return "", fmt.Errorf("Yomitan API is not reachable at %s. Make sure the browser with Yomitan and the yomitan-api server are running: %w",
			p.client.URL(), err)
	}
	return version, nil
}

// Decks returns the collection's decks
func (p *Processor) Decks(ctx context.Context) ([]anki.Deck, error) {
	col, err := p.openCollection()
	if err != nil {
		return nil, err
	}
	defer col.Close()
	return col.Decks(ctx)
}

// ListDecks prints the decks
func (p *Processor) ListDecks(ctx context.Context) error {
	decks, err := p.Decks(ctx)
	if err != nil {
		return err
	}
	for _, d := range decks {
		fmt.Fprintf(p.stdout(), "%d\t%s\n", d.ID, d.Name)
	}
	return nil
}

// DeckFields returns the field names used by the deck's notes
func (p *Processor) DeckFields(ctx context.Context, deckName string) ([]string, error) {
	col, err := p.openCollection()
	if err != nil {
		return nil, err
	}
	defer col.Close()

	deck, err := col.DeckByName(ctx, deckName)
	if err != nil {
		return nil, err
	}
	return col.DeckFieldNames(ctx, deck.ID)
}

// ListFields prints the field names of a deck
func (p *Processor) ListFields(ctx context.Context, deckName string) error {
	fields, err := p.DeckFields(ctx, deckName)
	if err != nil {
		return err
	}
	if len(fields) == 0 {
		fmt.Fprintf(p.stdout(), "Deck %q has no notes.\n", deckName)
		return nil
	}
	for _, f := range fields {
		fmt.Fprintln(p.stdout(), f)
	}
	return nil
}

// Run executes the backfill described by the run flags
func (p *Processor) Run(ctx context.Context) error {
	req := backfill.Request{
		ExpressionField: p.flags.Expression,
		ReadingField:    p.flags.Reading,
		Replace:         p.flags.Replace,
	}
	for _, s := range p.flags.Targets {
		t, err := backfill.ParseTarget(s)
		if err != nil {
			return err
		}
		req.Targets = append(req.Targets, t)
	}
	if err := req.Validate(); err != nil {
		return err
	}

	if p.flags.Deck != "" {
		_, err := p.BackfillDeck(ctx, p.flags.Deck, req, p.flags.DryRun)
		return err
	}

	ids := append([]int64(nil), p.flags.NoteIDs...)
	if p.flags.NotesFile != "" {
		fromFile, err := batch.ReadNoteIDFile(p.flags.NotesFile)
		if err != nil {
			return err
		}
		ids = append(ids, fromFile...)
	}
	req.NoteIDs = dedupe(ids)

	_, err := p.BackfillNotes(ctx, req, p.flags.DryRun)
	return err
}

// BackfillDeck runs a request over all notes of a deck
func (p *Processor) BackfillDeck(ctx context.Context, deckName string, req backfill.Request, dryRun bool) (*backfill.Result, error) {
	col, err := p.openCollection()
	if err != nil {
		return nil, err
	}
	defer col.Close()

	deck, err := col.DeckByName(ctx, deckName)
	if err != nil {
		return nil, fmt.Errorf("deck %q could not be found: %w", deckName, err)
	}
	ids, err := col.DeckNoteIDs(ctx, deck.ID)
	if err != nil {
		return nil, err
	}
	req.NoteIDs = ids

	fmt.Fprintf(p.stdout(), "Deck %s: %d notes\n", deck.Name, len(ids))
	return p.execute(ctx, col, req, dryRun)
}

// BackfillNotes runs a request over selected notes
func (p *Processor) BackfillNotes(ctx context.Context, req backfill.Request, dryRun bool) (*backfill.Result, error) {
	col, err := p.openCollection()
	if err != nil {
		return nil, err
	}
	defer col.Close()

	if len(req.NoteIDs) > 0 {
		// The first note's deck names the selection, as in the card browser
		if deck, err := col.NoteDeck(ctx, req.NoteIDs[0]); err == nil {
			fmt.Fprintf(p.stdout(), "Selected notes: %d (deck %s)\n", len(req.NoteIDs), deck.Name)
			return p.execute(ctx, col, req, dryRun)
		}
	}
	fmt.Fprintf(p.stdout(), "Selected notes: %d\n", len(req.NoteIDs))
	return p.execute(ctx, col, req, dryRun)
}

// Presets returns the configured presets
func (p *Processor) Presets() ([]preset.Preset, error) {
	return preset.Load(viper.GetViper())
}

// ListPresets prints the configured presets
func (p *Processor) ListPresets(asYAML bool) error {
	presets, err := p.Presets()
	if err != nil {
		return err
	}
	if len(presets) == 0 {
		fmt.Fprintln(p.stdout(), "No presets found in the config file.")
		return nil
	}

	if asYAML {
		data, err := preset.Marshal(presets)
		if err != nil {
			return err
		}
		_, err = p.stdout().Write(data)
		return err
	}

	for _, ps := range presets {
		status := "ok"
		if err := ps.Validate(); err != nil {
			status = err.Error()
		}
		fmt.Fprintf(p.stdout(), "%s\n  deck: %s\n  fields: %d target(s) from %s\n  status: %s\n",
			ps.DisplayName(), ps.DeckName, len(ps.Targets), ps.ExpressionField, status)
	}
	return nil
}

// RunPreset runs the named preset
func (p *Processor) RunPreset(ctx context.Context, name string) error {
	presets, err := p.Presets()
	if err != nil {
		return err
	}
	if len(presets) == 0 {
		return fmt.Errorf("%w: no presets found in the config file", preset.ErrNotFound)
	}
	ps, err := preset.Find(presets, name)
	if err != nil {
		return fmt.Errorf("%w (available: %s)", err, strings.Join(preset.Names(presets), ", "))
	}
	_, err = p.BackfillPreset(ctx, ps, p.flags.DryRun)
	return err
}

// BackfillPreset runs a preset over its deck
func (p *Processor) BackfillPreset(ctx context.Context, ps preset.Preset, dryRun bool) (*backfill.Result, error) {
	if err := ps.Validate(); err != nil {
		return nil, err
	}
	fmt.Fprintf(p.stdout(), "Running preset: %s\n", ps.DisplayName())
	return p.BackfillDeck(ctx, ps.DeckName, ps.Request(nil), dryRun)
}

// ListModels prints OpenAI speech models
func (p *Processor) ListModels(ctx context.Context) error {
	lister := models.NewLister(cli.GetOpenAIKey(), viper.GetString("speech.openai_base_url"))
	return lister.ListAvailableModels(ctx, p.stdout())
}

// RunGUI launches the GUI application
func (p *Processor) RunGUI() error {
	if err := p.init(); err != nil {
		return err
	}
	app := gui.New(&gui.Config{
		CollectionPath: p.settings.Collection,
		YomitanURL:     p.client.URL(),
	}, p)
	app.Run()
	return nil
}

// execute runs the backfill with backup, speech fallback and reporting
func (p *Processor) execute(ctx context.Context, col *anki.Collection, req backfill.Request, dryRun bool) (*backfill.Result, error) {
	if _, err := p.PingVersion(ctx); err != nil {
		return nil, err
	}

	if len(req.NoteIDs) == 0 {
		fmt.Fprintln(p.stdout(), "No notes to process.")
		return &backfill.Result{}, nil
	}

	if p.settings.BackupEnabled && !dryRun {
		dir := p.settings.BackupDir
		if dir == "" {
			dir = archive.DefaultDir(col.Path())
		}
		if _, err := archive.BackupCollection(col.Path(), dir); err != nil {
			return nil, fmt.Errorf("backup failed, nothing was changed: %w", err)
		}
		if _, err := archive.PruneBackups(dir, p.settings.BackupKeep); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	runner := backfill.NewRunner(col, p.client, backfill.Options{
		Tag:           p.settings.Tag,
		MaxEntries:    p.settings.MaxEntries,
		DryRun:        dryRun,
		Speech:        p.speechProvider(),
		SpeechMarkers: p.settings.SpeechMarkers,
		Logger:        p.logger.Named("backfill"),
		Progress: func(done, total int) {
			if done == total || done%25 == 0 {
				fmt.Fprintf(p.stdout(), "Processed %d/%d notes\n", done, total)
			}
		},
	})

	result, err := runner.Run(ctx, req)
	if result != nil {
		p.report(result, dryRun)
	}
	return result, err
}

// speechProvider builds the configured fallback, falling back to espeak-ng
// when it is installed
func (p *Processor) speechProvider() audio.Provider {
	if p.settings.Speech == nil {
		return nil
	}

	provider, err := audio.NewProvider(p.settings.Speech)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: speech fallback disabled: %v\n", err)
		return nil
	}
	if provider.Name() == "espeak" {
		return provider
	}

	espeak, err := audio.NewESpeakProvider(p.settings.Speech)
	if err == nil && espeak.IsAvailable() == nil {
		return audio.NewProviderWithFallback(provider, espeak)
	}
	return provider
}

func (p *Processor) report(result *backfill.Result, dryRun bool) {
	if dryRun {
		for _, c := range result.Changes {
			fmt.Fprintf(p.stdout(), "note %d %s: %q -> %q\n", c.NoteID, c.Field, abbreviate(c.Old), abbreviate(c.New))
		}
		fmt.Fprintf(p.stdout(), "Dry run: %d notes would be updated.\n", result.Updated)
	} else if result.Updated > 0 {
		fmt.Fprintf(p.stdout(), "Successfully updated %d notes.\n", result.Updated)
	} else {
		fmt.Fprintln(p.stdout(), "No notes were updated.")
	}

	if result.MediaWritten > 0 {
		fmt.Fprintf(p.stdout(), "Media files written: %d\n", result.MediaWritten)
	}
	if result.MediaFailed > 0 {
		fmt.Fprintf(p.stdout(), "Media files failed: %d\n", result.MediaFailed)
	}
	if result.Skipped > 0 {
		fmt.Fprintf(p.stdout(), "Skipped: %d\n", result.Skipped)
	}
	if result.Failed > 0 {
		if p.settings.LogFile != "" {
			fmt.Fprintf(p.stdout(), "Failed: %d (see %s)\n", result.Failed, p.settings.LogFile)
		} else {
			fmt.Fprintf(p.stdout(), "Failed: %d\n", result.Failed)
		}
	}
}

func abbreviate(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if r := []rune(s); len(r) > 60 {
		return string(r[:57]) + "..."
	}
	return s
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
