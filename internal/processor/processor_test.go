package processor

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/snonux/yomibackfill/internal/anki"
	"codeberg.org/snonux/yomibackfill/internal/backfill"
	"codeberg.org/snonux/yomibackfill/internal/cli"
	"codeberg.org/snonux/yomibackfill/internal/preset"
	"codeberg.org/snonux/yomibackfill/internal/testutil"
	"codeberg.org/snonux/yomibackfill/internal/yomitan"
)

// env is a collection and a mock Yomitan wired through viper
type env struct {
	col *anki.Collection
	api *testutil.MockYomitan
	out *bytes.Buffer
}

func setup(t *testing.T) *env {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)

	e := &env{
		col: testutil.NewCollection(t),
		api: testutil.NewMockYomitan(t),
		out: &bytes.Buffer{},
	}

	viper.Set("anki.collection", e.col.Path())
	viper.Set("yomitan.url", e.api.URL())
	viper.Set("backup.enabled", false)
	viper.Set("log.file", "")
	viper.Set("speech.provider", "none")
	return e
}

func (e *env) processor(flags *cli.Flags) *Processor {
	p := NewProcessor(flags)
	p.out = e.out
	return p
}

func (e *env) addMining(t *testing.T, expression, reading string) int64 {
	t.Helper()
	values := []string{expression, reading, "", "", ""}
	id, err := e.col.AddNote(context.Background(), testutil.DeckMining, testutil.TypeMining, values)
	require.NoError(t, err)
	return id
}

func (e *env) field(t *testing.T, id int64, name string) string {
	t.Helper()
	n, err := e.col.Note(context.Background(), id)
	require.NoError(t, err)
	return n.Get(name)
}

func glossary(text string) string {
	return testutil.AnkiFieldsBody([]map[string]string{{"glossary-brief": text}})
}

func TestNewProcessor(t *testing.T) {
	flags := cli.NewFlags()
	p := NewProcessor(flags)

	if p == nil {
		t.Fatal("NewProcessor returned nil")
	}
	if p.flags != flags {
		t.Error("Processor flags not set correctly")
	}
	if p.settings != nil {
		t.Error("settings should be resolved lazily")
	}
}

func TestPing(t *testing.T) {
	e := setup(t)
	p := e.processor(cli.NewFlags())

	require.NoError(t, p.Ping(context.Background()))
	assert.Contains(t, e.out.String(), "version mock")
}

func TestPing_Unreachable(t *testing.T) {
	e := setup(t)
	viper.Set("yomitan.url", "http://127.0.0.1:1")
	p := e.processor(cli.NewFlags())

	err := p.Ping(context.Background())
	require.Error(t, err)
	assert.True(t, yomitan.IsUnreachable(err), "error = %v", err)
	assert.Contains(t, err.Error(), "not reachable")
}

func TestListDecksAndFields(t *testing.T) {
	e := setup(t)
	e.addMining(t, "食べる", "たべる")
	p := e.processor(cli.NewFlags())

	require.NoError(t, p.ListDecks(context.Background()))
	assert.Contains(t, e.out.String(), "Japanese::Mining")
	assert.Contains(t, e.out.String(), "Other")

	e.out.Reset()
	require.NoError(t, p.ListFields(context.Background(), "Japanese::Mining"))
	for _, f := range testutil.MiningFields {
		assert.Contains(t, e.out.String(), f)
	}

	e.out.Reset()
	require.NoError(t, p.ListFields(context.Background(), "Other"))
	assert.Contains(t, e.out.String(), "has no notes")

	err := p.ListFields(context.Background(), "Missing")
	assert.ErrorIs(t, err, anki.ErrDeckNotFound)
}

func TestRun_Deck(t *testing.T) {
	e := setup(t)
	id := e.addMining(t, "食べる", "たべる")
	e.api.SetResponse("食べる", glossary("to eat"))

	flags := cli.NewFlags()
	flags.Deck = "Japanese::Mining"
	flags.Reading = "Reading"
	flags.Targets = []string{"Glossary={glossary-brief}"}

	require.NoError(t, e.processor(flags).Run(context.Background()))

	assert.Equal(t, "to eat", e.field(t, id, "Glossary"))
	assert.Contains(t, e.out.String(), "Successfully updated 1 notes.")
}

func TestRun_NoteIDsAndFile(t *testing.T) {
	e := setup(t)
	first := e.addMining(t, "食べる", "")
	second := e.addMining(t, "飲む", "")
	third := e.addMining(t, "見る", "")
	e.api.SetResponse("食べる", glossary("to eat"))
	e.api.SetResponse("飲む", glossary("to drink"))
	e.api.SetResponse("見る", glossary("to see"))

	file := filepath.Join(t.TempDir(), "ids.txt")
	testutil.CreateTestFile(t, file, []byte(strings.Join([]string{
		"# selected",
		strconv.FormatInt(second, 10),
		strconv.FormatInt(first, 10),
	}, "\n")))

	flags := cli.NewFlags()
	flags.NoteIDs = []int64{first}
	flags.NotesFile = file
	flags.Targets = []string{"Glossary={glossary-brief}"}

	require.NoError(t, e.processor(flags).Run(context.Background()))

	assert.Equal(t, "to eat", e.field(t, first, "Glossary"))
	assert.Equal(t, "to drink", e.field(t, second, "Glossary"))
	assert.Empty(t, e.field(t, third, "Glossary"))
	assert.Len(t, e.api.Requests(), 2, "duplicate ids are looked up once")
	assert.Contains(t, e.out.String(), "Selected notes: 2 (deck Japanese::Mining)")
}

func TestRun_DryRun(t *testing.T) {
	e := setup(t)
	id := e.addMining(t, "食べる", "")
	e.api.SetResponse("食べる", glossary("to eat"))

	flags := cli.NewFlags()
	flags.Deck = "Japanese::Mining"
	flags.Targets = []string{"Glossary={glossary-brief}"}
	flags.DryRun = true

	require.NoError(t, e.processor(flags).Run(context.Background()))

	assert.Empty(t, e.field(t, id, "Glossary"))
	assert.Contains(t, e.out.String(), `Glossary: "" -> "to eat"`)
	assert.Contains(t, e.out.String(), "Dry run: 1 notes would be updated.")
}

func TestRun_NothingUpdated(t *testing.T) {
	e := setup(t)
	e.addMining(t, "未知", "")

	flags := cli.NewFlags()
	flags.Deck = "Japanese::Mining"
	flags.Targets = []string{"Glossary={glossary-brief}"}

	require.NoError(t, e.processor(flags).Run(context.Background()))
	assert.Contains(t, e.out.String(), "No notes were updated.")
	assert.Contains(t, e.out.String(), "Skipped: 1")
}

func TestRun_RefusesWhenUnreachable(t *testing.T) {
	e := setup(t)
	id := e.addMining(t, "食べる", "")
	viper.Set("yomitan.url", "http://127.0.0.1:1")

	flags := cli.NewFlags()
	flags.Deck = "Japanese::Mining"
	flags.Targets = []string{"Glossary={glossary-brief}"}

	err := e.processor(flags).Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, yomitan.ErrUnreachable), "error = %v", err)
	assert.Empty(t, e.field(t, id, "Glossary"))
}

func TestRun_InvalidTarget(t *testing.T) {
	e := setup(t)
	flags := cli.NewFlags()
	flags.Deck = "Japanese::Mining"
	flags.Targets = []string{"Glossary"}

	err := e.processor(flags).Run(context.Background())
	assert.ErrorIs(t, err, backfill.ErrInvalidRequest)
	assert.Empty(t, e.api.Requests())
}

func TestRun_UnknownDeck(t *testing.T) {
	e := setup(t)
	flags := cli.NewFlags()
	flags.Deck = "Missing"
	flags.Targets = []string{"Glossary={glossary-brief}"}

	err := e.processor(flags).Run(context.Background())
	assert.ErrorIs(t, err, anki.ErrDeckNotFound)
}

func TestRun_BacksUpCollection(t *testing.T) {
	e := setup(t)
	e.addMining(t, "食べる", "")
	e.api.SetResponse("食べる", glossary("to eat"))

	backups := t.TempDir()
	viper.Set("backup.enabled", true)
	viper.Set("backup.directory", backups)

	flags := cli.NewFlags()
	flags.Deck = "Japanese::Mining"
	flags.Targets = []string{"Glossary={glossary-brief}"}

	var runErr error
	stdout, _ := testutil.CaptureOutput(t, func() {
		runErr = e.processor(flags).Run(context.Background())
	})
	require.NoError(t, runErr)
	assert.Contains(t, stdout, "Collection backed up to")

	entries, err := os.ReadDir(backups)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].Name(), "collection-"))
}

func TestPresets(t *testing.T) {
	e := setup(t)
	id := e.addMining(t, "食べる", "たべる")
	e.api.SetResponse("食べる", glossary("to eat"))

	viper.Set(preset.ConfigKey, []map[string]interface{}{
		{
			"name":            "Mining glossary",
			"deckName":        "Japanese::Mining",
			"expressionField": "Expression",
			"readingField":    "Reading",
			"targets": []map[string]interface{}{
				{"fieldToFill": "Glossary", "handlebar": "{glossary-brief}"},
			},
		},
		{"name": "Broken"},
	})

	p := e.processor(cli.NewFlags())

	require.NoError(t, p.ListPresets(false))
	assert.Contains(t, e.out.String(), "Mining glossary")
	assert.Contains(t, e.out.String(), "missing deckName")

	e.out.Reset()
	require.NoError(t, p.ListPresets(true))
	assert.Contains(t, e.out.String(), "presets:")
	assert.Contains(t, e.out.String(), "fieldToFill: Glossary")

	e.out.Reset()
	require.NoError(t, p.RunPreset(context.Background(), "Mining glossary"))
	assert.Contains(t, e.out.String(), "Running preset: Mining glossary")
	assert.Equal(t, "to eat", e.field(t, id, "Glossary"))

	assert.ErrorIs(t, p.RunPreset(context.Background(), "Broken"), preset.ErrMisconfigured)
	err := p.RunPreset(context.Background(), "Nope")
	assert.ErrorIs(t, err, preset.ErrNotFound)
	assert.ErrorContains(t, err, "available: Mining glossary")
}

func TestPresets_None(t *testing.T) {
	e := setup(t)
	p := e.processor(cli.NewFlags())

	require.NoError(t, p.ListPresets(false))
	assert.Contains(t, e.out.String(), "No presets found")
	assert.ErrorIs(t, p.RunPreset(context.Background(), "any"), preset.ErrNotFound)
}

func TestBackfillPreset_MissingDeck(t *testing.T) {
	e := setup(t)
	p := e.processor(cli.NewFlags())

	_, err := p.BackfillPreset(context.Background(), preset.Preset{
		Name:            "Gone",
		DeckName:        "Deleted deck",
		ExpressionField: "Expression",
		Targets:         []preset.Target{{FieldToFill: "Glossary", Handlebar: "{glossary-brief}"}},
	}, false)
	assert.ErrorIs(t, err, anki.ErrDeckNotFound)
}

func TestListModels_NoKey(t *testing.T) {
	setup(t)
	t.Setenv("OPENAI_API_KEY", "")
	p := NewProcessor(cli.NewFlags())

	err := p.ListModels(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")
}

func TestSpeechProvider(t *testing.T) {
	e := setup(t)
	p := e.processor(cli.NewFlags())
	require.NoError(t, p.init())
	assert.Nil(t, p.speechProvider(), "disabled speech gives no provider")

	viper.Reset()
	viper.Set("speech.provider", "openai")
	t.Setenv("OPENAI_API_KEY", "")
	p = e.processor(cli.NewFlags())
	require.NoError(t, p.init())

	var provider interface{}
	_, stderr := testutil.CaptureOutput(t, func() {
		provider = p.speechProvider()
	})
	assert.Nil(t, provider)
	assert.Contains(t, stderr, "speech fallback disabled")
}

func TestAbbreviate(t *testing.T) {
	assert.Equal(t, "a b", abbreviate("a\nb"))
	long := strings.Repeat("語", 80)
	got := abbreviate(long)
	assert.Equal(t, 60, len([]rune(got)))
	assert.True(t, strings.HasSuffix(got, "..."))
}

func TestDedupe(t *testing.T) {
	assert.Equal(t, []int64{3, 1, 2}, dedupe([]int64{3, 1, 3, 2, 1}))
	assert.Empty(t, dedupe(nil))
}
