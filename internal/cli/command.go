package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"codeberg.org/snonux/yomibackfill/internal"
)

// Commands implements the operations behind the subcommands
type Commands interface {
	Ping(ctx context.Context) error
	ListDecks(ctx context.Context) error
	ListFields(ctx context.Context, deck string) error
	Run(ctx context.Context) error
	ListPresets(asYAML bool) error
	RunPreset(ctx context.Context, name string) error
	ListModels(ctx context.Context) error
	RunGUI() error
}

// CreateRootCommand creates and configures the root cobra command
func CreateRootCommand(flags *Flags, cmds Commands) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "yomibackfill",
		Short: "Fill Anki note fields from Yomitan dictionaries",
		Long: `yomibackfill fills empty fields of existing Anki notes with content
rendered by Yomitan, using the local yomitan-api server. Media referenced
by the new values is copied into the collection's media folder.

Anki must be closed while yomibackfill writes to the collection.

Examples:
  yomibackfill                                   # Launch interactive GUI (default)
  yomibackfill ping                              # Check the Yomitan API
  yomibackfill run --deck "Japanese::Mining" \
      --reading Reading --target Glossary={glossary-brief}
  yomibackfill preset "Mining glossary"          # Run a configured preset`,
		Args:          cobra.NoArgs,
		Version:       internal.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			applyNegations(flags)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			// No subcommand - launch GUI mode by default
			return cmds.RunGUI()
		},
	}

	// Set up flags
	setupFlags(rootCmd, flags)

	rootCmd.AddCommand(
		newPingCommand(cmds),
		newDecksCommand(cmds),
		newFieldsCommand(flags, cmds),
		newRunCommand(flags, cmds),
		newPresetsCommand(flags, cmds),
		newPresetCommand(flags, cmds),
		newModelsCommand(cmds),
		newGUICommand(cmds),
	)

	return rootCmd
}

func setupFlags(cmd *cobra.Command, flags *Flags) {
	// Global flags
	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.CfgFile, "config", "", "config file (default is $HOME/.yomibackfill.yaml)")
	pf.StringVar(&flags.Collection, "collection", "", "Anki collection file (default: collection.anki2 of profile \"User 1\")")
	pf.StringVar(&flags.YomitanURL, "yomitan-url", "", "Yomitan API base URL (default http://127.0.0.1:8766)")
	pf.StringVar(&flags.LogFile, "log-file", "", "debug log file (default $XDG_STATE_HOME/yomibackfill/yomibackfill.log)")
	pf.BoolVar(&flags.Debug, "debug", false, "write debug entries to the log file")
	pf.BoolVar(&flags.Backup, "backup", flags.Backup, "back up the collection before writing")
	pf.BoolVar(&flags.NoBackup, "no-backup", false, "do not back up the collection before writing")
	pf.StringVar(&flags.Tag, "tag", "", "tag added to updated notes (default yomitan-backfill)")
	pf.StringVar(&flags.SpeechProvider, "speech", "", "speech fallback for missing audio: openai, gemini, espeak")
	pf.BoolVar(&flags.NoSpeech, "no-speech", false, "disable the speech fallback")

	// Bind flags to viper
	bindFlagsToViper(cmd)
}

func bindFlagsToViper(cmd *cobra.Command) {
	pf := cmd.PersistentFlags()
	viper.BindPFlag("anki.collection", pf.Lookup("collection"))
	viper.BindPFlag("anki.tag", pf.Lookup("tag"))
	viper.BindPFlag("yomitan.url", pf.Lookup("yomitan-url"))
	viper.BindPFlag("log.file", pf.Lookup("log-file"))
	viper.BindPFlag("log.debug", pf.Lookup("debug"))
	viper.BindPFlag("backup.enabled", pf.Lookup("backup"))
	viper.BindPFlag("speech.provider", pf.Lookup("speech"))
}

// applyNegations lets --no-backup and --no-speech override config values
func applyNegations(flags *Flags) {
	if flags.NoBackup {
		viper.Set("backup.enabled", false)
	}
	if flags.NoSpeech {
		viper.Set("speech.provider", "none")
	}
}

func newPingCommand(cmds Commands) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the Yomitan API answers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmds.Ping(cmd.Context())
		},
	}
}

func newDecksCommand(cmds Commands) *cobra.Command {
	return &cobra.Command{
		Use:   "decks",
		Short: "List the decks of the collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmds.ListDecks(cmd.Context())
		},
	}
}

func newFieldsCommand(flags *Flags, cmds Commands) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fields",
		Short: "List the field names used by the notes of a deck",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmds.ListFields(cmd.Context(), flags.FieldsDeck)
		},
	}
	cmd.Flags().StringVar(&flags.FieldsDeck, "deck", "", "deck name")
	cmd.MarkFlagRequired("deck")
	return cmd
}

func newRunCommand(flags *Flags, cmds Commands) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Backfill the notes of a deck or a selection of notes",
		Long: `Backfill the notes of a deck or a selection of notes.

Each --target names a field and the Yomitan handlebar that renders its
content. Fields that already hold a value are kept unless --replace is given.`,
		Example: `  yomibackfill run --deck "Japanese::Mining" --expression Expression \
      --reading Reading --target Glossary={glossary-brief} --target Audio={audio}
  yomibackfill run --notes-file selected.txt --target Pitch={pitch-accent-graphs} --replace`,
		Args: cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return validateRunFlags(flags)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmds.Run(cmd.Context())
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.Deck, "deck", "", "deck whose notes are backfilled")
	f.Int64SliceVar(&flags.NoteIDs, "note", nil, "note id to backfill (repeatable)")
	f.StringVar(&flags.NotesFile, "notes-file", "", "file with one note id per line")
	f.StringVar(&flags.Expression, "expression", flags.Expression, "field holding the term to look up")
	f.StringVar(&flags.Reading, "reading", "", "field holding the reading used to pick the entry (optional)")
	f.StringArrayVar(&flags.Targets, "target", nil, "FIELD={handlebar} to fill (repeatable)")
	f.BoolVar(&flags.Replace, "replace", false, "replace fields that already hold a value")
	f.BoolVar(&flags.DryRun, "dry-run", false, "show what would change without writing")
	cmd.MarkFlagRequired("target")

	return cmd
}

// validateRunFlags checks the selection flags of the run command
func validateRunFlags(flags *Flags) error {
	selections := 0
	if flags.Deck != "" {
		selections++
	}
	if len(flags.NoteIDs) > 0 || flags.NotesFile != "" {
		selections++
	}
	switch {
	case selections == 0:
		return fmt.Errorf("select notes with --deck, --note or --notes-file")
	case selections > 1:
		return fmt.Errorf("--deck cannot be combined with --note or --notes-file")
	}
	if flags.Expression == "" {
		return fmt.Errorf("--expression must name a field")
	}
	return nil
}

func newPresetsCommand(flags *Flags, cmds Commands) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "presets",
		Short: "List the configured presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmds.ListPresets(flags.PresetsYAML)
		},
	}
	cmd.Flags().BoolVar(&flags.PresetsYAML, "yaml", false, "print the presets as a config file fragment")
	return cmd
}

func newPresetCommand(flags *Flags, cmds Commands) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preset NAME",
		Short: "Run a configured preset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmds.RunPreset(cmd.Context(), args[0])
		},
	}
	cmd.Flags().BoolVar(&flags.DryRun, "dry-run", false, "show what would change without writing")
	return cmd
}

func newModelsCommand(cmds Commands) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List OpenAI models usable for the speech fallback",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmds.ListModels(cmd.Context())
		},
	}
}

func newGUICommand(cmds Commands) *cobra.Command {
	return &cobra.Command{
		Use:   "gui",
		Short: "Launch the graphical interface",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmds.RunGUI()
		},
	}
}
