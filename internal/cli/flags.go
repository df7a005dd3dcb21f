package cli

// Flags holds all command-line flag values
type Flags struct {
	// Global flags
	CfgFile    string
	Collection string
	YomitanURL string
	LogFile    string
	Debug      bool
	Backup     bool
	NoBackup   bool
	Tag        string

	// run flags
	Deck       string
	NoteIDs    []int64
	NotesFile  string
	Expression string
	Reading    string
	Targets    []string
	Replace    bool
	DryRun     bool

	// Speech fallback flags
	SpeechProvider string
	NoSpeech       bool

	// Listing flags
	FieldsDeck  string
	PresetsYAML bool
}

// NewFlags creates a new Flags instance with default values
func NewFlags() *Flags {
	return &Flags{
		Backup:     true,
		Expression: "Expression",
	}
}
