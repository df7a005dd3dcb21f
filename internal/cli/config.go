package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/viper"

	"codeberg.org/snonux/yomibackfill/internal/audio"
	"codeberg.org/snonux/yomibackfill/internal/backfill"
	"codeberg.org/snonux/yomibackfill/internal/logging"
	"codeberg.org/snonux/yomibackfill/internal/yomitan"
)

// DefaultProfile is the profile name Anki creates on first start
const DefaultProfile = "User 1"

// Settings is the resolved configuration of a run
type Settings struct {
	Collection string
	Tag        string

	Yomitan    *yomitan.Config
	MaxEntries int

	BackupEnabled bool
	BackupDir     string
	BackupKeep    int

	LogFile string
	Debug   bool

	// Speech is nil when the fallback is disabled
	Speech        *audio.Config
	SpeechMarkers []string
}

// InitConfig initializes viper configuration
func InitConfig(cfgFile string) {
	setDefaults()

	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error getting home directory: %v\n", err)
			return
		}

		// Search config in home directory with name ".yomibackfill" (without extension)
		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".yomibackfill")
	}

	// Environment variables
	viper.SetEnvPrefix("YOMIBACKFILL")
	viper.AutomaticEnv()

	// Read config file
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	} else if cfgFile != "" {
		fmt.Fprintf(os.Stderr, "Warning: cannot read config file %s: %v\n", cfgFile, err)
	}
}

func setDefaults() {
	yc := yomitan.DefaultConfig()

	viper.SetDefault("anki.profile", DefaultProfile)
	viper.SetDefault("anki.tag", backfill.DefaultTag)
	viper.SetDefault("yomitan.url", yc.URL)
	viper.SetDefault("yomitan.timeout", yc.Timeout)
	viper.SetDefault("yomitan.ping_timeout", yc.PingTimeout)
	viper.SetDefault("yomitan.max_entries", 4)
	viper.SetDefault("yomitan.failure_threshold", yc.FailureThreshold)
	viper.SetDefault("yomitan.open_timeout", yc.OpenTimeout)
	viper.SetDefault("backup.enabled", true)
	viper.SetDefault("backup.keep", 10)
	viper.SetDefault("log.file", logging.DefaultPath())
	viper.SetDefault("speech.markers", []string{"audio"})
}

// LoadSettings resolves the configuration from viper
func LoadSettings() *Settings {
	s := &Settings{
		Collection: viper.GetString("anki.collection"),
		Tag:        viper.GetString("anki.tag"),
		Yomitan: &yomitan.Config{
			URL:              viper.GetString("yomitan.url"),
			Timeout:          durationOr("yomitan.timeout", 10*time.Second),
			PingTimeout:      durationOr("yomitan.ping_timeout", 5*time.Second),
			FailureThreshold: uint32(viper.GetUint("yomitan.failure_threshold")),
			OpenTimeout:      durationOr("yomitan.open_timeout", 30*time.Second),
		},
		MaxEntries:    viper.GetInt("yomitan.max_entries"),
		BackupEnabled: viper.GetBool("backup.enabled"),
		BackupDir:     viper.GetString("backup.directory"),
		BackupKeep:    viper.GetInt("backup.keep"),
		LogFile:       viper.GetString("log.file"),
		Debug:         viper.GetBool("log.debug"),
		SpeechMarkers: viper.GetStringSlice("speech.markers"),
	}

	if s.Collection == "" {
		profile := viper.GetString("anki.profile")
		if profile == "" {
			profile = DefaultProfile
		}
		s.Collection = DefaultCollectionPath(profile)
	}
	if s.Tag == "" {
		s.Tag = backfill.DefaultTag
	}

	s.Speech = speechConfig()
	return s
}

// speechConfig builds the audio provider config, nil when disabled
func speechConfig() *audio.Config {
	provider := viper.GetString("speech.provider")
	if provider == "" || provider == "none" {
		return nil
	}

	config := audio.DefaultProviderConfig()
	config.Provider = provider
	config.OpenAIKey = GetOpenAIKey()
	config.GeminiKey = GetGeminiKey()
	config.OpenAIBaseURL = viper.GetString("speech.openai_base_url")
	config.GeminiBaseURL = viper.GetString("speech.gemini_base_url")

	if v := viper.GetString("speech.format"); v != "" {
		config.OutputFormat = v
	}
	if v := viper.GetString("speech.openai_model"); v != "" {
		config.OpenAIModel = v
	}
	if v := viper.GetString("speech.openai_voice"); v != "" {
		config.OpenAIVoice = v
	}
	if v := viper.GetFloat64("speech.openai_speed"); v > 0 {
		config.OpenAISpeed = v
	}
	if viper.IsSet("speech.openai_instruction") {
		config.OpenAIInstruction = viper.GetString("speech.openai_instruction")
	}
	if v := viper.GetString("speech.gemini_model"); v != "" {
		config.GeminiModel = v
	}
	if v := viper.GetString("speech.gemini_voice"); v != "" {
		config.GeminiVoice = v
	}
	if v := viper.GetString("speech.espeak_voice"); v != "" {
		config.ESpeakVoice = v
	}
	if dir := viper.GetString("speech.cache_dir"); dir != "" {
		config.EnableCache = true
		config.CacheDir = dir
	}
	return config
}

func durationOr(key string, def time.Duration) time.Duration {
	if d := viper.GetDuration(key); d > 0 {
		return d
	}
	return def
}

// DefaultCollectionPath returns where Anki keeps a profile's collection
func DefaultCollectionPath(profile string) string {
	return filepath.Join(ankiDataDir(), profile, "collection.anki2")
}

func ankiDataDir() string {
	home, _ := os.UserHomeDir()

	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Anki2")
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "Anki2")
		}
		return filepath.Join(home, "AppData", "Roaming", "Anki2")
	default:
		if dataHome := os.Getenv("XDG_DATA_HOME"); dataHome != "" {
			return filepath.Join(dataHome, "Anki2")
		}
		return filepath.Join(home, ".local", "share", "Anki2")
	}
}

// GetOpenAIKey retrieves the OpenAI API key from environment or config
func GetOpenAIKey() string {
	// First check environment variable
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		return key
	}

	// Then check config file
	return viper.GetString("speech.openai_key")
}

// GetGeminiKey retrieves the Gemini API key from environment or config
func GetGeminiKey() string {
	for _, env := range []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"} {
		if key := os.Getenv(env); key != "" {
			return key
		}
	}
	return viper.GetString("speech.gemini_key")
}
