package audio

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"codeberg.org/snonux/yomibackfill/internal"
)

// Provider defines the interface for text-to-speech providers
type Provider interface {
	// GenerateAudio generates audio from text and saves it to the specified file
	GenerateAudio(ctx context.Context, text string, outputFile string) error

	// Name returns the provider name
	Name() string

	// Extension returns the file extension of the audio the provider writes
	Extension() string

	// IsAvailable checks if the provider is properly configured and available
	IsAvailable() error
}

// Config holds common configuration for audio providers
type Config struct {
	Provider     string // Provider name: "openai", "gemini" or "espeak"
	OutputFormat string // Output format for OpenAI: "mp3" or "wav"

	// OpenAI-specific settings
	OpenAIKey         string
	OpenAIBaseURL     string
	OpenAIModel       string  // "tts-1", "tts-1-hd", or "gpt-4o-mini-tts"
	OpenAIVoice       string  // "alloy", "ash", "coral", "nova", "sage", ...
	OpenAISpeed       float64 // 0.25 to 4.0
	OpenAIInstruction string  // Voice instructions for gpt-4o-mini-tts model

	// Gemini-specific settings
	GeminiKey     string
	GeminiBaseURL string
	GeminiModel   string // "gemini-2.5-flash-preview-tts"
	GeminiVoice   string // prebuilt voice such as "Kore"

	// espeak-ng settings
	ESpeakVoice string // "ja"
	ESpeakSpeed int    // words per minute

	// Caching
	EnableCache bool
	CacheDir    string
}

// DefaultProviderConfig returns default configuration
func DefaultProviderConfig() *Config {
	return &Config{
		Provider:          "openai",
		OutputFormat:      "mp3",
		OpenAIModel:       "gpt-4o-mini-tts",
		OpenAIVoice:       "nova",
		OpenAISpeed:       1.0,
		OpenAIInstruction: "You are reading a single Japanese dictionary headword. Pronounce it with standard Tokyo pitch accent, slowly and clearly for language learners.",
		GeminiModel:       "gemini-2.5-flash-preview-tts",
		GeminiVoice:       "Kore",
		ESpeakVoice:       "ja",
		ESpeakSpeed:       140,
	}
}

// NewProvider creates the appropriate audio provider based on configuration
func NewProvider(config *Config) (Provider, error) {
	if config == nil {
		config = DefaultProviderConfig()
	}

	switch config.Provider {
	case "openai":
		if config.OpenAIKey == "" {
			return nil, fmt.Errorf("OpenAI API key is required")
		}
		return NewOpenAIProvider(config)

	case "gemini":
		if config.GeminiKey == "" {
			return nil, fmt.Errorf("Gemini API key is required")
		}
		return NewGeminiProvider(config)

	case "espeak":
		return NewESpeakProvider(config)

	default:
		return nil, fmt.Errorf("unknown audio provider: %s", config.Provider)
	}
}

// ProviderWithFallback wraps a primary provider with a fallback option
type ProviderWithFallback struct {
	primary  Provider
	fallback Provider
}

// NewProviderWithFallback creates a provider that falls back to secondary if primary fails
func NewProviderWithFallback(primary, fallback Provider) Provider {
	return &ProviderWithFallback{
		primary:  primary,
		fallback: fallback,
	}
}

// GenerateAudio tries primary provider first, falls back to secondary on error
func (p *ProviderWithFallback) GenerateAudio(ctx context.Context, text string, outputFile string) error {
	err := p.primary.GenerateAudio(ctx, text, outputFile)
	if err != nil {
		fmt.Printf("Primary provider (%s) failed: %v. Falling back to %s\n",
			p.primary.Name(), err, p.fallback.Name())

		// The fallback may write a different format
		outputFile = strings.TrimSuffix(outputFile, "."+p.primary.Extension()) + "." + p.fallback.Extension()
		return p.fallback.GenerateAudio(ctx, text, outputFile)
	}
	return nil
}

// Name returns the provider name
func (p *ProviderWithFallback) Name() string {
	return fmt.Sprintf("%s (fallback: %s)", p.primary.Name(), p.fallback.Name())
}

// Extension returns the primary provider's extension
func (p *ProviderWithFallback) Extension() string {
	return p.primary.Extension()
}

// IsAvailable checks if at least one provider is available
func (p *ProviderWithFallback) IsAvailable() error {
	primaryErr := p.primary.IsAvailable()
	if primaryErr == nil {
		return nil
	}

	fallbackErr := p.fallback.IsAvailable()
	if fallbackErr == nil {
		return nil
	}

	return fmt.Errorf("both providers unavailable: primary=%v, fallback=%v",
		primaryErr, fallbackErr)
}

// MediaFilename names a generated pronunciation file for a term. The hash
// keeps names unique across terms that sanitize to the same string.
func MediaFilename(text, extension string) string {
	sum := md5.Sum([]byte(text))
	return fmt.Sprintf("yomibackfill_%s_%s.%s",
		internal.SanitizeFilename(text), hex.EncodeToString(sum[:])[:8], extension)
}

// SoundTag is the field value that plays a media file
func SoundTag(filename string) string {
	return "[sound:" + filename + "]"
}

// Synthesize writes a pronunciation file for text into dir unless one
// already exists, and returns its file name. A fallback provider may have
// written a different extension than the primary one.
func Synthesize(ctx context.Context, p Provider, text, dir string) (string, error) {
	name := MediaFilename(text, p.Extension())
	if found := existingAudio(dir, name); found != "" {
		return found, nil
	}

	if err := p.GenerateAudio(ctx, text, filepath.Join(dir, name)); err != nil {
		return "", err
	}

	if found := existingAudio(dir, name); found != "" {
		return found, nil
	}
	return "", fmt.Errorf("%s reported success but wrote no file for %q", p.Name(), text)
}

func existingAudio(dir, name string) string {
	if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
		return name
	}
	base := strings.TrimSuffix(name, filepath.Ext(name))
	matches, _ := filepath.Glob(filepath.Join(dir, globEscape(base)+".*"))
	for _, m := range matches {
		if filepath.Ext(m) != ".tmp" {
			return filepath.Base(m)
		}
	}
	return ""
}

func globEscape(s string) string {
	r := strings.NewReplacer(`*`, `\*`, `?`, `\?`, `[`, `\[`, `\`, `\\`)
	return r.Replace(s)
}
