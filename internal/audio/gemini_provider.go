package audio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"google.golang.org/genai"
)

// GeminiProvider implements Provider with Gemini's native speech output.
// The API returns raw PCM which is wrapped into a WAV container.
type GeminiProvider struct {
	client *genai.Client
	config *Config
}

// NewGeminiProvider creates a new Gemini TTS provider
func NewGeminiProvider(config *Config) (Provider, error) {
	if config.GeminiKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}

	clientConfig := &genai.ClientConfig{
		APIKey:  config.GeminiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.GeminiBaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: config.GeminiBaseURL}
	}

	client, err := genai.NewClient(context.Background(), clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiProvider{client: client, config: config}, nil
}

// GenerateAudio generates a WAV file using a Gemini TTS model
func (p *GeminiProvider) GenerateAudio(ctx context.Context, text string, outputFile string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("text cannot be empty")
	}

	model := p.config.GeminiModel
	if model == "" {
		model = DefaultProviderConfig().GeminiModel
	}
	voice := p.config.GeminiVoice
	if voice == "" {
		voice = DefaultProviderConfig().GeminiVoice
	}

	result, err := p.client.Models.GenerateContent(ctx, model, genai.Text(text), &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voice},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("Gemini TTS API error: %w", err)
	}

	pcm := inlineAudio(result)
	if len(pcm) == 0 {
		return fmt.Errorf("no audio data received from Gemini")
	}

	dir := filepath.Dir(outputFile)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	out, err := os.Create(outputFile)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer out.Close()

	if err := WriteWAV(out, pcm, geminiSampleRate); err != nil {
		return fmt.Errorf("failed to write audio file: %w", err)
	}
	return nil
}

// Name returns the provider name
func (p *GeminiProvider) Name() string {
	return "gemini"
}

// Extension returns the file extension of the generated audio
func (p *GeminiProvider) Extension() string {
	return "wav"
}

// IsAvailable checks that an API key is configured
func (p *GeminiProvider) IsAvailable() error {
	if p.config.GeminiKey == "" {
		return fmt.Errorf("Gemini API key not configured")
	}
	return nil
}

func inlineAudio(result *genai.GenerateContentResponse) []byte {
	if result == nil {
		return nil
	}
	var pcm []byte
	for _, cand := range result.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part != nil && part.InlineData != nil {
				pcm = append(pcm, part.InlineData.Data...)
			}
		}
	}
	return pcm
}
