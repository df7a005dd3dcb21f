package models

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// Lister handles listing available OpenAI models
type Lister struct {
	apiKey string
	client *openai.Client
}

// NewLister creates a new model lister. An empty baseURL uses the public API.
func NewLister(apiKey, baseURL string) *Lister {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Lister{
		apiKey: apiKey,
		client: openai.NewClientWithConfig(config),
	}
}

// Catalog is the set of models relevant to the speech fallback
type Catalog struct {
	Speech []string
	Audio  []string
}

// Catalog fetches the account's models and keeps the speech capable ones
func (l *Lister) Catalog(ctx context.Context) (*Catalog, error) {
	if l.apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key not found. Set OPENAI_API_KEY environment variable or configure speech.openai_key in .yomibackfill.yaml")
	}

	models, err := l.client.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}

	// Categorize models
	catalog := &Catalog{}
	for _, model := range models.Models {
		modelID := model.ID
		if strings.Contains(modelID, "tts") {
			catalog.Speech = append(catalog.Speech, modelID)
		} else if strings.Contains(modelID, "audio") {
			catalog.Audio = append(catalog.Audio, modelID)
		}
	}

	// Sort models
	sort.Strings(catalog.Speech)
	sort.Strings(catalog.Audio)
	return catalog, nil
}

// ListAvailableModels prints the speech capable models
func (l *Lister) ListAvailableModels(ctx context.Context, w io.Writer) error {
	catalog, err := l.Catalog(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintln(w, "Available OpenAI Models:")
	fmt.Fprintln(w, "\nText-to-Speech (TTS) Models (speech.openai_model):")
	if len(catalog.Speech) == 0 {
		fmt.Fprintln(w, "  No TTS models found")
	} else {
		for _, model := range catalog.Speech {
			fmt.Fprintf(w, "  %s\n", model)
		}
	}

	fmt.Fprintln(w, "\nAudio Models:")
	if len(catalog.Audio) == 0 {
		fmt.Fprintln(w, "  No audio models found")
	} else {
		for _, model := range catalog.Audio {
			fmt.Fprintf(w, "  %s\n", model)
		}
	}

	return nil
}
