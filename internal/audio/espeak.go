package audio

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
)

// espeakBinary is a variable so tests can point it at a stub
var espeakBinary = "espeak-ng"

// ESpeakProvider speaks text with the local espeak-ng engine. Quality is
// far below the cloud voices but it works offline.
type ESpeakProvider struct {
	voice string
	speed int
}

// NewESpeakProvider creates an espeak-ng provider
func NewESpeakProvider(config *Config) (Provider, error) {
	p := &ESpeakProvider{voice: "ja", speed: 140}
	if config != nil {
		if config.ESpeakVoice != "" {
			p.voice = config.ESpeakVoice
		}
		if config.ESpeakSpeed > 0 {
			p.speed = clampSpeed(config.ESpeakSpeed)
		}
	}
	return p, nil
}

// GenerateAudio writes a WAV file for text
func (p *ESpeakProvider) GenerateAudio(ctx context.Context, text string, outputFile string) error {
	if text == "" {
		return fmt.Errorf("text cannot be empty")
	}

	dir := filepath.Dir(outputFile)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	args := []string{
		"-v", p.voice,
		"-s", strconv.Itoa(p.speed),
		"-w", outputFile,
		text,
	}

	output, err := exec.CommandContext(ctx, espeakBinary, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("espeak-ng failed: %w\nOutput: %s", err, string(output))
	}
	return nil
}

// Name returns the provider name
func (p *ESpeakProvider) Name() string {
	return "espeak"
}

// Extension returns the file extension espeak-ng writes
func (p *ESpeakProvider) Extension() string {
	return "wav"
}

// IsAvailable checks that espeak-ng is installed
func (p *ESpeakProvider) IsAvailable() error {
	if _, err := exec.LookPath(espeakBinary); err != nil {
		return fmt.Errorf("espeak-ng is not installed or not in PATH: %w", err)
	}
	return nil
}

func clampSpeed(speed int) int {
	if speed < 80 {
		return 80
	} else if speed > 450 {
		return 450
	}
	return speed
}
