// Package preset reads named backfill configurations from the config file.
//
// A preset fixes the deck, the source fields and the target fields of a
// run so it can be repeated with a single command:
//
//	presets:
//	  - name: Mining glossary
//	    deckName: Japanese::Mining
//	    expressionField: Expression
//	    readingField: Reading
//	    replaceExisting: false
//	    targets:
//	      - fieldToFill: Glossary
//	        handlebar: "{glossary-brief}"
//	      - fieldToFill: Audio
//	        handlebar: "{audio}"
//	        replaceExisting: true
package preset

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"codeberg.org/snonux/yomibackfill/internal/backfill"
)

var (
	// ErrNotFound is returned when no preset has the requested name
	ErrNotFound = errors.New("preset not found")
	// ErrMisconfigured is returned for a preset that cannot run
	ErrMisconfigured = errors.New("preset is misconfigured")
)

// ConfigKey is the viper key holding the preset list
const ConfigKey = "presets"

// UnnamedPreset is shown for presets without a name
const UnnamedPreset = "Unnamed Preset"

// Target is a field to fill and its handlebar
type Target struct {
	FieldToFill string `mapstructure:"fieldToFill" yaml:"fieldToFill"`
	Handlebar   string `mapstructure:"handlebar" yaml:"handlebar"`
	// ReplaceExisting overrides the preset's flag for this field when set
	ReplaceExisting *bool `mapstructure:"replaceExisting" yaml:"replaceExisting,omitempty"`
}

// Preset is a saved backfill configuration
type Preset struct {
	Name            string   `mapstructure:"name" yaml:"name"`
	DeckName        string   `mapstructure:"deckName" yaml:"deckName"`
	ExpressionField string   `mapstructure:"expressionField" yaml:"expressionField"`
	ReadingField    string   `mapstructure:"readingField" yaml:"readingField,omitempty"`
	Targets         []Target `mapstructure:"targets" yaml:"targets"`
	ReplaceExisting bool     `mapstructure:"replaceExisting" yaml:"replaceExisting"`
}

// DisplayName returns the name or a placeholder
func (p Preset) DisplayName() string {
	if strings.TrimSpace(p.Name) == "" {
		return UnnamedPreset
	}
	return p.Name
}

// Validate reports whether the preset can run
func (p Preset) Validate() error {
	var missing []string
	if strings.TrimSpace(p.DeckName) == "" {
		missing = append(missing, "deckName")
	}
	if strings.TrimSpace(p.ExpressionField) == "" {
		missing = append(missing, "expressionField")
	}
	if len(p.Targets) == 0 {
		missing = append(missing, "targets")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %q is missing %s", ErrMisconfigured, p.DisplayName(), strings.Join(missing, ", "))
	}

	for i, t := range p.Targets {
		if strings.TrimSpace(t.FieldToFill) == "" || strings.TrimSpace(t.Handlebar) == "" {
			return fmt.Errorf("%w: %q target %d needs fieldToFill and handlebar", ErrMisconfigured, p.DisplayName(), i+1)
		}
	}
	return nil
}

// Request builds the backfill request for the deck's notes
func (p Preset) Request(noteIDs []int64) backfill.Request {
	req := backfill.Request{
		NoteIDs:         noteIDs,
		ExpressionField: strings.TrimSpace(p.ExpressionField),
		ReadingField:    strings.TrimSpace(p.ReadingField),
		Replace:         p.ReplaceExisting,
	}
	for _, t := range p.Targets {
		req.Targets = append(req.Targets, backfill.Target{
			Field:     strings.TrimSpace(t.FieldToFill),
			Handlebar: strings.TrimSpace(t.Handlebar),
			Replace:   t.ReplaceExisting,
		})
	}
	return req
}

// Load reads the presets from viper
func Load(v *viper.Viper) ([]Preset, error) {
	var presets []Preset
	if !v.IsSet(ConfigKey) {
		return nil, nil
	}
	if err := v.UnmarshalKey(ConfigKey, &presets); err != nil {
		return nil, fmt.Errorf("failed to parse presets: %w", err)
	}
	return presets, nil
}

// Find returns the preset with the given name, ignoring case
func Find(presets []Preset, name string) (Preset, error) {
	name = strings.TrimSpace(name)
	for _, p := range presets {
		if strings.EqualFold(p.DisplayName(), name) {
			return p, nil
		}
	}
	return Preset{}, fmt.Errorf("%w: %q", ErrNotFound, name)
}

// Names returns the display names in configuration order
func Names(presets []Preset) []string {
	names := make([]string, 0, len(presets))
	for _, p := range presets {
		names = append(names, p.DisplayName())
	}
	return names
}

// Marshal renders presets as a config file fragment
func Marshal(presets []Preset) ([]byte, error) {
	doc := struct {
		Presets []Preset `yaml:"presets"`
	}{Presets: presets}
	return yaml.Marshal(doc)
}
