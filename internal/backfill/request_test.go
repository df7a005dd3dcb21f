package backfill

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTarget(t *testing.T) {
	tests := []struct {
		in      string
		want    Target
		wantErr bool
	}{
		{"Glossary={glossary-brief}", Target{Field: "Glossary", Handlebar: "{glossary-brief}"}, false},
		{" Audio = {audio} ", Target{Field: "Audio", Handlebar: "{audio}"}, false},
		{"Pitch=pitch-accent-graphs", Target{Field: "Pitch", Handlebar: "pitch-accent-graphs"}, false},
		{"Glossary", Target{}, true},
		{"=audio", Target{}, true},
		{"Audio=", Target{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTarget(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidRequest)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTargetMarker(t *testing.T) {
	assert.Equal(t, "glossary-brief", Target{Handlebar: "{glossary-brief}"}.Marker())
	assert.Equal(t, "", Target{Handlebar: "{}"}.Marker())
}

func TestTargetReplace(t *testing.T) {
	assert.True(t, Target{}.replace(true))
	assert.False(t, Target{}.replace(false))
	assert.False(t, Target{Replace: Bool(false)}.replace(true))
	assert.True(t, Target{Replace: Bool(true)}.replace(false))
}
