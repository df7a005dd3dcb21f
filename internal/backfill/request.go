package backfill

import (
	"errors"
	"fmt"
	"strings"

	"codeberg.org/snonux/yomibackfill/internal/yomitan"
)

// ErrInvalidRequest is returned for a request that cannot run at all
var ErrInvalidRequest = errors.New("invalid backfill request")

// DefaultTag is added to every note the run changes
const DefaultTag = "yomitan-backfill"

// Target is a field to fill and the handlebar rendering its content
type Target struct {
	Field     string
	Handlebar string
	// Replace overrides Request.Replace for this target when set
	Replace *bool
}

// Marker returns the API marker for the target's handlebar
func (t Target) Marker() string {
	return yomitan.NormalizeMarker(t.Handlebar)
}

func (t Target) replace(global bool) bool {
	if t.Replace != nil {
		return *t.Replace
	}
	return global
}

// Request describes one backfill run
type Request struct {
	NoteIDs         []int64
	ExpressionField string
	// ReadingField is optional. When set and present on a note its value
	// selects the dictionary entry with the same reading.
	ReadingField string
	Targets      []Target
	Replace      bool
}

// Validate checks the parts of a request that do not depend on the notes
func (r *Request) Validate() error {
	if strings.TrimSpace(r.ExpressionField) == "" {
		return fmt.Errorf("%w: expression field is required", ErrInvalidRequest)
	}
	if len(r.Targets) == 0 {
		return fmt.Errorf("%w: at least one target field is required", ErrInvalidRequest)
	}
	return nil
}

// ParseTarget parses "Field={handlebar}" as given on the command line
func ParseTarget(s string) (Target, error) {
	field, handlebar, ok := strings.Cut(s, "=")
	field = strings.TrimSpace(field)
	handlebar = strings.TrimSpace(handlebar)
	if !ok || field == "" || handlebar == "" {
		return Target{}, fmt.Errorf("%w: target %q must look like Field={handlebar}", ErrInvalidRequest, s)
	}
	return Target{Field: field, Handlebar: handlebar}, nil
}

// Bool returns a pointer to b, for Target.Replace
func Bool(b bool) *bool {
	return &b
}
