package augment

import (
	"context"
	"fmt"
	"strings"

	"github.com/theimaginaryfoundation/diary-lens/catalog"
	"github.com/theimaginaryfoundation/diary-lens/llm"
)

const PerspectiveTemperature = 1.0

// Orientations resolves orientation ids to their definitions.
type Orientations interface {
	Orientation(id string) (catalog.OrientationDefinition, error)
}

// PerspectiveEngine reinterprets a diary entry under a life orientation in two calls:
// Discover extracts excerpts with reinterpretations, Integrate weaves them back into the entry.
type PerspectiveEngine struct {
	gen          llm.Generator
	orientations Orientations

	// StrictQuotes rejects discovery output whose quotes are not found in the entry.
	StrictQuotes bool
}

func NewPerspectiveEngine(gen llm.Generator, orientations Orientations) *PerspectiveEngine {
	return &PerspectiveEngine{gen: gen, orientations: orientations}
}

func (e *PerspectiveEngine) Discover(ctx context.Context, entry, orientationID string) (DiscoverySet, error) {
	if strings.TrimSpace(entry) == "" {
		return nil, ErrEmptyEntry
	}
	o, err := e.orientations.Orientation(orientationID)
	if err != nil {
		return nil, err
	}

	prompt, err := render(discoverTmpl, struct{ Orientation, Definition string }{o.ID, o.Definition})
	if err != nil {
		return nil, err
	}
	raw, err := e.gen.Generate(ctx, llm.Request{
		Name:         "discover",
		Instructions: withFormat(prompt, llm.FormatInstructions(discoverySchema)),
		Input:        fenced("Diary", entry),
		Temperature:  PerspectiveTemperature,
		Schema:       &discoverySchema,
	})
	if err != nil {
		return nil, upstream("discover", err)
	}

	set, err := ParseDiscovery(raw)
	if err != nil {
		return nil, err
	}
	if e.StrictQuotes {
		if bad := UnverifiedQuotes(entry, set); len(bad) > 0 {
			return nil, fmt.Errorf("%w: discovery: quotes not found in entry at points %v", ErrMalformedModelOutput, bad)
		}
	}
	return set, nil
}

// Integrate rewrites entry using set. The set is expected to come from Discover with the same
// orientation; a mismatch is not detected.
func (e *PerspectiveEngine) Integrate(ctx context.Context, entry string, set DiscoverySet, orientationID string) (string, error) {
	if strings.TrimSpace(entry) == "" {
		return "", ErrEmptyEntry
	}
	if len(set) < MinDiscoveredPoints || len(set) > MaxDiscoveredPoints {
		return "", fmt.Errorf("%w: integrate: got %d points, want %d..%d", ErrMalformedModelOutput, len(set), MinDiscoveredPoints, MaxDiscoveredPoints)
	}
	o, err := e.orientations.Orientation(orientationID)
	if err != nil {
		return "", err
	}

	prompt, err := render(integrateTmpl, struct{ Orientation, Highlight string }{o.ID, o.Highlight})
	if err != nil {
		return "", err
	}
	raw, err := e.gen.Generate(ctx, llm.Request{
		Name:         "integrate",
		Instructions: withFormat(prompt, llm.FormatInstructions(augmentSchema)),
		Input:        fenced("Original diary", entry) + "\n\n" + fenced("Relevant excerpts and interpretations", set.String()),
		Temperature:  PerspectiveTemperature,
		Schema:       &augmentSchema,
	})
	if err != nil {
		return "", upstream("integrate", err)
	}
	return ParseAugment(raw)
}
