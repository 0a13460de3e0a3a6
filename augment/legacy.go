package augment

import (
	"context"
	"fmt"
	"strings"

	"github.com/theimaginaryfoundation/diary-lens/llm"
)

const LegacyTemperature = 0.8

// LegacyEngine is the single-shot mode kept for older request shapes: one plain-text call,
// no structured intermediate.
type LegacyEngine struct {
	gen          llm.Generator
	orientations Orientations
	sampler      Sampler
}

func NewLegacyEngine(gen llm.Generator, orientations Orientations, sampler Sampler) *LegacyEngine {
	return &LegacyEngine{gen: gen, orientations: orientations, sampler: sampler}
}

func (e *LegacyEngine) Rewrite(ctx context.Context, entry, orientationID, value, toneID string) (string, error) {
	if strings.TrimSpace(entry) == "" {
		return "", ErrEmptyEntry
	}
	o, err := e.orientations.Orientation(orientationID)
	if err != nil {
		return "", err
	}
	var example string
	if !IsOwnVoiceTone(toneID) {
		if example, err = e.sampler.Sample(toneID); err != nil {
			return "", err
		}
	}

	prompt, err := render(legacyTmpl, struct{ Orientation, Value, Tone, ToneExample string }{
		Orientation: o.ID,
		Value:       strings.TrimSpace(value),
		Tone:        toneID,
		ToneExample: example,
	})
	if err != nil {
		return "", err
	}
	out, err := e.gen.Generate(ctx, llm.Request{
		Name:         "legacy",
		Instructions: prompt,
		Input:        fenced("Diary", entry),
		Temperature:  LegacyTemperature,
	})
	if err != nil {
		return "", upstream("legacy", err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", fmt.Errorf("%w: legacy: empty response", ErrMalformedModelOutput)
	}
	return out, nil
}
