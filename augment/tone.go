package augment

import (
	"context"
	"fmt"
	"strings"

	"github.com/theimaginaryfoundation/diary-lens/llm"
)

const (
	ToneTemperature = 0.7

	// ToneOwnVoice keeps the author's own voice instead of applying an example style.
	ToneOwnVoice = "mine"

	legacyToneOwnVoice = "my_tone"
)

// IsOwnVoiceTone reports whether id selects the reconcile-to-original-voice path.
func IsOwnVoiceTone(id string) bool {
	return id == ToneOwnVoice || id == legacyToneOwnVoice
}

// ToneEngine restyles an augmented entry, either after a sampled example of a tone or
// back toward the original author's voice.
type ToneEngine struct {
	gen     llm.Generator
	sampler Sampler
}

func NewToneEngine(gen llm.Generator, sampler Sampler) *ToneEngine {
	return &ToneEngine{gen: gen, sampler: sampler}
}

// Refine returns candidate rewritten for toneID. original is only read on the own-voice path.
func (e *ToneEngine) Refine(ctx context.Context, candidate, original, toneID string) (string, error) {
	if strings.TrimSpace(candidate) == "" {
		return "", ErrEmptyEntry
	}
	if IsOwnVoiceTone(toneID) {
		return e.reconcile(ctx, candidate, original)
	}
	return e.exemplar(ctx, candidate, toneID)
}

func (e *ToneEngine) exemplar(ctx context.Context, candidate, toneID string) (string, error) {
	example, err := e.sampler.Sample(toneID)
	if err != nil {
		return "", err
	}
	prompt, err := render(toneTmpl, struct{ Tone, Example string }{toneID, example})
	if err != nil {
		return "", err
	}
	raw, err := e.gen.Generate(ctx, llm.Request{
		Name:         "tone",
		Instructions: withFormat(prompt, llm.FormatInstructions(augmentSchema)),
		Input:        fenced("Diary", candidate),
		Temperature:  ToneTemperature,
		Schema:       &augmentSchema,
	})
	if err != nil {
		return "", upstream("tone", err)
	}
	return ParseAugment(raw)
}

func (e *ToneEngine) reconcile(ctx context.Context, candidate, original string) (string, error) {
	if strings.TrimSpace(original) == "" {
		return "", fmt.Errorf("%w: original entry is required to keep the author's voice", ErrEmptyEntry)
	}
	prompt, err := render(reconcileTmpl, nil)
	if err != nil {
		return "", err
	}
	raw, err := e.gen.Generate(ctx, llm.Request{
		Name:         "reconcile",
		Instructions: withFormat(prompt, llm.FormatInstructions(augmentSchema)),
		Input:        fenced("Original text", original) + "\n\n" + fenced("Expanded text", candidate),
		Temperature:  ToneTemperature,
		Schema:       &augmentSchema,
	})
	if err != nil {
		return "", upstream("reconcile", err)
	}
	return ParseAugment(raw)
}
