package augment

import (
	"fmt"
	"strings"

	"github.com/theimaginaryfoundation/diary-lens/llm"
)

const (
	MinDiscoveredPoints = 1
	MaxDiscoveredPoints = 3

	// PointSeparator joins serialized discovery points in the integration prompt.
	PointSeparator = "\n========\n"
)

// DiscoveredPoint is one excerpt of the entry and its reinterpretation under an orientation.
// Quote is advisory: the model may paraphrase (see UnverifiedQuotes).
type DiscoveredPoint struct {
	Quote            string `json:"quote" jsonschema:"description=An excerpt from the original diary."`
	Reinterpretation string `json:"reinterpretation" jsonschema:"description=1-3 sentences interpreting the excerpt from the given perspective, including reasons."`
}

// DiscoverySet is the ordered output of the discovery phase (1..3 points).
type DiscoverySet []DiscoveredPoint

// DiscoveryResult is the shape the discovery call must emit.
type DiscoveryResult struct {
	Points []DiscoveredPoint `json:"points" jsonschema:"description=1 to 3 extracted excerpts with their reinterpretations."`
}

// AugmentResult is the shape the integration and tone calls must emit.
type AugmentResult struct {
	DiaryEntry string `json:"diary_entry" jsonschema:"description=The full rewritten diary entry."`
}

var (
	discoverySchema = llm.Schema{
		Name:        "DiscoveryResult",
		Description: "Diary excerpts reinterpreted from a life orientation",
		Definition:  llm.GenerateSchema[DiscoveryResult](),
	}
	augmentSchema = llm.Schema{
		Name:        "AugmentResult",
		Description: "Rewritten diary entry",
		Definition:  llm.GenerateSchema[AugmentResult](),
	}
)

// ParseDiscovery validates a raw model response against DiscoveryResult.
func ParseDiscovery(raw string) (DiscoverySet, error) {
	var out struct {
		Points *[]DiscoveredPoint `json:"points"`
	}
	if err := llm.DecodeModelJSON(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: discovery: %w", ErrMalformedModelOutput, err)
	}
	if out.Points == nil {
		return nil, fmt.Errorf("%w: discovery: missing points", ErrMalformedModelOutput)
	}
	points := *out.Points
	if n := len(points); n < MinDiscoveredPoints || n > MaxDiscoveredPoints {
		return nil, fmt.Errorf("%w: discovery: got %d points, want %d..%d", ErrMalformedModelOutput, n, MinDiscoveredPoints, MaxDiscoveredPoints)
	}

	set := make(DiscoverySet, 0, len(points))
	for i, p := range points {
		p.Quote = strings.TrimSpace(p.Quote)
		p.Reinterpretation = strings.TrimSpace(p.Reinterpretation)
		if p.Quote == "" {
			return nil, fmt.Errorf("%w: discovery: point %d: missing quote", ErrMalformedModelOutput, i)
		}
		if p.Reinterpretation == "" {
			return nil, fmt.Errorf("%w: discovery: point %d: missing reinterpretation", ErrMalformedModelOutput, i)
		}
		set = append(set, p)
	}
	return set, nil
}

// ParseAugment validates a raw model response against AugmentResult and returns the diary text.
func ParseAugment(raw string) (string, error) {
	var out struct {
		DiaryEntry *string `json:"diary_entry"`
	}
	if err := llm.DecodeModelJSON(raw, &out); err != nil {
		return "", fmt.Errorf("%w: augment: %w", ErrMalformedModelOutput, err)
	}
	if out.DiaryEntry == nil {
		return "", fmt.Errorf("%w: augment: missing diary_entry", ErrMalformedModelOutput)
	}
	entry := strings.TrimSpace(*out.DiaryEntry)
	if entry == "" {
		return "", fmt.Errorf("%w: augment: empty diary_entry", ErrMalformedModelOutput)
	}
	return entry, nil
}

// String serializes the set as quote/interpretation pairs joined by PointSeparator.
func (s DiscoverySet) String() string {
	parts := make([]string, 0, len(s))
	for _, p := range s {
		parts = append(parts, fmt.Sprintf("- Relevant excerpt: %s\n- Interpretation: %s", p.Quote, p.Reinterpretation))
	}
	return strings.Join(parts, PointSeparator)
}

// UnverifiedQuotes returns the indexes of points whose quote does not appear in entry,
// comparing case-insensitively with collapsed whitespace and ignoring surrounding quote marks.
func UnverifiedQuotes(entry string, set DiscoverySet) []int {
	haystack := normalizeQuote(entry)
	var out []int
	for i, p := range set {
		needle := normalizeQuote(p.Quote)
		if needle == "" || !strings.Contains(haystack, needle) {
			out = append(out, i)
		}
	}
	return out
}

func normalizeQuote(s string) string {
	s = strings.Trim(strings.TrimSpace(s), "\"'“”‘’`…")
	s = strings.TrimSuffix(strings.TrimPrefix(s, "..."), "...")
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
