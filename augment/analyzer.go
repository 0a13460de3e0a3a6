package augment

import (
	"context"
	"fmt"
	"strings"

	"github.com/theimaginaryfoundation/diary-lens/llm"
)

// Method selects the augmentation pipeline.
type Method string

const (
	MethodPerspective Method = "perspective"
	MethodLegacy      Method = "legacy"
)

// ParseMethod maps request method names to a Method. An empty name selects the perspective
// pipeline; "openai" and "langchain" are older names of the single-shot mode.
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(MethodPerspective):
		return MethodPerspective, nil
	case string(MethodLegacy), "openai", "langchain":
		return MethodLegacy, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedMethod, s)
	}
}

// Catalog is the read-only configuration the analyzer validates requests against.
type Catalog interface {
	Orientations
	ToneExamples
}

// Request is the v1 request shape.
type Request struct {
	Entry       string
	Orientation string
	// Value is only used by the legacy single-shot prompt.
	Value  string
	Tone   string
	Method Method
}

// Trace holds the intermediate results of one run. Discovery and Augmented are empty for
// the legacy pipeline.
type Trace struct {
	Method      Method       `json:"method"`
	Orientation string       `json:"life_orientation"`
	Tone        string       `json:"tone"`
	Discovery   DiscoverySet `json:"discovery,omitempty"`
	Augmented   string       `json:"augmented,omitempty"`
	Final       string       `json:"final"`
}

type pipeline interface {
	run(ctx context.Context, req Request) (Trace, error)
}

// DiaryAnalyzer is the entry point: it validates a request, then runs the selected pipeline.
// It holds no per-run state and is safe for concurrent use.
type DiaryAnalyzer struct {
	catalog   Catalog
	pipelines map[Method]pipeline
}

type analyzerOptions struct {
	toneGen      llm.Generator
	legacyGen    llm.Generator
	sampler      Sampler
	strictQuotes bool
}

type Option func(*analyzerOptions)

// WithToneGenerator uses g for tone refinement instead of the main generator.
func WithToneGenerator(g llm.Generator) Option {
	return func(o *analyzerOptions) { o.toneGen = g }
}

// WithLegacyGenerator uses g for the single-shot mode instead of the main generator.
func WithLegacyGenerator(g llm.Generator) Option {
	return func(o *analyzerOptions) { o.legacyGen = g }
}

func WithSampler(s Sampler) Option {
	return func(o *analyzerOptions) { o.sampler = s }
}

// WithStrictQuotes makes discovery reject quotes that are not found in the entry.
func WithStrictQuotes(strict bool) Option {
	return func(o *analyzerOptions) { o.strictQuotes = strict }
}

func NewDiaryAnalyzer(gen llm.Generator, cat Catalog, opts ...Option) *DiaryAnalyzer {
	o := analyzerOptions{toneGen: gen, legacyGen: gen}
	for _, opt := range opts {
		opt(&o)
	}
	if o.sampler == nil {
		o.sampler = NewToneExampleSampler(cat)
	}

	perspective := NewPerspectiveEngine(gen, cat)
	perspective.StrictQuotes = o.strictQuotes

	return &DiaryAnalyzer{
		catalog: cat,
		pipelines: map[Method]pipeline{
			MethodPerspective: &perspectivePipeline{
				perspective: perspective,
				tone:        NewToneEngine(o.toneGen, o.sampler),
			},
			MethodLegacy: &legacyPipeline{
				engine: NewLegacyEngine(o.legacyGen, cat, o.sampler),
			},
		},
	}
}

// Augment runs the perspective pipeline and returns the final entry.
func (a *DiaryAnalyzer) Augment(ctx context.Context, entry, orientationID, toneID string) (string, error) {
	tr, err := a.AugmentWithTrace(ctx, entry, orientationID, toneID)
	if err != nil {
		return "", err
	}
	return tr.Final, nil
}

// AugmentWithTrace runs the perspective pipeline and returns every intermediate result.
func (a *DiaryAnalyzer) AugmentWithTrace(ctx context.Context, entry, orientationID, toneID string) (Trace, error) {
	return a.run(ctx, Request{Entry: entry, Orientation: orientationID, Tone: toneID, Method: MethodPerspective})
}

// AugmentDiary accepts the v1 request shape, which supports both methods.
func (a *DiaryAnalyzer) AugmentDiary(ctx context.Context, req Request) (string, error) {
	tr, err := a.Run(ctx, req)
	if err != nil {
		return "", err
	}
	return tr.Final, nil
}

// AugmentDiaryV2 accepts the v2 request shape. Only the perspective method is supported.
func (a *DiaryAnalyzer) AugmentDiaryV2(ctx context.Context, entry, orientationID, toneID string, method Method) (string, error) {
	if method != MethodPerspective {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedMethod, method)
	}
	return a.Augment(ctx, entry, orientationID, toneID)
}

// Run executes req with its method and returns the trace.
func (a *DiaryAnalyzer) Run(ctx context.Context, req Request) (Trace, error) {
	if req.Method == "" {
		req.Method = MethodPerspective
	}
	return a.run(ctx, req)
}

func (a *DiaryAnalyzer) run(ctx context.Context, req Request) (Trace, error) {
	p, ok := a.pipelines[req.Method]
	if !ok {
		return Trace{}, fmt.Errorf("%w: %q", ErrUnsupportedMethod, req.Method)
	}
	if err := a.validate(req); err != nil {
		return Trace{}, err
	}
	tr, err := p.run(ctx, req)
	if err != nil {
		return Trace{}, err
	}
	tr.Method, tr.Orientation, tr.Tone = req.Method, req.Orientation, req.Tone
	return tr, nil
}

// validate fails before any generation call is made.
func (a *DiaryAnalyzer) validate(req Request) error {
	if strings.TrimSpace(req.Entry) == "" {
		return ErrEmptyEntry
	}
	if _, err := a.catalog.Orientation(req.Orientation); err != nil {
		return err
	}
	if IsOwnVoiceTone(req.Tone) {
		return nil
	}
	if _, err := a.catalog.ToneExamples(req.Tone); err != nil {
		return err
	}
	return nil
}

type perspectivePipeline struct {
	perspective *PerspectiveEngine
	tone        *ToneEngine
}

func (p *perspectivePipeline) run(ctx context.Context, req Request) (Trace, error) {
	set, err := p.perspective.Discover(ctx, req.Entry, req.Orientation)
	if err != nil {
		return Trace{}, stageErr(StagePerspective, err)
	}
	augmented, err := p.perspective.Integrate(ctx, req.Entry, set, req.Orientation)
	if err != nil {
		return Trace{}, stageErr(StagePerspective, err)
	}
	final, err := p.tone.Refine(ctx, augmented, req.Entry, req.Tone)
	if err != nil {
		return Trace{}, stageErr(StageTone, err)
	}
	return Trace{Discovery: set, Augmented: augmented, Final: final}, nil
}

type legacyPipeline struct {
	engine *LegacyEngine
}

func (p *legacyPipeline) run(ctx context.Context, req Request) (Trace, error) {
	out, err := p.engine.Rewrite(ctx, req.Entry, req.Orientation, req.Value, req.Tone)
	if err != nil {
		return Trace{}, stageErr(StageLegacy, err)
	}
	return Trace{Final: out}, nil
}
