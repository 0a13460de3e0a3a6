package augment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/theimaginaryfoundation/diary-lens/catalog"
	"github.com/theimaginaryfoundation/diary-lens/llm"
)

// scriptedGen replies per request name and records every call.
type scriptedGen struct {
	mu      sync.Mutex
	replies map[string]string
	errs    map[string]error
	calls   []llm.Request
}

func (g *scriptedGen) Generate(_ context.Context, req llm.Request) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, req)
	if err := g.errs[req.Name]; err != nil {
		return "", err
	}
	reply, ok := g.replies[req.Name]
	if !ok {
		return "", fmt.Errorf("unexpected call %q", req.Name)
	}
	return reply, nil
}

func (g *scriptedGen) names() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, 0, len(g.calls))
	for _, c := range g.calls {
		out = append(out, c.Name)
	}
	return out
}

type countingSampler struct {
	calls []string
	next  Sampler
}

func (s *countingSampler) Sample(toneID string) (string, error) {
	s.calls = append(s.calls, toneID)
	return s.next.Sample(toneID)
}

func augmentJSON(t *testing.T, entry string) string {
	t.Helper()
	b, err := json.Marshal(AugmentResult{DiaryEntry: entry})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(b)
}

func discoveryJSON(t *testing.T, points ...DiscoveredPoint) string {
	t.Helper()
	b, err := json.Marshal(DiscoveryResult{Points: points})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(b)
}

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	return c
}

func TestSampler_PicksFromPool(t *testing.T) {
	t.Parallel()

	c, err := catalog.New(
		[]catalog.OrientationDefinition{{ID: "o", Definition: "d", Highlight: "h"}},
		[]catalog.ToneDefinition{{ID: "warm", Examples: []string{"a", "b", "c"}}},
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s := NewToneExampleSampler(c)
	s.intN = func(n int) int { return n - 1 }

	got, err := s.Sample("warm")
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if got != "c" {
		t.Fatalf("Sample=%q", got)
	}
	if _, err := s.Sample("sarcastic"); !errors.Is(err, ErrUnknownKey) {
		t.Fatalf("unknown tone err=%v", err)
	}
}

func TestSampler_StaysWithinPool(t *testing.T) {
	t.Parallel()

	c := testCatalog(t)
	pool, _ := c.ToneExamples("calm")
	s := NewToneExampleSampler(c)
	for i := 0; i < 50; i++ {
		got, err := s.Sample("calm")
		if err != nil {
			t.Fatalf("Sample: %v", err)
		}
		found := false
		for _, p := range pool {
			found = found || p == got
		}
		if !found {
			t.Fatalf("Sample=%q not in pool", got)
		}
	}
}

func TestParseDiscovery_Arity(t *testing.T) {
	t.Parallel()

	p := DiscoveredPoint{Quote: "q", Reinterpretation: "r"}
	if set, err := ParseDiscovery(discoveryJSON(t, p)); err != nil || len(set) != 1 {
		t.Fatalf("1 point: len=%d err=%v", len(set), err)
	}
	if set, err := ParseDiscovery(discoveryJSON(t, p, p, p)); err != nil || len(set) != 3 {
		t.Fatalf("3 points: len=%d err=%v", len(set), err)
	}
	if _, err := ParseDiscovery(discoveryJSON(t, p, p, p, p)); !errors.Is(err, ErrMalformedModelOutput) {
		t.Fatalf("4 points err=%v", err)
	}
	if _, err := ParseDiscovery(`{"points":[]}`); !errors.Is(err, ErrMalformedModelOutput) {
		t.Fatalf("0 points err=%v", err)
	}
}

func TestParseDiscovery_RejectsBadShapes(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{
		``,
		`not json at all`,
		`{}`,
		`{"points":"nope"}`,
		`{"points":[{"quote":"q"}]}`,
		`{"points":[{"quote":"  ","reinterpretation":"r"}]}`,
	} {
		if _, err := ParseDiscovery(raw); !errors.Is(err, ErrMalformedModelOutput) {
			t.Fatalf("ParseDiscovery(%q) err=%v", raw, err)
		}
	}
}

func TestParseAugment(t *testing.T) {
	t.Parallel()

	got, err := ParseAugment("```json\n{\"diary_entry\":\"  hello  \"}\n```")
	if err != nil {
		t.Fatalf("ParseAugment: %v", err)
	}
	if got != "hello" {
		t.Fatalf("entry=%q", got)
	}
	for _, raw := range []string{`{}`, `{"diary_entry":""}`, `{"diary_entry":3}`, `plain text`} {
		if _, err := ParseAugment(raw); !errors.Is(err, ErrMalformedModelOutput) {
			t.Fatalf("ParseAugment(%q) err=%v", raw, err)
		}
	}
}

func TestDiscoverySet_StringUsesSeparator(t *testing.T) {
	t.Parallel()

	set := DiscoverySet{{Quote: "a", Reinterpretation: "b"}, {Quote: "c", Reinterpretation: "d"}}
	want := "- Relevant excerpt: a\n- Interpretation: b" + PointSeparator + "- Relevant excerpt: c\n- Interpretation: d"
	if got := set.String(); got != want {
		t.Fatalf("String=%q", got)
	}
}

func TestUnverifiedQuotes(t *testing.T) {
	t.Parallel()

	entry := "Today I   missed the bus.\nThen it rained."
	set := DiscoverySet{
		{Quote: "“Missed the bus”", Reinterpretation: "r"},
		{Quote: "I won the lottery", Reinterpretation: "r"},
		{Quote: "...then it rained", Reinterpretation: "r"},
	}
	got := UnverifiedQuotes(entry, set)
	if len(got) != 1 || got[0] != 1 {
		t.Fatalf("UnverifiedQuotes=%v", got)
	}
}

func TestPerspectiveEngine_DiscoverRequest(t *testing.T) {
	t.Parallel()

	gen := &scriptedGen{replies: map[string]string{
		"discover": discoveryJSON(t, DiscoveredPoint{Quote: "missed the bus", Reinterpretation: "r"}),
	}}
	e := NewPerspectiveEngine(gen, testCatalog(t))

	set, err := e.Discover(context.Background(), "I missed the bus.", "optimistic")
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(set) != 1 {
		t.Fatalf("len=%d", len(set))
	}
	req := gen.calls[0]
	if req.Temperature != PerspectiveTemperature {
		t.Fatalf("Temperature=%v", req.Temperature)
	}
	if req.Schema == nil || req.Schema.Name != "DiscoveryResult" {
		t.Fatalf("Schema=%+v", req.Schema)
	}
	if !strings.Contains(req.Instructions, "optimistic") || !strings.Contains(req.Instructions, "```json") {
		t.Fatalf("Instructions missing orientation or format block:\n%s", req.Instructions)
	}
	if !strings.Contains(req.Input, "I missed the bus.") {
		t.Fatalf("Input=%q", req.Input)
	}
}

func TestPerspectiveEngine_Failures(t *testing.T) {
	t.Parallel()

	cat := testCatalog(t)
	ctx := context.Background()

	e := NewPerspectiveEngine(&scriptedGen{}, cat)
	if _, err := e.Discover(ctx, "   ", "optimistic"); !errors.Is(err, ErrEmptyEntry) {
		t.Fatalf("empty entry err=%v", err)
	}
	if _, err := e.Discover(ctx, "text", "pessimistic"); !errors.Is(err, ErrUnknownKey) {
		t.Fatalf("unknown orientation err=%v", err)
	}

	down := &scriptedGen{errs: map[string]error{"discover": errors.New("connection reset")}}
	if _, err := NewPerspectiveEngine(down, cat).Discover(ctx, "text", "optimistic"); !errors.Is(err, ErrUpstreamModel) {
		t.Fatalf("upstream err=%v", err)
	}

	strict := NewPerspectiveEngine(&scriptedGen{replies: map[string]string{
		"discover": discoveryJSON(t, DiscoveredPoint{Quote: "not in the entry", Reinterpretation: "r"}),
	}}, cat)
	strict.StrictQuotes = true
	if _, err := strict.Discover(ctx, "I missed the bus.", "optimistic"); !errors.Is(err, ErrMalformedModelOutput) {
		t.Fatalf("strict quotes err=%v", err)
	}
}

func TestPerspectiveEngine_IntegrateWithMismatchedOrientationStillRuns(t *testing.T) {
	t.Parallel()

	gen := &scriptedGen{replies: map[string]string{
		"integrate": augmentJSON(t, "I missed the bus. Maybe that is fine."),
	}}
	e := NewPerspectiveEngine(gen, testCatalog(t))
	set := DiscoverySet{{Quote: "missed the bus", Reinterpretation: "found under growth-oriented"}}

	got, err := e.Integrate(context.Background(), "I missed the bus.", set, "accepting")
	if err != nil {
		t.Fatalf("Integrate: %v", err)
	}
	if got != "I missed the bus. Maybe that is fine." {
		t.Fatalf("Integrate=%q", got)
	}
	req := gen.calls[0]
	if !strings.Contains(req.Instructions, "accepting") || !strings.Contains(req.Input, set.String()) {
		t.Fatalf("integrate request does not carry orientation and points: %+v", req)
	}
}

func TestToneEngine_Dispatch(t *testing.T) {
	t.Parallel()

	cat := testCatalog(t)
	ctx := context.Background()
	gen := &scriptedGen{replies: map[string]string{
		"tone":      augmentJSON(t, "warm text"),
		"reconcile": augmentJSON(t, "own voice text"),
	}}

	sampler := &countingSampler{next: NewToneExampleSampler(cat)}
	e := NewToneEngine(gen, sampler)
	got, err := e.Refine(ctx, "candidate", "original", "warm")
	if err != nil {
		t.Fatalf("Refine warm: %v", err)
	}
	if got != "warm text" || len(sampler.calls) != 1 || sampler.calls[0] != "warm" {
		t.Fatalf("warm: got=%q sampler=%v", got, sampler.calls)
	}
	if gen.calls[0].Temperature != ToneTemperature {
		t.Fatalf("Temperature=%v", gen.calls[0].Temperature)
	}

	sampler = &countingSampler{next: NewToneExampleSampler(cat)}
	e = NewToneEngine(gen, sampler)
	for _, id := range []string{ToneOwnVoice, "my_tone"} {
		got, err := e.Refine(ctx, "candidate", "original", id)
		if err != nil {
			t.Fatalf("Refine %s: %v", id, err)
		}
		if got != "own voice text" {
			t.Fatalf("Refine %s=%q, want the reconciled output", id, got)
		}
	}
	if len(sampler.calls) != 0 {
		t.Fatalf("reconcile path sampled: %v", sampler.calls)
	}

	if _, err := e.Refine(ctx, "candidate", "original", "sarcastic"); !errors.Is(err, ErrUnknownKey) {
		t.Fatalf("unknown tone err=%v", err)
	}
}

// echoReconciler returns the expanded text it was given.
func echoReconciler(t *testing.T) llm.Generator {
	return llm.GeneratorFunc(func(_ context.Context, req llm.Request) (string, error) {
		const marker = "Expanded text:\n```\n"
		i := strings.Index(req.Input, marker)
		if i < 0 {
			return "", errors.New("no expanded text")
		}
		body := req.Input[i+len(marker):]
		body = body[:strings.LastIndex(body, "\n```")]
		return augmentJSON(t, body), nil
	})
}

func TestToneEngine_ReconcileNoOpReturnsOriginal(t *testing.T) {
	t.Parallel()

	entry := "Today I missed the bus.\nI was late."
	e := NewToneEngine(echoReconciler(t), &countingSampler{})
	got, err := e.Refine(context.Background(), entry, entry, ToneOwnVoice)
	if err != nil {
		t.Fatalf("Refine: %v", err)
	}
	if got != entry {
		t.Fatalf("Refine=%q, want %q", got, entry)
	}
}

func TestDiaryAnalyzer_DiscoveryFailureStopsBeforeTone(t *testing.T) {
	t.Parallel()

	main := &scriptedGen{replies: map[string]string{"discover": "Sorry, I can't help with that."}}
	tone := &scriptedGen{}
	a := NewDiaryAnalyzer(main, testCatalog(t), WithToneGenerator(tone))

	_, err := a.AugmentDiary(context.Background(), Request{
		Entry: "some text", Orientation: "optimistic", Tone: "calm", Method: MethodPerspective,
	})
	if !errors.Is(err, ErrMalformedModelOutput) {
		t.Fatalf("err=%v", err)
	}
	if stage, ok := FailedStage(err); !ok || stage != StagePerspective {
		t.Fatalf("stage=%q ok=%v", stage, ok)
	}
	if !strings.HasPrefix(err.Error(), "perspective stage failed: ") {
		t.Fatalf("Error=%q", err.Error())
	}
	if n := len(tone.calls); n != 0 {
		t.Fatalf("tone calls=%d", n)
	}
}

func TestDiaryAnalyzer_EndToEnd(t *testing.T) {
	t.Parallel()

	entry := "Today I missed the bus and was late for an important meeting."
	augmented := entry + " Maybe this is a chance to see how I adapt under pressure."
	final := "Today I missed the bus\nand was late for an important meeting.\n\nMaybe this is a chance to see how I adapt under pressure."

	main := &scriptedGen{replies: map[string]string{
		"discover": discoveryJSON(t, DiscoveredPoint{
			Quote:            "missed the bus",
			Reinterpretation: "This is a chance to notice how you adapt under pressure.",
		}),
		"integrate": augmentJSON(t, augmented),
	}}
	tone := &scriptedGen{replies: map[string]string{"tone": augmentJSON(t, final)}}
	a := NewDiaryAnalyzer(main, testCatalog(t), WithToneGenerator(tone), WithStrictQuotes(true))

	tr, err := a.AugmentWithTrace(context.Background(), entry, "growth-oriented", "calm")
	if err != nil {
		t.Fatalf("AugmentWithTrace: %v", err)
	}
	if tr.Final != final {
		t.Fatalf("Final=%q", tr.Final)
	}
	if tr.Augmented != augmented || len(tr.Discovery) != 1 || tr.Orientation != "growth-oriented" || tr.Tone != "calm" {
		t.Fatalf("trace=%+v", tr)
	}
	if got := strings.Join(main.names(), ","); got != "discover,integrate" {
		t.Fatalf("main calls=%s", got)
	}
	if got := strings.Join(tone.names(), ","); got != "tone" {
		t.Fatalf("tone calls=%s", got)
	}
	if !strings.Contains(tone.calls[0].Input, augmented) {
		t.Fatalf("tone input=%q", tone.calls[0].Input)
	}
}

func TestDiaryAnalyzer_ValidatesBeforeGenerating(t *testing.T) {
	t.Parallel()

	gen := &scriptedGen{}
	a := NewDiaryAnalyzer(gen, testCatalog(t))
	ctx := context.Background()

	if _, err := a.Augment(ctx, "text", "pessimistic", "calm"); !errors.Is(err, ErrUnknownKey) {
		t.Fatalf("orientation err=%v", err)
	}
	if _, err := a.Augment(ctx, "text", "optimistic", "sarcastic"); !errors.Is(err, ErrUnknownKey) {
		t.Fatalf("tone err=%v", err)
	}
	if _, err := a.Augment(ctx, " \n", "optimistic", "calm"); !errors.Is(err, ErrEmptyEntry) {
		t.Fatalf("entry err=%v", err)
	}
	if _, err := a.AugmentDiaryV2(ctx, "text", "optimistic", "calm", MethodLegacy); !errors.Is(err, ErrUnsupportedMethod) {
		t.Fatalf("v2 legacy err=%v", err)
	}
	if _, err := a.AugmentDiary(ctx, Request{Entry: "text", Orientation: "optimistic", Tone: "calm", Method: "langchain"}); !errors.Is(err, ErrUnsupportedMethod) {
		t.Fatalf("raw method err=%v", err)
	}
	if n := len(gen.calls); n != 0 {
		t.Fatalf("generator called %d times", n)
	}
}

func TestDiaryAnalyzer_ToneFailureIsTagged(t *testing.T) {
	t.Parallel()

	main := &scriptedGen{replies: map[string]string{
		"discover":  discoveryJSON(t, DiscoveredPoint{Quote: "q", Reinterpretation: "r"}),
		"integrate": augmentJSON(t, "augmented"),
	}}
	tone := &scriptedGen{errs: map[string]error{"reconcile": errors.New("429 Too Many Requests")}}
	a := NewDiaryAnalyzer(main, testCatalog(t), WithToneGenerator(tone))

	_, err := a.Augment(context.Background(), "text", "optimistic", ToneOwnVoice)
	if !errors.Is(err, ErrUpstreamModel) {
		t.Fatalf("err=%v", err)
	}
	if stage, _ := FailedStage(err); stage != StageTone {
		t.Fatalf("stage=%q", stage)
	}
}

func TestDiaryAnalyzer_LegacySingleShot(t *testing.T) {
	t.Parallel()

	gen := &scriptedGen{replies: map[string]string{"legacy": "  Rewritten diary.  "}}
	a := NewDiaryAnalyzer(gen, testCatalog(t))

	got, err := a.AugmentDiary(context.Background(), Request{
		Entry: "text", Orientation: "optimistic", Value: "relationship", Tone: "warm", Method: MethodLegacy,
	})
	if err != nil {
		t.Fatalf("AugmentDiary: %v", err)
	}
	if got != "Rewritten diary." {
		t.Fatalf("got=%q", got)
	}
	req := gen.calls[0]
	if req.Schema != nil || req.Temperature != LegacyTemperature {
		t.Fatalf("legacy request=%+v", req)
	}
	if !strings.Contains(req.Instructions, "relationship") || !strings.Contains(req.Instructions, "'warm' tone") {
		t.Fatalf("Instructions=%s", req.Instructions)
	}

	empty := NewDiaryAnalyzer(&scriptedGen{replies: map[string]string{"legacy": " "}}, testCatalog(t))
	_, err = empty.AugmentDiary(context.Background(), Request{Entry: "text", Orientation: "optimistic", Tone: "mine", Method: MethodLegacy})
	if stage, _ := FailedStage(err); !errors.Is(err, ErrMalformedModelOutput) || stage != StageLegacy {
		t.Fatalf("empty legacy err=%v", err)
	}
}

func TestParseMethod(t *testing.T) {
	t.Parallel()

	cases := map[string]Method{"": MethodPerspective, "Perspective": MethodPerspective, "legacy": MethodLegacy, "openai": MethodLegacy, "langchain": MethodLegacy}
	for in, want := range cases {
		got, err := ParseMethod(in)
		if err != nil || got != want {
			t.Fatalf("ParseMethod(%q)=%q err=%v", in, got, err)
		}
	}
	if _, err := ParseMethod("magic"); !errors.Is(err, ErrUnsupportedMethod) {
		t.Fatalf("err=%v", err)
	}
}
