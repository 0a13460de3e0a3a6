package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/theimaginaryfoundation/diary-lens/augment"
	"github.com/theimaginaryfoundation/diary-lens/catalog"
	"github.com/theimaginaryfoundation/diary-lens/fileutils"
	"github.com/theimaginaryfoundation/diary-lens/llm"
)

func main() {
	cfg, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}

	cat, err := catalog.Load(cfg.OrientationsPath, cfg.TonesPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	if cfg.List {
		printCatalog(os.Stdout, cat)
		return
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "missing OPENAI_API_KEY (or pass -api-key)")
		os.Exit(2)
	}
	gen, err := llm.NewOpenAI(llm.OpenAISettings{APIKey: apiKey, Model: cfg.Model, BaseURL: cfg.BaseURL})
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.InPath == "-" && term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprintln(os.Stderr, "reading diary from stdin, finish with Ctrl-D")
	}
	stdoutTTY := term.IsTerminal(int(os.Stdout.Fd()))
	width := 0
	if stdoutTTY {
		width, _, _ = term.GetSize(int(os.Stdout.Fd()))
	}
	out := resolveDisplay(cfg.Render, stdoutTTY, width)

	if err := run(ctx, cfg, cat, withRetries(gen, cfg.Retries), out, os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := defaultConfig()
	fs.SetOutput(os.Stderr)

	fs.StringVar(&cfg.Text, "text", "", "Diary entry text")
	fs.StringVar(&cfg.InPath, "in", "", "Path to a diary entry file (\"-\" reads stdin)")
	fs.StringVar(&cfg.Orientation, "orientation", "", "Life orientation id (see -list)")
	fs.StringVar(&cfg.Tone, "tone", "", "Tone id, or \"mine\" to keep your own voice (see -list)")
	fs.StringVar(&cfg.Method, "method", cfg.Method, "Augmentation method: perspective or legacy")
	fs.StringVar(&cfg.Value, "value", "", "Value to emphasize (legacy method only, e.g. relationship)")
	fs.StringVar(&cfg.Model, "model", cfg.Model, "OpenAI model to use")
	fs.StringVar(&cfg.APIKey, "api-key", "", "OpenAI API key (overrides OPENAI_API_KEY env var)")
	fs.StringVar(&cfg.BaseURL, "base-url", "", "Optional OpenAI-compatible API base URL")
	fs.IntVar(&cfg.Retries, "retries", cfg.Retries, "Max attempts per model call for rate-limit/server errors (1 disables retry)")
	fs.StringVar(&cfg.OrientationsPath, "orientations", "", "Optional orientation catalog (JSON or YAML; default: built-in)")
	fs.StringVar(&cfg.TonesPath, "tones", "", "Optional tone example catalog (JSON or YAML; default: built-in)")
	fs.StringVar(&cfg.OutPath, "out", "", "Optional path to write a JSON run record")
	fs.BoolVar(&cfg.Pretty, "pretty", false, "Pretty-print the -out JSON")
	fs.BoolVar(&cfg.Trace, "trace", false, "Print discovered excerpts and reinterpretations to stderr")
	fs.BoolVar(&cfg.StrictQuotes, "strict-quotes", false, "Fail when a discovered excerpt is not found in the entry")
	fs.StringVar(&cfg.Render, "render", cfg.Render, "Final diary rendering: auto (styled on a terminal), plain, or a glamour style (dark, light, notty)")
	fs.BoolVar(&cfg.List, "list", false, "List orientation and tone ids and exit")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg.Orientation = strings.TrimSpace(cfg.Orientation)
	cfg.Tone = strings.TrimSpace(cfg.Tone)
	if cfg.InPath != "" && cfg.InPath != "-" {
		cfg.InPath = filepath.Clean(cfg.InPath)
	}
	if cfg.OutPath != "" {
		cfg.OutPath = filepath.Clean(cfg.OutPath)
	}
	return cfg, nil
}

func withRetries(gen llm.Generator, attempts int) llm.Generator {
	policy := llm.DefaultRetryPolicy()
	policy.MaxAttempts = attempts
	return llm.WithRetry(gen, policy)
}

// RunRecord is the JSON written by -out.
type RunRecord struct {
	CreatedAt        string               `json:"created_at"`
	Method           augment.Method       `json:"method"`
	Orientation      string               `json:"life_orientation"`
	Tone             string               `json:"tone"`
	Value            string               `json:"value,omitempty"`
	Input            string               `json:"input_entry"`
	Discovery        augment.DiscoverySet `json:"discovery,omitempty"`
	UnverifiedQuotes []int                `json:"unverified_quotes,omitempty"`
	Augmented        string               `json:"augmented,omitempty"`
	Final            string               `json:"final"`
}

func run(ctx context.Context, cfg Config, cat *catalog.Catalog, gen llm.Generator, out display, stdin io.Reader, stdout, stderr io.Writer) error {
	entry := cfg.Text
	if cfg.InPath != "" {
		var err error
		if entry, err = fileutils.ReadText(cfg.InPath, stdin); err != nil {
			return err
		}
	}
	method, err := augment.ParseMethod(cfg.Method)
	if err != nil {
		return err
	}

	analyzer := augment.NewDiaryAnalyzer(gen, cat, augment.WithStrictQuotes(cfg.StrictQuotes))
	tr, err := analyzer.Run(ctx, augment.Request{
		Entry:       entry,
		Orientation: cfg.Orientation,
		Value:       cfg.Value,
		Tone:        cfg.Tone,
		Method:      method,
	})
	if err != nil {
		return err
	}

	unverified := augment.UnverifiedQuotes(entry, tr.Discovery)
	if cfg.Trace {
		printTrace(stderr, tr, unverified)
	}
	fmt.Fprintln(stdout, out.format(tr.Final))

	if cfg.OutPath != "" {
		rec := RunRecord{
			CreatedAt:        time.Now().UTC().Format(time.RFC3339),
			Method:           tr.Method,
			Orientation:      tr.Orientation,
			Tone:             tr.Tone,
			Value:            cfg.Value,
			Input:            entry,
			Discovery:        tr.Discovery,
			UnverifiedQuotes: unverified,
			Augmented:        tr.Augmented,
			Final:            tr.Final,
		}
		if err := fileutils.WriteJSONFileAtomic(cfg.OutPath, rec, cfg.Pretty); err != nil {
			return err
		}
		fmt.Fprintf(stderr, "method=%s orientation=%s tone=%s out=%s\n", tr.Method, tr.Orientation, tr.Tone, cfg.OutPath)
	}
	return nil
}

func printTrace(w io.Writer, tr augment.Trace, unverified []int) {
	if len(tr.Discovery) == 0 {
		return
	}
	flagged := make(map[int]bool, len(unverified))
	for _, i := range unverified {
		flagged[i] = true
	}
	fmt.Fprintf(w, "discovery (%s):\n", tr.Orientation)
	for i, p := range tr.Discovery {
		mark := ""
		if flagged[i] {
			mark = " [not found in entry]"
		}
		fmt.Fprintf(w, "  %d. %q%s\n     %s\n", i+1, p.Quote, mark, p.Reinterpretation)
	}
}

func printCatalog(w io.Writer, cat *catalog.Catalog) {
	fmt.Fprintln(w, "life orientations:")
	for _, o := range cat.OrientationDefinitions() {
		fmt.Fprintf(w, "  %-16s %s\n", o.ID, o.Label)
	}
	fmt.Fprintln(w, "tones:")
	for _, t := range cat.ToneDefinitions() {
		fmt.Fprintf(w, "  %-16s %s (%d examples)\n", t.ID, t.Label, len(t.Examples))
	}
	fmt.Fprintf(w, "  %-16s %s\n", augment.ToneOwnVoice, "keep your own voice")
}
