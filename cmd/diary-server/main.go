package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/theimaginaryfoundation/diary-lens/augment"
	"github.com/theimaginaryfoundation/diary-lens/catalog"
	"github.com/theimaginaryfoundation/diary-lens/llm"
	"github.com/theimaginaryfoundation/diary-lens/runlog"
	"github.com/theimaginaryfoundation/diary-lens/server"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	fs := flag.NewFlagSet("diary-server", flag.ExitOnError)
	configPath := fs.String("config", "", "Optional config file (TOML, YAML or JSON)")
	_ = fs.Parse(os.Args[1:])

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	cat, err := catalog.Load(cfg.OrientationsPath, cfg.TonesPath)
	if err != nil {
		log.Fatalf("Failed to load catalogs: %v", err)
	}
	analyzer, err := newAnalyzer(cfg, cat)
	if err != nil {
		log.Fatalf("Failed to create generator: %v", err)
	}

	store, err := runlog.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: server.NewRouter(analyzer, store, cat, cfg.RequestTimeout),
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("Listening on %s (model %s, tone model %s, %d orientations, %d tones)",
			cfg.Addr, cfg.Model, cfg.ToneModel, len(cat.Orientations()), len(cat.Tones()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-done
	log.Println("Shutting down gracefully...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	if err := store.Close(); err != nil {
		log.Printf("Database close error: %v", err)
	}
	log.Println("Shutdown complete")
}

// newAnalyzer wires one OpenAI generator per model; the tone stage gets its own when tone_model differs.
func newAnalyzer(cfg Config, cat *catalog.Catalog) (*augment.DiaryAnalyzer, error) {
	policy := llm.DefaultRetryPolicy()
	policy.MaxAttempts = cfg.Retries

	gen, err := llm.NewOpenAI(llm.OpenAISettings{APIKey: cfg.APIKey, Model: cfg.Model, BaseURL: cfg.BaseURL})
	if err != nil {
		return nil, err
	}
	opts := []augment.Option{augment.WithStrictQuotes(cfg.StrictQuotes)}
	if cfg.ToneModel != cfg.Model {
		toneGen, err := llm.NewOpenAI(llm.OpenAISettings{APIKey: cfg.APIKey, Model: cfg.ToneModel, BaseURL: cfg.BaseURL})
		if err != nil {
			return nil, err
		}
		opts = append(opts, augment.WithToneGenerator(llm.WithRetry(toneGen, policy)))
	}
	return augment.NewDiaryAnalyzer(llm.WithRetry(gen, policy), cat, opts...), nil
}
