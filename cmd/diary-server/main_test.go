package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/theimaginaryfoundation/diary-lens/catalog"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Addr != ":8080" || cfg.Retries != 3 {
		t.Fatalf("Addr=%q Retries=%d", cfg.Addr, cfg.Retries)
	}
	if cfg.RequestTimeout != 2*time.Minute || cfg.ShutdownTimeout != 10*time.Second {
		t.Fatalf("RequestTimeout=%v ShutdownTimeout=%v", cfg.RequestTimeout, cfg.ShutdownTimeout)
	}
	if cfg.ToneModel != cfg.Model {
		t.Fatalf("ToneModel=%q Model=%q", cfg.ToneModel, cfg.Model)
	}
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	p := filepath.Join(t.TempDir(), "diary-server.toml")
	body := "addr = \":9000\"\nmodel = \"gpt-4o\"\ntone_model = \"gpt-4o-mini\"\nrequest_timeout = \"45s\"\nstrict_quotes = true\n"
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("DIARY_ADDR", ":9100")
	t.Setenv("DIARY_RETRIES", "1")

	cfg, err := LoadConfig(p)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Addr != ":9100" {
		t.Fatalf("Addr=%q, want env override", cfg.Addr)
	}
	if cfg.Model != "gpt-4o" || cfg.ToneModel != "gpt-4o-mini" {
		t.Fatalf("Model=%q ToneModel=%q", cfg.Model, cfg.ToneModel)
	}
	if cfg.Retries != 1 || !cfg.StrictQuotes || cfg.RequestTimeout != 45*time.Second {
		t.Fatalf("Retries=%d StrictQuotes=%v RequestTimeout=%v", cfg.Retries, cfg.StrictQuotes, cfg.RequestTimeout)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error")
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	cfg := Config{Addr: ":8080", DBPath: "d.db", Model: "m"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	cfg.Retries = -1
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected retries error")
	}
}

func TestNewAnalyzer(t *testing.T) {
	t.Parallel()

	cat, err := catalog.Default()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	cfg := Config{APIKey: "k", Model: "gpt-4o", ToneModel: "gpt-4o-mini", Retries: 2}
	if _, err := newAnalyzer(cfg, cat); err != nil {
		t.Fatalf("newAnalyzer: %v", err)
	}
	cfg.APIKey = ""
	if _, err := newAnalyzer(cfg, cat); err == nil {
		t.Fatalf("expected error for missing api key")
	}
}
