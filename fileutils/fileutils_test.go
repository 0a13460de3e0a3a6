package fileutils

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteJSONFileAtomic(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	p := filepath.Join(dir, "runs", "run.json")

	if err := WriteJSONFileAtomic(p, map[string]string{"final": "hello"}, true); err != nil {
		t.Fatalf("write: %v", err)
	}
	b, err := os.ReadFile(p)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.HasSuffix(string(b), "}\n") {
		t.Fatalf("missing trailing newline: %q", string(b))
	}
	var got map[string]string
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["final"] != "hello" {
		t.Fatalf("final=%q", got["final"])
	}

	// Overwrite leaves no temp files behind.
	if err := WriteJSONFileAtomic(p, map[string]string{"final": "again"}, false); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	entries, err := os.ReadDir(filepath.Dir(p))
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries=%d", len(entries))
	}
}

func TestReadText(t *testing.T) {
	t.Parallel()

	got, err := ReadText("-", strings.NewReader("from stdin\n"))
	if err != nil {
		t.Fatalf("stdin: %v", err)
	}
	if got != "from stdin\n" {
		t.Fatalf("stdin=%q", got)
	}

	p := filepath.Join(t.TempDir(), "entry.txt")
	if err := os.WriteFile(p, []byte("from file"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got, err := ReadText(p, nil); err != nil || got != "from file" {
		t.Fatalf("file=%q err=%v", got, err)
	}
	if !FileExists(p) {
		t.Fatalf("FileExists(%q)=false", p)
	}
	if _, err := ReadText(p+".missing", nil); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestTruncateAndOneLine(t *testing.T) {
	t.Parallel()

	if got := Truncate("  오늘은 버스를 놓쳤다  ", 3); got != "오늘은…" {
		t.Fatalf("Truncate=%q", got)
	}
	if got := Truncate("short", 10); got != "short" {
		t.Fatalf("Truncate=%q", got)
	}
	if got := OneLine("a\r\nb\rc\nd"); got != `a\nb\nc\nd` {
		t.Fatalf("OneLine=%q", got)
	}
}
