package llm

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestStreamDebugger_NamesProviderAndModel(t *testing.T) {
	root := DebugRoot
	DebugRoot = t.TempDir()
	t.Cleanup(func() { DebugRoot = root })

	ctx := context.WithValue(context.Background(), DebugDirContextKey, "a1b2")
	d := NewStreamDebugger(ctx, "openai", "models/gemma2:9b", true)
	d.WriteString(`{"a":1}`)
	d.Write([]byte(`{"b":2}`))
	path := d.Path()
	d.Close()

	if filepath.Dir(path) != filepath.Join(DebugRoot, "a1b2") {
		t.Fatalf("unexpected dir for %q", path)
	}
	if base := filepath.Base(path); !strings.HasPrefix(base, "openai_models-gemma2-9b_") {
		t.Fatalf("unexpected file name %q", base)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "{\"a\":1}\n{\"b\":2}\n" {
		t.Fatalf("unexpected dump %q", data)
	}
}

func TestStreamDebugger_EmptyDumpRemoved(t *testing.T) {
	root := DebugRoot
	DebugRoot = t.TempDir()
	t.Cleanup(func() { DebugRoot = root })

	d := NewStreamDebugger(context.Background(), "gemini", "", true)
	path := d.Path()
	if !strings.Contains(path, filepath.Join("unscoped", "gemini_unknown_")) {
		t.Fatalf("unexpected path %q", path)
	}
	d.Close()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected empty dump to be removed, stat err=%v", err)
	}
}

func TestStreamDebugger_Disabled(t *testing.T) {
	d := NewStreamDebugger(context.Background(), "ollama", "llama3", false)
	d.WriteString("x")
	d.Close()
	if d.Path() != "" || d.Lines() != 0 {
		t.Fatalf("disabled debugger wrote %q", d.Path())
	}
}
