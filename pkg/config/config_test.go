package config_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"polymath/pkg/config"
)

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := config.LoadConfig(filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if cfg.Greeting == "" {
		t.Fatal("expected default greeting")
	}
	if string(cfg.LLM) != config.DefaultLLM {
		t.Fatalf("unexpected default llm: %s", cfg.LLM)
	}
	if _, ok := cfg.Channels["web"]; !ok {
		t.Fatal("expected default web channel")
	}
	if cfg.Wikipedia.BaseURL != "https://en.wikipedia.org/w/api.php" {
		t.Fatalf("unexpected wikipedia url: %q", cfg.Wikipedia.BaseURL)
	}
	if cfg.Agent.MaxIterations != 15 || !cfg.Agent.ParsingErrorsHandled() {
		t.Fatalf("unexpected agent defaults: %+v", cfg.Agent)
	}
}

func TestLoadConfig_PartialFileKeepsOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{"greeting":"hi","wikipedia":{"lang":"de","top_k_results":1},"agent":{"handle_parsing_errors":false}}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.LoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if cfg.Greeting != "hi" {
		t.Errorf("greeting: got %q", cfg.Greeting)
	}
	if cfg.Wikipedia.BaseURL != "https://de.wikipedia.org/w/api.php" || cfg.Wikipedia.TopKResults != 1 {
		t.Errorf("wikipedia: got %+v", cfg.Wikipedia)
	}
	if cfg.Agent.ParsingErrorsHandled() {
		t.Error("expected parsing error handling to be disabled")
	}
	if cfg.Title == "" || cfg.CredentialLabel != "Groq API Key" {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}

func TestLoadConfig_MalformedFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := config.LoadConfig(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadSystemConfig(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name     string
		body     string
		wantLog  string
		wantShow bool
		wantMax  int
	}{
		{name: "missing", body: "", wantLog: "info", wantShow: true, wantMax: 3},
		{name: "partial", body: `{"log_level":"debug","max_retries":1}`, wantLog: "debug", wantShow: true, wantMax: 1},
		{name: "hide thoughts", body: `{"show_thoughts":false}`, wantLog: "info", wantShow: false, wantMax: 3},
		{name: "corrupt", body: `{"log_level":`, wantLog: "info", wantShow: true, wantMax: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".json")
			if tt.body != "" {
				if err := os.WriteFile(path, []byte(tt.body), 0o644); err != nil {
					t.Fatal(err)
				}
			}
			sys := config.LoadSystemConfig(path)
			if sys.LogLevel != tt.wantLog || sys.ShowThoughts != tt.wantShow || sys.MaxRetries != tt.wantMax {
				t.Fatalf("got %+v", sys)
			}
		})
	}
}

func TestWatchConfig_EmitsChangedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "system.json")
	if err := os.WriteFile(path, []byte(`{}`), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := config.WatchConfig(ctx, path)

	// Give the watcher a moment to register before writing.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte(`{"log_level":"debug"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-ch:
		if got != path {
			t.Fatalf("got %q want %q", got, path)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload event")
	}

	cancel()
	for range ch {
	}
}

func TestLoadConfig_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
greeting: "hello from yaml"
llm:
  - type: openai
    base_url: https://api.groq.com/openai/v1
    models: [gemma2-9b-it]
    options:
      temperature: 0
channels:
  web:
    port: 9000
agent:
  max_iterations: 5
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.LoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if cfg.Greeting != "hello from yaml" || cfg.Agent.MaxIterations != 5 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if !strings.Contains(string(cfg.LLM), `"gemma2-9b-it"`) {
		t.Fatalf("llm section not kept as JSON: %s", cfg.LLM)
	}
	if !strings.Contains(string(cfg.Channels["web"]), "9000") {
		t.Fatalf("web channel: %s", cfg.Channels["web"])
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	cfg, sys, err := config.Load(filepath.Join(dir, config.DefaultConfigFile), filepath.Join(dir, config.DefaultSystemFile))
	if err != nil || cfg == nil || sys == nil {
		t.Fatalf("Load: %v", err)
	}
}
