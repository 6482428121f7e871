package monitor

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"polymath/pkg/llm"

	"github.com/fatih/color"
)

func TestCustomHandler_Format(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCustomHandler(&buf, slog.HandlerOptions{Level: slog.LevelDebug}))

	ctx := context.WithValue(context.Background(), llm.DebugDirContextKey, "abc123")
	logger.With("session", "s1").InfoContext(ctx, "Executing tool", "tool", "Calculator", "n", 3)

	line := buf.String()
	for _, want := range []string{"[INFO] [abc123] Executing tool", `session="s1"`, `tool="Calculator"`, "n=3"} {
		if !strings.Contains(line, want) {
			t.Errorf("missing %q in %q", want, line)
		}
	}
}

func TestCustomHandler_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	lv := new(slog.LevelVar)
	lv.Set(slog.LevelWarn)
	logger := slog.New(NewCustomHandler(&buf, slog.HandlerOptions{Level: lv}))

	logger.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info must be filtered at warn level: %q", buf.String())
	}
	lv.Set(slog.LevelDebug)
	logger.Debug("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Fatal("level change not honored")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("%q: got %v want %v", in, got, want)
		}
	}
}

func TestCLIMonitor_OnMessage(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })

	var buf bytes.Buffer
	m := NewCLIMonitorWithWriter(&buf)
	m.OnMessage(MonitorMessage{Timestamp: time.Now(), MessageType: TypeUser, ChannelID: "web", Username: "guest", Content: "What is 25 * 13?"})
	m.OnMessage(MonitorMessage{Timestamp: time.Now(), MessageType: TypeAssistant, ChannelID: "web", Username: "guest", Content: "325"})

	out := buf.String()
	if !strings.Contains(out, "[web/guest] What is 25 * 13?") || !strings.Contains(out, "[AI -> web/guest] 325") {
		t.Fatalf("unexpected output %q", out)
	}
}
