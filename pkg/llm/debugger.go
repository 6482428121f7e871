package llm

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"
)

// DebugRoot is where raw provider chunks are dumped when debug_chunks is on.
var DebugRoot = filepath.Join("debug", "chunks")

// dumpSeq orders dumps written within the same millisecond, e.g. the
// agent's LLM call and the calculator's nested one.
var dumpSeq atomic.Uint64

// StreamDebugger dumps the raw chunks of one provider stream, one per line.
// A disabled debugger accepts writes and does nothing.
//
// Files land in DebugRoot/<debug id>/<provider>_<model>_<time>_<seq>.log, so
// one question's agent steps and tool calls sit side by side.
type StreamDebugger struct {
	file  *os.File
	path  string
	lines int
}

// NewStreamDebugger opens the dump file for a stream from provider/model.
func NewStreamDebugger(ctx context.Context, provider, model string, enabled bool) *StreamDebugger {
	if !enabled {
		return &StreamDebugger{}
	}

	id := DebugIDFromContext(ctx)
	if id == "" {
		id = "unscoped"
	}
	dir := filepath.Join(DebugRoot, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		slog.ErrorContext(ctx, "Failed to create chunk dump directory", "dir", dir, "error", err)
		return &StreamDebugger{}
	}

	name := fmt.Sprintf("%s_%s_%s_%03d.log",
		sanitizeSegment(provider),
		sanitizeSegment(model),
		time.Now().Format("150405.000"),
		dumpSeq.Add(1)%1000,
	)
	path := filepath.Join(dir, name)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to open chunk dump", "file", path, "error", err)
		return &StreamDebugger{}
	}

	slog.DebugContext(ctx, "Dumping raw chunks", "provider", provider, "model", model, "file", path)
	return &StreamDebugger{file: f, path: path}
}

// sanitizeSegment keeps model names like "llama3.1:8b" or
// "models/gemini-2.0-flash" usable as one file name segment.
func sanitizeSegment(s string) string {
	if s == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', ' ', '*', '?', '"', '<', '>', '|':
			return '-'
		}
		return r
	}, s)
}

// Path returns the dump file, or "" when dumping is off.
func (d *StreamDebugger) Path() string { return d.path }

// Lines returns how many chunks were written.
func (d *StreamDebugger) Lines() int { return d.lines }

func (d *StreamDebugger) Write(data []byte) {
	d.WriteString(string(data))
}

func (d *StreamDebugger) WriteString(s string) {
	if d.file == nil {
		return
	}
	if _, err := d.file.WriteString(s + "\n"); err != nil {
		slog.Warn("Failed to write chunk dump", "file", d.path, "error", err)
		return
	}
	d.lines++
}

// Close closes the dump and removes it when the stream produced nothing.
func (d *StreamDebugger) Close() {
	if d.file == nil {
		return
	}
	d.file.Close()
	d.file = nil
	if d.lines == 0 {
		os.Remove(d.path)
	}
}
