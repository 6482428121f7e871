package monitor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"polymath/pkg/llm"
)

// CustomHandler implements slog.Handler to provide [TIME] [LEVEL] format
type CustomHandler struct {
	w     io.Writer
	mu    *sync.Mutex
	opts  slog.HandlerOptions
	attrs []slog.Attr
}

func NewCustomHandler(w io.Writer, opts slog.HandlerOptions) *CustomHandler {
	if opts.Level == nil {
		opts.Level = slog.LevelInfo
	}
	return &CustomHandler{
		w:    w,
		mu:   &sync.Mutex{},
		opts: opts,
	}
}

func (h *CustomHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.opts.Level.Level()
}

func (h *CustomHandler) Handle(ctx context.Context, r slog.Record) error {
	buf := bytes.NewBuffer(nil)

	// Format: [2006-01-02 15:04:05] [LEVEL] [DEBUG_ID] Message
	// Or:    [2006-01-02 15:04:05] [LEVEL] Message (if no debugID)
	fmt.Fprintf(buf, "[%s] [%s]",
		r.Time.Format("2006-01-02 15:04:05"),
		r.Level,
	)

	if debugID := llm.DebugIDFromContext(ctx); debugID != "" {
		fmt.Fprintf(buf, " [%s]", debugID)
	}

	fmt.Fprintf(buf, " %s", r.Message)

	// 1. Stored attributes (from WithAttrs)
	for _, a := range h.attrs {
		h.appendAttr(buf, a)
	}

	// 2. Record attributes
	r.Attrs(func(a slog.Attr) bool {
		h.appendAttr(buf, a)
		return true
	})

	buf.WriteString("\n")

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf.Bytes())
	return err
}

func (h *CustomHandler) appendAttr(buf *bytes.Buffer, a slog.Attr) {
	buf.WriteString(" ")
	buf.WriteString(a.Key)
	buf.WriteString("=")

	val := a.Value.Resolve()
	switch val.Kind() {
	case slog.KindString:
		fmt.Fprintf(buf, "%q", val.String())
	case slog.KindTime:
		buf.WriteString(val.Time().Format(time.RFC3339))
	default:
		fmt.Fprintf(buf, "%v", val.Any())
	}
}

func (h *CustomHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &CustomHandler{
		w:     h.w,
		mu:    h.mu,
		opts:  h.opts,
		attrs: merged,
	}
}

func (h *CustomHandler) WithGroup(name string) slog.Handler {
	// Grouping not supported in this simple implementation
	return h
}

// logLevel is shared by every handler SetupSlog installs, so a reload only
// has to move the level.
var logLevel = new(slog.LevelVar)

// ParseLevel maps a system.json log_level value to a slog level.
func ParseLevel(levelStr string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetupSlog initializes the global slog logger with the CustomHandler.
func SetupSlog(levelStr string) {
	logLevel.Set(ParseLevel(levelStr))

	handler := NewCustomHandler(os.Stderr, slog.HandlerOptions{
		Level: logLevel,
	})

	slog.SetDefault(slog.New(handler))
}

// SetLogLevel changes the level of the logger installed by SetupSlog.
func SetLogLevel(levelStr string) {
	level := ParseLevel(levelStr)
	if logLevel.Level() != level {
		logLevel.Set(level)
		slog.Info("Log level changed", "level", level)
	}
}

// Startup prepares logging and prints the banner.
func Startup(levelStr string) {
	SetupSlog(levelStr)
	PrintBanner()
}

// PrintBanner prints the startup banner
func PrintBanner() {
	banner := `
 ____       _                       _   _     
|  _ \ ___ | |_   _ _ __ ___   __ _| |_| |__  
| |_) / _ \| | | | | '_ ` + "`" + ` _ \ / _` + "`" + ` | __| '_ \ 
|  __/ (_) | | |_| | | | | | | (_| | |_| | | |
|_|   \___/|_|\__, |_| |_| |_|\__,_|\__|_| |_|
              |___/                           
  math solver & data search assistant
`
	fmt.Println(banner)
}
