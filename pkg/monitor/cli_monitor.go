package monitor

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
)

var (
	timestampColor = color.New(color.FgHiBlack)
	assistantColor = color.New(color.FgCyan)
	noticeColor    = color.New(color.FgYellow)
)

// CLIMonitor implements the Monitor interface, providing a direct
// terminal-based visualization of messages flowing through all channels.
type CLIMonitor struct {
	writer io.Writer // The output destination, typically os.Stdout.
	mu     sync.Mutex
}

// NewCLIMonitor creates a new CLI monitor writing to stdout
func NewCLIMonitor() *CLIMonitor {
	return NewCLIMonitorWithWriter(os.Stdout)
}

// NewCLIMonitorWithWriter creates a CLI monitor writing to w
func NewCLIMonitorWithWriter(w io.Writer) *CLIMonitor {
	return &CLIMonitor{writer: w}
}

// Start starts the CLI monitor
func (m *CLIMonitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	fmt.Fprintln(m.writer, "----------------------------------------------------------------")
	fmt.Fprintln(m.writer, "💬 CLI Monitor Active - All channel messages will appear here")
	fmt.Fprintln(m.writer, "----------------------------------------------------------------")
	return nil
}

// Stop stops the CLI monitor
func (m *CLIMonitor) Stop() error {
	return nil
}

// OnMessage receives and displays a monitoring message
func (m *CLIMonitor) OnMessage(msg MonitorMessage) {
	timestamp := msg.Timestamp.Format("2006-01-02 15:04:05")

	var displayMsg string
	switch msg.MessageType {
	case TypeAssistant:
		displayMsg = assistantColor.Sprintf("[AI -> %s/%s]", msg.ChannelID, msg.Username) + " " + msg.Content
	case TypeNotice:
		displayMsg = noticeColor.Sprintf("[notice -> %s/%s]", msg.ChannelID, msg.Username) + " " + msg.Content
	default:
		displayMsg = fmt.Sprintf("[%s/%s] %s", msg.ChannelID, msg.Username, msg.Content)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	fmt.Fprintf(m.writer, "%s %s\n", timestampColor.Sprintf("[%s]", timestamp), displayMsg)
}
