package gateway

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"polymath/pkg/api"
	"polymath/pkg/chat"
	"polymath/pkg/llm"
	"polymath/pkg/monitor"
)

const redactedCredential = "[credential redacted]"

// GatewayManager owns every registered Channel and routes messages between
// them and the message handler.
type GatewayManager struct {
	channels      map[string]Channel
	msgHandler    api.MessageHandler
	monitor       monitor.Monitor
	channelBuffer int // buffer of the wrapped stream channel
	mu            sync.RWMutex
}

// NewGatewayManager creates an empty GatewayManager.
func NewGatewayManager() *GatewayManager {
	return &GatewayManager{
		channels:      make(map[string]Channel),
		channelBuffer: 100,
	}
}

// SetChannelBuffer sets the buffer size of internally created stream channels.
func (g *GatewayManager) SetChannelBuffer(size int) {
	if size > 0 {
		g.channelBuffer = size
	}
}

// SetMessageHandler sets the function every incoming message is routed to.
func (g *GatewayManager) SetMessageHandler(handler api.MessageHandler) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.msgHandler = handler
}

// SetMonitor sets the traffic monitor.
func (g *GatewayManager) SetMonitor(m monitor.Monitor) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.monitor = m
}

// Register adds a Channel, replacing any channel with the same ID.
func (g *GatewayManager) Register(c Channel) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.channels[c.ID()] = c
}

// GetChannel returns the channel registered under id.
func (g *GatewayManager) GetChannel(id string) (Channel, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	c, ok := g.channels[id]
	return c, ok
}

// ChannelIDs lists the registered channel IDs.
func (g *GatewayManager) ChannelIDs() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ids := make([]string, 0, len(g.channels))
	for id := range g.channels {
		ids = append(ids, id)
	}
	return ids
}

// StartAll starts every registered Channel, passing the manager as its context.
func (g *GatewayManager) StartAll() error {
	g.mu.RLock()
	channels := make([]Channel, 0, len(g.channels))
	for _, c := range g.channels {
		channels = append(channels, c)
	}
	g.mu.RUnlock()

	for _, c := range channels {
		slog.Info("Starting channel", "channel", c.ID())
		if err := c.Start(g); err != nil {
			return fmt.Errorf("failed to start channel %s: %w", c.ID(), err)
		}
	}
	return nil
}

// StopAll stops every registered Channel.
func (g *GatewayManager) StopAll() {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for id, c := range g.channels {
		slog.Info("Stopping channel", "channel", id)
		if err := c.Stop(); err != nil {
			slog.Error("Error stopping channel", "channel", id, "error", err)
		}
	}
}

func (g *GatewayManager) observe(session SessionContext, msgType, content string) {
	g.mu.RLock()
	m := g.monitor
	g.mu.RUnlock()
	if m == nil {
		return
	}
	m.OnMessage(monitor.MonitorMessage{
		Timestamp:   time.Now(),
		MessageType: msgType,
		ChannelID:   session.ChannelID,
		Username:    session.Username,
		Content:     content,
	})
}

// SendReply delivers a notice that is not part of the transcript.
func (g *GatewayManager) SendReply(session SessionContext, content string) error {
	slog.Debug("Notice", "channel", session.ChannelID, "session", session.SessionID, "content", content)
	g.observe(session, monitor.TypeNotice, content)

	c, ok := g.GetChannel(session.ChannelID)
	if !ok {
		return fmt.Errorf("channel %s not found", session.ChannelID)
	}
	return c.Send(session, content)
}

// SendRecord delivers one transcript record.
func (g *GatewayManager) SendRecord(session SessionContext, record chat.Record) error {
	if record.Role == chat.RoleAssistant {
		slog.Info("Reply", "channel", session.ChannelID, "session", session.SessionID, "length", len(record.Content))
		g.observe(session, monitor.TypeAssistant, record.Content)
	}

	c, ok := g.GetChannel(session.ChannelID)
	if !ok {
		return fmt.Errorf("channel %s not found", session.ChannelID)
	}
	return c.SendRecord(session, record)
}

// SendHistory delivers the whole transcript of a session.
func (g *GatewayManager) SendHistory(session SessionContext, records []chat.Record) error {
	c, ok := g.GetChannel(session.ChannelID)
	if !ok {
		return fmt.Errorf("channel %s not found", session.ChannelID)
	}
	return c.SendHistory(session, records)
}

// SendSignal forwards a control signal to channels that support one and
// silently ignores the rest.
func (g *GatewayManager) SendSignal(session SessionContext, signal string) error {
	c, ok := g.GetChannel(session.ChannelID)
	if !ok {
		return fmt.Errorf("channel %s not found", session.ChannelID)
	}

	if sc, ok := c.(SignalingChannel); ok {
		slog.Debug("Signal", "channel", session.ChannelID, "session", session.SessionID, "signal", signal)
		return sc.SendSignal(session, signal)
	}
	return nil
}

// StreamReply hands a stream of intermediate blocks to the channel. The
// blocks are passed through a wrapper so the full text can be logged once
// the stream ends.
func (g *GatewayManager) StreamReply(session SessionContext, blocks <-chan llm.ContentBlock) error {
	c, ok := g.GetChannel(session.ChannelID)
	if !ok {
		// Drain so the producer never blocks on an unread channel.
		go func() {
			for range blocks {
			}
		}()
		return fmt.Errorf("channel %s not found", session.ChannelID)
	}

	wrappedBlocks := make(chan llm.ContentBlock, g.channelBuffer)
	go func() {
		defer close(wrappedBlocks)
		var full strings.Builder
		for block := range blocks {
			if block.Type == llm.BlockTypeThinking || block.Type == llm.BlockTypeText {
				full.WriteString(block.Text)
			}
			wrappedBlocks <- block
		}
		if full.Len() > 0 {
			slog.Debug("Thoughts streamed", "channel", session.ChannelID, "session", session.SessionID, "length", full.Len())
		}
	}()

	return c.Stream(session, wrappedBlocks)
}

// OnMessage implements ChannelContext: it receives a message from a Channel
// and forwards it to the handler. Credentials never reach the log or the
// monitor.
func (g *GatewayManager) OnMessage(channelID string, msg *UnifiedMessage) {
	content := msg.Content
	if msg.IsKind(api.KindCredential) {
		content = redactedCredential
	}

	slog.Info("Received",
		"channel", channelID,
		"session", msg.Session.SessionID,
		"user", msg.Session.Username,
		"kind", msg.Kind,
		"content", content)

	if msg.IsKind(api.KindQuestion) || msg.IsKind(api.KindCredential) {
		g.observe(msg.Session, monitor.TypeUser, content)
	}

	g.mu.RLock()
	handler := g.msgHandler
	g.mu.RUnlock()

	if handler != nil {
		handler(msg)
	} else {
		slog.Warn("No message handler set")
	}
}
