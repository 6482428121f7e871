package api

import (
	"polymath/pkg/chat"
	"polymath/pkg/llm"
)

// Channel defines the standardized lifecycle interface for communication platforms.
type Channel interface {
	ID() string
	Start(ctx ChannelContext) error
	Stop() error
	// Send delivers an informational notice (not part of the transcript).
	Send(session SessionContext, message string) error
	// SendRecord renders one transcript record.
	SendRecord(session SessionContext, record chat.Record) error
	// SendHistory renders the whole transcript, replacing what is shown.
	SendHistory(session SessionContext, records []chat.Record) error
	// Stream renders intermediate blocks (agent thoughts) until the channel closes.
	Stream(session SessionContext, blocks <-chan llm.ContentBlock) error
}

// SignalingChannel is an optional extension of the Channel interface for
// platforms that support control signals (e.g., typing indicators, thinking UI).
type SignalingChannel interface {
	Channel
	// SendSignal transmits a control signal ("thinking", "idle") to the
	// target session to change UI state.
	SendSignal(session SessionContext, signal string) error
}

// Signals understood by channels.
const (
	SignalThinking = "thinking"
	SignalIdle     = "idle"
)

// ChannelContext provides the interface for a Channel implementation to
// communicate back with the Gateway core.
type ChannelContext interface {
	MessageResponder
	OnMessage(channelID string, msg *UnifiedMessage)
}

// MessageResponder defines the capabilities for sending responses back to a channel.
type MessageResponder interface {
	SendReply(session SessionContext, content string) error
	SendRecord(session SessionContext, record chat.Record) error
	SendHistory(session SessionContext, records []chat.Record) error
	StreamReply(session SessionContext, blocks <-chan llm.ContentBlock) error
	SendSignal(session SessionContext, signal string) error
}

// Message kinds carried by UnifiedMessage.Kind.
const (
	KindQuestion   = "question"
	KindCredential = "credential"
	KindCancel     = "cancel"
	KindReset      = "reset"
	KindHistory    = "history"
)

// UnifiedMessage defines the standardized internal data structure for all
// incoming messages within the system.
type UnifiedMessage struct {
	Session SessionContext // Contextual information about the source (User, Chat)
	Kind    string         // One of the Kind constants; empty means KindQuestion
	Content string         // Question text or, for KindCredential, the API key
	Raw     any            // Optional storage for the original platform-specific payload object
	DebugID string         // Unique identifier for grouping the logs of this request
}

// IsKind reports whether the message is of the given kind, treating an
// empty kind as a question.
func (m *UnifiedMessage) IsKind(kind string) bool {
	k := m.Kind
	if k == "" {
		k = KindQuestion
	}
	return k == kind
}

// SessionContext encapsulates identity and routing information for a specific
// conversation unit on a specific communication channel.
type SessionContext struct {
	ChannelID string // Identifier of the channel that originated the session (e.g., "web")
	SessionID string // Key into the chat session store
	UserID    string // Platform-specific unique identifier for the user
	ChatID    string // Platform-specific identifier for the chat or group (may match UserID for DMs)
	Username  string // Display name or nickname of the user as provided by the platform
}

// MessageHandler defines the function signature for processing incoming messages.
// It implements the MessageProcessor interface.
type MessageHandler func(*UnifiedMessage)

// OnMessage allows MessageHandler to satisfy the MessageProcessor interface.
func (h MessageHandler) OnMessage(msg *UnifiedMessage) {
	h(msg)
}

// MessageProcessor defines the interface for components that can process incoming messages.
type MessageProcessor interface {
	OnMessage(msg *UnifiedMessage)
}

// ResponderAware defines an interface for components that require a MessageResponder to be injected.
type ResponderAware interface {
	SetResponder(responder MessageResponder)
}

// GatewayHandler is a composite interface for components that handle incoming
// messages AND are aware of the responder (e.g., ChatHandler).
type GatewayHandler interface {
	MessageProcessor
	ResponderAware
}
