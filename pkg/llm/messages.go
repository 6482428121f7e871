package llm

import (
	"context"
	"strings"
	"time"
)

//----------------------------------------------------------------
// Message
//----------------------------------------------------------------

// Message is one provider-neutral chat message.
type Message struct {
	ID        string         `json:"id,omitempty"`
	Role      string         `json:"role"`    // "user", "assistant", "system"
	Content   []ContentBlock `json:"content"` // Ordered content blocks
	Timestamp int64          `json:"timestamp,omitempty"`
}

// ContentBlock is a single piece of message content.
type ContentBlock struct {
	Type string `json:"type"` // "text", "thinking", "error"
	Text string `json:"text,omitempty"`
}

//----------------------------------------------------------------
// StreamChunk
//----------------------------------------------------------------

// StreamChunk is one incremental piece of a streamed LLM response.
type StreamChunk struct {
	// Incremental content, only what is new since the previous chunk
	ContentBlocks []ContentBlock `json:"content_blocks,omitempty"`

	// Marks the last chunk of the stream
	IsFinal bool `json:"is_final"`

	// Normalized stop reason, set on the final chunk
	FinishReason string `json:"finish_reason,omitempty"`

	// Usage statistics, guaranteed on the final chunk when the provider reports them
	Usage *LLMUsage `json:"usage,omitempty"`

	// Error is a user-displayable provider error
	Error string `json:"error,omitempty"`

	// RawError is the underlying error, used for transient classification
	RawError error `json:"-"`
}

// NewTextMessage builds a single-block text message.
func NewTextMessage(role, text string) Message {
	return Message{
		Role:      role,
		Content:   []ContentBlock{NewTextBlock(text)},
		Timestamp: time.Now().Unix(),
	}
}

// NewSystemMessage builds a system message.
func NewSystemMessage(text string) Message {
	return NewTextMessage(RoleSystem, text)
}

// NewUserMessage builds a user message.
func NewUserMessage(text string) Message {
	return NewTextMessage(RoleUser, text)
}

// NewAssistantMessage builds an assistant message.
func NewAssistantMessage(text string) Message {
	return NewTextMessage(RoleAssistant, text)
}

// AddContentBlock appends a block to the message.
func (m *Message) AddContentBlock(block ContentBlock) {
	m.Content = append(m.Content, block)
}

// GetTextContent concatenates all text blocks, skipping thinking and errors.
func (m *Message) GetTextContent() string {
	var sb strings.Builder
	for _, block := range m.Content {
		if block.Type == BlockTypeText {
			sb.WriteString(block.Text)
		}
	}
	return sb.String()
}

// SplitSystem separates the system prompt from the conversation, for
// providers that take it as a dedicated parameter.
func SplitSystem(messages []Message) (system string, rest []Message) {
	var parts []string
	for _, m := range messages {
		if m.Role == RoleSystem {
			if text := m.GetTextContent(); text != "" {
				parts = append(parts, text)
			}
			continue
		}
		rest = append(rest, m)
	}
	return strings.Join(parts, "\n\n"), rest
}

// NewTextBlock builds a text block.
func NewTextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockTypeText, Text: text}
}

// NewThinkingBlock builds a thinking block.
func NewThinkingBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockTypeThinking, Text: text}
}

// NewErrorBlock builds an error block.
func NewErrorBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockTypeError, Text: text}
}

// NewTextChunk builds a text chunk.
func NewTextChunk(text string) StreamChunk {
	return StreamChunk{ContentBlocks: []ContentBlock{NewTextBlock(text)}}
}

// NewThinkingChunk builds a thinking chunk.
func NewThinkingChunk(text string) StreamChunk {
	return StreamChunk{ContentBlocks: []ContentBlock{NewThinkingBlock(text)}}
}

// NewFinalChunk builds the closing chunk carrying stop reason and usage.
func NewFinalChunk(reason string, usage *LLMUsage) StreamChunk {
	return StreamChunk{
		IsFinal:      true,
		FinishReason: reason,
		Usage:        usage,
	}
}

// NewErrorChunk builds an error chunk. A final error chunk ends the stream.
func NewErrorChunk(message string, raw error, final bool) StreamChunk {
	return StreamChunk{
		Error:    message,
		RawError: raw,
		IsFinal:  final,
	}
}

// DebugIDFromContext returns the debug ID stored under DebugDirContextKey.
func DebugIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(DebugDirContextKey).(string)
	return id
}
