package llm

// StopReason constants define normalized reasons for LLM generation termination.
// All providers must normalize their native stop reasons to these values.
const (
	StopReasonStop   = "stop"   // Normal completion (including a matched stop sequence)
	StopReasonLength = "length" // Output truncated due to token limit
)

// ContentBlock Type constants define the supported content block formats
// used throughout the message pipeline.
const (
	BlockTypeText     = "text"     // Plain text content
	BlockTypeThinking = "thinking" // Intermediate agent reasoning shown as "thoughts"
	BlockTypeError    = "error"    // Error message displayed to user
)

// Message roles understood by every provider.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type contextKey string

// DebugDirContextKey carries the per-interaction debug ID. Providers nest their
// raw chunk dumps under it and the log handler prints it on every line.
const DebugDirContextKey contextKey = "llm_debug_dir"
