package api

import (
	"context"
)

// Tool is a named, described capability the agent may invoke with a
// free-text input. The description is shown to the LLM verbatim.
type Tool interface {
	Name() string
	Description() string
	// Call runs the tool. Errors are not retried and abort the agent run.
	Call(ctx context.Context, input string) (string, error)
}

// ToolRegistry defines the interface for managing and accessing tools.
// GetAll returns tools in registration order.
type ToolRegistry interface {
	Register(tool Tool)
	Unregister(name string)
	Get(name string) (Tool, bool)
	GetAll() []Tool
	Names() []string
}
