package api

import (
	"context"
)

// AgentAction is one tool invocation decided by the agent.
type AgentAction struct {
	Tool  string `json:"tool"`
	Input string `json:"tool_input"`
	Log   string `json:"log"` // Raw LLM text that produced the action
}

// AgentStep pairs an action with the tool's observation.
type AgentStep struct {
	Action      AgentAction `json:"action"`
	Observation string      `json:"observation"`
}

// AgentResult is the outcome of one run: the final text plus the trace of
// intermediate steps.
type AgentResult struct {
	Output string      `json:"output"`
	Steps  []AgentStep `json:"intermediate_steps"`
}

// AgentCallback receives the agent's intermediate progress.
type AgentCallback interface {
	OnAgentAction(ctx context.Context, action AgentAction)
	OnToolEnd(ctx context.Context, step AgentStep)
	OnAgentFinish(ctx context.Context, output string, log string)
}

// Agent answers a question using its tools.
type Agent interface {
	Run(ctx context.Context, question string, cb AgentCallback) (*AgentResult, error)
}
