package tools

import (
	"context"
	"strings"

	"polymath/pkg/llm"
)

const (
	// ReasoningToolName is the name the agent uses to call the reasoning tool.
	ReasoningToolName = "Reasoning Tool"

	reasoningDescription = "A tool to solve mathematical problems with detailed steps."
)

const reasoningTemplate = `
You are an agent tasked with solving users' mathematical questions. Logically arrive at the solution and provide a detailed explanation, displayed point-wise.
Question: {question}
Answer: 
`

// ReasoningTool sends the question through a fixed explanation template and
// returns the LLM's answer as is.
type ReasoningTool struct {
	client llm.LLMClient
}

func NewReasoningTool(client llm.LLMClient) *ReasoningTool {
	return &ReasoningTool{client: client}
}

func (r *ReasoningTool) Name() string        { return ReasoningToolName }
func (r *ReasoningTool) Description() string { return reasoningDescription }

func (r *ReasoningTool) Call(ctx context.Context, question string) (string, error) {
	prompt := strings.Replace(reasoningTemplate, "{question}", question, 1)
	return llm.Complete(ctx, r.client, []llm.Message{llm.NewUserMessage(prompt)}, nil)
}
