package tools

import (
	"net/http"
	"time"

	"polymath/pkg/config"
	"polymath/pkg/llm"
)

// NewDefaultRegistry registers the lookup, calculator and reasoning tools,
// in that order, sharing one LLM client.
func NewDefaultRegistry(client llm.LLMClient, wiki config.WikipediaConfig, httpClient *http.Client, httpTimeout time.Duration) *ToolRegistry {
	return NewToolRegistry(
		NewWikipediaTool(wiki, httpClient, httpTimeout),
		NewCalculatorTool(client),
		NewReasoningTool(client),
	)
}
