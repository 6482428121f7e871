package gemini

import (
	"context"
	"log/slog"
	"net/http"

	"polymath/pkg/config"
	"polymath/pkg/llm"
)

// GeminiFactory handles creation of Gemini Clients
type GeminiFactory struct {
	HTTPClient *http.Client
}

// Create implements ProviderFactory
func (f *GeminiFactory) Create(cfg llm.ProviderGroupConfig, apiKey string, sys *config.SystemConfig) ([]llm.LLMClient, error) {
	var clients []llm.LLMClient

	// Determine thinking mode from unified options
	useThought := false
	if effort, ok := cfg.Options["thinking_effort"].(string); ok && effort != "" && effort != "off" {
		useThought = true
	}

	for _, model := range cfg.Models {
		client, err := NewGeminiClient(context.Background(), apiKey, model, cfg.BaseURL, useThought, cfg.Options, f.HTTPClient)
		if err != nil {
			slog.Error("Failed to create Gemini client", "model", model, "error", err)
			continue
		}
		if sys != nil {
			client.SetDebug(sys.DebugChunks)
		}
		clients = append(clients, client)
	}
	return clients, nil
}

func init() {
	llm.RegisterProvider("gemini", &GeminiFactory{})
}
