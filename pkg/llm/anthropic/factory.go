package anthropic

import (
	"log/slog"
	"net/http"
	"time"

	"polymath/pkg/config"
	"polymath/pkg/llm"
)

// AnthropicFactory handles creation of Anthropic Clients
type AnthropicFactory struct {
	HTTPClient *http.Client
}

// Create implements ProviderFactory
func (f *AnthropicFactory) Create(cfg llm.ProviderGroupConfig, apiKey string, sys *config.SystemConfig) ([]llm.LLMClient, error) {
	var clients []llm.LLMClient

	httpClient := f.HTTPClient
	if httpClient == nil && sys != nil && sys.LLMTimeoutMs > 0 {
		httpClient = &http.Client{Timeout: time.Duration(sys.LLMTimeoutMs) * time.Millisecond}
	}

	for _, model := range cfg.Models {
		client, err := NewClient(apiKey, model, cfg.BaseURL, cfg.Options, httpClient)
		if err != nil {
			slog.Error("Failed to create Anthropic client", "model", model, "error", err)
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
	llm.RegisterProvider("anthropic", &AnthropicFactory{})
}
