package openailm

import (
	"log/slog"
	"net/http"
	"time"

	"polymath/pkg/config"
	"polymath/pkg/llm"
)

// OpenAIFactory handles creation of OpenAI Clients
type OpenAIFactory struct {
	// HTTPClient overrides the transport of every created client.
	HTTPClient *http.Client
}

// Create implements ProviderFactory
func (f *OpenAIFactory) Create(cfg llm.ProviderGroupConfig, apiKey string, sys *config.SystemConfig) ([]llm.LLMClient, error) {
	var clients []llm.LLMClient

	httpClient := f.HTTPClient
	if httpClient == nil && sys != nil && sys.LLMTimeoutMs > 0 {
		httpClient = &http.Client{Timeout: time.Duration(sys.LLMTimeoutMs) * time.Millisecond}
	}

	for _, model := range cfg.Models {
		client, err := NewClient("openai", apiKey, model, cfg.BaseURL, cfg.Options, httpClient)
		if err != nil {
			slog.Error("Failed to create OpenAI client", "model", model, "error", err)
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
	llm.RegisterProvider("openai", &OpenAIFactory{})
}
