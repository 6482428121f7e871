package ollama

import (
	"log/slog"
	"net/http"

	"polymath/pkg/config"
	"polymath/pkg/llm"
)

// OllamaFactory handles creation of Ollama Clients
type OllamaFactory struct {
	Transport http.RoundTripper
}

// Create implements ProviderFactory
func (f *OllamaFactory) Create(cfg llm.ProviderGroupConfig, apiKey string, sys *config.SystemConfig) ([]llm.LLMClient, error) {
	var clients []llm.LLMClient

	for _, model := range cfg.Models {
		client, err := NewOllamaClient(model, cfg.BaseURL, apiKey, cfg.Options, f.Transport)
		if err != nil {
			slog.Error("Failed to create Ollama client", "model", model, "error", err)
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
	llm.RegisterProvider("ollama", &OllamaFactory{})
}
