package llm

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"polymath/pkg/config"

	jsoniter "github.com/json-iterator/go"
)

// NewFromConfig builds the client chain for one session from the raw 'llm'
// config and the session's API key.
func NewFromConfig(rawLLM jsoniter.RawMessage, apiKey string, system *config.SystemConfig) (LLMClient, error) {
	if len(rawLLM) == 0 {
		return nil, fmt.Errorf("missing 'llm' config")
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("missing API key")
	}
	if system == nil {
		system = config.DefaultSystemConfig()
	}

	var groups []ProviderGroupConfig
	if err := json.Unmarshal(rawLLM, &groups); err != nil {
		return nil, fmt.Errorf("failed to parse 'llm' config: %w", err)
	}

	var allAtomicClients []LLMClient
	var lastErr error
	for _, group := range groups {
		slog.Debug("Loading LLM group", "type", group.Type, "models", len(group.Models))

		factory, ok := GetProviderFactory(group.Type)
		if !ok {
			slog.Warn("Unknown provider type", "type", group.Type, "known", RegisteredProviders())
			lastErr = fmt.Errorf("unknown provider type %q", group.Type)
			continue
		}

		clients, err := factory.Create(group, apiKey, system)
		if err != nil {
			slog.Warn("Failed to create clients", "type", group.Type, "error", err)
			lastErr = err
			continue
		}
		allAtomicClients = append(allAtomicClients, clients...)
	}

	if len(allAtomicClients) == 0 {
		if lastErr != nil {
			return nil, fmt.Errorf("no LLM clients could be initialized: %w", lastErr)
		}
		return nil, fmt.Errorf("no LLM clients could be initialized")
	}

	slog.Debug("LLM clients initialized", "count", len(allAtomicClients))

	if len(allAtomicClients) == 1 {
		return allAtomicClients[0], nil
	}

	return &FallbackClient{
		Clients:    allAtomicClients,
		MaxRetries: system.MaxRetries,
		RetryDelay: time.Duration(system.RetryDelayMs) * time.Millisecond,
	}, nil
}
