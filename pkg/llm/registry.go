package llm

import (
	"sort"
	"sync"

	"polymath/pkg/config"
)

// ProviderGroupConfig is one entry of the 'llm' config list: a provider type
// and the models to try, in order.
type ProviderGroupConfig struct {
	Type    string         `json:"type"`
	Models  []string       `json:"models"`
	BaseURL string         `json:"base_url,omitempty"`
	Options map[string]any `json:"options,omitempty"`
}

// Temperature reads options.temperature, if set.
func (g ProviderGroupConfig) Temperature() (float64, bool) {
	switch v := g.Options["temperature"].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

// ProviderFactory builds the atomic clients of one provider group. The API
// key is the one the user entered for the session.
type ProviderFactory interface {
	Create(group ProviderGroupConfig, apiKey string, systemConfig *config.SystemConfig) ([]LLMClient, error)
}

var (
	registryMu       sync.RWMutex
	providerRegistry = make(map[string]ProviderFactory)
)

// RegisterProvider registers a factory under a provider type name.
func RegisterProvider(name string, factory ProviderFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	providerRegistry[name] = factory
}

// GetProviderFactory returns the factory for a provider type.
func GetProviderFactory(name string) (ProviderFactory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := providerRegistry[name]
	return f, ok
}

// RegisteredProviders lists the known provider types, sorted.
func RegisteredProviders() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(providerRegistry))
	for name := range providerRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
