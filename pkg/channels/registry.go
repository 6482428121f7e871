package channels

import (
	"sort"
	"sync"

	"polymath/pkg/api"
	"polymath/pkg/config"

	jsoniter "github.com/json-iterator/go"
)

// ChannelFactory defines the abstract interface for platform-specific
// channel creators. This allows the system to support new platforms
// without modifying the core gateway logic.
type ChannelFactory interface {
	// Create instantiates a concrete Channel implementation using the
	// channel's own raw configuration plus the application and system
	// settings. A nil channel with a nil error means "disabled".
	Create(rawConfig jsoniter.RawMessage, app *config.Config, system *config.SystemConfig) (api.Channel, error)
}

var (
	registryMu      sync.RWMutex
	channelRegistry = make(map[string]ChannelFactory)
)

// RegisterChannel adds a new ChannelFactory to the global internal registry.
// This is typically called during the package's init() phase.
func RegisterChannel(name string, factory ChannelFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	channelRegistry[name] = factory
}

// GetChannelFactory retrieves a registered ChannelFactory by platform name.
func GetChannelFactory(name string) (ChannelFactory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := channelRegistry[name]
	return f, ok
}

// RegisteredChannels lists the registered platform names, sorted.
func RegisteredChannels() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(channelRegistry))
	for name := range channelRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
