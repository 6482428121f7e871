package channels

import (
	"log/slog"
	"sort"

	"polymath/pkg/api"
	"polymath/pkg/config"
)

// LoadFromConfig resolves a factory for every entry of app.Channels and
// returns the channels that could be built, in name order. Unknown or
// broken entries are logged and skipped.
func LoadFromConfig(app *config.Config, system *config.SystemConfig) []api.Channel {
	names := make([]string, 0, len(app.Channels))
	for name := range app.Channels {
		names = append(names, name)
	}
	sort.Strings(names)

	var result []api.Channel
	for _, name := range names {
		factory, ok := GetChannelFactory(name)
		if !ok {
			slog.Warn("Unknown channel type", "name", name, "known", RegisteredChannels())
			continue
		}

		channel, err := factory.Create(app.Channels[name], app, system)
		if err != nil {
			slog.Error("Failed to create channel", "name", name, "error", err)
			continue
		}

		// If Create returns nil (e.g., disabled in config), skip
		if channel == nil {
			continue
		}

		result = append(result, channel)
		slog.Info("Channel created", "name", name)
	}
	return result
}
