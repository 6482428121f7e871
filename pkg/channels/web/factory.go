package web

import (
	"fmt"

	"polymath/pkg/api"
	"polymath/pkg/channels"
	"polymath/pkg/config"

	jsoniter "github.com/json-iterator/go"
)

// WebFactory builds the browser channel.
type WebFactory struct{}

// Create implements channels.ChannelFactory
func (f *WebFactory) Create(rawConfig jsoniter.RawMessage, app *config.Config, system *config.SystemConfig) (api.Channel, error) {
	cfg := WebConfig{Port: 8501}
	if len(rawConfig) > 0 {
		if err := json.Unmarshal(rawConfig, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse web config: %w", err)
		}
	}
	if cfg.Disabled {
		return nil, nil
	}
	return NewWebChannel(cfg, PageFromConfig(app))
}

func init() {
	channels.RegisterChannel("web", &WebFactory{})
}
