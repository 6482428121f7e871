package telegram

import (
	"fmt"

	"polymath/pkg/api"
	"polymath/pkg/channels"
	"polymath/pkg/config"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// TelegramFactory builds the Telegram bot channel.
type TelegramFactory struct{}

// Create implements channels.ChannelFactory
func (f *TelegramFactory) Create(rawConfig jsoniter.RawMessage, app *config.Config, system *config.SystemConfig) (api.Channel, error) {
	var tgCfg TelegramConfig
	if err := json.Unmarshal(rawConfig, &tgCfg); err != nil {
		return nil, fmt.Errorf("failed to parse telegram config: %w", err)
	}
	if tgCfg.Disabled {
		return nil, nil
	}
	if tgCfg.Token == "" {
		return nil, fmt.Errorf("missing telegram token")
	}
	if system == nil {
		system = config.DefaultSystemConfig()
	}

	return NewTelegramChannel(tgCfg, system.TelegramMessageLimit)
}

func init() {
	channels.RegisterChannel("telegram", &TelegramFactory{})
}
