package gateway

import (
	"polymath/pkg/api"
)

// Local names for the api types the gateway routes.
type Channel = api.Channel
type SignalingChannel = api.SignalingChannel
type UnifiedMessage = api.UnifiedMessage
type SessionContext = api.SessionContext
