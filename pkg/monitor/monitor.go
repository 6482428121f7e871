package monitor

import "time"

// Message types carried by MonitorMessage.
const (
	TypeUser      = "USER"
	TypeAssistant = "ASSISTANT"
	TypeNotice    = "NOTICE"
)

// MonitorMessage is one message observed by the gateway.
type MonitorMessage struct {
	Timestamp   time.Time
	MessageType string // TypeUser, TypeAssistant or TypeNotice
	ChannelID   string
	Username    string
	Content     string
}

// Monitor observes the traffic of all channels.
type Monitor interface {
	Start() error
	Stop() error
	OnMessage(msg MonitorMessage)
}
