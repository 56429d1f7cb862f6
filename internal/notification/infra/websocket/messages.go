package websocket

import (
	"github.com/cristianortiz/auctionSettlement/internal/notification/application"
	"github.com/cristianortiz/auctionSettlement/internal/notification/domain"
)

// MessageType is the type of a frame exchanged with the view.
type MessageType string

const (
	MessageTypeNotification     MessageType = "notification"      // server: a routed message
	MessageTypeConnectionStatus MessageType = "connection_status" // server: push channel status
	MessageTypeStats            MessageType = "stats"             // server: router and discriminator counters
	MessageTypeError            MessageType = "error"
	MessageTypeForceReconnect   MessageType = "force_reconnect" // client
	MessageTypeGetStats         MessageType = "get_stats"       // client
)

type BaseMessage struct {
	Type MessageType `json:"type"`
}

type NotificationMessage struct {
	BaseMessage
	Payload struct {
		Kind    domain.MessageType `json:"kind"`
		Message domain.Message     `json:"message"`
	} `json:"payload"`
}

type ConnectionStatusMessage struct {
	BaseMessage
	Payload application.ConnectionInfo `json:"payload"`
}

type StatsMessage struct {
	BaseMessage
	Payload struct {
		Router        application.RouterStats    `json:"router"`
		Discriminator domain.DiscriminatorStats  `json:"discriminator"`
		Connection    application.ConnectionInfo `json:"connection"`
	} `json:"payload"`
}

type ErrorMessage struct {
	BaseMessage
	Payload struct {
		Error string `json:"error"`
	} `json:"payload"`
}
