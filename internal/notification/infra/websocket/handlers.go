package websocket

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cristianortiz/auctionSettlement/internal/notification/application"
	"github.com/cristianortiz/auctionSettlement/internal/notification/domain"
	"github.com/cristianortiz/auctionSettlement/internal/shared/logger"
	"github.com/cristianortiz/auctionSettlement/internal/shared/websocket"
	"github.com/gofiber/fiber/v2"
	fiberws "github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var log = logger.GetLogger()

const (
	writeWait   = 10 * time.Second
	localUserID = "userId"
)

// NotificationWSHandler fans routed notifications out to the view
// connections of the logged-in user and serves their requests.
type NotificationWSHandler struct {
	lifecycle *application.Lifecycle
	hub       *websocket.Hub
}

// NewNotificationWSHandler hooks into every new user session so its routed
// messages and connection status reach the hub.
func NewNotificationWSHandler(lifecycle *application.Lifecycle, hub *websocket.Hub) *NotificationWSHandler {
	h := &NotificationWSHandler{lifecycle: lifecycle, hub: hub}
	lifecycle.OnLogin(h.attach)
	return h
}

func (h *NotificationWSHandler) attach(s *application.UserSession) {
	group := s.UserID
	for _, t := range domain.Types {
		kind := t
		s.Router.Subscribe(kind, func(_ context.Context, m domain.Message) error {
			msg := NotificationMessage{BaseMessage: BaseMessage{Type: MessageTypeNotification}}
			msg.Payload.Kind = kind
			msg.Payload.Message = m
			data, err := json.Marshal(msg)
			if err != nil {
				return err
			}
			h.hub.BroadcastToGroup(group, data)
			return nil
		})
	}
	s.Connection.OnStatus(func(info application.ConnectionInfo) {
		data, err := json.Marshal(ConnectionStatusMessage{BaseMessage: BaseMessage{Type: MessageTypeConnectionStatus}, Payload: info})
		if err != nil {
			log.Error("failed to marshal ConnectionStatusMessage", zap.Error(err))
			return
		}
		h.hub.BroadcastToGroup(group, data)
	})
}

// RequireSession rejects upgrades when nobody is logged in, otherwise it
// stores the user id for the websocket handler.
func (h *NotificationWSHandler) RequireSession(c *fiber.Ctx) error {
	if !fiberws.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	s := h.lifecycle.Current()
	if s == nil {
		return fiber.NewError(fiber.StatusConflict, "no user session")
	}
	c.Locals(localUserID, s.UserID)
	return c.Next()
}

// Serve is the websocket handler of /ws/notifications.
func (h *NotificationWSHandler) Serve() fiber.Handler {
	return fiberws.New(func(conn *fiberws.Conn) {
		userID, _ := conn.Locals(localUserID).(string)
		client := websocket.NewClient(h.hub, conn, userID, uuid.NewString())
		h.hub.RegisterClient(client)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go client.WritePump(ctx)
		if s := h.lifecycle.Current(); s != nil && s.UserID == userID {
			h.sendStatus(client, s.Connection.Info())
		}
		client.ReadPump(ctx)
	})
}

// ListenForMessages processes view requests until ctx is done.
func (h *NotificationWSHandler) ListenForMessages(ctx context.Context) {
	log.Info("NotificationWSHandler started listening for inbound messages from hub")
	for {
		select {
		case <-ctx.Done():
			log.Info("NotificationWSHandler stopped listening for inbound messages from hub")
			return
		case msg := <-h.hub.InboundMessages:
			h.processMessage(msg.Client, msg.Data)
		}
	}
}

func (h *NotificationWSHandler) processMessage(client *websocket.Client, data []byte) {
	var base BaseMessage
	if err := json.Unmarshal(data, &base); err != nil {
		h.sendError(client, "invalid message format")
		return
	}

	s := h.lifecycle.Current()
	if s == nil || s.UserID != client.Group {
		h.sendError(client, "no active session for this connection")
		return
	}

	switch base.Type {
	case MessageTypeForceReconnect:
		if err := s.Connection.ForceReconnect(); err != nil {
			h.sendError(client, err.Error())
		}
	case MessageTypeGetStats:
		msg := StatsMessage{BaseMessage: BaseMessage{Type: MessageTypeStats}}
		msg.Payload.Router = s.Router.Stats()
		msg.Payload.Discriminator = s.Discriminator.Stats()
		msg.Payload.Connection = s.Connection.Info()
		h.send(client, msg)
	default:
		h.sendError(client, "unknown message type")
	}
}

func (h *NotificationWSHandler) sendStatus(client *websocket.Client, info application.ConnectionInfo) {
	h.send(client, ConnectionStatusMessage{BaseMessage: BaseMessage{Type: MessageTypeConnectionStatus}, Payload: info})
}

func (h *NotificationWSHandler) sendError(client *websocket.Client, text string) {
	msg := ErrorMessage{BaseMessage: BaseMessage{Type: MessageTypeError}}
	msg.Payload.Error = text
	h.send(client, msg)
}

func (h *NotificationWSHandler) send(client *websocket.Client, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error("failed to marshal view message", zap.Error(err))
		return
	}
	h.hub.SendToClient(client, data)
}

func (h *NotificationWSHandler) RegisterRoutes(r fiber.Router) {
	r.Get("/ws/notifications", h.RequireSession, h.Serve())
}
