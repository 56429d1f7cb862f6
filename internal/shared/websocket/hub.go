package websocket

import (
	"context"
	"time"

	"github.com/cristianortiz/auctionSettlement/internal/shared/logger"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
)

var log = logger.GetLogger()

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 1024

	sendBuffer = 64
)

// Hub keeps the view connections grouped by user and fans messages out to
// every connection of a group.
type Hub struct {
	// group (user id) -> set of clients
	clients    map[string]map[*Client]bool
	broadcast  chan *Message
	register   chan *Client
	unregister chan *Client
	// InboundMessages carries frames sent by the views, read by context handlers.
	InboundMessages chan *ClientMessage
	done            chan struct{}
}

// Client is one view connection.
type Client struct {
	Hub   *Hub
	Conn  *websocket.Conn
	Send  chan []byte
	Group string
	ID    string
}

// Message is queued for every client of Group, or only for Client when set.
type Message struct {
	Group  string
	Client *Client
	Data   []byte
}

// ClientMessage is an inbound frame together with the client that sent it.
type ClientMessage struct {
	Client *Client
	Data   []byte
}

func NewHub() *Hub {
	return &Hub{
		broadcast:       make(chan *Message, 256),
		register:        make(chan *Client),
		unregister:      make(chan *Client),
		clients:         make(map[string]map[*Client]bool),
		InboundMessages: make(chan *ClientMessage, 64),
		done:            make(chan struct{}),
	}
}

// NewClient builds a client for conn in group.
func NewClient(h *Hub, conn *websocket.Conn, group, id string) *Client {
	return &Client{Hub: h, Conn: conn, Send: make(chan []byte, sendBuffer), Group: group, ID: id}
}

// Run serves registrations and broadcasts until ctx is done, then closes
// every client's send channel so their write pumps say goodbye.
func (h *Hub) Run(ctx context.Context) {
	log.Info("websocket hub started")
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for group, clients := range h.clients {
				for client := range clients {
					close(client.Send)
				}
				delete(h.clients, group)
			}
			log.Info("websocket hub stopped")
			return

		case client := <-h.register:
			if _, ok := h.clients[client.Group]; !ok {
				h.clients[client.Group] = make(map[*Client]bool)
			}
			h.clients[client.Group][client] = true
			log.Info("view client registered",
				zap.String("client_id", client.ID),
				zap.String("group", client.Group),
				zap.Int("total_clients", h.count()))

		case client := <-h.unregister:
			h.remove(client)

		case message := <-h.broadcast:
			clients := h.clients[message.Group]
			log.Debug("broadcasting to group", zap.String("group", message.Group), zap.Int("clients", len(clients)))
			for client := range clients {
				if message.Client != nil && message.Client != client {
					continue
				}
				select {
				case client.Send <- message.Data:
				default:
					// a client that cannot keep up is dropped
					log.Warn("view client too slow, unregistering",
						zap.String("client_id", client.ID),
						zap.String("group", client.Group))
					h.remove(client)
				}
			}
		}
	}
}

// count is only called from Run.
func (h *Hub) count() int {
	n := 0
	for _, clients := range h.clients {
		n += len(clients)
	}
	return n
}

func (h *Hub) remove(client *Client) {
	clients, ok := h.clients[client.Group]
	if !ok || !clients[client] {
		return
	}
	delete(clients, client)
	close(client.Send)
	if len(clients) == 0 {
		delete(h.clients, client.Group)
	}
	log.Info("view client unregistered",
		zap.String("client_id", client.ID),
		zap.String("group", client.Group),
		zap.Int("total_clients", h.count()))
}

// RegisterClient returns once the hub has taken the client.
func (h *Hub) RegisterClient(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		_ = client.Conn.Close()
	}
}

// UnregisterClient queues a client for removal. It is safe to call twice.
func (h *Hub) UnregisterClient(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// BroadcastToGroup sends data to every client of group without blocking.
func (h *Hub) BroadcastToGroup(group string, data []byte) {
	select {
	case h.broadcast <- &Message{Group: group, Data: data}:
	default:
		log.Error("broadcast channel is full, message dropped", zap.String("group", group))
	}
}

// SendToClient queues data for one client. Unlike writing to Send directly
// it is safe after the client was unregistered.
func (h *Hub) SendToClient(client *Client, data []byte) {
	select {
	case h.broadcast <- &Message{Group: client.Group, Client: client, Data: data}:
	default:
		log.Error("broadcast channel is full, message dropped", zap.String("client_id", client.ID))
	}
}

// ReadPump forwards frames from the view to InboundMessages. One goroutine
// per client.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.Hub.UnregisterClient(c)
		_ = c.Conn.Close()
	}()
	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error { return c.Conn.SetReadDeadline(time.Now().Add(pongWait)) })

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("view websocket read error", zap.String("client_id", c.ID), zap.Error(err))
			}
			return
		}
		select {
		case c.Hub.InboundMessages <- &ClientMessage{Client: c, Data: message}:
		case <-ctx.Done():
			return
		default:
			log.Error("inbound channel is full, dropping view frame", zap.String("client_id", c.ID))
		}
	}
}

// WritePump writes queued messages and keeps the connection alive with pings.
// It is the only writer of the connection.
func (c *Client) WritePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Hub.UnregisterClient(c)
		_ = c.Conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			_ = c.Conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return

		case message, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Warn("view websocket write failed", zap.String("client_id", c.ID), zap.Error(err))
				return
			}

		case <-ticker.C:
			if err := c.Conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Warn("view websocket ping failed", zap.String("client_id", c.ID), zap.Error(err))
				return
			}
		}
	}
}
