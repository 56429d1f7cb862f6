package websocket

import (
	"context"
	"net/http"
	"time"

	"github.com/cristianortiz/auctionSettlement/internal/notification/application"
	"github.com/cristianortiz/auctionSettlement/internal/shared/apperror"
	fws "github.com/fasthttp/websocket"
	"go.uber.org/zap"
)

const handshakeTimeout = 10 * time.Second

// SubscribeFrame is the first frame sent on a push channel.
type SubscribeFrame struct {
	Type     string   `json:"type"`
	UserID   string   `json:"userId"`
	Channels []string `json:"channels"`
}

// PushTransport dials the backend push endpoint.
type PushTransport struct {
	url    string
	dialer *fws.Dialer
	token  func() string
}

// NewPushTransport builds a transport for url. token supplies the bearer
// token of the user session, it may return "".
func NewPushTransport(url string, token func() string) *PushTransport {
	return &PushTransport{
		url:    url,
		dialer: &fws.Dialer{HandshakeTimeout: handshakeTimeout, Proxy: http.ProxyFromEnvironment},
		token:  token,
	}
}

func (t *PushTransport) Dial(ctx context.Context, userID string, channels []string) (application.Conn, error) {
	header := http.Header{}
	if t.token != nil {
		if tok := t.token(); tok != "" {
			header.Set("Authorization", "Bearer "+tok)
		}
	}
	conn, resp, err := t.dialer.DialContext(ctx, t.url, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, apperror.Wrap(apperror.KindAuthRequired, "AUTH_REQUIRED", err)
		}
		return nil, apperror.Wrap(apperror.KindNetwork, "PUSH_DIAL_FAILED", err)
	}

	frame := SubscribeFrame{Type: "SUBSCRIBE", UserID: userID, Channels: channels}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(frame); err != nil {
		_ = conn.Close()
		return nil, apperror.Wrap(apperror.KindNetwork, "PUSH_SUBSCRIBE_FAILED", err)
	}
	log.Debug("push channel subscribed", zap.String("user_id", userID), zap.Strings("channels", channels))
	return &pushConn{conn: conn}, nil
}

type pushConn struct {
	conn *fws.Conn
}

// Read returns the next text frame. Cancelling ctx does not interrupt a
// blocked read, closing the connection does.
func (c *pushConn) Read(ctx context.Context) ([]byte, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if kind == fws.TextMessage {
			return data, nil
		}
	}
}

func (c *pushConn) Close() error { return c.conn.Close() }
