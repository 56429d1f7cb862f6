package http

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cristianortiz/auctionSettlement/internal/notification/application"
	"github.com/cristianortiz/auctionSettlement/internal/shared/httpserver"
	"github.com/cristianortiz/auctionSettlement/internal/shared/scheduler"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// idleConn never delivers a frame.
type idleConn struct {
	once sync.Once
	done chan struct{}
}

func (c *idleConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case <-c.done:
		return nil, context.Canceled
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *idleConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

type fakeTransport struct {
	mu    sync.Mutex
	dials int
}

func (f *fakeTransport) Dial(context.Context, string, []string) (application.Conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dials++
	return &idleConn{done: make(chan struct{})}, nil
}

func (f *fakeTransport) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dials
}

type fakeCreds struct {
	userID, token string
}

func (f *fakeCreds) SetCredentials(userID, token string) { f.userID, f.token = userID, token }

type fixture struct {
	app       *fiber.App
	lifecycle *application.Lifecycle
	transport *fakeTransport
	creds     *fakeCreds
	clock     *scheduler.Fake
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		transport: &fakeTransport{},
		creds:     &fakeCreds{},
		clock:     scheduler.NewFake(time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)),
	}
	f.lifecycle = application.NewLifecycle(f.transport, f.clock, application.LifecycleConfig{
		Channels:     []string{"payment_status"},
		Router:       application.RouterConfig{DedupWindow: time.Minute, DedupHistory: 10, Buffer: 4},
		Reconnect:    application.ReconnectPolicy{BaseDelay: time.Second, MaxAttempts: 3},
		PollInterval: time.Minute,
	}, nil)
	t.Cleanup(func() { _ = f.lifecycle.Logout() })
	f.app = httpserver.NewServer(NewSessionHandler(f.lifecycle, f.creds)).App()
	return f
}

func (f *fixture) call(t *testing.T, method, target, body string, out any) int {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestSessionHandler_LoginStoresTheTokenAndConnects(t *testing.T) {
	f := newFixture(t)

	var view SessionView
	status := f.call(t, fiber.MethodPost, "/session", `{"userId":"u-1","token":"t-1"}`, &view)
	require.Equal(t, fiber.StatusCreated, status)
	assert.Equal(t, "u-1", view.UserID)
	assert.Equal(t, "t-1", f.creds.token)

	f.clock.RunDue()
	assert.Equal(t, 1, f.transport.count())

	status = f.call(t, fiber.MethodGet, "/session", "", &view)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, application.StatusConnected, view.Connection.Status)
}

func TestSessionHandler_LoginNeedsUserAndToken(t *testing.T) {
	f := newFixture(t)

	status := f.call(t, fiber.MethodPost, "/session", `{"userId":"u-1"}`, nil)
	assert.Equal(t, fiber.StatusBadRequest, status)
	status = f.call(t, fiber.MethodPost, "/session", `not json`, nil)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Nil(t, f.lifecycle.Current())
}

func TestSessionHandler_StatsAndReconnect(t *testing.T) {
	f := newFixture(t)

	status := f.call(t, fiber.MethodGet, "/notifications/stats", "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)

	f.call(t, fiber.MethodPost, "/session", `{"userId":"u-1","token":"t-1"}`, nil)
	f.clock.RunDue()

	var stats StatsView
	status = f.call(t, fiber.MethodGet, "/notifications/stats", "", &stats)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, application.StatusConnected, stats.Connection.Status)
	assert.False(t, stats.Router.Suspended)

	status = f.call(t, fiber.MethodPost, "/notifications/reconnect", "", nil)
	assert.Equal(t, fiber.StatusAccepted, status)
	f.clock.RunDue()
	assert.Equal(t, 2, f.transport.count())
}

func TestSessionHandler_LogoutClearsEverything(t *testing.T) {
	f := newFixture(t)
	f.call(t, fiber.MethodPost, "/session", `{"userId":"u-1","token":"t-1"}`, nil)

	status := f.call(t, fiber.MethodDelete, "/session", "", nil)
	assert.Equal(t, fiber.StatusNoContent, status)
	assert.Nil(t, f.lifecycle.Current())
	assert.Empty(t, f.creds.token)

	status = f.call(t, fiber.MethodGet, "/session", "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)
}
