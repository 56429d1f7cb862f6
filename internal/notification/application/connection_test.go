package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cristianortiz/auctionSettlement/internal/notification/domain"
	"github.com/cristianortiz/auctionSettlement/internal/shared/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	frames chan []byte
	once   sync.Once
	done   chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{frames: make(chan []byte, 8), done: make(chan struct{})}
}

func (c *fakeConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case f := <-c.frames:
		return f, nil
	case <-c.done:
		return nil, errors.New("connection closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

// drop simulates the server going away.
func (c *fakeConn) drop() { _ = c.Close() }

type fakeTransport struct {
	mu     sync.Mutex
	dials  int
	conns  []*fakeConn
	DialFn func(n int) (Conn, error)
}

func (f *fakeTransport) Dial(_ context.Context, _ string, _ []string) (Conn, error) {
	f.mu.Lock()
	f.dials++
	n := f.dials
	f.mu.Unlock()
	if f.DialFn != nil {
		return f.DialFn(n)
	}
	c := newFakeConn()
	f.mu.Lock()
	f.conns = append(f.conns, c)
	f.mu.Unlock()
	return c, nil
}

func (f *fakeTransport) dialCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dials
}

func (f *fakeTransport) last() *fakeConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conns[len(f.conns)-1]
}

var policy = ReconnectPolicy{BaseDelay: time.Second, MaxAttempts: 5}

func newTestConnection(t *testing.T, transport Transport) (*Connection, *Router, *scheduler.Fake) {
	t.Helper()
	clock := scheduler.NewFake(epoch)
	router := NewRouter("u-1", clock, routerCfg)
	c := NewConnection("u-1", []string{"payment_status"}, transport, domain.NewDiscriminator(), router, clock, policy)
	t.Cleanup(func() { _ = c.Close() })
	return c, router, clock
}

func TestReconnectPolicy_Doubles(t *testing.T) {
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second}
	for n, d := range want {
		assert.Equal(t, d, policy.Delay(n))
	}
}

func TestConnection_ConnectsAndRoutesFrames(t *testing.T) {
	transport := &fakeTransport{}
	c, router, clock := newTestConnection(t, transport)
	payments := &collector{}
	router.Subscribe(domain.TypePaymentStatus, payments.handle)
	runRouter(t, router)

	c.Start()
	assert.Equal(t, StatusConnecting, c.Info().Status)
	clock.RunDue()
	assert.Equal(t, StatusConnected, c.Info().Status)

	conn := transport.last()
	conn.frames <- []byte(`{"type":"PAYMENT_STATUS","paymentId":"p-1","userId":"u-1","status":"COMPLETED"}`)
	conn.frames <- []byte(`{"type":"PAYMENT_STATUS","userId":"u-1"}`)
	conn.frames <- []byte(`{"type":"PAYMENT_STATUS","paymentId":"p-2","userId":"u-2","status":"COMPLETED"}`)
	conn.frames <- []byte(`{"type":"PAYMENT_STATUS","paymentId":"p-3","userId":"u-1","status":"FAILED"}`)

	require.Eventually(t, func() bool { return payments.count() == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, 1, router.Stats().Rejected)
}

func TestConnection_BackoffDoublesThenGivesUp(t *testing.T) {
	transport := &fakeTransport{DialFn: func(int) (Conn, error) { return nil, errors.New("refused") }}
	c, router, clock := newTestConnection(t, transport)

	var mu sync.Mutex
	var statuses []Status
	c.OnStatus(func(info ConnectionInfo) {
		mu.Lock()
		statuses = append(statuses, info.Status)
		mu.Unlock()
	})

	c.Start()
	clock.RunDue()
	assert.Equal(t, 1, transport.dialCount())
	assert.Equal(t, StatusReconnecting, c.Info().Status)

	for i, d := range []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second} {
		clock.Advance(d - time.Millisecond)
		assert.Equal(t, i+1, transport.dialCount(), "attempt %d fired early", i+1)
		clock.Advance(time.Millisecond)
		assert.Equal(t, i+2, transport.dialCount())
	}

	info := c.Info()
	assert.Equal(t, StatusDisconnected, info.Status)
	assert.Equal(t, 5, info.Attempts)
	assert.Equal(t, "refused", info.LastErr)
	assert.True(t, router.Stats().Suspended)

	clock.Advance(time.Hour)
	assert.Equal(t, 6, transport.dialCount())

	mu.Lock()
	assert.Equal(t, StatusDisconnected, statuses[len(statuses)-1])
	mu.Unlock()
}

func TestConnection_ForceReconnectResetsCounter(t *testing.T) {
	transport := &fakeTransport{}
	transport.DialFn = func(n int) (Conn, error) {
		if n <= 6 {
			return nil, errors.New("refused")
		}
		c := newFakeConn()
		transport.mu.Lock()
		transport.conns = append(transport.conns, c)
		transport.mu.Unlock()
		return c, nil
	}
	c, router, clock := newTestConnection(t, transport)

	c.Start()
	clock.Advance(time.Hour)
	require.Equal(t, StatusDisconnected, c.Info().Status)

	require.NoError(t, c.ForceReconnect())
	assert.Equal(t, 0, c.Info().Attempts)
	clock.RunDue()

	assert.Equal(t, 7, transport.dialCount())
	assert.Equal(t, StatusConnected, c.Info().Status)
	assert.False(t, router.Stats().Suspended)
}

func TestConnection_DropSuspendsAndReconnects(t *testing.T) {
	transport := &fakeTransport{}
	c, router, clock := newTestConnection(t, transport)

	c.Start()
	clock.RunDue()
	require.Equal(t, StatusConnected, c.Info().Status)

	transport.last().drop()
	require.Eventually(t, func() bool { return c.Info().Status == StatusReconnecting }, time.Second, time.Millisecond)
	assert.True(t, router.Stats().Suspended)

	clock.Advance(time.Second)
	assert.Equal(t, 2, transport.dialCount())
	assert.Equal(t, StatusConnected, c.Info().Status)
	assert.Equal(t, 0, c.Info().Attempts)
	assert.False(t, router.Stats().Suspended)
}

func TestConnection_CloseCancelsReconnect(t *testing.T) {
	transport := &fakeTransport{DialFn: func(int) (Conn, error) { return nil, errors.New("refused") }}
	c, _, clock := newTestConnection(t, transport)

	c.Start()
	clock.RunDue()
	require.Equal(t, 1, clock.Pending())

	require.NoError(t, c.Close())
	assert.Equal(t, 0, clock.Pending())
	clock.Advance(time.Hour)
	assert.Equal(t, 1, transport.dialCount())
	assert.Error(t, c.ForceReconnect())
}
