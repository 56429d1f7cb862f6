package application

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cristianortiz/auctionSettlement/internal/notification/domain"
	"github.com/cristianortiz/auctionSettlement/internal/shared/apperror"
	"github.com/cristianortiz/auctionSettlement/internal/shared/scheduler"
	"go.uber.org/zap"
)

// Status is the push connection state shown to the user.
type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusReconnecting Status = "reconnecting"
	StatusDisconnected Status = "disconnected"
)

// Conn is an open push channel.
type Conn interface {
	// Read blocks until the next frame. Any error ends the connection.
	Read(ctx context.Context) ([]byte, error)
	Close() error
}

// Transport opens push channels subscribed to the given channels.
type Transport interface {
	Dial(ctx context.Context, userID string, channels []string) (Conn, error)
}

type ReconnectPolicy struct {
	BaseDelay   time.Duration
	MaxAttempts int
}

// Delay is the wait before reconnect attempt n, counted from 0.
func (p ReconnectPolicy) Delay(n int) time.Duration {
	return p.BaseDelay << n
}

// ConnectionInfo is a snapshot of the connection state.
type ConnectionInfo struct {
	Status   Status     `json:"status"`
	Attempts int        `json:"attempts"`
	LastErr  string     `json:"lastError,omitempty"`
	Since    time.Time  `json:"since"`
	NextTry  *time.Time `json:"nextTry,omitempty"`
}

// Connection keeps one push channel open for one user. Drops are retried
// with exponential backoff up to the policy bound, after which the status
// stays disconnected until ForceReconnect.
type Connection struct {
	userID        string
	channels      []string
	transport     Transport
	discriminator *domain.Discriminator
	router        *Router
	clock         scheduler.Scheduler
	policy        ReconnectPolicy

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	status   Status
	attempts int
	lastErr  error
	since    time.Time
	nextTry  *time.Time
	conn     Conn
	timer    scheduler.Timer
	epoch    uint64
	closed   bool
	watchers []func(ConnectionInfo)
}

func NewConnection(userID string, channels []string, transport Transport, discriminator *domain.Discriminator, router *Router, clock scheduler.Scheduler, policy ReconnectPolicy) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	return &Connection{
		userID:        userID,
		channels:      channels,
		transport:     transport,
		discriminator: discriminator,
		router:        router,
		clock:         clock,
		policy:        policy,
		ctx:           ctx,
		cancel:        cancel,
		status:        StatusDisconnected,
		since:         clock.Now(),
	}
}

// OnStatus registers a watcher called after every status change.
func (c *Connection) OnStatus(fn func(ConnectionInfo)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.watchers = append(c.watchers, fn)
}

func (c *Connection) Info() ConnectionInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.infoLocked()
}

// Start dials for the first time.
func (c *Connection) Start() {
	c.mu.Lock()
	if c.closed || c.status != StatusDisconnected || c.conn != nil || c.timer != nil {
		c.mu.Unlock()
		return
	}
	c.epoch++
	epoch := c.epoch
	c.setStatusLocked(StatusConnecting, nil)
	c.timer = c.clock.AfterFunc(0, func() { c.dial(epoch) })
	info, watchers := c.infoLocked(), c.watchersLocked()
	c.mu.Unlock()
	notify(watchers, info)
}

// ForceReconnect drops the current channel, resets the attempt counter and
// dials immediately.
func (c *Connection) ForceReconnect() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return apperror.Conflict("CONNECTION_CLOSED", "connection is closed")
	}
	c.stopTimerLocked()
	old := c.conn
	c.conn = nil
	c.epoch++
	epoch := c.epoch
	c.attempts = 0
	c.setStatusLocked(StatusConnecting, nil)
	c.timer = c.clock.AfterFunc(0, func() { c.dial(epoch) })
	info, watchers := c.infoLocked(), c.watchersLocked()
	c.mu.Unlock()

	log.Info("forced push reconnect", zap.String("user_id", c.userID))
	notify(watchers, info)
	if old != nil {
		return old.Close()
	}
	return nil
}

// Close tears the channel down and cancels any pending reconnect.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.epoch++
	c.stopTimerLocked()
	old := c.conn
	c.conn = nil
	c.status = StatusDisconnected
	c.mu.Unlock()

	c.cancel()
	if old != nil {
		return old.Close()
	}
	return nil
}

func (c *Connection) dial(epoch uint64) {
	if !c.current(epoch) {
		return
	}
	conn, err := c.transport.Dial(c.ctx, c.userID, c.channels)

	c.mu.Lock()
	if c.closed || epoch != c.epoch {
		c.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	c.timer = nil
	if err != nil {
		c.mu.Unlock()
		log.Warn("push dial failed", zap.String("user_id", c.userID), zap.Int("attempt", c.Info().Attempts), zap.Error(err))
		c.scheduleReconnect(epoch, err)
		return
	}
	c.conn = conn
	c.attempts = 0
	c.setStatusLocked(StatusConnected, nil)
	info, watchers := c.infoLocked(), c.watchersLocked()
	c.mu.Unlock()

	log.Info("push channel connected", zap.String("user_id", c.userID), zap.Strings("channels", c.channels))
	c.router.Resume()
	notify(watchers, info)
	go c.readLoop(epoch, conn)
}

func (c *Connection) readLoop(epoch uint64, conn Conn) {
	for {
		data, err := conn.Read(c.ctx)
		if err != nil {
			if !c.current(epoch) {
				return
			}
			log.Warn("push channel dropped", zap.String("user_id", c.userID), zap.Error(err))
			c.mu.Lock()
			if c.conn == conn {
				c.conn = nil
			}
			c.mu.Unlock()
			_ = conn.Close()
			c.router.Suspend()
			c.scheduleReconnect(epoch, err)
			return
		}

		msg, err := c.discriminator.Discriminate(data)
		if err != nil {
			log.Warn("rejected push message", zap.Error(err), zap.ByteString("payload", truncate(data)))
			continue
		}
		if err := c.router.Submit(Envelope{Message: msg, Source: SourcePush}); err != nil && !errors.Is(err, apperror.ErrProtocol) {
			log.Warn("push message not routed", zap.String("key", msg.DedupKey().String()), zap.Error(err))
		}
	}
}

// scheduleReconnect arms the next attempt, or gives up once the bound is hit.
func (c *Connection) scheduleReconnect(epoch uint64, cause error) {
	c.mu.Lock()
	if c.closed || epoch != c.epoch {
		c.mu.Unlock()
		return
	}
	if c.attempts >= c.policy.MaxAttempts {
		c.setStatusLocked(StatusDisconnected, cause)
		info, watchers := c.infoLocked(), c.watchersLocked()
		c.mu.Unlock()
		log.Error("push channel gave up reconnecting", zap.String("user_id", c.userID), zap.Int("attempts", info.Attempts), zap.Error(cause))
		c.router.Suspend()
		notify(watchers, info)
		return
	}

	delay := c.policy.Delay(c.attempts)
	c.attempts++
	c.epoch++
	next := c.epoch
	at := c.clock.Now().Add(delay)
	c.setStatusLocked(StatusReconnecting, cause)
	c.nextTry = &at
	c.timer = c.clock.AfterFunc(delay, func() { c.dial(next) })
	info, watchers := c.infoLocked(), c.watchersLocked()
	c.mu.Unlock()

	log.Info("push reconnect scheduled", zap.String("user_id", c.userID), zap.Int("attempt", info.Attempts), zap.Duration("delay", delay))
	notify(watchers, info)
}

func (c *Connection) current(epoch uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && epoch == c.epoch
}

func (c *Connection) setStatusLocked(s Status, cause error) {
	c.status = s
	c.lastErr = cause
	c.since = c.clock.Now()
	c.nextTry = nil
}

func (c *Connection) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Connection) infoLocked() ConnectionInfo {
	info := ConnectionInfo{Status: c.status, Attempts: c.attempts, Since: c.since, NextTry: c.nextTry}
	if c.lastErr != nil {
		info.LastErr = c.lastErr.Error()
	}
	return info
}

func (c *Connection) watchersLocked() []func(ConnectionInfo) {
	return append(([]func(ConnectionInfo))(nil), c.watchers...)
}

func notify(watchers []func(ConnectionInfo), info ConnectionInfo) {
	for _, w := range watchers {
		w(info)
	}
}

func truncate(b []byte) []byte {
	if len(b) > 256 {
		return b[:256]
	}
	return b
}
