package domain

import (
	"sync"
	"time"

	"github.com/cristianortiz/auctionSettlement/internal/shared/scheduler"
)

// Countdown reports the time left until a deadline on a fixed tick and calls
// onExpire once when it runs out. The last wait is shortened so expiry lands
// on the deadline itself.
type Countdown struct {
	clock    scheduler.Scheduler
	deadline time.Time
	tick     time.Duration
	onTick   func(time.Duration)
	onExpire func()

	mu      sync.Mutex
	timer   scheduler.Timer
	epoch   uint64
	started bool
	stopped bool
	fired   bool
}

func NewCountdown(clock scheduler.Scheduler, deadline time.Time, tick time.Duration, onTick func(time.Duration), onExpire func()) *Countdown {
	if onTick == nil {
		onTick = func(time.Duration) {}
	}
	return &Countdown{clock: clock, deadline: deadline, tick: tick, onTick: onTick, onExpire: onExpire}
}

// Start reports the remaining time at once. A deadline already in the past
// expires immediately.
func (c *Countdown) Start() {
	c.mu.Lock()
	if c.started || c.stopped {
		c.mu.Unlock()
		return
	}
	c.started = true
	epoch := c.epoch
	c.mu.Unlock()
	c.step(epoch)
}

func (c *Countdown) step(epoch uint64) {
	c.mu.Lock()
	if c.stopped || epoch != c.epoch {
		c.mu.Unlock()
		return
	}
	remaining := c.deadline.Sub(c.clock.Now())
	if remaining <= 0 {
		expire := !c.fired
		c.fired = true
		c.stopped = true
		c.timer = nil
		c.mu.Unlock()

		c.onTick(0)
		if expire && c.onExpire != nil {
			c.onExpire()
		}
		return
	}

	wait := c.tick
	if remaining < wait {
		wait = remaining
	}
	c.epoch++
	next := c.epoch
	c.timer = c.clock.AfterFunc(wait, func() { c.step(next) })
	c.mu.Unlock()

	c.onTick(remaining)
}

// Stop cancels the countdown, onExpire will not be called afterwards.
func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	c.epoch++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// Expired reports whether onExpire was called.
func (c *Countdown) Expired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fired
}
