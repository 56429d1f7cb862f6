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

// PollSource discovers notifications by asking the backend.
type PollSource interface {
	PollMessages(ctx context.Context, userID string) ([]domain.Message, error)
}

// Poller is the fallback for a push channel that drops messages. It asks
// each source every interval and feeds what it finds to the router, which
// drops whatever the push channel already delivered.
type Poller struct {
	userID   string
	sources  []PollSource
	sink     Submitter
	clock    scheduler.Scheduler
	interval time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	timer   scheduler.Timer
	running bool
	closed  bool
}

func NewPoller(userID string, sink Submitter, clock scheduler.Scheduler, interval time.Duration, sources ...PollSource) *Poller {
	ctx, cancel := context.WithCancel(context.Background())
	return &Poller{
		userID:   userID,
		sources:  sources,
		sink:     sink,
		clock:    clock,
		interval: interval,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start polls at once and then every interval.
func (p *Poller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.running {
		return
	}
	p.running = true
	p.timer = p.clock.AfterFunc(0, p.tick)
}

func (p *Poller) tick() {
	for _, src := range p.sources {
		msgs, err := src.PollMessages(p.ctx, p.userID)
		if err != nil {
			if p.ctx.Err() != nil {
				return
			}
			log.Warn("poll failed", zap.String("user_id", p.userID), zap.Error(err))
			continue
		}
		for _, m := range msgs {
			err := p.sink.Submit(Envelope{Message: m, Source: SourcePoll})
			if err != nil && !errors.Is(err, apperror.ErrProtocol) {
				log.Warn("polled message not routed", zap.String("key", m.DedupKey().String()), zap.Error(err))
			}
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.timer = p.clock.AfterFunc(p.interval, p.tick)
}

func (p *Poller) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.cancel()
	return nil
}
