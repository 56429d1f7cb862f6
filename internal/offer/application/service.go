package application

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/cristianortiz/auctionSettlement/internal/offer/domain"
	"github.com/cristianortiz/auctionSettlement/internal/shared/apperror"
	"github.com/cristianortiz/auctionSettlement/internal/shared/logger"
	"github.com/cristianortiz/auctionSettlement/internal/shared/scheduler"
	"go.uber.org/zap"
)

var log = logger.GetLogger()

const expiredReason = "expired"

// OfferView is what the offer dialog shows.
type OfferView struct {
	Offer       domain.Offer  `json:"offer"`
	Remaining   time.Duration `json:"-"`
	RemainingMs int64         `json:"remainingMs"`
}

type openOffer struct {
	offer     domain.Offer
	countdown *domain.Countdown
	remaining time.Duration
}

// Service keeps the open second-chance offers of the user and answers them.
// An offer nobody answers is declined with the backend when its countdown
// runs out.
type Service struct {
	gateway domain.OfferGateway
	clock   scheduler.Scheduler
	tick    time.Duration

	mu       sync.Mutex
	offers   map[string]*openOffer
	watchers []func(OfferView)
	closed   bool
}

func NewService(gateway domain.OfferGateway, clock scheduler.Scheduler, tick time.Duration) *Service {
	return &Service{gateway: gateway, clock: clock, tick: tick, offers: make(map[string]*openOffer)}
}

// OnChange registers a watcher called on every countdown tick and status change.
func (s *Service) OnChange(fn func(OfferView)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchers = append(s.watchers, fn)
}

// Load opens every waiting offer the backend knows about.
func (s *Service) Load(ctx context.Context) error {
	offers, err := s.gateway.ListOffers(ctx)
	if err != nil {
		return err
	}
	for _, o := range offers {
		if o.Status != "" && o.Status != domain.StatusWaiting {
			continue
		}
		if _, err := s.Open(o); err != nil && !errors.Is(err, domain.ErrOfferNotWaiting) {
			log.Warn("skipping offer", zap.String("offer_id", o.ID), zap.Error(err))
		}
	}
	return nil
}

// Open starts the countdown of an offer. Opening an offer twice returns the
// running one.
func (s *Service) Open(o domain.Offer) (OfferView, error) {
	if err := o.Validate(); err != nil {
		return OfferView{}, err
	}
	if o.Status == "" {
		o.Status = domain.StatusWaiting
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return OfferView{}, apperror.Conflict("OFFERS_CLOSED", "offer service is closed")
	}
	if cur, ok := s.offers[o.ID]; ok {
		view := cur.view()
		s.mu.Unlock()
		return view, nil
	}
	if o.Status != domain.StatusWaiting {
		s.mu.Unlock()
		return OfferView{}, domain.ErrOfferNotWaiting
	}

	entry := &openOffer{offer: o, remaining: o.Remaining(s.clock.Now())}
	id := o.ID
	entry.countdown = domain.NewCountdown(s.clock, o.ResponseDeadline, s.tick,
		func(left time.Duration) { s.onTick(id, left) },
		func() { s.expire(id) })
	s.offers[id] = entry
	view := entry.view()
	s.mu.Unlock()

	log.Info("second-chance offer opened",
		zap.String("offer_id", id),
		zap.String("auction_id", o.AuctionID),
		zap.Duration("remaining", view.Remaining))
	entry.countdown.Start()
	return s.Get(id)
}

// Get returns the current view of an offer.
func (s *Service) Get(id string) (OfferView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.offers[id]
	if !ok {
		return OfferView{}, domain.ErrOfferNotFound
	}
	return entry.view(), nil
}

// List returns every known offer, the closest deadline first.
func (s *Service) List() []OfferView {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]OfferView, 0, len(s.offers))
	for _, entry := range s.offers {
		out = append(out, entry.view())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Offer.ResponseDeadline.Before(out[j].Offer.ResponseDeadline)
	})
	return out
}

// Accept takes an offer. If the backend refuses, the offer waits again unless
// its deadline passed meanwhile.
func (s *Service) Accept(ctx context.Context, id string) (OfferView, error) {
	entry, err := s.answer(id, func(o *domain.Offer) error { return o.Accept(s.clock.Now()) })
	if err != nil {
		return OfferView{}, err
	}
	if err := s.gateway.AcceptOffer(ctx, id); err != nil {
		log.Error("backend rejected offer acceptance", zap.String("offer_id", id), zap.Error(err))
		s.reopen(id, entry)
		return OfferView{}, err
	}
	log.Info("second-chance offer accepted", zap.String("offer_id", id))
	return s.settled(id, entry), nil
}

// Decline refuses an offer and reports the reason to analytics.
func (s *Service) Decline(ctx context.Context, id, reason string) (OfferView, error) {
	entry, err := s.answer(id, (*domain.Offer).Decline)
	if err != nil {
		return OfferView{}, err
	}
	if err := s.gateway.DeclineOffer(ctx, id); err != nil {
		log.Error("backend rejected offer decline", zap.String("offer_id", id), zap.Error(err))
		s.reopen(id, entry)
		return OfferView{}, err
	}
	if reason != "" {
		if err := s.gateway.TrackOfferDecline(ctx, id, reason); err != nil {
			log.Warn("failed to track offer decline", zap.String("offer_id", id), zap.Error(err))
		}
	}
	log.Info("second-chance offer declined", zap.String("offer_id", id), zap.String("reason", reason))
	return s.settled(id, entry), nil
}

// answer applies a local transition and stops the countdown, the backend call
// follows outside the lock.
func (s *Service) answer(id string, transition func(*domain.Offer) error) (*openOffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.offers[id]
	if !ok {
		return nil, domain.ErrOfferNotFound
	}
	if err := transition(&entry.offer); err != nil {
		return nil, err
	}
	entry.countdown.Stop()
	return entry, nil
}

func (s *Service) reopen(id string, entry *openOffer) {
	s.mu.Lock()
	if s.closed || s.offers[id] != entry {
		s.mu.Unlock()
		return
	}
	entry.offer.Status = domain.StatusWaiting
	entry.countdown = domain.NewCountdown(s.clock, entry.offer.ResponseDeadline, s.tick,
		func(left time.Duration) { s.onTick(id, left) },
		func() { s.expire(id) })
	countdown := entry.countdown
	s.mu.Unlock()
	countdown.Start()
}

func (s *Service) settled(id string, entry *openOffer) OfferView {
	s.mu.Lock()
	view := entry.view()
	watchers := append(([]func(OfferView))(nil), s.watchers...)
	s.mu.Unlock()
	for _, w := range watchers {
		w(view)
	}
	return view
}

func (s *Service) onTick(id string, left time.Duration) {
	s.mu.Lock()
	entry, ok := s.offers[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	entry.remaining = left
	view := entry.view()
	watchers := append(([]func(OfferView))(nil), s.watchers...)
	s.mu.Unlock()
	for _, w := range watchers {
		w(view)
	}
}

// expire runs once per countdown. The offer is declined with the backend on
// the user's behalf and marked expired locally whatever the backend says.
func (s *Service) expire(id string) {
	entry, err := s.answer(id, (*domain.Offer).Expire)
	if err != nil {
		return
	}
	log.Info("second-chance offer expired", zap.String("offer_id", id))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.gateway.DeclineOffer(ctx, id); err != nil {
		log.Warn("auto-decline of expired offer failed", zap.String("offer_id", id), zap.Error(err))
	}
	if err := s.gateway.TrackOfferDecline(ctx, id, expiredReason); err != nil {
		log.Warn("failed to track offer expiry", zap.String("offer_id", id), zap.Error(err))
	}
	s.settled(id, entry)
}

// Close stops every countdown. Nothing expires after Close returns.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for _, entry := range s.offers {
		entry.countdown.Stop()
	}
	return nil
}

// Reset forgets every offer, used when the user signs out.
func (s *Service) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, entry := range s.offers {
		entry.countdown.Stop()
		delete(s.offers, id)
	}
}

func (e *openOffer) view() OfferView {
	return OfferView{Offer: e.offer, Remaining: e.remaining, RemainingMs: e.remaining.Milliseconds()}
}
