package application

import (
	"context"
	"sync"
	"time"

	"github.com/cristianortiz/auctionSettlement/internal/notification/domain"
	"github.com/cristianortiz/auctionSettlement/internal/shared/apperror"
	"github.com/cristianortiz/auctionSettlement/internal/shared/scheduler"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ExternalSource is an extra inbound feed, such as a broker queue.
type ExternalSource interface {
	Run(ctx context.Context, sink Submitter) error
	Close() error
}

// ExternalSourceFactory builds the extra feed of one user. It may return nil
// when no feed is configured.
type ExternalSourceFactory func(userID string, d *domain.Discriminator) (ExternalSource, error)

type LifecycleConfig struct {
	Channels     []string
	Router       RouterConfig
	Reconnect    ReconnectPolicy
	PollInterval time.Duration
}

// UserSession is everything that listens for one logged-in user.
type UserSession struct {
	UserID        string
	Router        *Router
	Connection    *Connection
	Poller        *Poller
	Discriminator *domain.Discriminator

	external ExternalSource
	cancel   context.CancelFunc
	done     sync.WaitGroup
}

// Lifecycle owns the notification stack. At most one user session exists
// at a time, logging in as someone else tears the previous one down.
type Lifecycle struct {
	transport Transport
	clock     scheduler.Scheduler
	cfg       LifecycleConfig
	polls     []PollSource
	external  ExternalSourceFactory

	mu          sync.Mutex
	current     *UserSession
	hooks       []func(*UserSession)
	logoutHooks []func(userID string)
}

func NewLifecycle(transport Transport, clock scheduler.Scheduler, cfg LifecycleConfig, external ExternalSourceFactory, polls ...PollSource) *Lifecycle {
	return &Lifecycle{
		transport: transport,
		clock:     clock,
		cfg:       cfg,
		polls:     polls,
		external:  external,
	}
}

// OnLogin registers a hook run for every new user session before any
// message flows, so subscriptions miss nothing.
func (l *Lifecycle) OnLogin(fn func(*UserSession)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hooks = append(l.hooks, fn)
}

// OnLogout registers a hook run after the session of userID was torn down
// by Logout.
func (l *Lifecycle) OnLogout(fn func(userID string)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logoutHooks = append(l.logoutHooks, fn)
}

// Current returns the active session or nil.
func (l *Lifecycle) Current() *UserSession {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

// Login starts the stack for userID. Logging in again as the same user
// keeps the running session.
func (l *Lifecycle) Login(userID string) (*UserSession, error) {
	if userID == "" {
		return nil, apperror.Validation("MISSING_USER", "user id is required")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.current != nil && l.current.UserID == userID {
		return l.current, nil
	}

	var err error
	if l.current != nil {
		err = l.current.close()
		l.current = nil
	}

	s, buildErr := l.build(userID)
	if buildErr != nil {
		return nil, multierr.Append(err, buildErr)
	}
	l.current = s
	if err != nil {
		log.Warn("previous notification session closed with errors", zap.Error(err))
	}
	log.Info("notification session started", zap.String("user_id", userID))
	return s, nil
}

// Logout tears down the active session.
func (l *Lifecycle) Logout() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.current == nil {
		return nil
	}
	userID := l.current.UserID
	err := l.current.close()
	log.Info("notification session stopped", zap.String("user_id", userID), zap.Error(err))
	l.current = nil
	for _, hook := range l.logoutHooks {
		hook(userID)
	}
	return err
}

func (l *Lifecycle) build(userID string) (*UserSession, error) {
	d := domain.NewDiscriminator()
	router := NewRouter(userID, l.clock, l.cfg.Router)
	s := &UserSession{
		UserID:        userID,
		Router:        router,
		Discriminator: d,
		Connection:    NewConnection(userID, l.cfg.Channels, l.transport, d, router, l.clock, l.cfg.Reconnect),
	}
	if len(l.polls) > 0 && l.cfg.PollInterval > 0 {
		s.Poller = NewPoller(userID, router, l.clock, l.cfg.PollInterval, l.polls...)
	}
	if l.external != nil {
		ext, err := l.external(userID, d)
		if err != nil {
			return nil, err
		}
		s.external = ext
	}

	for _, hook := range l.hooks {
		hook(s)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done.Add(1)
	go func() {
		defer s.done.Done()
		router.Run(ctx)
	}()
	if s.external != nil {
		s.done.Add(1)
		go func() {
			defer s.done.Done()
			if err := s.external.Run(ctx, router); err != nil && ctx.Err() == nil {
				log.Error("external notification source stopped", zap.String("user_id", userID), zap.Error(err))
			}
		}()
	}
	s.Connection.Start()
	if s.Poller != nil {
		s.Poller.Start()
	}
	return s, nil
}

func (s *UserSession) close() error {
	var err error
	err = multierr.Append(err, s.Connection.Close())
	if s.Poller != nil {
		err = multierr.Append(err, s.Poller.Close())
	}
	if s.external != nil {
		err = multierr.Append(err, s.external.Close())
	}
	s.cancel()
	s.done.Wait()
	return err
}
