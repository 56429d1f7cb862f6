package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cristianortiz/auctionSettlement/internal/notification/domain"
	"github.com/cristianortiz/auctionSettlement/internal/shared/apperror"
	"github.com/cristianortiz/auctionSettlement/internal/shared/logger"
	"github.com/cristianortiz/auctionSettlement/internal/shared/scheduler"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var log = logger.GetLogger()

// Source is where a message came from.
type Source string

const (
	SourcePush Source = "push"
	SourcePoll Source = "poll"
	SourceAMQP Source = "amqp"
)

const (
	CodeWrongRecipient = "WRONG_RECIPIENT"
	CodeSuspended      = "ROUTER_SUSPENDED"
	CodeInboxFull      = "ROUTER_INBOX_FULL"
)

var (
	ErrWrongRecipient = &apperror.Error{Kind: apperror.KindProtocol, Code: CodeWrongRecipient}
	ErrSuspended      = &apperror.Error{Kind: apperror.KindConflict, Code: CodeSuspended}
)

// Envelope is a validated message on its way through the router.
type Envelope struct {
	Message domain.Message
	Source  Source
}

// Handler reacts to one routed message.
type Handler func(ctx context.Context, msg domain.Message) error

// Submitter accepts validated messages.
type Submitter interface {
	Submit(env Envelope) error
}

// RouterStats is a snapshot of the router counters.
type RouterStats struct {
	Processed  int                        `json:"processed"`
	Duplicates int                        `json:"duplicates"`
	Rejected   int                        `json:"rejected"`
	Errors     int                        `json:"errors"`
	ByType     map[domain.MessageType]int `json:"byType"`
	Suspended  bool                       `json:"suspended"`
}

type subscription struct {
	id      uuid.UUID
	handler Handler
}

type seenEntry struct {
	key domain.DedupKey
	at  time.Time
}

// Router dispatches validated messages of one user to the handlers
// subscribed to their type, applying each message at most once. The
// de-duplication index is owned by the Run goroutine.
type Router struct {
	userID  string
	clock   scheduler.Scheduler
	window  time.Duration
	history int
	inbox   chan Envelope

	mu        sync.Mutex
	handlers  map[domain.MessageType][]subscription
	suspended bool
	stats     RouterStats

	// owned by Run
	seen  map[domain.DedupKey]time.Time
	order []seenEntry
}

type RouterConfig struct {
	DedupWindow  time.Duration
	DedupHistory int
	Buffer       int
}

func NewRouter(userID string, clock scheduler.Scheduler, cfg RouterConfig) *Router {
	if cfg.Buffer < 1 {
		cfg.Buffer = 1
	}
	return &Router{
		userID:   userID,
		clock:    clock,
		window:   cfg.DedupWindow,
		history:  cfg.DedupHistory,
		inbox:    make(chan Envelope, cfg.Buffer),
		handlers: make(map[domain.MessageType][]subscription),
		stats:    RouterStats{ByType: make(map[domain.MessageType]int)},
		seen:     make(map[domain.DedupKey]time.Time),
	}
}

func (r *Router) UserID() string { return r.userID }

// Subscribe registers h for a message type and returns its unsubscribe func.
func (r *Router) Subscribe(t domain.MessageType, h Handler) func() {
	id := uuid.New()
	r.mu.Lock()
	r.handlers[t] = append(r.handlers[t], subscription{id: id, handler: h})
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		subs := r.handlers[t]
		for i, s := range subs {
			if s.id == id {
				r.handlers[t] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}
}

// Submit queues a message for dispatch. Messages for another user are
// rejected, and so are push messages while the router is suspended.
func (r *Router) Submit(env Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if env.Message == nil {
		r.stats.Rejected++
		return apperror.Protocol(domain.CodeMalformedMessage, "empty envelope")
	}
	if env.Message.Recipient() != r.userID {
		r.stats.Rejected++
		log.Warn("dropping message for another user",
			zap.String("type", string(env.Message.MessageType())),
			zap.String("source", string(env.Source)))
		return apperror.Protocol(CodeWrongRecipient, "message is not addressed to the current user")
	}
	if r.suspended && env.Source == SourcePush {
		r.stats.Rejected++
		return apperror.Conflict(CodeSuspended, "push channel is down, message refused")
	}

	select {
	case r.inbox <- env:
		return nil
	default:
		r.stats.Rejected++
		log.Error("router inbox is full, message dropped",
			zap.String("type", string(env.Message.MessageType())),
			zap.String("key", env.Message.DedupKey().String()))
		return apperror.New(apperror.KindNetwork, CodeInboxFull, "router inbox is full")
	}
}

// Suspend refuses new push messages. Messages already queued still drain.
func (r *Router) Suspend() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.suspended {
		log.Info("router suspended", zap.String("user_id", r.userID))
	}
	r.suspended = true
	r.stats.Suspended = true
}

func (r *Router) Resume() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.suspended {
		log.Info("router resumed", zap.String("user_id", r.userID))
	}
	r.suspended = false
	r.stats.Suspended = false
}

func (r *Router) Stats() RouterStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.stats
	out.ByType = make(map[domain.MessageType]int, len(r.stats.ByType))
	for k, v := range r.stats.ByType {
		out.ByType[k] = v
	}
	return out
}

// Run dispatches queued messages until ctx is done.
func (r *Router) Run(ctx context.Context) {
	log.Info("notification router started", zap.String("user_id", r.userID))
	for {
		select {
		case <-ctx.Done():
			log.Info("notification router stopped", zap.String("user_id", r.userID))
			return
		case env := <-r.inbox:
			r.process(ctx, env)
		}
	}
}

func (r *Router) process(ctx context.Context, env Envelope) {
	key := env.Message.DedupKey()
	now := r.clock.Now()
	if r.isDuplicate(key, now) {
		// a key that keeps arriving stays suppressed
		r.remember(key, now)
		r.mu.Lock()
		r.stats.Duplicates++
		r.mu.Unlock()
		log.Debug("duplicate message ignored", zap.String("key", key.String()), zap.String("source", string(env.Source)))
		return
	}
	r.remember(key, now)

	r.mu.Lock()
	subs := append([]subscription(nil), r.handlers[key.Type]...)
	r.mu.Unlock()

	if len(subs) == 0 {
		log.Debug("no handler for message", zap.String("type", string(key.Type)))
	}
	for _, s := range subs {
		if err := r.call(ctx, s.handler, env.Message); err != nil {
			r.mu.Lock()
			r.stats.Errors++
			r.mu.Unlock()
			log.Error("notification handler failed",
				zap.String("key", key.String()),
				zap.String("source", string(env.Source)),
				zap.Error(err))
		}
	}

	r.mu.Lock()
	r.stats.Processed++
	r.stats.ByType[key.Type]++
	r.mu.Unlock()
}

// call runs one handler, turning a panic into an error.
func (r *Router) call(ctx context.Context, h Handler, msg domain.Message) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler panic: %v", p)
		}
	}()
	return h(ctx, msg)
}

func (r *Router) isDuplicate(key domain.DedupKey, now time.Time) bool {
	at, ok := r.seen[key]
	return ok && now.Sub(at) < r.window
}

// remember records key as last seen at now and keeps at most history
// entries, least recently seen out first.
func (r *Router) remember(key domain.DedupKey, now time.Time) {
	if _, ok := r.seen[key]; ok {
		for i, e := range r.order {
			if e.key == key {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
	}
	r.seen[key] = now
	r.order = append(r.order, seenEntry{key: key, at: now})
	for r.history > 0 && len(r.order) > r.history {
		oldest := r.order[0]
		r.order = r.order[1:]
		if at, ok := r.seen[oldest.key]; ok && at.Equal(oldest.at) {
			delete(r.seen, oldest.key)
		}
	}
}
