package application

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/cristianortiz/auctionSettlement/internal/payment/domain"
	"github.com/cristianortiz/auctionSettlement/internal/shared/apperror"
	"github.com/cristianortiz/auctionSettlement/internal/shared/logger"
	"github.com/cristianortiz/auctionSettlement/internal/shared/scheduler"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var log = logger.GetLogger()

// returnContextTTL bounds how long a login or provider detour may take.
const returnContextTTL = 30 * time.Minute

// Credentials tells whether the user session holds a backend token.
type Credentials interface {
	Authenticated() bool
}

// Observer receives session notifications. Nil funcs are skipped.
type Observer struct {
	OnStateChange   func(m domain.Machine)
	OnRedirect      func(url string)
	OnLoginRequired func(locator string)
	OnSuccess       func(transactionID string)
	OnFailure       func(err error)
}

// StartRequest is a user asking to pay for a selection.
type StartRequest struct {
	Amount  domain.Amount
	Context domain.BookingContext
}

// Session drives one payment machine for one user. It runs the machine's
// effects against the backend, the scheduler and the return-context store.
// Every scheduled call carries the epoch it was issued in; a result that
// arrives after a newer transition or after Close is dropped.
type Session struct {
	gateway  domain.PaymentGateway
	store    domain.ReturnContextStore
	clock    scheduler.Scheduler
	creds    Credentials
	policy   domain.Policy
	currency string
	userID   string

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	machine    domain.Machine
	epoch      uint64
	timer      scheduler.Timer
	pendingKey string
	pendingFor string
	closed     bool
	observers  map[uuid.UUID]Observer
}

func NewSession(userID string, gateway domain.PaymentGateway, store domain.ReturnContextStore, clock scheduler.Scheduler, creds Credentials, policy domain.Policy, currency string) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		gateway:   gateway,
		store:     store,
		clock:     clock,
		creds:     creds,
		policy:    policy,
		currency:  currency,
		userID:    userID,
		ctx:       ctx,
		cancel:    cancel,
		machine:   domain.NewMachine(),
		observers: make(map[uuid.UUID]Observer),
	}
}

// Subscribe registers an observer and returns its unsubscribe func.
func (s *Session) Subscribe(o Observer) func() {
	id := uuid.New()
	s.mu.Lock()
	s.observers[id] = o
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}

// Machine returns a copy of the current machine.
func (s *Session) Machine() domain.Machine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine
}

// Start begins a payment. A create request that failed keeps its idempotency
// key for the same amount and selection, so re-submitting after a retry cannot
// open a second provider order. Any other request gets a fresh key.
func (s *Session) Start(req StartRequest) (domain.Machine, error) {
	s.mu.Lock()
	key := s.pendingKey
	if fp := requestFingerprint(req); key == "" || s.pendingFor != fp {
		key = uuid.NewString()
		s.pendingKey, s.pendingFor = key, fp
	}
	s.mu.Unlock()

	return s.dispatch(domain.Start{
		Amount:        req.Amount,
		Currency:      s.currency,
		Authenticated: s.creds.Authenticated(),
		Context:       req.Context,
		RequestKey:    key,
		Locator:       uuid.NewString(),
	})
}

// HandleReturn continues the flow when the browser comes back from the
// provider. A driver that lost its machine (restart, new tab) rebuilds it
// from the saved context named by the locator.
func (s *Session) HandleReturn(ctx context.Context, p ReturnParams) (domain.Machine, error) {
	if s.Machine().State == domain.StateIdle && p.Locator != "" {
		snap, err := s.store.Load(ctx, p.Locator)
		switch {
		case err == nil:
			if p.TransactionID != "" {
				snap.TransactionID = p.TransactionID
			}
			return s.dispatch(domain.Resume{Snapshot: *snap})
		case !errors.Is(err, domain.ErrContextNotFound):
			log.Warn("failed to load return context", zap.String("locator", p.Locator), zap.Error(err))
		}
	}
	return s.dispatch(domain.Returned{TransactionID: p.TransactionID})
}

// ResumeAfterLogin continues a flow suspended by an auth failure.
func (s *Session) ResumeAfterLogin(ctx context.Context, locator string) (domain.Machine, error) {
	if !s.creds.Authenticated() {
		return s.Machine(), domain.ErrLoginRequired
	}
	snap, err := s.store.Load(ctx, locator)
	if err != nil {
		return s.Machine(), err
	}
	return s.dispatch(domain.Resume{Snapshot: *snap})
}

// Retry is the manual way out of failed.
func (s *Session) Retry() (domain.Machine, error) {
	return s.dispatch(domain.Retry{})
}

// ApplyPushStatus feeds a pushed payment status into the machine. Only
// terminal pushes count. A push that beats the browser back from the provider
// starts verification, which settles the outcome with the backend.
func (s *Session) ApplyPushStatus(transactionID string, status domain.PushStatus) (domain.Machine, error) {
	server, final := domain.ServerStatusOf(status)
	if !final {
		return s.Machine(), nil
	}
	m := s.Machine()
	if transactionID != "" && m.TransactionID != "" && transactionID != m.TransactionID {
		log.Debug("push status for another transaction",
			zap.String("push_transaction_id", transactionID),
			zap.String("transaction_id", m.TransactionID))
		return m, nil
	}
	if m.State == domain.StateRedirecting {
		return s.dispatch(domain.Returned{TransactionID: m.TransactionID})
	}
	return s.dispatch(domain.Verified{Status: server, TransactionID: transactionID})
}

// Reset drops a completed machine so the session can take another payment.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.machine.State {
	case domain.StateCompleted, domain.StateIdle:
		s.stopTimerLocked()
		s.epoch++
		s.machine = domain.NewMachine()
		s.pendingKey, s.pendingFor = "", ""
		return nil
	}
	return apperror.Conflict(domain.CodeInvalidEvent, "cannot reset a payment in state %s", s.machine.State)
}

// Close cancels any pending call and drops every late result.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.stopTimerLocked()
	s.epoch++
	s.cancel()
	return nil
}

func (s *Session) dispatch(ev domain.Event) (domain.Machine, error) {
	return s.apply(ev, false, 0)
}

// dispatchAt applies an event produced by a call issued in epoch.
func (s *Session) dispatchAt(epoch uint64, ev domain.Event) {
	s.apply(ev, true, epoch)
}

func (s *Session) apply(ev domain.Event, guarded bool, epoch uint64) (domain.Machine, error) {
	s.mu.Lock()
	if s.closed {
		m := s.machine
		s.mu.Unlock()
		return m, apperror.Conflict(domain.CodeInvalidEvent, "payment session is closed")
	}
	if guarded && epoch != s.epoch {
		m := s.machine
		s.mu.Unlock()
		log.Debug("dropping stale payment result", zap.String("event", domain.EventName(ev)))
		return m, nil
	}

	prev := s.machine
	next, effects := domain.Transition(prev, ev, s.policy)
	if apperror.KindOf(next.LastError) == apperror.KindConflict && len(effects) == 0 {
		s.mu.Unlock()
		log.Warn("payment event rejected",
			zap.String("event", domain.EventName(ev)),
			zap.String("state", string(prev.State)),
			zap.Error(next.LastError))
		return prev, next.LastError
	}
	s.machine = next
	if len(effects) > 0 || next.State != prev.State {
		s.stopTimerLocked()
		s.epoch++
	}
	if _, ok := ev.(domain.Created); ok {
		s.pendingKey, s.pendingFor = "", ""
	}
	current := s.epoch
	observers := s.observerList()
	s.mu.Unlock()

	log.Info("payment transition",
		zap.String("event", domain.EventName(ev)),
		zap.String("from", string(prev.State)),
		zap.String("to", string(next.State)),
		zap.Int("attempts", next.Attempts),
		zap.String("transaction_id", next.TransactionID),
		zap.Error(next.LastError))

	if next.State != prev.State {
		for _, o := range observers {
			if o.OnStateChange != nil {
				o.OnStateChange(next)
			}
		}
	}
	for _, eff := range effects {
		s.run(eff, current, observers)
	}

	if apperror.KindOf(next.LastError) == apperror.KindValidation && len(effects) == 0 {
		return next, next.LastError
	}
	return next, nil
}

func (s *Session) run(eff domain.Effect, epoch uint64, observers []Observer) {
	switch e := eff.(type) {
	case domain.CreateSession:
		s.schedule(epoch, 0, func() { s.create(e, epoch) })
	case domain.Verify:
		s.schedule(epoch, e.Delay, func() { s.verify(e, epoch) })
	case domain.Redirect:
		s.schedule(epoch, e.Delay, func() {
			for _, o := range observers {
				if o.OnRedirect != nil {
					o.OnRedirect(e.URL)
				}
			}
		})
	case domain.SaveContext:
		snap := e.Snapshot
		snap.UserID = s.userID
		snap.SavedAt = s.clock.Now()
		if err := s.store.Save(s.ctx, snap, returnContextTTL); err != nil {
			log.Error("failed to save return context", zap.String("locator", snap.Locator), zap.Error(err))
		}
	case domain.DiscardContext:
		if err := s.store.Delete(s.ctx, e.Locator); err != nil {
			log.Warn("failed to discard return context", zap.String("locator", e.Locator), zap.Error(err))
		}
	case domain.RequireLogin:
		for _, o := range observers {
			if o.OnLoginRequired != nil {
				o.OnLoginRequired(e.Locator)
			}
		}
	case domain.Succeeded:
		for _, o := range observers {
			if o.OnSuccess != nil {
				o.OnSuccess(e.TransactionID)
			}
		}
	case domain.Failed:
		for _, o := range observers {
			if o.OnFailure != nil {
				o.OnFailure(e.Err)
			}
		}
	}
}

// schedule arms the single pending call of the session.
func (s *Session) schedule(epoch uint64, d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || epoch != s.epoch {
		return
	}
	s.timer = s.clock.AfterFunc(d, func() {
		if !s.current(epoch) {
			return
		}
		fn()
	})
}

func (s *Session) create(e domain.CreateSession, epoch uint64) {
	res, err := s.gateway.CreatePayment(s.ctx, domain.CreateRequest{
		AuctionID:      e.Context.AuctionID,
		SelectedNights: e.Context.Nights,
		Amount:         e.Amount,
		OrderInfo:      e.Context.OrderInfo,
		RedirectParams: e.Context.ReturnURL,
		IdempotencyKey: e.RequestKey,
	})
	switch {
	case err != nil:
		s.dispatchAt(epoch, domain.CreateFailed{Err: err})
	case res.RedirectURL == "" || res.TransactionID == "":
		s.dispatchAt(epoch, domain.CreateFailed{
			Err: apperror.New(apperror.KindProvider, domain.CodeCreationFailed, "payment response carries no order url"),
		})
	default:
		s.dispatchAt(epoch, domain.Created{
			SessionID:     res.SessionID,
			TransactionID: res.TransactionID,
			RedirectURL:   res.RedirectURL,
		})
	}
}

func (s *Session) verify(e domain.Verify, epoch uint64) {
	log.Debug("verifying payment", zap.String("transaction_id", e.TransactionID), zap.Int("attempt", e.Attempt))
	res, err := s.gateway.VerifyPayment(s.ctx, e.TransactionID)
	if err != nil {
		s.dispatchAt(epoch, domain.VerifyFailed{Err: err})
		return
	}
	// the status body carries the provider's own id, the machine tracks ours
	s.dispatchAt(epoch, domain.Verified{Status: res.Status, TransactionID: e.TransactionID})
}

func requestFingerprint(req StartRequest) string {
	return req.Amount.String() + "|" + req.Context.AuctionID + "|" + strings.Join(req.Context.Nights, ",")
}

func (s *Session) current(epoch uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && epoch == s.epoch
}

func (s *Session) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Session) observerList() []Observer {
	list := make([]Observer, 0, len(s.observers))
	for _, o := range s.observers {
		list = append(list, o)
	}
	return list
}
