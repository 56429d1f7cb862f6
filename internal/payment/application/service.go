package application

import (
	"context"
	"errors"
	"sync"

	notification "github.com/cristianortiz/auctionSettlement/internal/notification/domain"
	"github.com/cristianortiz/auctionSettlement/internal/payment/domain"
	"github.com/cristianortiz/auctionSettlement/internal/shared/apperror"
	"github.com/cristianortiz/auctionSettlement/internal/shared/scheduler"
	"go.uber.org/zap"
)

// ErrNoSession is returned when nobody is logged in.
var ErrNoSession = apperror.New(apperror.KindAuthRequired, "NO_PAYMENT_SESSION", "log in to pay")

// PaymentService owns the payment session of the logged-in user.
type PaymentService struct {
	gateway  domain.PaymentGateway
	store    domain.ReturnContextStore
	clock    scheduler.Scheduler
	creds    Credentials
	policy   domain.Policy
	currency string

	mu        sync.Mutex
	session   *Session
	userID    string
	observers []Observer
	// booked is the transaction whose booking was already found.
	booked string
}

func NewPaymentService(gateway domain.PaymentGateway, store domain.ReturnContextStore, clock scheduler.Scheduler, creds Credentials, policy domain.Policy, currency string) *PaymentService {
	return &PaymentService{gateway: gateway, store: store, clock: clock, creds: creds, policy: policy, currency: currency}
}

// Observe subscribes o to the current session and to every later one.
func (p *PaymentService) Observe(o Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, o)
	if p.session != nil {
		p.session.Subscribe(o)
	}
}

// Bind makes userID the owner of the payment session. Binding the same user
// again keeps the running session, binding someone else closes it.
func (p *PaymentService) Bind(userID string) *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session != nil && p.userID == userID {
		return p.session
	}
	if p.session != nil {
		_ = p.session.Close()
	}
	s := NewSession(userID, p.gateway, p.store, p.clock, p.creds, p.policy, p.currency)
	for _, o := range p.observers {
		s.Subscribe(o)
	}
	p.session, p.userID, p.booked = s, userID, ""
	log.Info("payment session bound", zap.String("user_id", userID))
	return s
}

// Unbind closes the session of the user signing out.
func (p *PaymentService) Unbind() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return nil
	}
	err := p.session.Close()
	p.session, p.userID, p.booked = nil, "", ""
	return err
}

func (p *PaymentService) Current() (*Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return nil, ErrNoSession
	}
	return p.session, nil
}

// HandleNotification feeds pushed payment statuses into the current session.
// Statuses the machine cannot use right now are not handler failures.
func (p *PaymentService) HandleNotification(_ context.Context, m notification.Message) error {
	msg, ok := m.(*notification.PaymentStatus)
	if !ok {
		return nil
	}
	s, err := p.Current()
	if err != nil {
		return nil
	}
	tx := msg.TransactionID
	if tx == "" {
		tx = msg.PaymentID
	}
	_, err = s.ApplyPushStatus(tx, domain.PushStatus(msg.Status))
	if errors.Is(err, apperror.ErrConflict) {
		log.Debug("push status ignored", zap.String("payment_id", msg.PaymentID), zap.Error(err))
		return nil
	}
	return err
}

func (p *PaymentService) Close() error { return p.Unbind() }

// Booking reads the booking a completed payment produced.
func (p *PaymentService) Booking(ctx context.Context, paymentID string) (*domain.Booking, error) {
	if _, err := p.Current(); err != nil {
		return nil, err
	}
	return p.gateway.GetBooking(ctx, paymentID)
}

// PollMessages looks up the booking of a completed payment the push channel
// may not have confirmed. A booking the backend has not created yet is
// looked up again on the next poll; one that was found is not.
func (p *PaymentService) PollMessages(ctx context.Context, userID string) ([]notification.Message, error) {
	p.mu.Lock()
	s, owner, booked := p.session, p.userID, p.booked
	p.mu.Unlock()
	if s == nil || owner != userID {
		return nil, nil
	}
	m := s.Machine()
	if m.State != domain.StateCompleted || m.TransactionID == "" || m.TransactionID == booked {
		return nil, nil
	}

	b, err := p.gateway.GetBooking(ctx, m.TransactionID)
	switch {
	case errors.Is(err, apperror.ErrNotFound):
		log.Debug("booking not created yet", zap.String("transaction_id", m.TransactionID))
		return nil, nil
	case err != nil:
		return nil, err
	}

	p.mu.Lock()
	if p.session == s {
		p.booked = m.TransactionID
	}
	p.mu.Unlock()
	return []notification.Message{&notification.BookingConfirmed{
		BaseMessage:  notification.BaseMessage{Type: notification.TypeBookingConfirmed},
		BookingID:    b.ID,
		UserID:       userID,
		PropertyName: b.PropertyName,
		CheckIn:      b.CheckIn,
		CheckOut:     b.CheckOut,
	}}, nil
}
