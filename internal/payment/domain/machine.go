package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/cristianortiz/auctionSettlement/internal/shared/apperror"
)

// Policy bounds the machine. Delays only shape the Verify and Redirect effects,
// the machine itself never waits.
type Policy struct {
	MaxAttempts   int
	PendingDelay  time.Duration
	ErrorDelay    time.Duration
	RedirectDelay time.Duration
	MaxAmount     Amount
}

func (p Policy) maxAttempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Machine is the state of one payment attempt. It is a value, Transition
// returns the next one.
type Machine struct {
	State         State
	Amount        Amount
	Currency      string
	Context       BookingContext
	RequestKey    string
	Locator       string
	SessionID     string
	TransactionID string
	RedirectURL   string
	// Attempts counts status checks issued for the current transaction.
	Attempts  int
	LastError error
}

// NewMachine returns an idle machine.
func NewMachine() Machine { return Machine{State: StateIdle} }

// Snapshot captures what a resume needs. Stage is where the flow continues.
func (m Machine) Snapshot(stage State) Snapshot {
	return Snapshot{
		Locator:       m.Locator,
		Stage:         stage,
		Amount:        m.Amount,
		Currency:      m.Currency,
		Context:       m.Context,
		RequestKey:    m.RequestKey,
		SessionID:     m.SessionID,
		TransactionID: m.TransactionID,
		Attempts:      m.Attempts,
	}
}

// Transition is total: every (state, event) pair yields a machine and the
// effects to run. An event that does not apply leaves the state unchanged,
// sets a conflict error and yields no effects.
func Transition(m Machine, ev Event, p Policy) (Machine, []Effect) {
	switch m.State {
	case StateIdle:
		return fromIdle(m, ev, p)
	case StateCreating:
		return fromCreating(m, ev, p)
	case StateRedirecting:
		return fromRedirecting(m, ev, p)
	case StateVerifying:
		return fromVerifying(m, ev, p)
	case StateAuthRequired:
		if e, ok := ev.(Resume); ok {
			return resume(m, e.Snapshot, p)
		}
	case StateFailed:
		if _, ok := ev.(Retry); ok {
			next := Machine{
				State:    StateIdle,
				Amount:   m.Amount,
				Currency: m.Currency,
				Context:  m.Context,
			}
			return next, nil
		}
	}
	return conflict(m, ev)
}

func fromIdle(m Machine, ev Event, p Policy) (Machine, []Effect) {
	switch e := ev.(type) {
	case Start:
		if err := e.Amount.Validate(p.MaxAmount); err != nil {
			m.LastError = err
			return m, nil
		}
		m = Machine{
			State:      StateCreating,
			Amount:     e.Amount,
			Currency:   e.Currency,
			Context:    e.Context,
			RequestKey: e.RequestKey,
			Locator:    e.Locator,
		}
		if !e.Authenticated {
			return requireLogin(m, StateCreating, ErrLoginRequired)
		}
		return m, []Effect{createEffect(m)}
	case Returned:
		if e.TransactionID == "" {
			m.LastError = ErrMissingTransaction
			return m, nil
		}
		m.TransactionID = e.TransactionID
		m.LastError = nil
		return startVerifying(m, 0, p)
	case Resume:
		return resume(m, e.Snapshot, p)
	}
	return conflict(m, ev)
}

func fromCreating(m Machine, ev Event, p Policy) (Machine, []Effect) {
	switch e := ev.(type) {
	case Created:
		m.State = StateRedirecting
		m.SessionID = e.SessionID
		m.TransactionID = e.TransactionID
		m.RedirectURL = e.RedirectURL
		m.LastError = nil
		return m, []Effect{
			SaveContext{Snapshot: m.Snapshot(StateVerifying)},
			Redirect{URL: e.RedirectURL, Delay: p.RedirectDelay},
		}
	case CreateFailed:
		if apperror.KindOf(e.Err) == apperror.KindAuthRequired {
			return requireLogin(m, StateCreating, e.Err)
		}
		return fail(m, creationError(e.Err))
	}
	return conflict(m, ev)
}

func fromRedirecting(m Machine, ev Event, p Policy) (Machine, []Effect) {
	e, ok := ev.(Returned)
	if !ok {
		return conflict(m, ev)
	}
	tx := e.TransactionID
	if tx == "" {
		tx = m.TransactionID
	}
	if tx == "" {
		m.LastError = ErrMissingTransaction
		return m, nil
	}
	m.TransactionID = tx
	return startVerifying(m, 0, p)
}

func fromVerifying(m Machine, ev Event, p Policy) (Machine, []Effect) {
	switch e := ev.(type) {
	case Verified:
		if e.TransactionID != "" && m.TransactionID != "" && e.TransactionID != m.TransactionID {
			return conflict(m, ev)
		}
		outcome, err := Reconcile(e.Status)
		switch outcome {
		case OutcomePaid:
			m.State = StateCompleted
			m.LastError = nil
			return m, []Effect{
				Succeeded{TransactionID: m.TransactionID},
				DiscardContext{Locator: m.Locator},
			}
		case OutcomeFailed:
			return fail(m, err)
		default:
			return nextCheck(m, p.PendingDelay, p)
		}
	case VerifyFailed:
		if apperror.KindOf(e.Err) == apperror.KindAuthRequired {
			return requireLogin(m, StateVerifying, e.Err)
		}
		// transport trouble consumes an attempt like a pending answer does
		m.LastError = e.Err
		return nextCheck(m, p.ErrorDelay, p)
	}
	return conflict(m, ev)
}

// startVerifying enters verifying and issues the first status check.
func startVerifying(m Machine, delay time.Duration, p Policy) (Machine, []Effect) {
	m.State = StateVerifying
	return nextCheck(m, delay, p)
}

// nextCheck issues one more status check, or fails with a timeout once the
// bound is reached. No check is ever issued past the bound.
func nextCheck(m Machine, delay time.Duration, p Policy) (Machine, []Effect) {
	if m.Attempts >= p.maxAttempts() {
		return fail(m, ErrVerifyTimeout)
	}
	m.Attempts++
	return m, []Effect{Verify{TransactionID: m.TransactionID, Delay: delay, Attempt: m.Attempts}}
}

func resume(m Machine, snap Snapshot, p Policy) (Machine, []Effect) {
	next := Machine{
		Amount:        snap.Amount,
		Currency:      snap.Currency,
		Context:       snap.Context,
		RequestKey:    snap.RequestKey,
		Locator:       snap.Locator,
		SessionID:     snap.SessionID,
		TransactionID: snap.TransactionID,
		Attempts:      snap.Attempts,
	}
	switch {
	case snap.TransactionID != "":
		return startVerifying(next, 0, p)
	case snap.Amount > 0:
		if err := snap.Amount.Validate(p.MaxAmount); err != nil {
			m.LastError = err
			return m, nil
		}
		next.State = StateCreating
		return next, []Effect{createEffect(next)}
	default:
		m.LastError = ErrNothingToResume
		return m, nil
	}
}

func requireLogin(m Machine, stage State, cause error) (Machine, []Effect) {
	m.State = StateAuthRequired
	m.LastError = cause
	return m, []Effect{
		SaveContext{Snapshot: m.Snapshot(stage)},
		RequireLogin{Locator: m.Locator},
	}
}

func fail(m Machine, err error) (Machine, []Effect) {
	m.State = StateFailed
	m.LastError = err
	return m, []Effect{Failed{Err: err}}
}

func createEffect(m Machine) Effect {
	return CreateSession{Amount: m.Amount, Currency: m.Currency, Context: m.Context, RequestKey: m.RequestKey}
}

// creationError keeps typed errors and files anything else as a creation failure.
func creationError(err error) error {
	var ae *apperror.Error
	if errors.As(err, &ae) {
		return err
	}
	return &apperror.Error{Kind: apperror.KindNetwork, Code: CodeCreationFailed, Message: "unable to create payment", Err: err}
}

func conflict(m Machine, ev Event) (Machine, []Effect) {
	m.LastError = apperror.Conflict(CodeInvalidEvent, "event %s is not valid in state %s", ev.eventName(), m.State)
	return m, nil
}

// String is used in logs.
func (m Machine) String() string {
	return fmt.Sprintf("state=%s tx=%s attempts=%d", m.State, m.TransactionID, m.Attempts)
}
