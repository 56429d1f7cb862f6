package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/cristianortiz/auctionSettlement/internal/shared/apperror"
	"github.com/peterldowns/testy/check"
)

var policy = Policy{
	MaxAttempts:   10,
	PendingDelay:  3 * time.Second,
	ErrorDelay:    5 * time.Second,
	RedirectDelay: time.Second,
	MaxAmount:     100000000,
}

func started(t *testing.T) Machine {
	t.Helper()
	m, effects := Transition(NewMachine(), Start{
		Amount:        300,
		Currency:      "VND",
		Authenticated: true,
		Context:       BookingContext{AuctionID: "a-1", Nights: []string{"2025-08-01"}},
		RequestKey:    "key-1",
		Locator:       "loc-1",
	}, policy)
	check.Equal(t, StateCreating, m.State)
	check.Equal(t, 1, len(effects))
	return m
}

func verifying(t *testing.T) Machine {
	t.Helper()
	m, _ := Transition(started(t), Created{SessionID: "s-1", TransactionID: "tx-1", RedirectURL: "https://pay.example/o/1"}, policy)
	check.Equal(t, StateRedirecting, m.State)
	m, effects := Transition(m, Returned{TransactionID: "tx-1"}, policy)
	check.Equal(t, StateVerifying, m.State)
	check.Equal(t, []Effect{Verify{TransactionID: "tx-1", Delay: 0, Attempt: 1}}, effects)
	return m
}

func TestTransition_StartValidatesAmount(t *testing.T) {
	tests := []struct {
		name   string
		amount Amount
	}{
		{"zero", 0},
		{"negative", -10},
		{"above provider limit", 100000001},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, effects := Transition(NewMachine(), Start{Amount: tt.amount, Authenticated: true}, policy)
			check.Equal(t, StateIdle, m.State)
			check.Equal(t, 0, len(effects))
			check.True(t, errors.Is(m.LastError, apperror.ErrValidation))
		})
	}
}

func TestTransition_StartCreatesSession(t *testing.T) {
	m, effects := Transition(NewMachine(), Start{Amount: 300, Currency: "VND", Authenticated: true, RequestKey: "key-1"}, policy)
	check.Equal(t, StateCreating, m.State)
	check.Equal(t, []Effect{CreateSession{Amount: 300, Currency: "VND", RequestKey: "key-1"}}, effects)
}

func TestTransition_UnauthenticatedStartSavesContext(t *testing.T) {
	m, effects := Transition(NewMachine(), Start{Amount: 300, Authenticated: false, Locator: "loc-1", RequestKey: "key-1"}, policy)
	check.Equal(t, StateAuthRequired, m.State)
	check.Equal(t, 2, len(effects))

	save, ok := effects[0].(SaveContext)
	check.True(t, ok)
	check.Equal(t, StateCreating, save.Snapshot.Stage)
	check.Equal(t, Amount(300), save.Snapshot.Amount)
	check.Equal(t, Effect(RequireLogin{Locator: "loc-1"}), effects[1])
}

func TestTransition_CreatedRedirectsAfterSaving(t *testing.T) {
	m, effects := Transition(started(t), Created{SessionID: "s-1", TransactionID: "tx-1", RedirectURL: "https://pay.example/o/1"}, policy)
	check.Equal(t, StateRedirecting, m.State)
	check.Equal(t, 2, len(effects))
	save := effects[0].(SaveContext)
	check.Equal(t, "tx-1", save.Snapshot.TransactionID)
	check.Equal(t, StateVerifying, save.Snapshot.Stage)
	check.Equal(t, Effect(Redirect{URL: "https://pay.example/o/1", Delay: time.Second}), effects[1])
}

func TestTransition_CreateFailures(t *testing.T) {
	m, effects := Transition(started(t), CreateFailed{Err: apperror.New(apperror.KindAuthRequired, "AUTH_TOKEN_ERROR", "expired")}, policy)
	check.Equal(t, StateAuthRequired, m.State)
	check.Equal(t, 2, len(effects))

	m, effects = Transition(started(t), CreateFailed{Err: errors.New("dial tcp: refused")}, policy)
	check.Equal(t, StateFailed, m.State)
	check.Equal(t, 1, len(effects))
	check.True(t, errors.Is(m.LastError, &apperror.Error{Kind: apperror.KindNetwork, Code: CodeCreationFailed}))
}

func TestTransition_PendingNineTimesThenPaid(t *testing.T) {
	m := verifying(t)
	calls := 1
	for i := 0; i < 9; i++ {
		var effects []Effect
		m, effects = Transition(m, Verified{Status: ServerPending}, policy)
		check.Equal(t, StateVerifying, m.State)
		check.Equal(t, 1, len(effects))
		v := effects[0].(Verify)
		check.Equal(t, 3*time.Second, v.Delay)
		calls++
		check.Equal(t, calls, v.Attempt)
	}
	check.Equal(t, 10, calls)

	m, effects := Transition(m, Verified{Status: ServerPaid, TransactionID: "tx-1"}, policy)
	check.Equal(t, StateCompleted, m.State)
	check.Equal(t, []Effect{Succeeded{TransactionID: "tx-1"}, DiscardContext{Locator: "loc-1"}}, effects)
	check.Equal(t, 10, m.Attempts)
}

func TestTransition_PendingOnEveryAttemptTimesOut(t *testing.T) {
	m := verifying(t)
	issued := 1
	for {
		var effects []Effect
		m, effects = Transition(m, Verified{Status: ServerPending}, policy)
		if m.State != StateVerifying {
			check.Equal(t, []Effect{Failed{Err: ErrVerifyTimeout}}, effects)
			break
		}
		issued++
	}
	check.Equal(t, 10, issued)
	check.Equal(t, StateFailed, m.State)
	check.True(t, errors.Is(m.LastError, apperror.ErrTimeout))
}

func TestTransition_NetworkErrorsShareTheBound(t *testing.T) {
	m := verifying(t)
	issued := 1
	for i := 0; i < 20 && m.State == StateVerifying; i++ {
		var effects []Effect
		if i%2 == 0 {
			m, effects = Transition(m, VerifyFailed{Err: apperror.Wrap(apperror.KindNetwork, "", errors.New("timeout"))}, policy)
			if len(effects) == 1 {
				if v, ok := effects[0].(Verify); ok {
					check.Equal(t, 5*time.Second, v.Delay)
					issued++
				}
			}
		} else {
			m, effects = Transition(m, Verified{Status: ServerPending}, policy)
			if _, ok := effects[0].(Verify); ok {
				issued++
			}
		}
	}
	check.Equal(t, 10, issued)
	check.Equal(t, StateFailed, m.State)
	check.True(t, errors.Is(m.LastError, ErrVerifyTimeout))
}

func TestTransition_ProviderFailures(t *testing.T) {
	tests := []struct {
		status ServerStatus
		want   error
	}{
		{ServerFailed, ErrPaymentFailed},
		{ServerCancelled, ErrCancelled},
		{ServerExpired, ErrExpired},
		{ServerStatus("REFUNDED"), &apperror.Error{Kind: apperror.KindProvider, Code: CodeUnknownStatus}},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			m, effects := Transition(verifying(t), Verified{Status: tt.status}, policy)
			check.Equal(t, StateFailed, m.State)
			check.Equal(t, 1, len(effects))
			check.True(t, errors.Is(m.LastError, tt.want))
		})
	}
}

func TestTransition_AuthDuringVerifyResumesWithAttempts(t *testing.T) {
	m := verifying(t)
	m, _ = Transition(m, Verified{Status: ServerPending}, policy)
	m, _ = Transition(m, Verified{Status: ServerPending}, policy)
	check.Equal(t, 3, m.Attempts)

	m, effects := Transition(m, VerifyFailed{Err: apperror.New(apperror.KindAuthRequired, "AUTH_FAILED", "")}, policy)
	check.Equal(t, StateAuthRequired, m.State)
	snap := effects[0].(SaveContext).Snapshot
	check.Equal(t, 3, snap.Attempts)

	// a fresh machine after the login round trip
	resumed, effects := Transition(NewMachine(), Resume{Snapshot: snap}, policy)
	check.Equal(t, StateVerifying, resumed.State)
	check.Equal(t, 4, resumed.Attempts)
	check.Equal(t, []Effect{Verify{TransactionID: "tx-1", Delay: 0, Attempt: 4}}, effects)
}

func TestTransition_ResumeCreatingReusesRequestKey(t *testing.T) {
	m, effects := Transition(NewMachine(), Start{Amount: 500, Authenticated: false, RequestKey: "key-9", Locator: "loc-9"}, policy)
	snap := effects[0].(SaveContext).Snapshot

	m, effects = Transition(m, Resume{Snapshot: snap}, policy)
	check.Equal(t, StateCreating, m.State)
	check.Equal(t, []Effect{CreateSession{Amount: 500, RequestKey: "key-9"}}, effects)
}

func TestTransition_ResumeWithExhaustedAttemptsFails(t *testing.T) {
	m, effects := Transition(NewMachine(), Resume{Snapshot: Snapshot{TransactionID: "tx-1", Attempts: 10}}, policy)
	check.Equal(t, StateFailed, m.State)
	check.Equal(t, []Effect{Failed{Err: ErrVerifyTimeout}}, effects)
}

func TestTransition_ReturnedOnFreshMachine(t *testing.T) {
	m, effects := Transition(NewMachine(), Returned{}, policy)
	check.Equal(t, StateIdle, m.State)
	check.Equal(t, 0, len(effects))
	check.True(t, errors.Is(m.LastError, ErrMissingTransaction))

	m, effects = Transition(NewMachine(), Returned{TransactionID: "tx-7"}, policy)
	check.Equal(t, StateVerifying, m.State)
	check.Equal(t, []Effect{Verify{TransactionID: "tx-7", Attempt: 1}}, effects)
}

func TestTransition_RetryOnlyFromFailed(t *testing.T) {
	m, _ := Transition(verifying(t), Verified{Status: ServerCancelled}, policy)
	check.Equal(t, StateFailed, m.State)

	m, effects := Transition(m, Retry{}, policy)
	check.Equal(t, StateIdle, m.State)
	check.Equal(t, 0, len(effects))
	check.Equal(t, 0, m.Attempts)
	check.Equal(t, "", m.TransactionID)
	check.Nil(t, m.LastError)
	check.Equal(t, Amount(300), m.Amount)
}

func TestTransition_InvalidEventsAreConflicts(t *testing.T) {
	completed, _ := Transition(verifying(t), Verified{Status: ServerPaid}, policy)

	tests := []struct {
		name string
		m    Machine
		ev   Event
	}{
		{"retry while idle", NewMachine(), Retry{}},
		{"verified while idle", NewMachine(), Verified{Status: ServerPaid}},
		{"start while creating", started(t), Start{Amount: 1, Authenticated: true}},
		{"created while verifying", verifying(t), Created{}},
		{"start after completion", completed, Start{Amount: 1, Authenticated: true}},
		{"verified after completion", completed, Verified{Status: ServerFailed}},
		{"mismatched transaction", verifying(t), Verified{Status: ServerPaid, TransactionID: "other"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, effects := Transition(tt.m, tt.ev, policy)
			check.Equal(t, tt.m.State, next.State)
			check.Equal(t, tt.m.Attempts, next.Attempts)
			check.Equal(t, 0, len(effects))
			check.True(t, errors.Is(next.LastError, apperror.ErrConflict))
		})
	}
}

func TestReconcile(t *testing.T) {
	tests := []struct {
		status ServerStatus
		want   Outcome
	}{
		{ServerCreated, OutcomePending},
		{ServerPending, OutcomePending},
		{ServerPaid, OutcomePaid},
		{ServerFailed, OutcomeFailed},
		{ServerCancelled, OutcomeFailed},
		{ServerExpired, OutcomeFailed},
		{ServerStatus(""), OutcomeFailed},
	}
	for _, tt := range tests {
		got, _ := Reconcile(tt.status)
		check.Equal(t, tt.want, got)
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in    string
		want  Amount
		valid bool
	}{
		{"300", 300, true},
		{"300.00", 300, true},
		{"300.5", 0, false},
		{"NaN", 0, false},
		{"abc", 0, false},
		{"99999999999999999999999", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAmount(tt.in)
			if tt.valid {
				check.NoError(t, err)
				check.Equal(t, tt.want, got)
				return
			}
			check.True(t, errors.Is(err, ErrInvalidAmount))
		})
	}
}
