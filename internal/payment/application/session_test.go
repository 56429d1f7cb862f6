package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cristianortiz/auctionSettlement/internal/payment/domain"
	"github.com/cristianortiz/auctionSettlement/internal/payment/infra/repository/memory"
	"github.com/cristianortiz/auctionSettlement/internal/shared/apperror"
	"github.com/cristianortiz/auctionSettlement/internal/shared/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGateway struct {
	mu           sync.Mutex
	createCalls  []domain.CreateRequest
	verifyCalls  []string
	CreateFn     func(req domain.CreateRequest) (*domain.CreateResult, error)
	VerifyFn     func(call int, txID string) (*domain.StatusResult, error)
	GetBookingFn func(paymentID string) (*domain.Booking, error)
}

func (f *fakeGateway) CreatePayment(_ context.Context, req domain.CreateRequest) (*domain.CreateResult, error) {
	f.mu.Lock()
	f.createCalls = append(f.createCalls, req)
	f.mu.Unlock()
	if f.CreateFn != nil {
		return f.CreateFn(req)
	}
	return &domain.CreateResult{SessionID: "s-1", TransactionID: "tx-1", RedirectURL: "https://pay.example/o/1", Amount: req.Amount}, nil
}

func (f *fakeGateway) VerifyPayment(_ context.Context, txID string) (*domain.StatusResult, error) {
	f.mu.Lock()
	f.verifyCalls = append(f.verifyCalls, txID)
	call := len(f.verifyCalls)
	f.mu.Unlock()
	if f.VerifyFn != nil {
		return f.VerifyFn(call, txID)
	}
	return &domain.StatusResult{Status: domain.ServerPaid}, nil
}

func (f *fakeGateway) GetBooking(_ context.Context, paymentID string) (*domain.Booking, error) {
	if f.GetBookingFn != nil {
		return f.GetBookingFn(paymentID)
	}
	return &domain.Booking{ID: "b-1"}, nil
}

func (f *fakeGateway) verifies() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.verifyCalls)
}

type fakeCreds struct{ ok bool }

func (c *fakeCreds) Authenticated() bool { return c.ok }

type recorder struct {
	states    []domain.State
	redirects []string
	logins    []string
	successes []string
	failures  []error
}

func (r *recorder) observer() Observer {
	return Observer{
		OnStateChange:   func(m domain.Machine) { r.states = append(r.states, m.State) },
		OnRedirect:      func(url string) { r.redirects = append(r.redirects, url) },
		OnLoginRequired: func(locator string) { r.logins = append(r.logins, locator) },
		OnSuccess:       func(tx string) { r.successes = append(r.successes, tx) },
		OnFailure:       func(err error) { r.failures = append(r.failures, err) },
	}
}

var testPolicy = domain.Policy{
	MaxAttempts:   10,
	PendingDelay:  3 * time.Second,
	ErrorDelay:    5 * time.Second,
	RedirectDelay: time.Second,
	MaxAmount:     100000000,
}

type harness struct {
	clock   *scheduler.Fake
	gateway *fakeGateway
	store   *memory.ReturnContextRepository
	creds   *fakeCreds
	rec     *recorder
	session *Session
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		clock:   scheduler.NewFake(time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)),
		gateway: &fakeGateway{},
		creds:   &fakeCreds{ok: true},
		rec:     &recorder{},
	}
	h.store = memory.NewReturnContextRepository(h.clock)
	h.session = h.newSession()
	t.Cleanup(func() { _ = h.session.Close() })
	return h
}

func (h *harness) newSession() *Session {
	s := NewSession("user-1", h.gateway, h.store, h.clock, h.creds, testPolicy, "VND")
	s.Subscribe(h.rec.observer())
	return s
}

var booking = domain.BookingContext{AuctionID: "a-1", Nights: []string{"2025-08-01", "2025-08-02"}, OrderInfo: "2 nights"}

// toVerifying starts a payment and comes back from the provider.
func (h *harness) toVerifying(t *testing.T) {
	t.Helper()
	_, err := h.session.Start(StartRequest{Amount: 300, Context: booking})
	require.NoError(t, err)
	h.clock.RunDue()
	require.Equal(t, domain.StateRedirecting, h.session.Machine().State)
	h.clock.Advance(time.Second)
	require.Equal(t, []string{"https://pay.example/o/1"}, h.rec.redirects)

	_, err = h.session.HandleReturn(context.Background(), ReturnParams{TransactionID: "tx-1"})
	require.NoError(t, err)
}

func TestSession_PaysAfterNinePendingChecks(t *testing.T) {
	h := newHarness(t)
	h.gateway.VerifyFn = func(call int, _ string) (*domain.StatusResult, error) {
		if call < 10 {
			return &domain.StatusResult{Status: domain.ServerPending}, nil
		}
		return &domain.StatusResult{Status: domain.ServerPaid}, nil
	}
	h.toVerifying(t)

	h.clock.RunDue()
	assert.Equal(t, 1, h.gateway.verifies())
	for i := 2; i <= 10; i++ {
		h.clock.Advance(3 * time.Second)
		assert.Equal(t, i, h.gateway.verifies())
	}

	m := h.session.Machine()
	assert.Equal(t, domain.StateCompleted, m.State)
	assert.Equal(t, 10, m.Attempts)
	assert.Equal(t, []string{"tx-1"}, h.rec.successes)
	assert.Empty(t, h.rec.failures)
	assert.Equal(t, 0, h.clock.Pending())

	h.clock.Advance(time.Hour)
	assert.Equal(t, 10, h.gateway.verifies())
}

func TestSession_TimesOutWithoutAnEleventhCheck(t *testing.T) {
	h := newHarness(t)
	h.gateway.VerifyFn = func(int, string) (*domain.StatusResult, error) {
		return &domain.StatusResult{Status: domain.ServerPending}, nil
	}
	h.toVerifying(t)

	h.clock.RunDue()
	h.clock.Advance(time.Hour)

	assert.Equal(t, 10, h.gateway.verifies())
	m := h.session.Machine()
	assert.Equal(t, domain.StateFailed, m.State)
	require.Len(t, h.rec.failures, 1)
	assert.ErrorIs(t, h.rec.failures[0], apperror.ErrTimeout)
	action, _ := apperror.UserFacing(h.rec.failures[0])
	assert.Equal(t, apperror.ActionVerifyStatus, action)
}

func TestSession_NetworkErrorsRetryWithErrorDelay(t *testing.T) {
	h := newHarness(t)
	h.gateway.VerifyFn = func(call int, _ string) (*domain.StatusResult, error) {
		if call == 1 {
			return nil, errors.New("connection reset")
		}
		return &domain.StatusResult{Status: domain.ServerPaid}, nil
	}
	h.toVerifying(t)
	h.clock.RunDue()
	assert.Equal(t, 1, h.gateway.verifies())

	h.clock.Advance(3 * time.Second)
	assert.Equal(t, 1, h.gateway.verifies())
	h.clock.Advance(2 * time.Second)
	assert.Equal(t, 2, h.gateway.verifies())
	assert.Equal(t, domain.StateCompleted, h.session.Machine().State)
	assert.Equal(t, 2, h.session.Machine().Attempts)
}

func TestSession_InvalidAmountNeverCallsBackend(t *testing.T) {
	h := newHarness(t)

	m, err := h.session.Start(StartRequest{Amount: 0, Context: booking})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	assert.Equal(t, domain.StateIdle, m.State)

	h.clock.Advance(time.Minute)
	assert.Empty(t, h.gateway.createCalls)
}

func TestSession_CreateRequestCarriesSelectionAndKey(t *testing.T) {
	h := newHarness(t)
	calls := 0
	h.gateway.CreateFn = func(req domain.CreateRequest) (*domain.CreateResult, error) {
		calls++
		if calls == 1 {
			return nil, apperror.Wrap(apperror.KindNetwork, "", errors.New("503"))
		}
		return &domain.CreateResult{TransactionID: "tx-2", RedirectURL: "https://pay.example/o/2"}, nil
	}

	_, err := h.session.Start(StartRequest{Amount: 300, Context: booking})
	require.NoError(t, err)
	h.clock.RunDue()
	assert.Equal(t, domain.StateFailed, h.session.Machine().State)

	_, err = h.session.Retry()
	require.NoError(t, err)
	_, err = h.session.Start(StartRequest{Amount: 300, Context: booking})
	require.NoError(t, err)
	h.clock.RunDue()

	require.Len(t, h.gateway.createCalls, 2)
	first, second := h.gateway.createCalls[0], h.gateway.createCalls[1]
	assert.Equal(t, "a-1", first.AuctionID)
	assert.Equal(t, booking.Nights, first.SelectedNights)
	assert.Equal(t, domain.Amount(300), first.Amount)
	assert.NotEmpty(t, first.IdempotencyKey)
	assert.Equal(t, first.IdempotencyKey, second.IdempotencyKey)
	assert.Equal(t, "tx-2", h.session.Machine().TransactionID)
}

func TestSession_DifferentSelectionGetsFreshKey(t *testing.T) {
	h := newHarness(t)
	h.gateway.CreateFn = func(req domain.CreateRequest) (*domain.CreateResult, error) {
		if req.AuctionID == "a-1" {
			return nil, apperror.Wrap(apperror.KindNetwork, "", errors.New("503"))
		}
		return &domain.CreateResult{TransactionID: "tx-2", RedirectURL: "https://pay.example/o/2"}, nil
	}

	_, err := h.session.Start(StartRequest{Amount: 300, Context: booking})
	require.NoError(t, err)
	h.clock.RunDue()
	require.Equal(t, domain.StateFailed, h.session.Machine().State)

	_, err = h.session.Retry()
	require.NoError(t, err)
	other := domain.BookingContext{AuctionID: "a-2", Nights: []string{"2025-09-10"}}
	_, err = h.session.Start(StartRequest{Amount: 999, Context: other})
	require.NoError(t, err)
	h.clock.RunDue()

	require.Len(t, h.gateway.createCalls, 2)
	first, second := h.gateway.createCalls[0], h.gateway.createCalls[1]
	assert.Equal(t, "a-2", second.AuctionID)
	assert.Equal(t, domain.Amount(999), second.Amount)
	assert.NotEqual(t, first.IdempotencyKey, second.IdempotencyKey)
}

func TestSession_ResetDropsThePendingKey(t *testing.T) {
	h := newHarness(t)
	h.gateway.CreateFn = func(domain.CreateRequest) (*domain.CreateResult, error) {
		return nil, apperror.Wrap(apperror.KindNetwork, "", errors.New("503"))
	}

	_, err := h.session.Start(StartRequest{Amount: 300, Context: booking})
	require.NoError(t, err)
	h.clock.RunDue()
	_, err = h.session.Retry()
	require.NoError(t, err)
	require.NoError(t, h.session.Reset())
	_, err = h.session.Start(StartRequest{Amount: 300, Context: booking})
	require.NoError(t, err)
	h.clock.RunDue()

	require.Len(t, h.gateway.createCalls, 2)
	assert.NotEqual(t, h.gateway.createCalls[0].IdempotencyKey, h.gateway.createCalls[1].IdempotencyKey)
}

func TestSession_ResponseWithoutOrderURLFails(t *testing.T) {
	h := newHarness(t)
	h.gateway.CreateFn = func(domain.CreateRequest) (*domain.CreateResult, error) {
		return &domain.CreateResult{TransactionID: "tx-1"}, nil
	}
	_, err := h.session.Start(StartRequest{Amount: 300, Context: booking})
	require.NoError(t, err)
	h.clock.RunDue()

	assert.Equal(t, domain.StateFailed, h.session.Machine().State)
	require.Len(t, h.rec.failures, 1)
	assert.ErrorIs(t, h.rec.failures[0], apperror.ErrProvider)
}

func TestSession_LoginRoundTripResumesCreation(t *testing.T) {
	h := newHarness(t)
	h.creds.ok = false

	m, err := h.session.Start(StartRequest{Amount: 300, Context: booking})
	require.NoError(t, err)
	assert.Equal(t, domain.StateAuthRequired, m.State)
	require.Len(t, h.rec.logins, 1)
	assert.Empty(t, h.gateway.createCalls)

	_, err = h.session.ResumeAfterLogin(context.Background(), h.rec.logins[0])
	assert.ErrorIs(t, err, domain.ErrLoginRequired)

	h.creds.ok = true
	m, err = h.session.ResumeAfterLogin(context.Background(), h.rec.logins[0])
	require.NoError(t, err)
	assert.Equal(t, domain.StateCreating, m.State)
	h.clock.RunDue()
	require.Len(t, h.gateway.createCalls, 1)
	assert.Equal(t, booking.Nights, h.gateway.createCalls[0].SelectedNights)
	assert.Equal(t, domain.StateRedirecting, h.session.Machine().State)
}

func TestSession_AuthExpiryDuringVerifyPreservesAttempts(t *testing.T) {
	h := newHarness(t)
	h.gateway.VerifyFn = func(call int, _ string) (*domain.StatusResult, error) {
		switch {
		case call <= 2:
			return &domain.StatusResult{Status: domain.ServerPending}, nil
		case call == 3:
			return nil, apperror.New(apperror.KindAuthRequired, "AUTH_TOKEN_ERROR", "token expired")
		default:
			return &domain.StatusResult{Status: domain.ServerPaid}, nil
		}
	}
	h.toVerifying(t)
	h.clock.RunDue()
	h.clock.Advance(6 * time.Second)
	require.Equal(t, domain.StateAuthRequired, h.session.Machine().State)
	require.Len(t, h.rec.logins, 1)

	// the login page reloads the daemon's view with a fresh session
	fresh := h.newSession()
	defer fresh.Close()
	m, err := fresh.ResumeAfterLogin(context.Background(), h.rec.logins[0])
	require.NoError(t, err)
	assert.Equal(t, domain.StateVerifying, m.State)
	assert.Equal(t, 4, m.Attempts)

	h.clock.RunDue()
	assert.Equal(t, domain.StateCompleted, fresh.Machine().State)
	_, err = h.store.Load(context.Background(), h.rec.logins[0])
	assert.ErrorIs(t, err, domain.ErrContextNotFound)
}

func TestSession_ProviderReturnOnFreshSession(t *testing.T) {
	h := newHarness(t)
	_, err := h.session.Start(StartRequest{Amount: 300, Context: booking})
	require.NoError(t, err)
	h.clock.RunDue()
	locator := h.session.Machine().Locator

	fresh := h.newSession()
	defer fresh.Close()
	m, err := fresh.HandleReturn(context.Background(), ReturnParams{TransactionID: "tx-1", Locator: locator})
	require.NoError(t, err)
	assert.Equal(t, domain.StateVerifying, m.State)
	assert.Equal(t, "a-1", m.Context.AuctionID)

	h.clock.RunDue()
	assert.Equal(t, domain.StateCompleted, fresh.Machine().State)
}

func TestSession_CloseDropsPendingCheck(t *testing.T) {
	h := newHarness(t)
	h.gateway.VerifyFn = func(int, string) (*domain.StatusResult, error) {
		return &domain.StatusResult{Status: domain.ServerPending}, nil
	}
	h.toVerifying(t)
	h.clock.RunDue()
	assert.Equal(t, 1, h.gateway.verifies())

	require.NoError(t, h.session.Close())
	h.clock.Advance(time.Hour)
	assert.Equal(t, 1, h.gateway.verifies())
	assert.Equal(t, 0, h.clock.Pending())

	_, err := h.session.Retry()
	assert.ErrorIs(t, err, apperror.ErrConflict)
}

func TestSession_LateResultAfterCloseIsDropped(t *testing.T) {
	h := newHarness(t)
	h.gateway.VerifyFn = func(int, string) (*domain.StatusResult, error) {
		// the session goes away while the request is in flight
		_ = h.session.Close()
		return &domain.StatusResult{Status: domain.ServerPaid}, nil
	}
	h.toVerifying(t)
	h.clock.RunDue()

	assert.Equal(t, domain.StateVerifying, h.session.Machine().State)
	assert.Empty(t, h.rec.successes)
}

func TestSession_PushStatusSettlesVerification(t *testing.T) {
	h := newHarness(t)
	h.gateway.VerifyFn = func(int, string) (*domain.StatusResult, error) {
		return &domain.StatusResult{Status: domain.ServerPending}, nil
	}
	h.toVerifying(t)
	h.clock.RunDue()

	m, err := h.session.ApplyPushStatus("tx-1", domain.PushProcessing)
	require.NoError(t, err)
	assert.Equal(t, domain.StateVerifying, m.State)

	m, err = h.session.ApplyPushStatus("tx-1", domain.PushCompleted)
	require.NoError(t, err)
	assert.Equal(t, domain.StateCompleted, m.State)

	h.clock.Advance(time.Minute)
	assert.Equal(t, 1, h.gateway.verifies())
}

func TestSession_PushBeforeReturnStartsVerification(t *testing.T) {
	h := newHarness(t)
	_, err := h.session.Start(StartRequest{Amount: 300, Context: booking})
	require.NoError(t, err)
	h.clock.RunDue()

	m, err := h.session.ApplyPushStatus("tx-1", domain.PushCompleted)
	require.NoError(t, err)
	assert.Equal(t, domain.StateVerifying, m.State)

	h.clock.RunDue()
	assert.Equal(t, domain.StateCompleted, h.session.Machine().State)
	assert.Empty(t, h.rec.redirects)
}

func TestSession_ResetOnlyAfterCompletion(t *testing.T) {
	h := newHarness(t)
	_, err := h.session.Start(StartRequest{Amount: 300, Context: booking})
	require.NoError(t, err)

	assert.ErrorIs(t, h.session.Reset(), apperror.ErrConflict)

	h.clock.RunDue()
	_, err = h.session.HandleReturn(context.Background(), ReturnParams{TransactionID: "tx-1"})
	require.NoError(t, err)
	h.clock.RunDue()
	require.Equal(t, domain.StateCompleted, h.session.Machine().State)

	require.NoError(t, h.session.Reset())
	assert.Equal(t, domain.StateIdle, h.session.Machine().State)
}

func TestParseReturnQuery(t *testing.T) {
	p, err := ParseReturnQuery("apptransid=250801_1&locator=l-1")
	require.NoError(t, err)
	assert.Equal(t, ReturnParams{TransactionID: "250801_1", Locator: "l-1"}, p)

	p, err = ParseReturnQuery("appTransId=250801_2&status=1")
	require.NoError(t, err)
	assert.Equal(t, "250801_2", p.TransactionID)

	_, err = ParseReturnQuery("status=1")
	assert.ErrorIs(t, err, domain.ErrMissingTransaction)
}
