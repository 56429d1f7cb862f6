package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	notification "github.com/cristianortiz/auctionSettlement/internal/notification/domain"
	"github.com/cristianortiz/auctionSettlement/internal/offer/domain"
	"github.com/cristianortiz/auctionSettlement/internal/shared/apperror"
	"github.com/cristianortiz/auctionSettlement/internal/shared/scheduler"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)

type fakeGateway struct {
	mu        sync.Mutex
	accepted  []string
	declined  []string
	tracked   map[string]string
	ListFn    func() ([]domain.Offer, error)
	AcceptFn  func(id string) error
	DeclineFn func(id string) error
}

func newFakeGateway() *fakeGateway { return &fakeGateway{tracked: map[string]string{}} }

func (f *fakeGateway) ListOffers(context.Context) ([]domain.Offer, error) {
	if f.ListFn != nil {
		return f.ListFn()
	}
	return nil, nil
}

func (f *fakeGateway) AcceptOffer(_ context.Context, id string) error {
	f.mu.Lock()
	f.accepted = append(f.accepted, id)
	f.mu.Unlock()
	if f.AcceptFn != nil {
		return f.AcceptFn(id)
	}
	return nil
}

func (f *fakeGateway) DeclineOffer(_ context.Context, id string) error {
	f.mu.Lock()
	f.declined = append(f.declined, id)
	f.mu.Unlock()
	if f.DeclineFn != nil {
		return f.DeclineFn(id)
	}
	return nil
}

func (f *fakeGateway) TrackOfferDecline(_ context.Context, id, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tracked[id] = reason
	return nil
}

func offer(id string, left time.Duration) domain.Offer {
	return domain.Offer{ID: id, AuctionID: "a-1", UserID: "u-1", Amount: 200, ResponseDeadline: start.Add(left)}
}

func newService() (*Service, *fakeGateway, *scheduler.Fake) {
	clock := scheduler.NewFake(start)
	gw := newFakeGateway()
	return NewService(gw, clock, time.Second), gw, clock
}

func TestService_UnansweredOfferIsDeclinedOnce(t *testing.T) {
	svc, gw, clock := newService()
	t.Cleanup(func() { _ = svc.Close() })

	var views []OfferView
	svc.OnChange(func(v OfferView) { views = append(views, v) })

	view, err := svc.Open(offer("o-1", 3*time.Second))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusWaiting, view.Offer.Status)
	assert.Equal(t, 3*time.Second, view.Remaining)
	assert.Equal(t, int64(3000), view.RemainingMs)

	clock.Advance(2 * time.Second)
	assert.Empty(t, gw.declined)
	clock.Advance(time.Second)
	clock.Advance(time.Minute)

	assert.Equal(t, []string{"o-1"}, gw.declined)
	assert.Equal(t, expiredReason, gw.tracked["o-1"])
	got, err := svc.Get("o-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExpired, got.Offer.Status)
	assert.Equal(t, domain.StatusExpired, views[len(views)-1].Offer.Status)

	_, err = svc.Accept(context.Background(), "o-1")
	assert.ErrorIs(t, err, apperror.ErrConflict)
	assert.Empty(t, gw.accepted)
}

func TestService_AcceptStopsTheCountdown(t *testing.T) {
	svc, gw, clock := newService()
	t.Cleanup(func() { _ = svc.Close() })

	_, err := svc.Open(offer("o-1", 5*time.Second))
	require.NoError(t, err)
	clock.Advance(time.Second)

	view, err := svc.Accept(context.Background(), "o-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAccepted, view.Offer.Status)
	assert.Equal(t, 0, clock.Pending())

	clock.Advance(time.Hour)
	assert.Empty(t, gw.declined)

	_, err = svc.Decline(context.Background(), "o-1", "too late")
	assert.ErrorIs(t, err, domain.ErrOfferNotWaiting)
}

func TestService_DeclineTracksTheReason(t *testing.T) {
	svc, gw, _ := newService()
	t.Cleanup(func() { _ = svc.Close() })

	_, err := svc.Open(offer("o-1", time.Minute))
	require.NoError(t, err)

	view, err := svc.Decline(context.Background(), "o-1", "dates no longer work")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDeclined, view.Offer.Status)
	assert.Equal(t, []string{"o-1"}, gw.declined)
	assert.Equal(t, "dates no longer work", gw.tracked["o-1"])
}

func TestService_FailedAcceptWaitsAgain(t *testing.T) {
	svc, gw, clock := newService()
	t.Cleanup(func() { _ = svc.Close() })
	gw.AcceptFn = func(string) error { return apperror.New(apperror.KindNetwork, "BACKEND_UNAVAILABLE", "503") }

	_, err := svc.Open(offer("o-1", 5*time.Second))
	require.NoError(t, err)

	_, err = svc.Accept(context.Background(), "o-1")
	assert.ErrorIs(t, err, apperror.ErrNetwork)
	got, _ := svc.Get("o-1")
	assert.Equal(t, domain.StatusWaiting, got.Offer.Status)

	// the restarted countdown still expires on the original deadline
	clock.Advance(5 * time.Second)
	got, _ = svc.Get("o-1")
	assert.Equal(t, domain.StatusExpired, got.Offer.Status)
}

func TestService_OpenIsIdempotentAndValidates(t *testing.T) {
	svc, _, clock := newService()
	t.Cleanup(func() { _ = svc.Close() })

	_, err := svc.Open(offer("o-1", time.Minute))
	require.NoError(t, err)
	_, err = svc.Open(offer("o-1", time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, clock.Pending())

	_, err = svc.Open(domain.Offer{ID: "o-2"})
	assert.ErrorIs(t, err, domain.ErrInvalidOffer)

	_, err = svc.Get("nope")
	assert.ErrorIs(t, err, domain.ErrOfferNotFound)
}

func TestService_CloseStopsEveryCountdown(t *testing.T) {
	svc, gw, clock := newService()
	for _, id := range []string{"o-1", "o-2"} {
		_, err := svc.Open(offer(id, time.Second))
		require.NoError(t, err)
	}
	require.NoError(t, svc.Close())

	assert.Equal(t, 0, clock.Pending())
	clock.Advance(time.Hour)
	assert.Empty(t, gw.declined)

	_, err := svc.Open(offer("o-3", time.Second))
	assert.ErrorIs(t, err, apperror.ErrConflict)
}

func TestService_LoadOpensWaitingOffers(t *testing.T) {
	svc, gw, _ := newService()
	t.Cleanup(func() { _ = svc.Close() })
	answered := offer("o-2", time.Minute)
	answered.Status = domain.StatusAccepted
	gw.ListFn = func() ([]domain.Offer, error) { return []domain.Offer{offer("o-1", time.Minute), answered}, nil }

	require.NoError(t, svc.Load(context.Background()))
	_, err := svc.Get("o-1")
	assert.NoError(t, err)
	_, err = svc.Get("o-2")
	assert.ErrorIs(t, err, domain.ErrOfferNotFound)

	gw.ListFn = func() ([]domain.Offer, error) { return nil, errors.New("boom") }
	assert.Error(t, svc.Load(context.Background()))
}

func TestService_HandleNotificationOpensTheOffer(t *testing.T) {
	svc, _, _ := newService()
	t.Cleanup(func() { _ = svc.Close() })

	msg := &notification.SecondChanceOffer{
		BaseMessage:      notification.BaseMessage{Type: notification.TypeSecondChanceOffer},
		OfferID:          "o-9",
		AuctionID:        "a-1",
		UserID:           "u-1",
		OfferedNights:    []string{"2025-08-01"},
		Amount:           decimal.NewFromInt(150),
		ResponseDeadline: start.Add(time.Minute),
	}
	require.NoError(t, svc.HandleNotification(context.Background(), msg))

	view, err := svc.Get("o-9")
	require.NoError(t, err)
	assert.Equal(t, int64(150), view.Offer.Amount)
	assert.Equal(t, domain.StatusWaiting, view.Offer.Status)
	assert.NoError(t, svc.HandleNotification(context.Background(), &notification.BookingConfirmed{}))
}
