package domain

import (
	"context"
	"time"
)

type Status string

const (
	StatusWaiting  Status = "WAITING"
	StatusAccepted Status = "ACCEPTED"
	StatusDeclined Status = "DECLINED"
	StatusExpired  Status = "EXPIRED"
)

// Offer is a second chance at nights another bidder gave up. Once it leaves
// WAITING it never changes again.
type Offer struct {
	ID               string    `json:"id"`
	OriginalBidID    string    `json:"originalBidId,omitempty"`
	AuctionID        string    `json:"auctionId"`
	UserID           string    `json:"userId"`
	PropertyName     string    `json:"propertyName,omitempty"`
	OfferedNights    []string  `json:"offeredNights"`
	Amount           int64     `json:"amount"`
	ResponseDeadline time.Time `json:"responseDeadline"`
	Status           Status    `json:"status"`
}

func (o *Offer) Validate() error {
	if o.ID == "" || o.ResponseDeadline.IsZero() {
		return ErrInvalidOffer
	}
	return nil
}

// Remaining is the time left to answer, never negative.
func (o *Offer) Remaining(now time.Time) time.Duration {
	if d := o.ResponseDeadline.Sub(now); d > 0 {
		return d
	}
	return 0
}

// Accept takes the offer. A late accept is refused even if the countdown has
// not caught up yet.
func (o *Offer) Accept(now time.Time) error {
	if o.Status != StatusWaiting {
		return ErrOfferNotWaiting
	}
	if !now.Before(o.ResponseDeadline) {
		return ErrOfferExpired
	}
	o.Status = StatusAccepted
	return nil
}

func (o *Offer) Decline() error {
	if o.Status != StatusWaiting {
		return ErrOfferNotWaiting
	}
	o.Status = StatusDeclined
	return nil
}

func (o *Offer) Expire() error {
	if o.Status != StatusWaiting {
		return ErrOfferNotWaiting
	}
	o.Status = StatusExpired
	return nil
}

// OfferGateway is the backend side of second-chance offers.
type OfferGateway interface {
	ListOffers(ctx context.Context) ([]Offer, error)
	AcceptOffer(ctx context.Context, offerID string) error
	DeclineOffer(ctx context.Context, offerID string) error
	TrackOfferDecline(ctx context.Context, offerID, reason string) error
}
