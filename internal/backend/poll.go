package backend

import (
	"context"

	notification "github.com/cristianortiz/auctionSettlement/internal/notification/domain"
	offer "github.com/cristianortiz/auctionSettlement/internal/offer/domain"
	settlement "github.com/cristianortiz/auctionSettlement/internal/settlement/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
)

// PollMessages rebuilds the notifications the push channel may have missed
// from the winner records and offers still waiting for the user. The router
// drops whatever was already delivered.
func (c *Client) PollMessages(ctx context.Context, userID string) ([]notification.Message, error) {
	var msgs []notification.Message
	var errs error

	winners, err := c.ListWinners(ctx)
	if err != nil {
		errs = multierr.Append(errs, err)
	}
	for _, w := range winners {
		if w.Status != settlement.WinnerNotified {
			continue
		}
		msgs = append(msgs, auctionResult(userID, w))
	}

	offers, err := c.ListOffers(ctx)
	if err != nil {
		errs = multierr.Append(errs, err)
	}
	for _, o := range offers {
		if o.Status != "" && o.Status != offer.StatusWaiting {
			continue
		}
		msgs = append(msgs, secondChance(userID, o))
	}
	return msgs, errs
}

func auctionResult(userID string, w settlement.WinnerRecord) *notification.AuctionResult {
	result := notification.ResultFullWin
	if w.WinType == settlement.WinPartial {
		result = notification.ResultPartialWin
	}
	nights := make([]string, len(w.AwardedNights))
	for i, n := range w.AwardedNights {
		nights[i] = n.Date.String()
	}
	if w.UserID != "" {
		userID = w.UserID
	}
	return &notification.AuctionResult{
		BaseMessage:     notification.BaseMessage{Type: notification.TypeAuctionResult},
		AuctionID:       w.AuctionID,
		UserID:          userID,
		Result:          result,
		AwardedNights:   nights,
		Amount:          decimal.NewFromInt(w.TotalAmount),
		PaymentDeadline: w.PaymentDeadline,
		PropertyName:    w.PropertyName,
	}
}

func secondChance(userID string, o offer.Offer) *notification.SecondChanceOffer {
	if o.UserID != "" {
		userID = o.UserID
	}
	return &notification.SecondChanceOffer{
		BaseMessage:      notification.BaseMessage{Type: notification.TypeSecondChanceOffer},
		OfferID:          o.ID,
		AuctionID:        o.AuctionID,
		UserID:           userID,
		OfferedNights:    o.OfferedNights,
		Amount:           decimal.NewFromInt(o.Amount),
		ResponseDeadline: o.ResponseDeadline,
		PropertyName:     o.PropertyName,
	}
}
