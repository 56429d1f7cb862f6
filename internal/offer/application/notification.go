package application

import (
	"context"

	notification "github.com/cristianortiz/auctionSettlement/internal/notification/domain"
	"github.com/cristianortiz/auctionSettlement/internal/offer/domain"
)

// OfferFromMessage converts a pushed second-chance offer.
func OfferFromMessage(m *notification.SecondChanceOffer) domain.Offer {
	return domain.Offer{
		ID:               m.OfferID,
		AuctionID:        m.AuctionID,
		UserID:           m.UserID,
		PropertyName:     m.PropertyName,
		OfferedNights:    append([]string(nil), m.OfferedNights...),
		Amount:           m.Amount.IntPart(),
		ResponseDeadline: m.ResponseDeadline,
		Status:           domain.StatusWaiting,
	}
}

// HandleNotification opens offers announced by the notification router.
func (s *Service) HandleNotification(_ context.Context, m notification.Message) error {
	offer, ok := m.(*notification.SecondChanceOffer)
	if !ok {
		return nil
	}
	_, err := s.Open(OfferFromMessage(offer))
	return err
}
