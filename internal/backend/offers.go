package backend

import (
	"context"
	"net/url"

	"github.com/cristianortiz/auctionSettlement/internal/offer/domain"
	settlement "github.com/cristianortiz/auctionSettlement/internal/settlement/domain"
	"github.com/gofiber/fiber/v2"
)

const secondChancePath = "/auctions/offers/second-chance/"

func (c *Client) ListOffers(ctx context.Context) ([]domain.Offer, error) {
	var out []domain.Offer
	if err := c.do(ctx, request{method: fiber.MethodGet, path: secondChancePath + "me"}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) AcceptOffer(ctx context.Context, offerID string) error {
	return c.do(ctx, request{
		method: fiber.MethodPost,
		path:   secondChancePath + url.PathEscape(offerID) + "/accept",
		body:   struct{}{},
	}, nil)
}

func (c *Client) DeclineOffer(ctx context.Context, offerID string) error {
	return c.do(ctx, request{
		method: fiber.MethodPost,
		path:   secondChancePath + url.PathEscape(offerID) + "/decline",
		body:   reasonBody{},
	}, nil)
}

func (c *Client) TrackOfferDecline(ctx context.Context, offerID, reason string) error {
	return c.TrackDecline(ctx, offerID, reason, settlement.DeclineSecondChance)
}
