package backend

import (
	"context"
	"errors"
	"net/url"

	"github.com/cristianortiz/auctionSettlement/internal/settlement/domain"
	"github.com/cristianortiz/auctionSettlement/internal/shared/apperror"
	"github.com/gofiber/fiber/v2"
)

func (c *Client) ListWinners(ctx context.Context) ([]domain.WinnerRecord, error) {
	var out []domain.WinnerRecord
	if err := c.do(ctx, request{method: fiber.MethodGet, path: "/auctions/winners/me"}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetWinner(ctx context.Context, auctionID string) (*domain.WinnerRecord, error) {
	var out domain.WinnerRecord
	err := c.do(ctx, request{method: fiber.MethodGet, path: "/auctions/winners/" + url.PathEscape(auctionID)}, &out)
	if errors.Is(err, apperror.ErrNotFound) {
		return nil, domain.ErrWinnerNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) AcceptWinner(ctx context.Context, auctionID string) error {
	return c.do(ctx, request{
		method: fiber.MethodPost,
		path:   "/auctions/winners/" + url.PathEscape(auctionID) + "/accept",
		body:   struct{}{},
	}, nil)
}

func (c *Client) AcceptPartial(ctx context.Context, auctionID string, nights []domain.Date) error {
	body := struct {
		SelectedNights []domain.Date `json:"selectedNights"`
	}{SelectedNights: nights}
	return c.do(ctx, request{
		method: fiber.MethodPost,
		path:   "/auctions/offers/" + url.PathEscape(auctionID) + "/accept",
		body:   body,
	}, nil)
}

func (c *Client) DeclineWinner(ctx context.Context, auctionID, reason string) error {
	return c.do(ctx, request{
		method: fiber.MethodPost,
		path:   "/auctions/winners/" + url.PathEscape(auctionID) + "/decline",
		body:   reasonBody{Reason: reason},
	}, nil)
}

// TrackDecline reports why a decision was declined.
func (c *Client) TrackDecline(ctx context.Context, id, reason string, kind domain.DeclineKind) error {
	body := struct {
		OfferID string             `json:"offerId"`
		Reason  string             `json:"reason"`
		Type    domain.DeclineKind `json:"type"`
	}{OfferID: id, Reason: reason, Type: kind}
	return c.do(ctx, request{method: fiber.MethodPost, path: "/auctions/analytics/decline", body: body}, nil)
}

type dailyPrice struct {
	Date        domain.Date `json:"date"`
	MarketPrice *int64      `json:"market_price"`
}

// MarketPrices returns the highest competing price per night. Nights nobody
// else bid on map to nil.
func (c *Client) MarketPrices(ctx context.Context, userID, auctionID string) (map[domain.Date]*int64, error) {
	var out struct {
		DailyBreakdown []dailyPrice `json:"daily_breakdown"`
	}
	err := c.do(ctx, request{
		method: fiber.MethodGet,
		path:   "/winlose/user/" + url.PathEscape(userID) + "/auction/" + url.PathEscape(auctionID),
	}, &out)
	if err != nil {
		return nil, err
	}
	prices := make(map[domain.Date]*int64, len(out.DailyBreakdown))
	for _, d := range out.DailyBreakdown {
		prices[d.Date] = d.MarketPrice
	}
	return prices, nil
}

type reasonBody struct {
	Reason string `json:"reason,omitempty"`
}
