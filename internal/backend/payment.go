package backend

import (
	"context"
	"net/url"

	"github.com/cristianortiz/auctionSettlement/internal/payment/domain"
	"github.com/cristianortiz/auctionSettlement/internal/shared/apperror"
	"github.com/gofiber/fiber/v2"
)

// CreatePayment opens a provider order. The idempotency key lets a retried
// request land on the same order.
func (c *Client) CreatePayment(ctx context.Context, req domain.CreateRequest) (*domain.CreateResult, error) {
	var header map[string]string
	if req.IdempotencyKey != "" {
		header = map[string]string{headerIdempotent: req.IdempotencyKey}
	}
	var out domain.CreateResult
	err := c.do(ctx, request{
		method:    fiber.MethodPost,
		path:      "/payment/zalopay/create",
		body:      req,
		header:    header,
		clientErr: apperror.KindProvider,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) VerifyPayment(ctx context.Context, transactionID string) (*domain.StatusResult, error) {
	var out domain.StatusResult
	err := c.do(ctx, request{
		method:    fiber.MethodGet,
		path:      "/payment/zalopay/status/" + url.PathEscape(transactionID),
		clientErr: apperror.KindProvider,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetBooking(ctx context.Context, paymentID string) (*domain.Booking, error) {
	var out domain.Booking
	err := c.do(ctx, request{
		method: fiber.MethodGet,
		path:   "/payment/" + url.PathEscape(paymentID) + "/booking",
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
