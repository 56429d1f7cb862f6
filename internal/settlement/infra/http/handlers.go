package http

import (
	"context"

	"github.com/cristianortiz/auctionSettlement/internal/settlement/application"
	"github.com/cristianortiz/auctionSettlement/internal/settlement/domain"
	"github.com/cristianortiz/auctionSettlement/internal/shared/apperror"
	"github.com/cristianortiz/auctionSettlement/internal/shared/logger"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var log = logger.GetLogger()

// Checkout hands an accepted selection over to the payment flow.
type Checkout func(ctx context.Context, req *application.PaymentRequest) (any, error)

type WinnerHandler struct {
	settlement application.SettlementService
	checkout   Checkout
}

// NewWinnerHandler builds the winner routes. checkout may be nil, proceed then
// only answers the payment request.
func NewWinnerHandler(settlement application.SettlementService, checkout Checkout) *WinnerHandler {
	return &WinnerHandler{settlement: settlement, checkout: checkout}
}

func (h *WinnerHandler) RegisterRoutes(r fiber.Router) {
	g := r.Group("/winners/:auctionId")
	g.Get("/decision", h.GetDecision)
	g.Post("/ranges/:rangeId/toggle", h.ToggleRange)
	g.Post("/proceed", h.Proceed)
	g.Post("/decline", h.Decline)
	r.Post("/win-loss", h.WinLoss)
}

type DeclineRequest struct {
	Reason string `json:"reason"`
}

type ProceedResponse struct {
	Payment  *application.PaymentRequest `json:"payment"`
	Checkout any                         `json:"checkout,omitempty"`
}

func (h *WinnerHandler) GetDecision(c *fiber.Ctx) error {
	auctionID := c.Params("auctionId")
	if c.QueryBool("refresh") {
		h.settlement.Forget(auctionID)
	}
	dto, err := h.settlement.GetDecision(c.UserContext(), auctionID)
	if err != nil {
		return err
	}
	return c.JSON(dto)
}

func (h *WinnerHandler) ToggleRange(c *fiber.Ctx) error {
	rangeID, err := uuid.Parse(c.Params("rangeId"))
	if err != nil {
		return apperror.Validation("INVALID_RANGE_ID", "range id %q is not a uuid", c.Params("rangeId"))
	}
	dto, err := h.settlement.ToggleRange(c.UserContext(), c.Params("auctionId"), rangeID)
	if err != nil {
		return err
	}
	return c.JSON(dto)
}

func (h *WinnerHandler) Proceed(c *fiber.Ctx) error {
	auctionID := c.Params("auctionId")
	req, err := h.settlement.Proceed(c.UserContext(), auctionID)
	if err != nil {
		return err
	}
	resp := ProceedResponse{Payment: req}
	if h.checkout != nil {
		out, err := h.checkout(c.UserContext(), req)
		if err != nil {
			log.Error("checkout failed after acceptance", zap.String("auction_id", auctionID), zap.Error(err))
			return err
		}
		resp.Checkout = out
	}
	return c.JSON(resp)
}

func (h *WinnerHandler) Decline(c *fiber.Ctx) error {
	var req DeclineRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid decline body")
		}
	}
	if err := h.settlement.Decline(c.UserContext(), c.Params("auctionId"), req.Reason); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// WinLoss compares a bid against market prices.
func (h *WinnerHandler) WinLoss(c *fiber.Ctx) error {
	var bid domain.Bid
	if err := c.BodyParser(&bid); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid bid body")
	}
	report, err := h.settlement.WinLoss(c.UserContext(), bid.UserID, bid)
	if err != nil {
		return err
	}
	return c.JSON(report)
}
