package http

import (
	"github.com/cristianortiz/auctionSettlement/internal/offer/application"
	"github.com/gofiber/fiber/v2"
)

type OfferHandler struct {
	offers *application.Service
}

func NewOfferHandler(offers *application.Service) *OfferHandler {
	return &OfferHandler{offers: offers}
}

func (h *OfferHandler) RegisterRoutes(r fiber.Router) {
	g := r.Group("/offers")
	g.Get("/", h.List)
	g.Get("/:id", h.Get)
	g.Post("/:id/accept", h.Accept)
	g.Post("/:id/decline", h.Decline)
}

type DeclineRequest struct {
	Reason string `json:"reason"`
}

func (h *OfferHandler) List(c *fiber.Ctx) error {
	return c.JSON(h.offers.List())
}

func (h *OfferHandler) Get(c *fiber.Ctx) error {
	v, err := h.offers.Get(c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(v)
}

func (h *OfferHandler) Accept(c *fiber.Ctx) error {
	v, err := h.offers.Accept(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(v)
}

func (h *OfferHandler) Decline(c *fiber.Ctx) error {
	var req DeclineRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid decline body")
		}
	}
	v, err := h.offers.Decline(c.UserContext(), c.Params("id"), req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(v)
}
