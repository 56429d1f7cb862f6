package http

import (
	"encoding/json"
	"errors"

	"github.com/cristianortiz/auctionSettlement/internal/payment/application"
	"github.com/cristianortiz/auctionSettlement/internal/payment/domain"
	"github.com/cristianortiz/auctionSettlement/internal/shared/apperror"
	"github.com/cristianortiz/auctionSettlement/internal/shared/logger"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

var log = logger.GetLogger()

// PaymentHandler exposes the payment session of the logged-in user.
type PaymentHandler struct {
	payments *application.PaymentService
}

func NewPaymentHandler(payments *application.PaymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

func (h *PaymentHandler) RegisterRoutes(r fiber.Router) {
	g := r.Group("/payments")
	g.Post("/", h.Start)
	g.Get("/state", h.State)
	g.Post("/retry", h.Retry)
	g.Post("/reset", h.Reset)
	g.Get("/return", h.Return)
	g.Get("/:id/booking", h.Booking)
	r.Get("/auth/return", h.AuthReturn)
}

// StartPaymentRequest carries the amount as a json number so fractions are
// seen and refused instead of truncated.
type StartPaymentRequest struct {
	Amount  json.Number           `json:"amount"`
	Context domain.BookingContext `json:"context"`
}

// ErrorView is the failure shown next to a failed machine.
type ErrorView struct {
	Code    string          `json:"code,omitempty"`
	Message string          `json:"message"`
	Action  apperror.Action `json:"action"`
}

// MachineView is the json face of a payment machine.
type MachineView struct {
	State         domain.State          `json:"state"`
	Amount        domain.Amount         `json:"amount"`
	Currency      string                `json:"currency,omitempty"`
	Context       domain.BookingContext `json:"context"`
	Locator       string                `json:"locator,omitempty"`
	TransactionID string                `json:"transactionId,omitempty"`
	RedirectURL   string                `json:"redirectUrl,omitempty"`
	Attempts      int                   `json:"attempts"`
	Error         *ErrorView            `json:"error,omitempty"`
}

func NewMachineView(m domain.Machine) MachineView {
	v := MachineView{
		State:         m.State,
		Amount:        m.Amount,
		Currency:      m.Currency,
		Context:       m.Context,
		Locator:       m.Locator,
		TransactionID: m.TransactionID,
		RedirectURL:   m.RedirectURL,
		Attempts:      m.Attempts,
	}
	if m.LastError != nil {
		action, msg := apperror.UserFacing(m.LastError)
		v.Error = &ErrorView{Message: msg, Action: action}
		var ae *apperror.Error
		if errors.As(m.LastError, &ae) {
			v.Error.Code = ae.Code
		}
	}
	return v
}

func (h *PaymentHandler) Start(c *fiber.Ctx) error {
	var req StartPaymentRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return apperror.Validation(domain.CodeInvalidAmount, "invalid payment request: %v", err)
	}
	amount, err := domain.ParseAmount(req.Amount.String())
	if err != nil {
		return err
	}
	s, err := h.payments.Current()
	if err != nil {
		return err
	}
	m, err := s.Start(application.StartRequest{Amount: amount, Context: req.Context})
	if err != nil {
		log.Warn("payment start refused", zap.String("auction_id", req.Context.AuctionID), zap.Error(err))
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(NewMachineView(m))
}

func (h *PaymentHandler) State(c *fiber.Ctx) error {
	s, err := h.payments.Current()
	if err != nil {
		return err
	}
	return c.JSON(NewMachineView(s.Machine()))
}

func (h *PaymentHandler) Retry(c *fiber.Ctx) error {
	s, err := h.payments.Current()
	if err != nil {
		return err
	}
	m, err := s.Retry()
	if err != nil {
		return err
	}
	return c.JSON(NewMachineView(m))
}

func (h *PaymentHandler) Reset(c *fiber.Ctx) error {
	s, err := h.payments.Current()
	if err != nil {
		return err
	}
	if err := s.Reset(); err != nil {
		return err
	}
	return c.JSON(NewMachineView(s.Machine()))
}

// Return is where the provider sends the browser back to.
func (h *PaymentHandler) Return(c *fiber.Ctx) error {
	p, err := application.ParseReturnQuery(string(c.Request().URI().QueryString()))
	if err != nil {
		return err
	}
	s, err := h.payments.Current()
	if err != nil {
		return err
	}
	m, err := s.HandleReturn(c.UserContext(), p)
	if err != nil {
		return err
	}
	return c.JSON(NewMachineView(m))
}

// AuthReturn continues a payment that stopped for a login.
func (h *PaymentHandler) AuthReturn(c *fiber.Ctx) error {
	locator := c.Query("locator")
	if locator == "" {
		return apperror.Validation(domain.CodeNothingToResume, "locator is required")
	}
	s, err := h.payments.Current()
	if err != nil {
		return err
	}
	m, err := s.ResumeAfterLogin(c.UserContext(), locator)
	if err != nil {
		return err
	}
	return c.JSON(NewMachineView(m))
}

func (h *PaymentHandler) Booking(c *fiber.Ctx) error {
	b, err := h.payments.Booking(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(b)
}
