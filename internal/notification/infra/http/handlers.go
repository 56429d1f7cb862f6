package http

import (
	"github.com/cristianortiz/auctionSettlement/internal/notification/application"
	"github.com/cristianortiz/auctionSettlement/internal/notification/domain"
	"github.com/cristianortiz/auctionSettlement/internal/shared/apperror"
	"github.com/cristianortiz/auctionSettlement/internal/shared/logger"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

var log = logger.GetLogger()

// Credentials keeps the backend token of the logged-in user.
type Credentials interface {
	SetCredentials(userID, token string)
}

// SessionHandler logs users in and out and reports the health of their
// notification stack.
type SessionHandler struct {
	lifecycle *application.Lifecycle
	creds     Credentials
}

func NewSessionHandler(lifecycle *application.Lifecycle, creds Credentials) *SessionHandler {
	return &SessionHandler{lifecycle: lifecycle, creds: creds}
}

func (h *SessionHandler) RegisterRoutes(r fiber.Router) {
	r.Post("/session", h.Login)
	r.Get("/session", h.Current)
	r.Delete("/session", h.Logout)

	g := r.Group("/notifications")
	g.Get("/stats", h.Stats)
	g.Post("/reconnect", h.Reconnect)
}

type LoginRequest struct {
	UserID string `json:"userId"`
	Token  string `json:"token"`
}

type SessionView struct {
	UserID     string                     `json:"userId"`
	Connection application.ConnectionInfo `json:"connection"`
}

type StatsView struct {
	Router        application.RouterStats    `json:"router"`
	Discriminator domain.DiscriminatorStats  `json:"discriminator"`
	Connection    application.ConnectionInfo `json:"connection"`
}

var errNoSession = apperror.New(apperror.KindAuthRequired, "NO_SESSION", "nobody is logged in")

func (h *SessionHandler) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperror.Validation("INVALID_LOGIN", "invalid login body")
	}
	if req.UserID == "" || req.Token == "" {
		return apperror.Validation("INVALID_LOGIN", "userId and token are required")
	}

	// the token must be in place before the push channel dials
	h.creds.SetCredentials(req.UserID, req.Token)
	s, err := h.lifecycle.Login(req.UserID)
	if err != nil {
		h.creds.SetCredentials("", "")
		log.Error("login failed", zap.String("user_id", req.UserID), zap.Error(err))
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(SessionView{UserID: s.UserID, Connection: s.Connection.Info()})
}

func (h *SessionHandler) Current(c *fiber.Ctx) error {
	s := h.lifecycle.Current()
	if s == nil {
		return errNoSession
	}
	return c.JSON(SessionView{UserID: s.UserID, Connection: s.Connection.Info()})
}

func (h *SessionHandler) Logout(c *fiber.Ctx) error {
	err := h.lifecycle.Logout()
	h.creds.SetCredentials("", "")
	if err != nil {
		log.Warn("logout finished with errors", zap.Error(err))
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *SessionHandler) Stats(c *fiber.Ctx) error {
	s := h.lifecycle.Current()
	if s == nil {
		return errNoSession
	}
	return c.JSON(StatsView{
		Router:        s.Router.Stats(),
		Discriminator: s.Discriminator.Stats(),
		Connection:    s.Connection.Info(),
	})
}

// Reconnect is the manual retry once automatic reconnection gave up.
func (h *SessionHandler) Reconnect(c *fiber.Ctx) error {
	s := h.lifecycle.Current()
	if s == nil {
		return errNoSession
	}
	if err := s.Connection.ForceReconnect(); err != nil {
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(s.Connection.Info())
}
