package httpserver

import (
	"context"
	"errors"
	"strconv"

	"github.com/cristianortiz/auctionSettlement/internal/shared/apperror"
	"github.com/cristianortiz/auctionSettlement/internal/shared/logger"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type Server struct {
	app *fiber.App
}

var log = logger.GetLogger()

// RouteRegistrar is the http side of one bounded context.
type RouteRegistrar interface {
	RegisterRoutes(r fiber.Router)
}

func NewServer(registrars ...RouteRegistrar) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          ErrorHandler,
	})

	// logging middleware
	app.Use(func(c *fiber.Ctx) error {
		log.Info("HTTP request",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.String("remote_addr", c.IP()),
		)
		return c.Next()
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.SendString("OK")
	})

	for _, r := range registrars {
		r.RegisterRoutes(app)
	}
	return &Server{app: app}
}

// App exposes the fiber app, tests drive it with app.Test.
func (s *Server) App() *fiber.App { return s.app }

// Start blocks serving addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	log.Info("HTTP server started", zap.String("addr", addr))
	return s.app.Listen(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	log.Info("Shutting down HTTP server...")
	return s.app.ShutdownWithContext(ctx)
}

// ErrorBody is the json shape of every error answer.
type ErrorBody struct {
	Error struct {
		Kind    apperror.Kind   `json:"kind,omitempty"`
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Action  apperror.Action `json:"action,omitempty"`
	} `json:"error"`
}

// StatusOf maps an error kind onto an HTTP status.
func StatusOf(kind apperror.Kind) int {
	switch kind {
	case apperror.KindValidation:
		return fiber.StatusBadRequest
	case apperror.KindAuthRequired:
		return fiber.StatusUnauthorized
	case apperror.KindNotFound:
		return fiber.StatusNotFound
	case apperror.KindConflict:
		return fiber.StatusConflict
	case apperror.KindProtocol:
		return fiber.StatusUnprocessableEntity
	case apperror.KindProvider:
		return fiber.StatusBadGateway
	case apperror.KindTimeout:
		return fiber.StatusGatewayTimeout
	default:
		return fiber.StatusServiceUnavailable
	}
}

// ErrorHandler renders fiber errors as is and application errors with their
// kind, code and the action offered to the user.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var body ErrorBody
	var fe *fiber.Error
	var ae *apperror.Error
	status := fiber.StatusInternalServerError

	switch {
	case errors.As(err, &fe):
		status = fe.Code
		body.Error.Code = "HTTP_" + strconv.Itoa(fe.Code)
		body.Error.Message = fe.Message
	case errors.As(err, &ae):
		status = StatusOf(ae.Kind)
		body.Error.Kind = ae.Kind
		body.Error.Code = ae.Code
		body.Error.Message = err.Error()
		body.Error.Action, _ = apperror.UserFacing(err)
	default:
		body.Error.Code = "INTERNAL"
		body.Error.Message = err.Error()
	}

	if status >= fiber.StatusInternalServerError {
		log.Error("request failed", zap.String("path", c.Path()), zap.Int("status", status), zap.Error(err))
	}
	return c.Status(status).JSON(body)
}
