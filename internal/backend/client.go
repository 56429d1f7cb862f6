// Package backend is the REST client of the auction backend. It implements
// the gateway interfaces of every bounded context.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cristianortiz/auctionSettlement/internal/shared/apperror"
	"github.com/cristianortiz/auctionSettlement/internal/shared/logger"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

var log = logger.GetLogger()

const (
	CodeUnreachable  = "BACKEND_UNREACHABLE"
	CodeBadResponse  = "BACKEND_BAD_RESPONSE"
	headerIdempotent = "Idempotency-Key"
)

// authCodes are error codes the backend uses for an expired or missing login,
// whatever the HTTP status.
var authCodes = map[string]bool{
	"AUTH_REQUIRED":    true,
	"AUTH_FAILED":      true,
	"AUTH_TOKEN_ERROR": true,
	"TOKEN_EXPIRED":    true,
	"UNAUTHORIZED":     true,
}

// Client calls the backend with the bearer token of the logged-in user.
type Client struct {
	baseURL string
	timeout time.Duration

	mu     sync.RWMutex
	userID string
	token  string
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{baseURL: baseURL, timeout: timeout}
}

// SetCredentials switches the user the client acts for. An empty token signs out.
func (c *Client) SetCredentials(userID, token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userID, c.token = userID, token
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) UserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

// Authenticated reports whether a bearer token is set.
func (c *Client) Authenticated() bool { return c.Token() != "" }

type request struct {
	method string
	path   string
	body   any
	header map[string]string
	// clientErr is the kind of a 4xx that is not about auth.
	clientErr apperror.Kind
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// do sends r and decodes a 2xx body into out. Bodies wrapped as
// {"success":..., "data":...} are unwrapped first.
func (c *Client) do(ctx context.Context, r request, out any) error {
	if err := ctx.Err(); err != nil {
		return apperror.Wrap(apperror.KindNetwork, CodeUnreachable, err)
	}
	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout || timeout <= 0 {
			timeout = left
		}
	}

	a := fiber.AcquireAgent()
	req := a.Request()
	req.Header.SetMethod(r.method)
	req.SetRequestURI(c.baseURL + r.path)
	if err := a.Parse(); err != nil {
		fiber.ReleaseAgent(a)
		return apperror.Wrap(apperror.KindValidation, "BAD_BACKEND_URL", err)
	}
	a.Timeout(timeout)
	a.Set(fiber.HeaderAccept, fiber.MIMEApplicationJSON)
	if token := c.Token(); token != "" {
		a.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	for k, v := range r.header {
		a.Set(k, v)
	}
	if r.body != nil {
		a.JSON(r.body)
	}

	start := time.Now()
	code, body, errs := a.Bytes()
	log.Debug("backend call",
		zap.String("method", r.method),
		zap.String("path", r.path),
		zap.Int("status", code),
		zap.Duration("took", time.Since(start)))
	if len(errs) > 0 {
		return apperror.Wrap(apperror.KindNetwork, CodeUnreachable, errs[0])
	}
	if code < 200 || code > 299 {
		return classify(code, body, r.clientErr)
	}
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(unwrap(body), out); err != nil {
		return apperror.Wrap(apperror.KindProtocol, CodeBadResponse, err)
	}
	return nil
}

func unwrap(body []byte) []byte {
	var env struct {
		Success *bool           `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &env); err != nil || env.Success == nil || env.Data == nil {
		return body
	}
	return env.Data
}

func classify(code int, body []byte, clientErr apperror.Kind) error {
	var eb errorBody
	_ = json.Unmarshal(body, &eb)
	errCode, msg := eb.Code, eb.Message
	if eb.Error != nil {
		errCode, msg = eb.Error.Code, eb.Error.Message
	}
	if errCode == "" {
		errCode = fmt.Sprintf("HTTP_%d", code)
	}
	if msg == "" {
		msg = fmt.Sprintf("backend answered %d", code)
	}

	switch {
	case code == fiber.StatusUnauthorized || code == fiber.StatusForbidden || authCodes[errCode]:
		return apperror.New(apperror.KindAuthRequired, errCode, msg)
	case code >= 500:
		return apperror.New(apperror.KindNetwork, errCode, msg)
	case code == fiber.StatusNotFound:
		return apperror.New(apperror.KindNotFound, errCode, msg)
	case clientErr != "":
		return apperror.New(clientErr, errCode, msg)
	default:
		return apperror.New(apperror.KindValidation, errCode, msg)
	}
}
