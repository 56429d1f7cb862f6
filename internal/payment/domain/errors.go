package domain

import "github.com/cristianortiz/auctionSettlement/internal/shared/apperror"

// Codes follow the backend's payment error codes where one exists.
const (
	CodeInvalidAmount      = "INVALID_AMOUNT"
	CodeMissingTransaction = "MISSING_TRANSACTION_ID"
	CodeCreationFailed     = "PAYMENT_CREATION_FAILED"
	CodeCancelled          = "PAYMENT_CANCELLED"
	CodeFailed             = "PAYMENT_FAILED"
	CodeExpired            = "PAYMENT_EXPIRED"
	CodeTimeout            = "PAYMENT_TIMEOUT"
	CodeUnknownStatus      = "UNKNOWN_PAYMENT_STATUS"
	CodeAuthRequired       = "AUTH_REQUIRED"
	CodeInvalidEvent       = "INVALID_TRANSITION"
	CodeNothingToResume    = "NOTHING_TO_RESUME"
)

var (
	ErrInvalidAmount      = apperror.New(apperror.KindValidation, CodeInvalidAmount, "payment amount is invalid")
	ErrMissingTransaction = apperror.New(apperror.KindValidation, CodeMissingTransaction, "return path carries no transaction id")
	ErrNothingToResume    = apperror.New(apperror.KindValidation, CodeNothingToResume, "saved context holds neither an amount nor a transaction")
	ErrCancelled          = apperror.New(apperror.KindProvider, CodeCancelled, "payment was cancelled")
	ErrPaymentFailed      = apperror.New(apperror.KindProvider, CodeFailed, "payment failed")
	ErrExpired            = apperror.New(apperror.KindProvider, CodeExpired, "payment session expired")
	ErrVerifyTimeout      = apperror.New(apperror.KindTimeout, CodeTimeout, "payment verification attempts exhausted")
	ErrLoginRequired      = apperror.New(apperror.KindAuthRequired, CodeAuthRequired, "login required to continue the payment")
	ErrContextNotFound    = apperror.New(apperror.KindNotFound, "RETURN_CONTEXT_NOT_FOUND", "no saved payment context for this locator")
)

// authCodes are backend codes that mean the session is not authenticated.
var authCodes = map[string]bool{
	"AUTH_REQUIRED":    true,
	"AUTH_FAILED":      true,
	"AUTH_TOKEN_ERROR": true,
}

// IsAuthCode reports whether a backend error code signals an auth failure.
func IsAuthCode(code string) bool { return authCodes[code] }
