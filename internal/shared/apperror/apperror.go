// Package apperror holds the error taxonomy shared by every settlement component.
// Each error carries a Kind from a closed set, so callers branch on the kind
// (errors.Is against the sentinels below) and never on message text.
package apperror

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies an error.
type Kind string

const (
	KindValidation   Kind = "validation"    // rejected locally, never sent
	KindAuthRequired Kind = "auth_required" // flow suspended until login
	KindNetwork      Kind = "network"       // retried with backoff up to a bound
	KindProvider     Kind = "provider"      // payment failed or cancelled, terminal
	KindTimeout      Kind = "timeout"       // verification attempts exhausted, terminal
	KindProtocol     Kind = "protocol"      // malformed inbound message, logged and dropped
	KindConflict     Kind = "conflict"      // operation not valid in the current state, no-op
	KindNotFound     Kind = "not_found"
)

// Error is the concrete error type used across the engine.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

// Sentinels, match any *Error of the same kind with errors.Is.
var (
	ErrValidation   = &Error{Kind: KindValidation}
	ErrAuthRequired = &Error{Kind: KindAuthRequired}
	ErrNetwork      = &Error{Kind: KindNetwork}
	ErrProvider     = &Error{Kind: KindProvider}
	ErrTimeout      = &Error{Kind: KindTimeout}
	ErrProtocol     = &Error{Kind: KindProtocol}
	ErrConflict     = &Error{Kind: KindConflict}
	ErrNotFound     = &Error{Kind: KindNotFound}
)

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err == nil {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		msg = join(msg, e.Err.Error())
	}
	return join(e.Code, msg)
}

func join(prefix, msg string) string {
	switch {
	case prefix == "":
		return msg
	case msg == "":
		return prefix
	}
	return prefix + ": " + msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports kind equality against a sentinel (a target without code),
// or kind and code equality otherwise.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

// New builds an error of the given kind.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap builds an error of the given kind around a cause.
func Wrap(kind Kind, code string, err error) *Error {
	return &Error{Kind: kind, Code: code, Message: "", Err: err}
}

func Validation(code, format string, args ...any) *Error {
	return New(KindValidation, code, fmt.Sprintf(format, args...))
}

func Conflict(code, format string, args ...any) *Error {
	return New(KindConflict, code, fmt.Sprintf(format, args...))
}

func Protocol(code, format string, args ...any) *Error {
	return New(KindProtocol, code, fmt.Sprintf(format, args...))
}

// KindOf classifies any error. Errors outside the taxonomy are treated as
// network errors since they come from transport failures in practice.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindConflict
	}
	return KindNetwork
}

// Action is what the user is offered after a failure.
type Action string

const (
	ActionRetry             Action = "RETRY"
	ActionReturnToSelection Action = "RETURN_TO_SELECTION"
	ActionVerifyStatus      Action = "VERIFY_STATUS"
	ActionLogin             Action = "LOGIN"
	ActionShowError         Action = "SHOW_ERROR"
)

// UserFacing maps an error to the single message and action shown to the user.
func UserFacing(err error) (Action, string) {
	var ae *Error
	if errors.As(err, &ae) {
		switch ae.Code {
		case "PAYMENT_CANCELLED":
			return ActionReturnToSelection, "Payment was cancelled."
		case "INSUFFICIENT_FUNDS":
			return ActionShowError, "Insufficient funds. Please try a different payment method."
		}
	}
	switch KindOf(err) {
	case KindValidation:
		return ActionShowError, "Invalid payment request. Please check the amount and try again."
	case KindAuthRequired:
		return ActionLogin, "You need to be logged in to continue."
	case KindTimeout:
		return ActionVerifyStatus, "Payment is taking longer than expected. Please check your account before paying again."
	case KindProvider:
		return ActionRetry, "Payment failed. Please try again."
	case KindNetwork:
		return ActionRetry, "Unable to reach the payment service. Please try again."
	default:
		return ActionShowError, "An unexpected error occurred. Please contact support."
	}
}
